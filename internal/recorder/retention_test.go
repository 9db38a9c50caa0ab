package recorder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sg-security/backend/internal/models"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestSweepDeletesExactlyExpiredRecordings(t *testing.T) {
	base := t.TempDir()
	videos := filepath.Join(base, "videos")
	store := newFakeStore()
	clk := newVirtualClock(0)
	cutoff := testStart.Add(-30 * 24 * time.Hour)

	// Expired, with a first segment and two more listed in metadata.
	oldFirst := filepath.Join(videos, "camera-1_segment_001.mp4")
	oldSecond := filepath.Join(videos, "camera-1_segment_002.mp4")
	oldThird := filepath.Join(videos, "camera-1_segment_003.mp4")
	writeFile(t, oldFirst, 100)
	writeFile(t, oldSecond, 50)
	writeFile(t, oldThird, 25)
	expired := &models.Recording{
		ID: uuid.New(), CameraID: "camera-1", FilePath: oldFirst, CreatedAt: cutoff.Add(-time.Hour),
		Metadata: models.RecordingMetadata{Segments: []models.SegmentInfo{
			{Ordinal: 1, Path: oldFirst}, {Ordinal: 2, Path: oldSecond}, {Ordinal: 3, Path: oldThird},
		}},
	}
	// Expired, file already gone.
	missing := &models.Recording{
		ID: uuid.New(), CameraID: "camera-2", FilePath: filepath.Join(videos, "gone.mp4"), CreatedAt: cutoff.Add(-48 * time.Hour),
	}
	// Expired, but pointing outside the recording tree.
	outsidePath := filepath.Join(t.TempDir(), "keep.mp4")
	writeFile(t, outsidePath, 10)
	outside := &models.Recording{ID: uuid.New(), CameraID: "camera-3", FilePath: outsidePath, CreatedAt: cutoff.Add(-time.Minute)}
	// Exactly at the cutoff and newer: kept.
	boundaryPath := filepath.Join(videos, "boundary.mp4")
	recentPath := filepath.Join(videos, "recent.mp4")
	writeFile(t, boundaryPath, 7)
	writeFile(t, recentPath, 9)
	boundary := &models.Recording{ID: uuid.New(), CameraID: "camera-1", FilePath: boundaryPath, CreatedAt: cutoff}
	recent := &models.Recording{ID: uuid.New(), CameraID: "camera-1", FilePath: recentPath, CreatedAt: testStart.Add(-time.Hour)}

	for _, r := range []*models.Recording{expired, missing, outside, boundary, recent} {
		store.put(r)
	}

	res, err := NewSweeper(store, clk, base, nil).Sweep(context.Background(), 30)
	require.NoError(t, err)

	assert.Equal(t, 3, res.DeletedCount)
	assert.EqualValues(t, 175, res.FreedBytes)
	assert.True(t, cutoff.Equal(res.Cutoff))

	assert.NoFileExists(t, oldFirst)
	assert.NoFileExists(t, oldSecond)
	assert.NoFileExists(t, oldThird)
	assert.FileExists(t, outsidePath)
	assert.FileExists(t, boundaryPath)
	assert.FileExists(t, recentPath)

	assert.Nil(t, store.get(expired.ID))
	assert.Nil(t, store.get(missing.ID))
	assert.Nil(t, store.get(outside.ID))
	assert.NotNil(t, store.get(boundary.ID))
	assert.NotNil(t, store.get(recent.ID))

	require.Len(t, store.deleted, 1, "rows are deleted in one batch")
	assert.Len(t, store.deleted[0], 3)
}

func TestSweepNothingExpired(t *testing.T) {
	store := newFakeStore()
	store.put(&models.Recording{ID: uuid.New(), CreatedAt: testStart})

	res, err := NewSweeper(store, newVirtualClock(0), t.TempDir(), nil).Sweep(context.Background(), 30)
	require.NoError(t, err)
	assert.Zero(t, res.DeletedCount)
	assert.Zero(t, res.FreedBytes)
	assert.Empty(t, store.deleted)
}

func TestSweepDeleteFailureReportsNothingDeleted(t *testing.T) {
	base := t.TempDir()
	store := newFakeStore()
	store.deleteErr = errors.New("deadlock detected")
	store.put(&models.Recording{ID: uuid.New(), CreatedAt: testStart.AddDate(-1, 0, 0)})

	res, err := NewSweeper(store, newVirtualClock(0), base, nil).Sweep(context.Background(), 30)
	assert.ErrorContains(t, err, "deadlock detected")
	assert.Zero(t, res.DeletedCount)
	assert.Equal(t, 1, store.count())
}

func TestWithinBase(t *testing.T) {
	s := NewSweeper(nil, nil, "/recordings", nil)
	assert.True(t, s.withinBase("/recordings/videos/a.mp4"))
	assert.False(t, s.withinBase("/recordings/../etc/passwd"))
	assert.False(t, s.withinBase("/recordings-old/a.mp4"))
	assert.False(t, s.withinBase("/tmp/a.mp4"))
}
