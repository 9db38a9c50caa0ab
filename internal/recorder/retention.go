package recorder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SweepResult summarises one retention pass.
type SweepResult struct {
	DeletedCount int       `json:"deleted_recordings"`
	FreedBytes   int64     `json:"freed_bytes"`
	SkippedLive  int       `json:"skipped_live,omitempty"`
	Cutoff       time.Time `json:"cutoff_date"`
}

// Sweeper deletes recordings older than the retention window together with their files.
type Sweeper struct {
	store    RecordingStore
	clock    Clock
	basePath string
	// live reports recordings still being written; they are never swept. Optional.
	live   func(recordingID uuid.UUID) bool
	logger *zap.Logger
}

// NewSweeper creates a Sweeper. Files outside basePath are never removed.
func NewSweeper(store RecordingStore, clk Clock, basePath string, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{store: store, clock: clk, basePath: filepath.Clean(basePath), logger: logger}
}

// Sweep removes every finished recording created strictly before now - retentionDays.
// Recordings still being written are skipped until a later pass.
// Rows are deleted even when their files could not be removed; all rows go in one transaction.
func (s *Sweeper) Sweep(ctx context.Context, retentionDays int) (SweepResult, error) {
	cutoff := s.clock.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	res := SweepResult{Cutoff: cutoff}

	recs, err := s.store.ListCreatedBefore(ctx, cutoff)
	if err != nil {
		return res, fmt.Errorf("list expired recordings: %w", err)
	}
	if len(recs) == 0 {
		return res, nil
	}

	ids := make([]uuid.UUID, 0, len(recs))
	for _, rec := range recs {
		if !rec.Finalized() && s.live != nil && s.live(rec.ID) {
			res.SkippedLive++
			continue
		}
		for _, path := range rec.SegmentPaths() {
			freed, err := s.removeFile(path)
			if err != nil {
				s.logger.Warn("retention: file not removed",
					zap.String("recording_id", rec.ID.String()),
					zap.String("path", path),
					zap.Error(err),
				)
				continue
			}
			res.FreedBytes += freed
		}
		ids = append(ids, rec.ID)
	}

	if len(ids) == 0 {
		return res, nil
	}
	if err := s.store.DeleteMany(ctx, ids); err != nil {
		return SweepResult{Cutoff: cutoff, SkippedLive: res.SkippedLive}, fmt.Errorf("delete expired recordings: %w", err)
	}
	res.DeletedCount = len(ids)
	s.logger.Info("retention sweep finished",
		zap.Int("deleted", res.DeletedCount),
		zap.Int("skipped_live", res.SkippedLive),
		zap.Int64("freed_bytes", res.FreedBytes),
		zap.Time("cutoff", cutoff),
	)
	return res, nil
}

// removeFile deletes path and returns its size. A missing file frees nothing and is not an error.
func (s *Sweeper) removeFile(path string) (int64, error) {
	if !s.withinBase(path) {
		return 0, fmt.Errorf("path outside recording directory")
	}
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if fi.IsDir() {
		return 0, fmt.Errorf("path is a directory")
	}
	if err := os.Remove(path); err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (s *Sweeper) withinBase(path string) bool {
	rel, err := filepath.Rel(s.basePath, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
