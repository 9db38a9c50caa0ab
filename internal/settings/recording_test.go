package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sg-security/backend/config"
)

type mapGetter struct {
	values map[string]string
	err    error
}

func (m mapGetter) Get(_ context.Context, key string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func baseRecording() config.RecordingConfig {
	return config.RecordingConfig{BasePath: "/rec", MaxSizeGB: 100, RetentionDays: 30, FPS: 10, SegmentMinutes: 30}
}

func TestApplyRecordingOverrides(t *testing.T) {
	cfg := baseRecording()
	store := mapGetter{values: map[string]string{
		KeyRecordingPath:  `"/mnt/recordings"`,
		KeyMaxSizeGB:      "250.5",
		KeyRetentionDays:  "7",
		KeyRecordingFPS:   `"15"`,
		KeySegmentMinutes: "10",
	}}

	require.NoError(t, ApplyRecordingOverrides(context.Background(), store, &cfg, nil))

	assert.Equal(t, "/mnt/recordings", cfg.BasePath)
	assert.Equal(t, 250.5, cfg.MaxSizeGB)
	assert.Equal(t, 7, cfg.RetentionDays)
	assert.Equal(t, 15, cfg.FPS)
	assert.Equal(t, 10, cfg.SegmentMinutes)
}

func TestApplyRecordingOverridesIgnoresInvalid(t *testing.T) {
	cfg := baseRecording()
	store := mapGetter{values: map[string]string{
		KeyMaxSizeGB:      "lots",
		KeyRecordingFPS:   "0",
		KeySegmentMinutes: "-5",
		KeyRetentionDays:  "0",
	}}

	require.NoError(t, ApplyRecordingOverrides(context.Background(), store, &cfg, nil))

	assert.Equal(t, "/rec", cfg.BasePath)
	assert.Equal(t, 100.0, cfg.MaxSizeGB)
	assert.Equal(t, 10, cfg.FPS)
	assert.Equal(t, 30, cfg.SegmentMinutes)
	assert.Equal(t, 0, cfg.RetentionDays)
}

func TestApplyRecordingOverridesReadError(t *testing.T) {
	cfg := baseRecording()
	err := ApplyRecordingOverrides(context.Background(), mapGetter{err: errors.New("db down")}, &cfg, nil)
	require.Error(t, err)
	assert.Equal(t, baseRecording(), cfg)
}
