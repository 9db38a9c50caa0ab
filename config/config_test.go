package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRecordingDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	rec := cfg.Recording
	assert.Equal(t, "/home/ubuntu/recordings", rec.BasePath)
	assert.Equal(t, 100.0, rec.MaxSizeGB)
	assert.Equal(t, 30, rec.RetentionDays)
	assert.Equal(t, 10, rec.FPS)
	assert.Equal(t, 30*time.Minute, rec.SegmentDuration())
	assert.Equal(t, 10*time.Second, rec.StopTimeout)
	assert.Equal(t, 5*time.Second, rec.FrameTimeout)
	assert.False(t, cfg.AWS.ArchiveEnabled())
}

func TestLoadRecordingFromEnv(t *testing.T) {
	t.Setenv("RECORDING_PATH", "/data/rec")
	t.Setenv("RECORDING_MAX_SIZE_GB", "12.5")
	t.Setenv("RECORDING_FPS", "5")
	t.Setenv("RECORDING_STOP_TIMEOUT", "3")
	t.Setenv("RECORDING_FRAME_TIMEOUT", "750ms")
	t.Setenv("FRAME_SOURCE_URL", "http://gateway:9090/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/rec", cfg.Recording.BasePath)
	assert.Equal(t, 12.5, cfg.Recording.MaxSizeGB)
	assert.Equal(t, 5, cfg.Recording.FPS)
	assert.Equal(t, 3*time.Second, cfg.Recording.StopTimeout)
	assert.Equal(t, 750*time.Millisecond, cfg.Recording.FrameTimeout)
	assert.Equal(t, "http://gateway:9090", cfg.FrameSource.BaseURL)
	assert.Equal(t, filepath.Join("/data/rec", "videos"), cfg.Recording.VideosDir())
	assert.Equal(t, filepath.Join("/data/rec", "snapshots"), cfg.Recording.SnapshotsDir())
}

func TestRecordingValidate(t *testing.T) {
	valid := RecordingConfig{
		BasePath: "/tmp/x", MaxSizeGB: 1, RetentionDays: 1, FPS: 1, SegmentMinutes: 1,
		StopTimeout: time.Second, FrameTimeout: time.Second, RetryPause: time.Second,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*RecordingConfig)
	}{
		{"empty path", func(c *RecordingConfig) { c.BasePath = "" }},
		{"zero fps", func(c *RecordingConfig) { c.FPS = 0 }},
		{"zero segment", func(c *RecordingConfig) { c.SegmentMinutes = 0 }},
		{"zero size", func(c *RecordingConfig) { c.MaxSizeGB = 0 }},
		{"negative retention", func(c *RecordingConfig) { c.RetentionDays = -1 }},
		{"zero stop timeout", func(c *RecordingConfig) { c.StopTimeout = 0 }},
		{"zero frame timeout", func(c *RecordingConfig) { c.FrameTimeout = 0 }},
		{"negative retry pause", func(c *RecordingConfig) { c.RetryPause = -time.Second }},
		{"negative sweep interval", func(c *RecordingConfig) { c.SweepInterval = -time.Minute }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadRejectsNonPositiveTimeouts(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"RECORDING_STOP_TIMEOUT", "0"},
		{"RECORDING_FRAME_TIMEOUT", "0s"},
		{"RECORDING_RETRY_PAUSE", "-1s"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestEnsureDirs(t *testing.T) {
	base := t.TempDir()
	c := RecordingConfig{BasePath: base}
	require.NoError(t, c.EnsureDirs())
	for _, sub := range c.Subdirs() {
		assert.DirExists(t, filepath.Join(base, sub))
	}
}

func TestSplitTrim(t *testing.T) {
	assert.Nil(t, SplitTrim("", ","))
	assert.Equal(t, []string{"a", "b"}, SplitTrim(" a, ,b ", ","))
}
