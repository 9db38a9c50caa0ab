package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sg-security/backend/config"
)

// Keys recognised in system_config for the recorder.
const (
	KeyRecordingPath  = "recording_path"
	KeyMaxSizeGB      = "max_recording_size_gb"
	KeyRetentionDays  = "retention_days"
	KeyRecordingFPS   = "recording_fps"
	KeySegmentMinutes = "segment_duration_minutes"
)

// Getter is the read side of Repository.
type Getter interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// ApplyRecordingOverrides replaces fields of cfg with persisted values.
// Malformed or out-of-range values are logged and ignored; a read error aborts.
func ApplyRecordingOverrides(ctx context.Context, store Getter, cfg *config.RecordingConfig, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	read := func(key string) (string, bool, error) {
		raw, ok, err := store.Get(ctx, key)
		if err != nil || !ok {
			return "", ok, err
		}
		return unquote(raw), true, nil
	}

	if v, ok, err := read(KeyRecordingPath); err != nil {
		return fmt.Errorf("read %s: %w", KeyRecordingPath, err)
	} else if ok && v != "" {
		cfg.BasePath = v
	}

	floats := []struct {
		key string
		dst *float64
	}{{KeyMaxSizeGB, &cfg.MaxSizeGB}}
	for _, f := range floats {
		v, ok, err := read(f.key)
		if err != nil {
			return fmt.Errorf("read %s: %w", f.key, err)
		}
		if !ok {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || n <= 0 {
			logger.Warn("ignoring invalid setting", zap.String("key", f.key), zap.String("value", v))
			continue
		}
		*f.dst = n
	}

	ints := []struct {
		key string
		dst *int
		min int
	}{
		{KeyRetentionDays, &cfg.RetentionDays, 0},
		{KeyRecordingFPS, &cfg.FPS, 1},
		{KeySegmentMinutes, &cfg.SegmentMinutes, 1},
	}
	for _, f := range ints {
		v, ok, err := read(f.key)
		if err != nil {
			return fmt.Errorf("read %s: %w", f.key, err)
		}
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < f.min {
			logger.Warn("ignoring invalid setting", zap.String("key", f.key), zap.String("value", v))
			continue
		}
		*f.dst = n
	}

	logger.Info("recording configuration",
		zap.String("base_path", cfg.BasePath),
		zap.Float64("max_size_gb", cfg.MaxSizeGB),
		zap.Int("retention_days", cfg.RetentionDays),
		zap.Int("fps", cfg.FPS),
		zap.Int("segment_minutes", cfg.SegmentMinutes),
	)
	return nil
}

// unquote accepts JSON-encoded scalars ("\"/data\"", "50") as well as plain text.
func unquote(raw string) string {
	raw = strings.TrimSpace(raw)
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		return s
	}
	return raw
}
