package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	AWS         AWSConfig
	Recording   RecordingConfig
	FrameSource FrameSourceConfig
}

// RecordingConfig holds recording coordinator settings. Values may be overridden at startup
// from the system_config table (see internal/settings).
type RecordingConfig struct {
	BasePath       string // root of videos/, snapshots/, temp/, ai_events/
	MaxSizeGB      float64
	RetentionDays  int
	FPS            int
	SegmentMinutes int

	StopTimeout   time.Duration // bounded join on stop
	FrameTimeout  time.Duration // bound on a single frame fetch
	RetryPause    time.Duration // pause after a failed or empty frame fetch
	SweepInterval time.Duration // 0 disables the scheduled retention sweep
	FFmpegPath    string
}

// SegmentDuration returns the configured segment length.
func (c RecordingConfig) SegmentDuration() time.Duration {
	return time.Duration(c.SegmentMinutes) * time.Minute
}

// VideosDir is where segment files are written.
func (c RecordingConfig) VideosDir() string {
	return filepath.Join(c.BasePath, "videos")
}

// SnapshotsDir is where camera snapshots are saved.
func (c RecordingConfig) SnapshotsDir() string {
	return filepath.Join(c.BasePath, "snapshots")
}

// Subdirs lists the directories created under BasePath.
func (c RecordingConfig) Subdirs() []string {
	return []string{"videos", "snapshots", "temp", "ai_events"}
}

// FrameSourceConfig holds the remote device gateway settings.
type FrameSourceConfig struct {
	BaseURL   string
	APIKey    string
	APIKeyID  string
	MimeType  string
	KeepAlive time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the segment archive bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	RecordingsBucket     string
	PresignExpireMinutes int
}

// ArchiveEnabled reports whether finalized segments should be shipped to S3.
func (c AWSConfig) ArchiveEnabled() bool {
	return c.Region != "" && c.RecordingsBucket != ""
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "sgsecurity"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", ""),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			RecordingsBucket:     getEnv("AWS_S3_RECORDINGS_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Recording: RecordingConfig{
			BasePath:       getEnv("RECORDING_PATH", "/home/ubuntu/recordings"),
			MaxSizeGB:      getEnvFloat("RECORDING_MAX_SIZE_GB", 100),
			RetentionDays:  getEnvInt("RECORDING_RETENTION_DAYS", 30),
			FPS:            getEnvInt("RECORDING_FPS", 10),
			SegmentMinutes: getEnvInt("RECORDING_SEGMENT_MINUTES", 30),
			StopTimeout:    getEnvDuration("RECORDING_STOP_TIMEOUT", 10*time.Second),
			FrameTimeout:   getEnvDuration("RECORDING_FRAME_TIMEOUT", 5*time.Second),
			RetryPause:     getEnvDuration("RECORDING_RETRY_PAUSE", time.Second),
			SweepInterval:  getEnvDuration("RECORDING_SWEEP_INTERVAL", 0),
			FFmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),
		},
		FrameSource: FrameSourceConfig{
			BaseURL:   strings.TrimRight(getEnv("FRAME_SOURCE_URL", "http://localhost:9090"), "/"),
			APIKey:    getEnv("FRAME_SOURCE_API_KEY", ""),
			APIKeyID:  getEnv("FRAME_SOURCE_API_KEY_ID", ""),
			MimeType:  getEnv("FRAME_SOURCE_MIME_TYPE", "image/jpeg"),
			KeepAlive: getEnvDuration("FRAME_SOURCE_KEEPALIVE", 90*time.Second),
		},
	}
	if err := cfg.Recording.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects recording settings the coordinator cannot run with.
func (c RecordingConfig) Validate() error {
	switch {
	case c.BasePath == "":
		return fmt.Errorf("recording path is empty")
	case c.FPS <= 0:
		return fmt.Errorf("recording fps must be positive, got %d", c.FPS)
	case c.SegmentMinutes <= 0:
		return fmt.Errorf("segment duration must be positive, got %d", c.SegmentMinutes)
	case c.MaxSizeGB <= 0:
		return fmt.Errorf("max recording size must be positive, got %v", c.MaxSizeGB)
	case c.RetentionDays < 0:
		return fmt.Errorf("retention days must not be negative, got %d", c.RetentionDays)
	case c.StopTimeout <= 0:
		return fmt.Errorf("stop timeout must be positive, got %s", c.StopTimeout)
	case c.FrameTimeout <= 0:
		return fmt.Errorf("frame timeout must be positive, got %s", c.FrameTimeout)
	case c.RetryPause <= 0:
		return fmt.Errorf("retry pause must be positive, got %s", c.RetryPause)
	case c.SweepInterval < 0:
		return fmt.Errorf("sweep interval must not be negative, got %s", c.SweepInterval)
	}
	return nil
}

// EnsureDirs creates the recording directory tree.
func (c RecordingConfig) EnsureDirs() error {
	for _, sub := range c.Subdirs() {
		dir := filepath.Join(c.BasePath, sub)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("10s") or bare seconds ("10").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

// SplitTrim splits a comma-separated env value, dropping blanks.
func SplitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
