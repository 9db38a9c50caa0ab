// Package main runs the segment archive worker: closed recording segments are copied to S3.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sg-security/backend/config"
	"github.com/sg-security/backend/internal/recordings"
	"github.com/sg-security/backend/internal/worker"
	"github.com/sg-security/backend/pkg/database"
	"github.com/sg-security/backend/pkg/queue"
	"github.com/sg-security/backend/pkg/redis"
	"github.com/sg-security/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if !cfg.AWS.ArchiveEnabled() {
		logger.Fatal("archive disabled: AWS_REGION and AWS_S3_RECORDINGS_BUCKET are required")
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		RecordingsBucket:     cfg.AWS.RecordingsBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewArchiveProcessor(recordings.NewArchiveRepository(pool), s3Client, jobQueue, logger)

	if pending, dead, err := jobQueue.Depth(ctx); err == nil {
		logger.Info("archive queue", zap.Int64("pending", pending), zap.Int64("dead_letter", dead))
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	done := make(chan struct{})
	go func() {
		processor.Run(sigCtx)
		close(done)
	}()
	logger.Info("archive worker started", zap.String("bucket", cfg.AWS.RecordingsBucket))

	<-sigCtx.Done()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("archive worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if os.Getenv("LOG_LEVEL") == "debug" {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, _ := config.Build()
	return logger
}
