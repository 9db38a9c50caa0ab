// Package main runs the surveillance recording HTTP server with the live event feed and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sg-security/backend/config"
	"github.com/sg-security/backend/internal/auth"
	"github.com/sg-security/backend/internal/cameras"
	"github.com/sg-security/backend/internal/framesource"
	"github.com/sg-security/backend/internal/middleware"
	"github.com/sg-security/backend/internal/models"
	"github.com/sg-security/backend/internal/realtime"
	"github.com/sg-security/backend/internal/recorder"
	"github.com/sg-security/backend/internal/recordings"
	"github.com/sg-security/backend/internal/settings"
	"github.com/sg-security/backend/pkg/database"
	"github.com/sg-security/backend/pkg/queue"
	"github.com/sg-security/backend/pkg/redis"
	"github.com/sg-security/backend/pkg/response"
	"github.com/sg-security/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
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

	settingsRepo := settings.NewRepository(pool)
	if err := settings.ApplyRecordingOverrides(ctx, settingsRepo, &cfg.Recording, logger); err != nil {
		logger.Fatal("recording settings", zap.Error(err))
	}
	if err := cfg.Recording.Validate(); err != nil {
		logger.Fatal("recording settings", zap.Error(err))
	}
	if err := cfg.Recording.EnsureDirs(); err != nil {
		logger.Fatal("recording directories", zap.Error(err))
	}

	// Redis carries the event feed and the archive queue; without it the server
	// still records, events stay local and nothing is archived.
	var events recorder.EventPublisher
	var feedSub realtime.Subscriber
	var segmentSink recorder.SegmentSink
	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Warn("redis unavailable, event feed is local only", zap.Error(err))
	} else {
		defer rdb.Close()
		pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
		events, feedSub = pubsub, pubsub
		if cfg.AWS.ArchiveEnabled() {
			segmentSink = queue.NewQueue(rdb.Client, logger)
		}
	}
	hub := realtime.NewHub(logger, feedSub)
	if events == nil {
		events = hub
	}

	var s3Client *storage.S3
	if cfg.AWS.ArchiveEnabled() {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			RecordingsBucket:     cfg.AWS.RecordingsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	frames := framesource.NewClient(cfg.FrameSource, logger)
	defer frames.Close()
	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	if err := frames.Ping(pingCtx); err != nil {
		logger.Warn("frame source not reachable at startup", zap.String("base_url", cfg.FrameSource.BaseURL), zap.Error(err))
	}
	cancelPing()

	// Auth
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Recording
	recRepo := recordings.NewRepository(pool)
	archiveRepo := recordings.NewArchiveRepository(pool)
	cameraRepo := cameras.NewRepository(pool)
	coordinator := recorder.New(recorder.Deps{
		Store:    recRepo,
		Cameras:  cameraRepo,
		Frames:   frames,
		Encoders: recorder.NewFFmpegEncoders(cfg.Recording.FFmpegPath, logger),
		Events:   events,
		Archive:  segmentSink,
	}, cfg.Recording, logger)

	recHandler := recordings.NewHandler(recRepo, coordinator, authRepo, logger)
	if s3Client != nil {
		recHandler.SetArchive(archiveRepo, s3Client)
	}
	cameraHandler := cameras.NewHandler(cameraRepo, authRepo, coordinator, logger)
	cameraHandler.SetSnapshots(frames, cfg.Recording.SnapshotsDir())
	settingsHandler := settings.NewHandler(settingsRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Recording event feed (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, jwtService, authRepo, logger))

	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/login", authHandler.Login)
	}

	admins := []models.Role{models.RoleSuperAdmin, models.RoleAdmin}
	api := router.Group("/api")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/auth/me", authHandler.Me)
		api.GET("/users", middleware.RequireRole(admins...), authHandler.List)
		api.POST("/users", middleware.RequireRole(models.RoleSuperAdmin), authHandler.CreateUser)

		api.GET("/cameras", cameraHandler.List)
		api.GET("/cameras/:id", cameraHandler.Get)
		api.POST("/cameras/:id/snapshot", cameraHandler.Snapshot)

		api.GET("/recordings", recHandler.List)
		api.POST("/recordings/start", recHandler.Start)
		api.POST("/recordings/stop", recHandler.Stop)
		api.GET("/recordings/active", recHandler.Active)
		api.GET("/recordings/statistics", middleware.RequireRole(admins...), recHandler.Statistics)
		api.GET("/recordings/health", middleware.RequireRole(admins...), recHandler.Health)
		api.POST("/recordings/cleanup", middleware.RequireRole(models.RoleSuperAdmin), recHandler.Cleanup)
		api.GET("/recordings/:id", recHandler.Get)
		api.GET("/recordings/:id/download", recHandler.Download)
		api.DELETE("/recordings/:id", recHandler.Delete)

		api.GET("/settings", middleware.RequireRole(models.RoleSuperAdmin), settingsHandler.List)
		api.PUT("/settings/:key", middleware.RequireRole(models.RoleSuperAdmin), settingsHandler.Set)
	}

	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     router,
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		// No WriteTimeout: downloads stream whole recordings and /ws is long-lived.
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go func() {
		if err := hub.Run(bgCtx); err != nil {
			logger.Error("event feed stopped", zap.Error(err))
		}
	}()
	if cfg.Recording.SweepInterval > 0 {
		go coordinator.RunRetention(bgCtx, cfg.Recording.SweepInterval)
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdown(srv, coordinator, 15*time.Second, cfg.Recording.StopTimeout, logger)
	bgCancel()
	logger.Info("server stopped")
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
