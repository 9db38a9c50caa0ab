package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sg-security/backend/config"
	"github.com/sg-security/backend/internal/models"
)

// storeTimeout bounds store writes made outside a request (worker finalization, file attach).
const storeTimeout = 10 * time.Second

// Deps are the collaborators of a Coordinator. Events and Archive are optional.
type Deps struct {
	Store    RecordingStore
	Cameras  CameraRegistry
	Frames   FrameSource
	Encoders EncoderFactory
	Disk     DiskUsageProvider
	Clock    Clock
	Events   EventPublisher
	Archive  SegmentSink
}

// Coordinator runs at most one recording session per camera.
type Coordinator struct {
	cfg      config.RecordingConfig
	store    RecordingStore
	cameras  CameraRegistry
	frames   FrameSource
	encoders EncoderFactory
	clock    Clock
	events   EventPublisher
	archive  SegmentSink
	guard    *StorageGuard
	sweeper  *Sweeper
	registry *registry
	logger   *zap.Logger
}

// New creates a Coordinator. Store, Cameras, Frames and Encoders are required.
func New(deps Deps, cfg config.RecordingConfig, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger = logger.Named("recorder")
	c := &Coordinator{
		cfg:      cfg,
		store:    deps.Store,
		cameras:  deps.Cameras,
		frames:   deps.Frames,
		encoders: deps.Encoders,
		clock:    clk,
		events:   deps.Events,
		archive:  deps.Archive,
		guard:    NewStorageGuard(deps.Disk, cfg.BasePath, cfg.MaxSizeGB, logger),
		sweeper:  NewSweeper(deps.Store, clk, cfg.BasePath, logger),
		registry: newRegistry(),
		logger:   logger,
	}
	c.sweeper.live = c.registry.hasWorker
	return c
}

// StartResult is returned by StartRecording. Err carries the sentinel for callers that map errors.
type StartResult struct {
	Success     bool      `json:"success"`
	RecordingID uuid.UUID `json:"recording_id,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	Message     string    `json:"message,omitempty"`
	Error       string    `json:"error,omitempty"`
	Err         error     `json:"-"`
}

// StopResult is returned by StopRecording.
type StopResult struct {
	Success     bool      `json:"success"`
	RecordingID uuid.UUID `json:"recording_id,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	Message     string    `json:"message,omitempty"`
	Error       string    `json:"error,omitempty"`
	Err         error     `json:"-"`
}

// StartRecording admits and launches a recording for cameraID. durationMinutes nil means continuous.
func (c *Coordinator) StartRecording(ctx context.Context, cameraID string, userID *uuid.UUID, durationMinutes *int) StartResult {
	e, ok := c.registry.reserve(cameraID)
	if !ok {
		return startFailed(ErrAlreadyRecording, fmt.Sprintf("Camera %s is already being recorded", cameraID))
	}
	res := c.admit(ctx, e, cameraID, userID, durationMinutes)
	if !res.Success {
		c.registry.remove(cameraID, e)
	}
	return res
}

func (c *Coordinator) admit(ctx context.Context, e *entry, cameraID string, userID *uuid.UUID, durationMinutes *int) StartResult {
	if durationMinutes != nil && *durationMinutes <= 0 {
		return startFailed(ErrInvalidDuration, "Duration must be a positive number of minutes")
	}
	cam, err := c.cameras.GetByID(ctx, cameraID)
	if err != nil {
		c.logger.Error("camera lookup failed", zap.String("camera_id", cameraID), zap.Error(err))
		return startFailed(err, fmt.Sprintf("Failed to start recording: %v", err))
	}
	if cam == nil {
		return startFailed(ErrCameraNotFound, fmt.Sprintf("Camera %s not found", cameraID))
	}
	if !cam.RecordingEnabled {
		return startFailed(ErrRecordingDisabled, fmt.Sprintf("Recording is disabled for camera %s", cameraID))
	}
	if !c.guard.HasCapacity(ctx) {
		return startFailed(ErrInsufficientStorage, "Insufficient storage space for recording")
	}

	start := c.clock.Now().UTC()
	kind := models.RecordingKindContinuous
	if durationMinutes != nil {
		kind = models.RecordingKindManual
	}
	rec := &models.Recording{
		CameraID:  cameraID,
		UserID:    userID,
		Kind:      kind,
		CreatedAt: start,
		Metadata: models.RecordingMetadata{
			SessionID:         sessionID(cameraID, start),
			RequestedDuration: durationMinutes,
			TargetFPS:         c.cfg.FPS,
		},
	}
	if err := c.store.Create(ctx, rec); err != nil {
		c.logger.Error("create recording failed", zap.String("camera_id", cameraID), zap.Error(err))
		return startFailed(err, fmt.Sprintf("Failed to start recording: %v", err))
	}

	c.registry.workerStarted(rec.ID)
	s := newSession(rec.ID, cameraID, userID, start, durationMinutes)
	runCtx, cancel := context.WithCancel(context.Background())
	c.registry.activate(e, s, cancel)
	w := &worker{c: c, e: e, s: s, log: c.logger.With(zap.String("camera_id", cameraID), zap.String("session_id", s.ID))}
	go w.run(runCtx)

	c.logger.Info("recording started",
		zap.String("camera_id", cameraID),
		zap.String("recording_id", rec.ID.String()),
		zap.String("session_id", s.ID),
		zap.String("kind", string(kind)),
	)
	c.publish(Event{Type: EventRecordingStarted, CameraID: cameraID, SessionID: s.ID, RecordingID: rec.ID, At: start})
	return StartResult{
		Success:     true,
		RecordingID: rec.ID,
		SessionID:   s.ID,
		Message:     fmt.Sprintf("Recording started for camera %s", cameraID),
	}
}

func startFailed(err error, msg string) StartResult {
	return StartResult{Error: msg, Err: err}
}

// StopRecording signals the camera's worker and waits for it, at most StopTimeout.
// Cleanup happens whether or not the worker exited in time.
func (c *Coordinator) StopRecording(cameraID string) StopResult {
	e := c.registry.beginStop(cameraID)
	if e == nil {
		return StopResult{Error: fmt.Sprintf("No active recording for camera %s", cameraID), Err: ErrNotRecording}
	}
	e.cancel()

	timer := time.NewTimer(c.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-e.done:
	case <-timer.C:
		c.logger.Warn("recording worker did not stop in time, forcing cleanup",
			zap.String("camera_id", cameraID),
			zap.Duration("timeout", c.cfg.StopTimeout),
		)
	}
	c.cleanup(cameraID, e)

	c.logger.Info("recording stopped", zap.String("camera_id", cameraID), zap.String("session_id", e.session.ID))
	return StopResult{
		Success:     true,
		RecordingID: e.session.RecordingID,
		SessionID:   e.session.ID,
		Message:     fmt.Sprintf("Recording stopped for camera %s", cameraID),
	}
}

// cleanup drops the registry entry for e. Both the worker and StopRecording call it.
func (c *Coordinator) cleanup(cameraID string, e *entry) {
	if c.registry.remove(cameraID, e) {
		c.logger.Debug("session removed", zap.String("camera_id", cameraID))
	}
}

// ActiveRecordings returns a snapshot of the running sessions.
func (c *Coordinator) ActiveRecordings() []ActiveRecording {
	now := c.clock.Now()
	running := c.registry.running()
	out := make([]ActiveRecording, 0, len(running))
	for _, r := range running {
		a := r.session.snapshot(now)
		a.Stopping = r.stopping
		out = append(out, a)
	}
	return out
}

// IsRecording reports whether cameraID has a running session.
func (c *Coordinator) IsRecording(cameraID string) bool {
	return c.registry.isActive(cameraID)
}

// Shutdown stops every running session, each with the usual bounded wait.
func (c *Coordinator) Shutdown(ctx context.Context) {
	var wg sync.WaitGroup
	for _, cameraID := range c.registry.cameras() {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			c.StopRecording(id)
		}(cameraID)
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("shutdown interrupted before all recordings stopped", zap.Error(ctx.Err()))
	}
}

// ConfigSnapshot is the recording configuration reported by statistics.
type ConfigSnapshot struct {
	BasePath               string  `json:"base_path"`
	MaxSizeGB              float64 `json:"max_size_gb"`
	RetentionDays          int     `json:"retention_days"`
	RecordingFPS           int     `json:"recording_fps"`
	SegmentDurationMinutes int     `json:"segment_duration_minutes"`
}

// Statistics aggregates persisted and live recording figures.
type Statistics struct {
	models.RecordingTotals
	ActiveRecordings int            `json:"active_recordings"`
	DiskUsage        *DiskUsage     `json:"disk_usage,omitempty"`
	Configuration    ConfigSnapshot `json:"configuration"`
}

// StatisticsResult is returned by Statistics.
type StatisticsResult struct {
	Success    bool        `json:"success"`
	Statistics *Statistics `json:"statistics,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Statistics reports totals by kind, active sessions, disk usage and configuration.
// Disk figures are omitted when the filesystem cannot be read.
func (c *Coordinator) Statistics(ctx context.Context) StatisticsResult {
	totals, err := c.store.Totals(ctx)
	if err != nil {
		c.logger.Error("recording totals failed", zap.Error(err))
		return StatisticsResult{Error: fmt.Sprintf("Failed to get statistics: %v", err)}
	}
	stats := &Statistics{
		RecordingTotals:  *totals,
		ActiveRecordings: len(c.registry.cameras()),
		Configuration:    c.configSnapshot(),
	}
	if u, err := c.guard.Usage(ctx); err != nil {
		c.logger.Warn("disk usage unavailable", zap.Error(err))
	} else {
		stats.DiskUsage = &u
	}
	return StatisticsResult{Success: true, Statistics: stats}
}

func (c *Coordinator) configSnapshot() ConfigSnapshot {
	return ConfigSnapshot{
		BasePath:               c.cfg.BasePath,
		MaxSizeGB:              c.cfg.MaxSizeGB,
		RetentionDays:          c.cfg.RetentionDays,
		RecordingFPS:           c.cfg.FPS,
		SegmentDurationMinutes: c.cfg.SegmentMinutes,
	}
}

// CleanupResult is returned by CleanupOldRecordings.
type CleanupResult struct {
	Success bool `json:"success"`
	SweepResult
	Error string `json:"error,omitempty"`
}

// CleanupOldRecordings runs the retention sweep with the configured window.
func (c *Coordinator) CleanupOldRecordings(ctx context.Context) CleanupResult {
	res, err := c.sweeper.Sweep(ctx, c.cfg.RetentionDays)
	if err != nil {
		c.logger.Error("retention sweep failed", zap.Error(err))
		return CleanupResult{SweepResult: res, Error: fmt.Sprintf("Cleanup failed: %v", err)}
	}
	return CleanupResult{Success: true, SweepResult: res}
}

// RunRetention sweeps every interval until ctx is done.
func (c *Coordinator) RunRetention(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	c.logger.Info("retention sweeper running", zap.Duration("interval", interval), zap.Int("retention_days", c.cfg.RetentionDays))
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(interval):
			c.CleanupOldRecordings(ctx)
		}
	}
}

// Health levels reported by Health.
const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
	HealthError    = "error"
)

// HealthReport describes recording subsystem health.
type HealthReport struct {
	Status           string     `json:"status"`
	ActiveRecordings int        `json:"active_recordings"`
	DiskUsage        *DiskUsage `json:"disk_usage,omitempty"`
	Issues           []string   `json:"issues,omitempty"`
	CheckedAt        time.Time  `json:"checked_at"`
}

// Health classifies disk usage: warning at 90% used, critical at 95%.
func (c *Coordinator) Health(ctx context.Context) HealthReport {
	rep := HealthReport{
		Status:           HealthHealthy,
		ActiveRecordings: len(c.registry.cameras()),
		CheckedAt:        c.clock.Now().UTC(),
	}
	u, err := c.guard.Usage(ctx)
	if err != nil {
		rep.Status = HealthError
		rep.Issues = append(rep.Issues, fmt.Sprintf("Disk usage unavailable: %v", err))
		return rep
	}
	rep.DiskUsage = &u
	switch {
	case u.UsedPercentage >= 95:
		rep.Status = HealthCritical
		rep.Issues = append(rep.Issues, fmt.Sprintf("Disk usage critical: %.1f%%", u.UsedPercentage))
	case u.UsedPercentage >= 90:
		rep.Status = HealthWarning
		rep.Issues = append(rep.Issues, fmt.Sprintf("Disk usage high: %.1f%%", u.UsedPercentage))
	}
	if !c.guard.HasCapacity(ctx) {
		rep.Issues = append(rep.Issues, "Insufficient storage space for new recordings")
	}
	return rep
}

func (c *Coordinator) publish(ev Event) {
	if c.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.events.PublishRecordingEvent(ctx, ev); err != nil {
		c.logger.Debug("publish recording event", zap.String("type", ev.Type), zap.Error(err))
	}
}

// IsAdmissionError reports whether err is one of the start rejections.
func IsAdmissionError(err error) bool {
	return errors.Is(err, ErrAlreadyRecording) ||
		errors.Is(err, ErrCameraNotFound) ||
		errors.Is(err, ErrRecordingDisabled) ||
		errors.Is(err, ErrInsufficientStorage) ||
		errors.Is(err, ErrInvalidDuration)
}
