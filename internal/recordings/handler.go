package recordings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sg-security/backend/internal/auth"
	"github.com/sg-security/backend/internal/models"
	"github.com/sg-security/backend/internal/recorder"
	"github.com/sg-security/backend/pkg/response"
)

// MaxDurationMinutes is the longest timed recording accepted over HTTP.
const MaxDurationMinutes = 480

// Store is the recording persistence used by Handler.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	List(ctx context.Context, f ListFilter) (*Page, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// Recorder is the coordinator surface used by Handler.
type Recorder interface {
	StartRecording(ctx context.Context, cameraID string, userID *uuid.UUID, durationMinutes *int) recorder.StartResult
	StopRecording(cameraID string) recorder.StopResult
	ActiveRecordings() []recorder.ActiveRecording
	IsRecording(cameraID string) bool
	Statistics(ctx context.Context) recorder.StatisticsResult
	CleanupOldRecordings(ctx context.Context) recorder.CleanupResult
	Health(ctx context.Context) recorder.HealthReport
}

// ScopeResolver resolves which cameras a caller may access.
type ScopeResolver interface {
	ScopeFor(ctx context.Context, userID uuid.UUID, role models.Role) (auth.Scope, error)
}

// ArchiveLister lists segments already copied to object storage.
type ArchiveLister interface {
	ListByRecording(ctx context.Context, recordingID uuid.UUID) ([]models.RecordingArchive, error)
}

// Presigner signs download links for archived segments.
type Presigner interface {
	PresignedDownloadURL(ctx context.Context, key string) (string, error)
}

// Handler handles recording HTTP endpoints.
type Handler struct {
	store     Store
	recorder  Recorder
	scopes    ScopeResolver
	archives  ArchiveLister // optional
	presigner Presigner     // optional
	logger    *zap.Logger
}

// NewHandler creates a recordings handler.
func NewHandler(store Store, rec Recorder, scopes ScopeResolver, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, recorder: rec, scopes: scopes, logger: logger}
}

// SetArchive enables archived segment links on the details endpoint.
func (h *Handler) SetArchive(archives ArchiveLister, presigner Presigner) {
	h.archives = archives
	h.presigner = presigner
}

// RecordingView is a recording with its on-disk state.
type RecordingView struct {
	models.Recording
	FileExists bool `json:"file_exists"`
}

// ArchivedSegment is an archive row with an optional signed link.
type ArchivedSegment struct {
	models.RecordingArchive
	DownloadURL string `json:"download_url,omitempty"`
}

// RecordingDetails is returned by Get.
type RecordingDetails struct {
	RecordingView
	IsActive bool              `json:"is_active"`
	Archived []ArchivedSegment `json:"archived_segments,omitempty"`
}

// ListResponse is one page of recordings.
type ListResponse struct {
	Recordings []RecordingView `json:"recordings"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	PerPage    int             `json:"per_page"`
	Pages      int             `json:"pages"`
}

// StartRequest is the body of POST /recordings/start.
type StartRequest struct {
	CameraID        string `json:"camera_id" binding:"required"`
	DurationMinutes *int   `json:"duration_minutes"`
}

// StopRequest is the body of POST /recordings/stop.
type StopRequest struct {
	CameraID string `json:"camera_id" binding:"required"`
}

type caller struct {
	id    uuid.UUID
	role  models.Role
	scope auth.Scope
}

func (h *Handler) caller(c *gin.Context) (caller, bool) {
	id := c.MustGet(auth.ContextUserID).(uuid.UUID)
	role := models.Role(c.GetString(auth.ContextUserRole))
	scope, err := h.scopes.ScopeFor(c.Request.Context(), id, role)
	if err != nil {
		h.logger.Error("resolve camera scope failed", zap.Error(err), zap.String("user_id", id.String()))
		response.Internal(c, "failed to resolve camera access")
		return caller{}, false
	}
	return caller{id: id, role: role, scope: scope}, true
}

// List handles GET /recordings.
func (h *Handler) List(c *gin.Context) {
	who, ok := h.caller(c)
	if !ok {
		return
	}
	f := ListFilter{
		CameraID:  c.Query("camera_id"),
		Kind:      models.RecordingKind(c.Query("type")),
		CameraIDs: who.scope.Filter(),
	}
	if f.Kind != "" && !f.Kind.Valid() {
		response.BadRequest(c, "invalid recording type")
		return
	}
	f.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	f.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	var err error
	if f.From, err = parseDate(c.Query("start_date"), false); err != nil {
		response.BadRequest(c, "Invalid start_date format")
		return
	}
	if f.To, err = parseDate(c.Query("end_date"), true); err != nil {
		response.BadRequest(c, "Invalid end_date format")
		return
	}

	page, err := h.store.List(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list recordings failed", zap.Error(err))
		response.Internal(c, "failed to list recordings")
		return
	}
	views := make([]RecordingView, 0, len(page.Recordings))
	for _, r := range page.Recordings {
		views = append(views, view(r))
	}
	response.OK(c, ListResponse{
		Recordings: views,
		Total:      page.Total,
		Page:       page.Page,
		PerPage:    page.PerPage,
		Pages:      page.Pages,
	})
}

// Start handles POST /recordings/start.
func (h *Handler) Start(c *gin.Context) {
	who, ok := h.caller(c)
	if !ok {
		return
	}
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "camera_id is required")
		return
	}
	if !who.scope.Allows(req.CameraID) {
		response.Forbidden(c, "Access denied to this camera")
		return
	}
	if d := req.DurationMinutes; d != nil {
		if *d <= 0 {
			response.BadRequest(c, "duration_minutes must be a positive integer")
			return
		}
		if *d > MaxDurationMinutes {
			response.BadRequest(c, fmt.Sprintf("duration_minutes cannot exceed %d (8 hours)", MaxDurationMinutes))
			return
		}
	}

	res := h.recorder.StartRecording(c.Request.Context(), req.CameraID, &who.id, req.DurationMinutes)
	if !res.Success {
		response.FailWithData(c, startStatus(res.Err), res.Error, res)
		return
	}
	response.CreatedMessage(c, res.Message, res)
}

func startStatus(err error) int {
	switch {
	case errors.Is(err, recorder.ErrAlreadyRecording):
		return http.StatusConflict
	case errors.Is(err, recorder.ErrCameraNotFound):
		return http.StatusNotFound
	case errors.Is(err, recorder.ErrRecordingDisabled), errors.Is(err, recorder.ErrInvalidDuration):
		return http.StatusBadRequest
	case errors.Is(err, recorder.ErrInsufficientStorage):
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}

// Stop handles POST /recordings/stop.
func (h *Handler) Stop(c *gin.Context) {
	who, ok := h.caller(c)
	if !ok {
		return
	}
	var req StopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "camera_id is required")
		return
	}
	if !who.scope.Allows(req.CameraID) {
		response.Forbidden(c, "Access denied to this camera")
		return
	}
	res := h.recorder.StopRecording(req.CameraID)
	if !res.Success {
		response.FailWithData(c, http.StatusBadRequest, res.Error, res)
		return
	}
	response.OKMessage(c, res.Message, res)
}

// Active handles GET /recordings/active.
func (h *Handler) Active(c *gin.Context) {
	who, ok := h.caller(c)
	if !ok {
		return
	}
	list := make([]recorder.ActiveRecording, 0)
	for _, a := range h.recorder.ActiveRecordings() {
		if who.scope.Allows(a.CameraID) {
			list = append(list, a)
		}
	}
	response.OK(c, gin.H{"active_recordings": list, "total": len(list)})
}

// Statistics handles GET /recordings/statistics (admin).
func (h *Handler) Statistics(c *gin.Context) {
	res := h.recorder.Statistics(c.Request.Context())
	if !res.Success {
		response.Internal(c, res.Error)
		return
	}
	response.OK(c, gin.H{"statistics": res.Statistics})
}

// Get handles GET /recordings/:id.
func (h *Handler) Get(c *gin.Context) {
	rec, _, ok := h.load(c)
	if !ok {
		return
	}
	d := RecordingDetails{RecordingView: view(*rec), IsActive: !rec.Finalized() && h.recorder.IsRecording(rec.CameraID)}
	if h.archives != nil {
		archived, err := h.archives.ListByRecording(c.Request.Context(), rec.ID)
		if err != nil {
			h.logger.Warn("list archived segments failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		}
		for _, a := range archived {
			seg := ArchivedSegment{RecordingArchive: a}
			if h.presigner != nil {
				if url, err := h.presigner.PresignedDownloadURL(c.Request.Context(), a.S3Key); err == nil {
					seg.DownloadURL = url
				}
			}
			d.Archived = append(d.Archived, seg)
		}
	}
	response.OK(c, gin.H{"recording": d})
}

// Download handles GET /recordings/:id/download.
func (h *Handler) Download(c *gin.Context) {
	rec, _, ok := h.load(c)
	if !ok {
		return
	}
	if !fileExists(rec.FilePath) {
		response.NotFound(c, "Recording file not found")
		return
	}
	name := rec.Filename
	if name == "" {
		name = fmt.Sprintf("recording_%s.mp4", rec.ID)
	}
	c.Header("Content-Type", "video/mp4")
	c.FileAttachment(rec.FilePath, name)
}

// Delete handles DELETE /recordings/:id. Only super admins and the recording owner may delete.
func (h *Handler) Delete(c *gin.Context) {
	rec, who, ok := h.load(c)
	if !ok {
		return
	}
	owner := rec.UserID != nil && *rec.UserID == who.id
	if who.role != models.RoleSuperAdmin && !owner {
		response.Forbidden(c, "Access denied")
		return
	}
	if !rec.Finalized() && h.recorder.IsRecording(rec.CameraID) {
		response.Conflict(c, "Recording is still in progress")
		return
	}
	for _, p := range rec.SegmentPaths() {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			h.logger.Error("delete recording file failed", zap.Error(err), zap.String("path", p))
			response.Internal(c, fmt.Sprintf("Failed to delete file: %v", err))
			return
		}
	}
	if _, err := h.store.Delete(c.Request.Context(), rec.ID); err != nil {
		h.logger.Error("delete recording failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		response.Internal(c, "failed to delete recording")
		return
	}
	h.logger.Info("recording deleted", zap.String("recording_id", rec.ID.String()), zap.String("by", who.id.String()))
	response.OKMessage(c, "Recording deleted successfully", nil)
}

// Cleanup handles POST /recordings/cleanup (super admin).
func (h *Handler) Cleanup(c *gin.Context) {
	res := h.recorder.CleanupOldRecordings(c.Request.Context())
	if !res.Success {
		response.FailWithData(c, http.StatusInternalServerError, res.Error, res)
		return
	}
	response.OK(c, res)
}

// Health handles GET /recordings/health (admin). Warning and critical map to 503.
func (h *Handler) Health(c *gin.Context) {
	rep := h.recorder.Health(c.Request.Context())
	switch rep.Status {
	case recorder.HealthHealthy:
		response.OK(c, rep)
	case recorder.HealthError:
		response.FailWithData(c, http.StatusInternalServerError, "recording health check failed", rep)
	default:
		response.FailWithData(c, http.StatusServiceUnavailable, "recording storage "+rep.Status, rep)
	}
}

// load fetches :id and enforces camera access.
func (h *Handler) load(c *gin.Context) (*models.Recording, caller, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return nil, caller{}, false
	}
	who, ok := h.caller(c)
	if !ok {
		return nil, caller{}, false
	}
	rec, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get recording failed", zap.Error(err), zap.String("recording_id", id.String()))
		response.Internal(c, "failed to load recording")
		return nil, caller{}, false
	}
	if rec == nil {
		response.NotFound(c, "Recording not found")
		return nil, caller{}, false
	}
	if !who.scope.Allows(rec.CameraID) {
		response.Forbidden(c, "Access denied to this recording")
		return nil, caller{}, false
	}
	return rec, who, true
}

func view(r models.Recording) RecordingView {
	return RecordingView{Recording: r, FileExists: fileExists(r.FilePath)}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// parseDate accepts RFC 3339 timestamps or bare dates. A bare end date covers the whole day.
func parseDate(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
