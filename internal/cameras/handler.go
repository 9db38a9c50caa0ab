package cameras

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sg-security/backend/internal/auth"
	"github.com/sg-security/backend/internal/models"
	"github.com/sg-security/backend/pkg/response"
)

// Store is the camera persistence used by Handler.
type Store interface {
	GetByID(ctx context.Context, id string) (*models.Camera, error)
	List(ctx context.Context, ids []string) ([]models.Camera, error)
}

// ScopeResolver resolves which cameras a caller may access.
type ScopeResolver interface {
	ScopeFor(ctx context.Context, userID uuid.UUID, role models.Role) (auth.Scope, error)
}

// RecordingChecker reports live recording state.
type RecordingChecker interface {
	IsRecording(cameraID string) bool
}

// FrameGetter fetches one still image from the device gateway. Nil bytes mean no image.
type FrameGetter interface {
	GetFrame(ctx context.Context, cameraID string) ([]byte, error)
}

const snapshotTimeout = 10 * time.Second

// CameraView is a camera with its live recording flag.
type CameraView struct {
	models.Camera
	IsRecording bool `json:"is_recording"`
}

// Handler serves read-only camera endpoints.
type Handler struct {
	store    Store
	scopes   ScopeResolver
	recorder RecordingChecker
	logger   *zap.Logger

	frames       FrameGetter
	snapshotsDir string
	now          func() time.Time
}

// SnapshotView describes a saved snapshot.
type SnapshotView struct {
	CameraID   string    `json:"camera_id"`
	Filename   string    `json:"filename"`
	Path       string    `json:"filepath"`
	SizeBytes  int       `json:"size_bytes"`
	CapturedAt time.Time `json:"timestamp"`
}

// NewHandler creates a cameras handler.
func NewHandler(store Store, scopes ScopeResolver, recorder RecordingChecker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, scopes: scopes, recorder: recorder, logger: logger, now: time.Now}
}

// SetSnapshots enables Snapshot, saving images from frames under dir.
func (h *Handler) SetSnapshots(frames FrameGetter, dir string) {
	h.frames = frames
	h.snapshotsDir = dir
}

func (h *Handler) scope(c *gin.Context) (auth.Scope, bool) {
	userID := c.MustGet(auth.ContextUserID).(uuid.UUID)
	role := models.Role(c.GetString(auth.ContextUserRole))
	s, err := h.scopes.ScopeFor(c.Request.Context(), userID, role)
	if err != nil {
		h.logger.Error("resolve camera scope failed", zap.Error(err))
		response.Internal(c, "failed to resolve camera access")
		return auth.Scope{}, false
	}
	return s, true
}

// List handles GET /cameras.
func (h *Handler) List(c *gin.Context) {
	s, ok := h.scope(c)
	if !ok {
		return
	}
	list, err := h.store.List(c.Request.Context(), s.Filter())
	if err != nil {
		h.logger.Error("list cameras failed", zap.Error(err))
		response.Internal(c, "failed to list cameras")
		return
	}
	out := make([]CameraView, 0, len(list))
	for _, cam := range list {
		out = append(out, CameraView{Camera: cam, IsRecording: h.recorder.IsRecording(cam.ID)})
	}
	response.OK(c, out)
}

// Get handles GET /cameras/:id.
func (h *Handler) Get(c *gin.Context) {
	s, ok := h.scope(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if !s.Allows(id) {
		response.Forbidden(c, "access denied to this camera")
		return
	}
	cam, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get camera failed", zap.String("camera_id", id), zap.Error(err))
		response.Internal(c, "failed to get camera")
		return
	}
	if cam == nil {
		response.NotFound(c, "camera not found")
		return
	}
	response.OK(c, CameraView{Camera: *cam, IsRecording: h.recorder.IsRecording(cam.ID)})
}

// Snapshot handles POST /cameras/:id/snapshot: fetches one frame and saves it as a JPEG.
func (h *Handler) Snapshot(c *gin.Context) {
	if h.frames == nil {
		response.Fail(c, http.StatusServiceUnavailable, "snapshots are not available")
		return
	}
	s, ok := h.scope(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if !s.Allows(id) {
		response.Forbidden(c, "access denied to this camera")
		return
	}
	cam, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get camera failed", zap.String("camera_id", id), zap.Error(err))
		response.Internal(c, "failed to get camera")
		return
	}
	if cam == nil {
		response.NotFound(c, "camera not found")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), snapshotTimeout)
	defer cancel()
	frame, err := h.frames.GetFrame(ctx, cam.ID)
	if err != nil {
		h.logger.Warn("snapshot fetch failed", zap.String("camera_id", cam.ID), zap.Error(err))
		response.Fail(c, http.StatusBadGateway, "failed to capture snapshot")
		return
	}
	if len(frame) == 0 {
		response.Fail(c, http.StatusBadGateway, "camera returned no image")
		return
	}

	at := h.now().UTC()
	name := cam.ID + "_snapshot_" + at.Format("20060102_150405") + ".jpg"
	path := filepath.Join(h.snapshotsDir, filepath.Base(name))
	if err := os.WriteFile(path, frame, 0o644); err != nil {
		h.logger.Error("save snapshot failed", zap.String("path", path), zap.Error(err))
		response.Internal(c, "failed to save snapshot")
		return
	}
	h.logger.Info("snapshot saved", zap.String("camera_id", cam.ID), zap.String("path", path), zap.Int("bytes", len(frame)))
	response.OKMessage(c, "Snapshot captured successfully", SnapshotView{
		CameraID:   cam.ID,
		Filename:   filepath.Base(path),
		Path:       path,
		SizeBytes:  len(frame),
		CapturedAt: at,
	})
}
