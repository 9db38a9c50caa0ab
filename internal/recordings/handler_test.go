package recordings

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sg-security/backend/internal/auth"
	"github.com/sg-security/backend/internal/models"
	"github.com/sg-security/backend/internal/recorder"
)

type memStore struct {
	recs    map[uuid.UUID]*models.Recording
	deleted []uuid.UUID
	filter  ListFilter
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Recording, error) {
	return m.recs[id], nil
}

func (m *memStore) List(_ context.Context, f ListFilter) (*Page, error) {
	m.filter = f
	var out []models.Recording
	for _, r := range m.recs {
		out = append(out, *r)
	}
	return &Page{Recordings: out, Total: int64(len(out)), Page: 1, PerPage: 20, Pages: 1}, nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	m.deleted = append(m.deleted, id)
	delete(m.recs, id)
	return true, nil
}

type stubRecorder struct {
	start     recorder.StartResult
	stop      recorder.StopResult
	active    []recorder.ActiveRecording
	recording map[string]bool
	health    recorder.HealthReport
	cleanup   recorder.CleanupResult
	gotUser   *uuid.UUID
}

func (s *stubRecorder) StartRecording(_ context.Context, _ string, userID *uuid.UUID, _ *int) recorder.StartResult {
	s.gotUser = userID
	return s.start
}
func (s *stubRecorder) StopRecording(string) recorder.StopResult { return s.stop }
func (s *stubRecorder) ActiveRecordings() []recorder.ActiveRecording { return s.active }
func (s *stubRecorder) IsRecording(cameraID string) bool { return s.recording[cameraID] }
func (s *stubRecorder) Health(context.Context) recorder.HealthReport { return s.health }
func (s *stubRecorder) CleanupOldRecordings(context.Context) recorder.CleanupResult {
	return s.cleanup
}
func (s *stubRecorder) Statistics(context.Context) recorder.StatisticsResult {
	return recorder.StatisticsResult{Success: true, Statistics: &recorder.Statistics{ActiveRecordings: len(s.active)}}
}

type fixedScope struct{ scope auth.Scope }

func (f fixedScope) ScopeFor(context.Context, uuid.UUID, models.Role) (auth.Scope, error) {
	return f.scope, nil
}

type env struct {
	router *gin.Engine
	store  *memStore
	rec    *stubRecorder
	userID uuid.UUID
}

func newEnv(t *testing.T, role models.Role, scope auth.Scope) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e := &env{
		store:  &memStore{recs: map[uuid.UUID]*models.Recording{}},
		rec:    &stubRecorder{recording: map[string]bool{}},
		userID: uuid.New(),
	}
	h := NewHandler(e.store, e.rec, fixedScope{scope}, nil)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(auth.ContextUserID, e.userID)
		c.Set(auth.ContextUserRole, string(role))
		c.Next()
	})
	r.GET("/recordings", h.List)
	r.POST("/recordings/start", h.Start)
	r.POST("/recordings/stop", h.Stop)
	r.GET("/recordings/active", h.Active)
	r.GET("/recordings/statistics", h.Statistics)
	r.POST("/recordings/cleanup", h.Cleanup)
	r.GET("/recordings/health", h.Health)
	r.GET("/recordings/:id", h.Get)
	r.GET("/recordings/:id/download", h.Download)
	r.DELETE("/recordings/:id", h.Delete)
	e.router = r
	return e
}

func (e *env) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) add(t *testing.T, cameraID string, owner *uuid.UUID, withFile bool) *models.Recording {
	t.Helper()
	rec := &models.Recording{ID: uuid.New(), CameraID: cameraID, UserID: owner, Kind: models.RecordingKindManual, CreatedAt: time.Now()}
	if withFile {
		rec.Filename = cameraID + "_segment_001.mp4"
		rec.FilePath = filepath.Join(t.TempDir(), rec.Filename)
		require.NoError(t, os.WriteFile(rec.FilePath, []byte("mp4"), 0o644))
		ended := time.Now()
		rec.EndedAt = &ended
	}
	e.store.recs[rec.ID] = rec
	return rec
}

func TestStartValidation(t *testing.T) {
	e := newEnv(t, models.RoleOperator, auth.Scope{Cameras: []string{"cam-1"}})
	tests := []struct {
		name string
		body any
		code int
	}{
		{"missing camera", map[string]any{}, http.StatusBadRequest},
		{"unassigned camera", map[string]any{"camera_id": "cam-2"}, http.StatusForbidden},
		{"zero duration", map[string]any{"camera_id": "cam-1", "duration_minutes": 0}, http.StatusBadRequest},
		{"too long", map[string]any{"camera_id": "cam-1", "duration_minutes": 481}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, e.do(http.MethodPost, "/recordings/start", tt.body).Code)
		})
	}
}

func TestStartMapsAdmissionErrors(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{recorder.ErrAlreadyRecording, http.StatusConflict},
		{recorder.ErrCameraNotFound, http.StatusNotFound},
		{recorder.ErrRecordingDisabled, http.StatusBadRequest},
		{recorder.ErrInsufficientStorage, http.StatusInsufficientStorage},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			e := newEnv(t, models.RoleAdmin, auth.Scope{All: true})
			e.rec.start = recorder.StartResult{Error: tt.err.Error(), Err: tt.err}
			assert.Equal(t, tt.code, e.do(http.MethodPost, "/recordings/start", map[string]any{"camera_id": "cam-1"}).Code)
		})
	}
}

func TestStartSuccess(t *testing.T) {
	e := newEnv(t, models.RoleAdmin, auth.Scope{All: true})
	e.rec.start = recorder.StartResult{Success: true, RecordingID: uuid.New(), SessionID: "cam-1_20240101_000000", Message: "Recording started for camera cam-1"}

	w := e.do(http.MethodPost, "/recordings/start", map[string]any{"camera_id": "cam-1", "duration_minutes": 30})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "cam-1_20240101_000000")
	require.NotNil(t, e.rec.gotUser)
	assert.Equal(t, e.userID, *e.rec.gotUser)
}

func TestStopWithoutSession(t *testing.T) {
	e := newEnv(t, models.RoleAdmin, auth.Scope{All: true})
	e.rec.stop = recorder.StopResult{Error: "No active recording for camera cam-1", Err: recorder.ErrNotRecording}
	w := e.do(http.MethodPost, "/recordings/stop", map[string]any{"camera_id": "cam-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No active recording")
}

func TestActiveFiltersByScope(t *testing.T) {
	e := newEnv(t, models.RoleViewer, auth.Scope{Cameras: []string{"cam-1"}})
	e.rec.active = []recorder.ActiveRecording{{CameraID: "cam-1"}, {CameraID: "cam-2"}}

	w := e.do(http.MethodGet, "/recordings/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data struct {
			Active []recorder.ActiveRecording `json:"active_recordings"`
			Total  int                        `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Data.Total)
	assert.Equal(t, "cam-1", body.Data.Active[0].CameraID)
}

func TestListPassesScopeAndFilters(t *testing.T) {
	e := newEnv(t, models.RoleOperator, auth.Scope{Cameras: []string{"cam-1"}})
	e.add(t, "cam-1", nil, true)

	w := e.do(http.MethodGet, "/recordings?type=manual&start_date=2024-01-01&end_date=2024-01-31&per_page=500", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"cam-1"}, e.store.filter.CameraIDs)
	assert.Equal(t, models.RecordingKindManual, e.store.filter.Kind)
	require.NotNil(t, e.store.filter.To)
	assert.Equal(t, 31, e.store.filter.To.Day())
	assert.Contains(t, w.Body.String(), `"file_exists":true`)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/recordings?start_date=yesterday", nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/recordings?type=timelapse", nil).Code)
}

func TestGetAndDownload(t *testing.T) {
	e := newEnv(t, models.RoleOperator, auth.Scope{Cameras: []string{"cam-1"}})
	mine := e.add(t, "cam-1", nil, true)
	other := e.add(t, "cam-9", nil, true)
	noFile := e.add(t, "cam-1", nil, false)

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/recordings/"+mine.ID.String(), nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/recordings/"+other.ID.String(), nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/recordings/"+uuid.NewString(), nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/recordings/42", nil).Code)

	w := e.do(http.MethodGet, "/recordings/"+mine.ID.String()+"/download", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), mine.Filename)
	assert.Equal(t, "mp4", w.Body.String())

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/recordings/"+noFile.ID.String()+"/download", nil).Code)
}

func TestDeletePermissions(t *testing.T) {
	e := newEnv(t, models.RoleOperator, auth.Scope{Cameras: []string{"cam-1"}})
	someoneElse := uuid.New()
	theirs := e.add(t, "cam-1", &someoneElse, true)
	mine := e.add(t, "cam-1", &e.userID, true)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodDelete, "/recordings/"+theirs.ID.String(), nil).Code)

	w := e.do(http.MethodDelete, "/recordings/"+mine.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NoFileExists(t, mine.FilePath)
	assert.Equal(t, []uuid.UUID{mine.ID}, e.store.deleted)
}

func TestDeleteRejectsLiveRecording(t *testing.T) {
	e := newEnv(t, models.RoleSuperAdmin, auth.Scope{All: true})
	live := e.add(t, "cam-1", nil, false)
	e.rec.recording["cam-1"] = true

	assert.Equal(t, http.StatusConflict, e.do(http.MethodDelete, "/recordings/"+live.ID.String(), nil).Code)
	assert.Empty(t, e.store.deleted)
}

func TestHealthStatusCodes(t *testing.T) {
	tests := []struct {
		status string
		code   int
	}{
		{recorder.HealthHealthy, http.StatusOK},
		{recorder.HealthWarning, http.StatusServiceUnavailable},
		{recorder.HealthCritical, http.StatusServiceUnavailable},
		{recorder.HealthError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			e := newEnv(t, models.RoleAdmin, auth.Scope{All: true})
			e.rec.health = recorder.HealthReport{Status: tt.status}
			w := e.do(http.MethodGet, "/recordings/health", nil)
			assert.Equal(t, tt.code, w.Code)
			assert.Contains(t, w.Body.String(), tt.status)
		})
	}
}

func TestCleanup(t *testing.T) {
	e := newEnv(t, models.RoleSuperAdmin, auth.Scope{All: true})
	e.rec.cleanup = recorder.CleanupResult{Success: true, SweepResult: recorder.SweepResult{DeletedCount: 2, FreedBytes: 1024}}

	w := e.do(http.MethodPost, "/recordings/cleanup", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"deleted_recordings":2`)

	e.rec.cleanup = recorder.CleanupResult{Error: "Cleanup failed: boom"}
	assert.Equal(t, http.StatusInternalServerError, e.do(http.MethodPost, "/recordings/cleanup", nil).Code)
}
