package realtime

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sg-security/backend/internal/auth"
	"github.com/sg-security/backend/internal/models"
	"github.com/sg-security/backend/internal/recorder"
)

func testClient(id string, scope auth.Scope) *Client {
	return &Client{ID: id, scope: scope, send: make(chan WSMessage, 4)}
}

func TestDispatchFiltersByScope(t *testing.T) {
	hub := NewHub(nil, nil)
	admin := testClient("admin", auth.Scope{All: true})
	assigned := testClient("op", auth.Scope{Cameras: []string{"cam-1"}})
	other := testClient("viewer", auth.Scope{Cameras: []string{"cam-9"}})
	for _, c := range []*Client{admin, assigned, other} {
		hub.Register(c)
	}

	err := hub.PublishRecordingEvent(context.Background(), recorder.Event{
		Type:        recorder.EventRecordingStarted,
		CameraID:    "cam-1",
		RecordingID: uuid.New(),
		At:          time.Now(),
	})
	require.NoError(t, err)

	assert.Len(t, admin.send, 1)
	assert.Len(t, assigned.send, 1)
	assert.Len(t, other.send, 0)

	msg := <-assigned.send
	assert.Equal(t, recorder.EventRecordingStarted, msg.Event)
	assert.Contains(t, string(msg.Data), `"camera_id":"cam-1"`)
}

func TestDispatchDropsMalformed(t *testing.T) {
	hub := NewHub(nil, nil)
	c := testClient("a", auth.Scope{All: true})
	hub.Register(c)

	hub.Dispatch([]byte("not json"))
	hub.Dispatch([]byte(`{"camera_id":"cam-1"}`))
	assert.Len(t, c.send, 0)
}

func TestUnregisterIsIdempotent(t *testing.T) {
	hub := NewHub(nil, nil)
	c := testClient("a", auth.Scope{All: true})
	hub.Register(c)
	hub.Unregister(c)
	hub.Unregister(c)
	assert.Equal(t, 0, hub.ClientCount())
}

type staticTokens struct{ claims *auth.Claims }

func (s staticTokens) Validate(token string) (*auth.Claims, error) {
	if token != "good" {
		return nil, auth.ErrInvalidToken
	}
	return s.claims, nil
}

type staticScopes struct{ scope auth.Scope }

func (s staticScopes) ScopeFor(context.Context, uuid.UUID, models.Role) (auth.Scope, error) {
	return s.scope, nil
}

func TestServeWsStreamsEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil, nil)
	r := gin.New()
	claims := &auth.Claims{UserID: uuid.New(), Role: string(models.RoleOperator)}
	r.GET("/ws", ServeWs(hub, staticTokens{claims}, staticScopes{auth.Scope{Cameras: []string{"cam-1"}}}, zap.NewNop()))
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=good"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	_ = hub.PublishRecordingEvent(context.Background(), recorder.Event{Type: recorder.EventRecordingStarted, CameraID: "cam-2"})
	_ = hub.PublishRecordingEvent(context.Background(), recorder.Event{Type: recorder.EventRecordingStopped, CameraID: "cam-1"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, recorder.EventRecordingStopped, msg.Event)

	require.NoError(t, conn.WriteJSON(WSMessage{Event: "ping"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "pong", msg.Event)
}

func TestServeWsRejectsBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", ServeWs(NewHub(nil, nil), staticTokens{}, staticScopes{}, zap.NewNop()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ws?token=bad", nil))
	assert.Equal(t, 401, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ws", nil))
	assert.Equal(t, 400, w.Code)
}
