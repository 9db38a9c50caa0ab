package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/sg-security/backend/internal/recorder"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Subscriber delivers raw recording events published by any instance.
type Subscriber interface {
	Subscribe(ctx context.Context, handler func(payload []byte)) (cancel func(), err error)
}

// Hub fans recording events out to connected WebSocket clients.
// With a Subscriber it relays the shared Redis channel; without one it only
// sees events published on this instance.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
	logger  *zap.Logger
	sub     Subscriber
}

// NewHub creates a hub. sub may be nil.
func NewHub(logger *zap.Logger, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
		sub:     sub,
	}
}

// Run subscribes once and relays events until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	if h.sub == nil {
		<-ctx.Done()
		return nil
	}
	cancel, err := h.sub.Subscribe(ctx, h.Dispatch)
	if err != nil {
		return err
	}
	<-ctx.Done()
	cancel()
	h.closeAll()
	return nil
}

// PublishRecordingEvent delivers ev to local clients. Used when no Redis
// publisher is configured.
func (h *Hub) PublishRecordingEvent(_ context.Context, ev recorder.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.Dispatch(body)
	return nil
}

// Dispatch sends one encoded event to every client allowed to see its camera.
func (h *Hub) Dispatch(payload []byte) {
	var head struct {
		Type     string `json:"type"`
		CameraID string `json:"camera_id"`
	}
	if err := json.Unmarshal(payload, &head); err != nil || head.Type == "" {
		h.logger.Debug("dropping malformed recording event", zap.Error(err))
		return
	}
	msg := WSMessage{Event: head.Type, Data: json.RawMessage(payload)}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.scope.Allows(head.CameraID) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("feed client connected", zap.String("client_id", c.ID), zap.String("user_id", c.UserID.String()))
}

// Unregister removes a client and closes its send queue.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.send)
	}
	h.mu.Unlock()
	h.logger.Debug("feed client disconnected", zap.String("client_id", c.ID))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}
