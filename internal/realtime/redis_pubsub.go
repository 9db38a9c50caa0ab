package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sg-security/backend/internal/recorder"
)

// RecordingChannel carries recording lifecycle events between instances.
const RecordingChannel = "recordings:events"

// RedisPubSub publishes recording events to Redis and subscribes to them.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for recording events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

// PublishRecordingEvent implements recorder.EventPublisher.
func (r *RedisPubSub) PublishRecordingEvent(ctx context.Context, ev recorder.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, RecordingChannel, body).Err()
}

// Subscribe listens on RecordingChannel and calls handler for each raw event.
// The returned cancel stops the subscription.
func (r *RedisPubSub) Subscribe(ctx context.Context, handler func(payload []byte)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(ctx)
	pubsub := r.client.Subscribe(ctx, RecordingChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()
	return cancelCtx, nil
}
