package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type slowServer struct{}

func (slowServer) Shutdown(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type stopRecorder struct {
	errAtStart error
	remaining  time.Duration
}

func (r *stopRecorder) Shutdown(ctx context.Context) {
	r.errAtStart = ctx.Err()
	deadline, ok := ctx.Deadline()
	if ok {
		r.remaining = time.Until(deadline)
	}
}

func TestShutdownGivesRecordingsTheirOwnBudget(t *testing.T) {
	rec := &stopRecorder{}
	shutdown(slowServer{}, rec, 20*time.Millisecond, 2*time.Second, zap.NewNop())

	require.NoError(t, rec.errAtStart, "HTTP draining used up the recording budget")
	assert.Greater(t, rec.remaining, 2*time.Second)
}
