package main

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// stopSlack is added to the stop timeout so the last finalize can land.
const stopSlack = 5 * time.Second

type httpShutdowner interface {
	Shutdown(ctx context.Context) error
}

type recordingShutdowner interface {
	Shutdown(ctx context.Context)
}

// shutdown drains HTTP first, then stops recordings. Recordings get their own
// budget so slow requests cannot leave sessions unfinalized.
func shutdown(srv httpShutdowner, rec recordingShutdowner, httpBudget, stopTimeout time.Duration, logger *zap.Logger) {
	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), httpBudget)
	defer cancelHTTP()
	if err := srv.Shutdown(httpCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	recCtx, cancelRec := context.WithTimeout(context.Background(), stopTimeout+stopSlack)
	defer cancelRec()
	rec.Shutdown(recCtx)
}
