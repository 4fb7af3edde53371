package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// HealthChecker is implemented by runtimes that can probe their worker.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

var errWorkerExited = errors.New("worker exited before becoming healthy")

// WaitHealthy polls h with exponential backoff until it answers, ctx ends or
// timeout elapses. alive, when set, aborts the wait as soon as it returns false.
func WaitHealthy(ctx context.Context, h HealthChecker, timeout time.Duration, alive func() bool) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = timeout
	op := func() error {
		if alive != nil && !alive() {
			return backoff.Permanent(errWorkerExited)
		}
		hctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		return h.Healthy(hctx)
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}
