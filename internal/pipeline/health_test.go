package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type flakyChecker struct {
	failures int32
	calls    atomic.Int32
}

func (f *flakyChecker) Healthy(ctx context.Context) error {
	if f.calls.Add(1) <= f.failures {
		return errors.New("not yet")
	}
	return nil
}

func TestWaitHealthy_Retries(t *testing.T) {
	h := &flakyChecker{failures: 2}
	if err := WaitHealthy(context.Background(), h, 5*time.Second, nil); err != nil {
		t.Fatalf("WaitHealthy: %v", err)
	}
	if h.calls.Load() != 3 {
		t.Fatalf("calls = %d", h.calls.Load())
	}
}

func TestWaitHealthy_Timeout(t *testing.T) {
	h := &flakyChecker{failures: 1 << 30}
	if err := WaitHealthy(context.Background(), h, 300*time.Millisecond, nil); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestWaitHealthy_ProcessGone(t *testing.T) {
	h := &flakyChecker{failures: 1 << 30}
	err := WaitHealthy(context.Background(), h, time.Minute, func() bool { return false })
	if !errors.Is(err, errWorkerExited) {
		t.Fatalf("expected errWorkerExited, got %v", err)
	}
	if h.calls.Load() != 0 {
		t.Fatalf("checker should not be called once the process is gone")
	}
}

func TestWaitHealthy_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := &flakyChecker{failures: 1 << 30}
	if err := WaitHealthy(ctx, h, time.Minute, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
