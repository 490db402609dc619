package daemon

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/1broseidon/maxdesk/internal/control"
)

type countingSweeper struct {
	calls atomic.Int32
	panic bool
}

func (s *countingSweeper) CleanupStaleEntries() int {
	s.calls.Add(1)
	if s.panic {
		panic("sweep failed")
	}
	return 1
}

func startLoop(t *testing.T) *control.Loop {
	t.Helper()
	loop := control.NewLoop(8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})
	return loop
}

func TestReconciler_ReconcileNow(t *testing.T) {
	sweeper := &countingSweeper{}
	r := NewReconciler(ReconcilerConfig{}, startLoop(t), sweeper)

	if err := r.ReconcileNow(context.Background()); err != nil {
		t.Fatalf("ReconcileNow() error: %v", err)
	}
	if sweeper.calls.Load() != 1 {
		t.Fatalf("sweeps = %d, want 1", sweeper.calls.Load())
	}
	if r.interval != 10*time.Second {
		t.Fatalf("default interval = %v", r.interval)
	}
}

func TestReconciler_SurvivesPanic(t *testing.T) {
	sweeper := &countingSweeper{panic: true}
	r := NewReconciler(ReconcilerConfig{}, startLoop(t), sweeper)

	if err := r.ReconcileNow(context.Background()); err != nil {
		t.Fatalf("ReconcileNow() error: %v", err)
	}
	if err := r.ReconcileNow(context.Background()); err != nil {
		t.Fatalf("second ReconcileNow() error: %v", err)
	}
	if sweeper.calls.Load() != 2 {
		t.Fatalf("sweeps = %d, want 2", sweeper.calls.Load())
	}
}

func TestReconciler_RunTicks(t *testing.T) {
	sweeper := &countingSweeper{}
	loop := startLoop(t)
	r := NewReconciler(ReconcilerConfig{Interval: 5 * time.Millisecond}, loop, sweeper)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for sweeper.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if sweeper.calls.Load() < 2 {
		t.Fatalf("sweeps = %d, want at least 2", sweeper.calls.Load())
	}
}
