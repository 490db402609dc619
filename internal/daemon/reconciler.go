package daemon

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/1broseidon/maxdesk/internal/control"
)

// Sweeper removes tracking records whose windows disappeared unnoticed.
type Sweeper interface {
	CleanupStaleEntries() int
}

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Reconciler periodically queues a stale-entry sweep on the control loop,
// covering destroy notifications that were missed or dropped.
type Reconciler struct {
	interval time.Duration
	loop     *control.Loop
	sweeper  Sweeper
	logger   *slog.Logger
}

// NewReconciler creates a new reconciler with the given configuration.
func NewReconciler(cfg ReconcilerConfig, loop *control.Loop, sweeper Sweeper) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Reconciler{
		interval: interval,
		loop:     loop,
		sweeper:  sweeper,
		logger:   logger,
	}
}

// Run starts the reconciliation loop. Blocks until context is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return nil
		case <-ticker.C:
			r.schedule()
		}
	}
}

// schedule queues a sweep. A full queue skips this tick; the next one
// catches up.
func (r *Reconciler) schedule() {
	if err := r.loop.Post("stale-sweep", r.reconcile); err != nil {
		r.logger.Debug("reconciler: sweep skipped", "error", err)
	}
}

// reconcile performs a single reconciliation pass on the control loop.
func (r *Reconciler) reconcile() {
	// Recover from panics to prevent crashing the daemon
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("reconciler panic recovered", "error", err)
		}
	}()

	if removed := r.sweeper.CleanupStaleEntries(); removed > 0 {
		r.logger.Info("reconciler: removed stale entries", "count", removed)
	}
}

// ReconcileNow runs a sweep on the control loop and waits for it.
func (r *Reconciler) ReconcileNow(ctx context.Context) error {
	return r.loop.Do(ctx, "stale-sweep", func() error {
		r.reconcile()
		return nil
	})
}
