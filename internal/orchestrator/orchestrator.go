// Package orchestrator moves windows onto temporary desktops and back.
//
// Every exported method is expected to run on the control loop; the
// in-flight set only guards against duplicate triggers that were queued
// back to back.
package orchestrator

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/1broseidon/maxdesk/internal/metrics"
	"github.com/1broseidon/maxdesk/internal/notify"
	"github.com/1broseidon/maxdesk/internal/persist"
	"github.com/1broseidon/maxdesk/internal/platform"
	"github.com/1broseidon/maxdesk/internal/tracker"
)

var (
	// ErrBusy means the window already has a workflow running.
	ErrBusy = errors.New("window operation already in progress")
	// ErrDegraded means no desktop service is available.
	ErrDegraded = errors.New("desktop service unavailable")
	// ErrInvalidWindow means the window no longer exists.
	ErrInvalidWindow = errors.New("window no longer exists")
)

// Reason explains why a window is being restored.
type Reason string

const (
	ReasonToggle      Reason = "toggle"
	ReasonUnmaximized Reason = "unmaximized"
	ReasonRestoreAll  Reason = "restore-all"
	ReasonShutdown    Reason = "shutdown"
)

// CompanionPolicy selects which extra windows travel with the primary.
type CompanionPolicy string

const (
	// CompanionNone moves the triggering window alone.
	CompanionNone CompanionPolicy = "none"
	// CompanionSameProcess also moves visible top-level siblings owned by
	// the same process and shown on the same desktop.
	CompanionSameProcess CompanionPolicy = "same-process"
)

// DefaultSwitchSettle is the pause between switching desktops and
// maximizing.
const DefaultSwitchSettle = 250 * time.Millisecond

// Options configures an Orchestrator.
type Options struct {
	Windows platform.WindowService
	// Desktops may be nil, in which case the orchestrator starts degraded.
	Desktops platform.DesktopService
	// Connect builds a fresh desktop service after a shell restart.
	Connect func() (platform.DesktopService, error)
	Store   *tracker.Store
	// Shadow is read by Recover. May be nil.
	Shadow *persist.Shadow
	// Events is told which windows to watch. May be nil.
	Events   platform.EventSource
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	Companions   CompanionPolicy
	SwitchSettle time.Duration
	NamePrefix   string

	// Sleep replaces time.Sleep for the switch settle delay.
	Sleep func(time.Duration)
	Now   func() time.Time
}

// Orchestrator owns the migrate/restore workflows.
type Orchestrator struct {
	windows  platform.WindowService
	connect  func() (platform.DesktopService, error)
	store    *tracker.Store
	shadow   *persist.Shadow
	events   platform.EventSource
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger

	companions CompanionPolicy
	settle     time.Duration
	namePrefix string
	sleep      func(time.Duration)
	now        func() time.Time
	// recoverPending is set when Recover could not reach a desktop service.
	recoverPending bool

	mu       sync.Mutex
	desktops platform.DesktopService
	inFlight map[platform.WindowID]struct{}
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		windows:    opts.Windows,
		connect:    opts.Connect,
		store:      opts.Store,
		shadow:     opts.Shadow,
		events:     opts.Events,
		notifier:   opts.Notifier,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		companions: opts.Companions,
		settle:     opts.SwitchSettle,
		namePrefix: opts.NamePrefix,
		sleep:      opts.Sleep,
		now:        opts.Now,
		desktops:   opts.Desktops,
		inFlight:   make(map[platform.WindowID]struct{}),
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.notifier == nil {
		o.notifier = notify.Discard{}
	}
	if o.companions == "" {
		o.companions = CompanionNone
	}
	if o.sleep == nil {
		o.sleep = time.Sleep
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.store == nil {
		o.store = tracker.NewStore(nil, o.windows.IsWindow, o.logger)
	}
	return o
}

// Tuning holds the settings a configuration reload may change.
type Tuning struct {
	Companions   CompanionPolicy
	SwitchSettle time.Duration
	NamePrefix   string
}

// Retune applies reloaded settings to workflows started afterwards.
func (o *Orchestrator) Retune(t Tuning) {
	if t.Companions == "" {
		t.Companions = CompanionNone
	}
	o.companions = t.Companions
	o.settle = t.SwitchSettle
	o.namePrefix = t.NamePrefix
}

// Store returns the tracking store.
func (o *Orchestrator) Store() *tracker.Store {
	return o.store
}

// Degraded reports whether no desktop service is available.
func (o *Orchestrator) Degraded() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.desktops == nil
}

// InFlight reports whether w has a workflow running.
func (o *Orchestrator) InFlight(w platform.WindowID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inFlight[w]
	return ok
}

func (o *Orchestrator) service() (platform.DesktopService, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.desktops == nil {
		return nil, ErrDegraded
	}
	return o.desktops, nil
}

func (o *Orchestrator) begin(w platform.WindowID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.inFlight[w]; ok {
		return false
	}
	o.inFlight[w] = struct{}{}
	return true
}

func (o *Orchestrator) end(w platform.WindowID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, w)
}

// Toggle migrates a free window or restores a migrated one.
func (o *Orchestrator) Toggle(w platform.WindowID) error {
	if !o.windows.IsWindow(w) {
		return ErrInvalidWindow
	}
	if !o.begin(w) {
		o.logger.Debug("duplicate trigger ignored", "window", w)
		return ErrBusy
	}
	defer o.end(w)

	if o.store.IsTracked(w) {
		return o.restore(w, ReasonToggle)
	}
	return o.migrate(w)
}

// Migrate moves w onto a new desktop if it is not already tracked.
func (o *Orchestrator) Migrate(w platform.WindowID) error {
	if !o.windows.IsWindow(w) {
		return ErrInvalidWindow
	}
	if !o.begin(w) {
		return ErrBusy
	}
	defer o.end(w)

	if o.store.IsTracked(w) {
		return nil
	}
	return o.migrate(w)
}

// Restore undoes w's migration. Untracked windows are a no-op.
func (o *Orchestrator) Restore(w platform.WindowID, reason Reason) error {
	if !o.begin(w) {
		return ErrBusy
	}
	defer o.end(w)
	return o.restore(w, reason)
}

// RestoreAll restores every tracked desktop, continuing past failures. It
// returns the number of windows restored.
func (o *Orchestrator) RestoreAll(reason Reason) int {
	records := o.store.GetAll()
	done := make(map[platform.DesktopID]bool)
	restored := 0
	for _, rec := range records {
		if done[rec.TempDesktop] {
			continue
		}
		done[rec.TempDesktop] = true
		err := o.safely("restore", func() error {
			if !o.begin(rec.Window) {
				return ErrBusy
			}
			defer o.end(rec.Window)
			n, err := o.restoreDesktop(rec.Window, reason)
			restored += n
			return err
		})
		if err != nil {
			o.logger.Warn("restore failed", "window", rec.Window, "reason", reason, "error", err)
		}
	}
	return restored
}

// CleanupStaleEntries tears down records whose windows vanished without a
// destroy notification. It returns the number of records removed.
func (o *Orchestrator) CleanupStaleEntries() int {
	stale := o.store.StaleHandles()
	removed := 0
	for _, w := range stale {
		o.logger.Info("stale tracked window", "window", w)
		if err := o.safely("cleanup", func() error { return o.HandleDestroyed(w) }); err != nil {
			o.logger.Warn("stale cleanup failed", "window", w, "error", err)
			continue
		}
		removed++
	}
	return removed
}

// safely runs fn, converting a panic into an error so batch operations keep
// going.
func (o *Orchestrator) safely(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("orchestrator panic recovered", "op", op, "error", r)
			err = fmt.Errorf("%s panicked: %v", op, r)
		}
	}()
	return fn()
}

// PinToggle flips whether w is shown on all desktops.
func (o *Orchestrator) PinToggle(w platform.WindowID) error {
	if !o.windows.IsWindow(w) {
		return ErrInvalidWindow
	}
	desktops, err := o.service()
	if err != nil {
		return err
	}
	label := o.windows.Label(w)

	pinned, err := desktops.IsPinned(w)
	if err != nil {
		o.notifier.Notify(notify.Event{Kind: notify.KindFailed, Window: w, Label: label, Err: err})
		return fmt.Errorf("pin toggle window %d: %w", w, err)
	}

	kind := notify.KindPinned
	if pinned {
		kind = notify.KindUnpinned
		err = desktops.Unpin(w)
	} else {
		err = desktops.Pin(w)
	}
	if err != nil {
		o.notifier.Notify(notify.Event{Kind: notify.KindFailed, Window: w, Label: label, Err: err})
		return fmt.Errorf("pin toggle window %d: %w", w, err)
	}

	o.notifier.Notify(notify.Event{Kind: kind, Window: w, Label: label})
	return nil
}

func (o *Orchestrator) watch(w platform.WindowID) {
	if o.events == nil {
		return
	}
	if err := o.events.Watch(w); err != nil {
		o.logger.Warn("failed to watch window", "window", w, "error", err)
	}
}

func (o *Orchestrator) unwatch(w platform.WindowID) {
	if o.events != nil {
		o.events.Unwatch(w)
	}
}
