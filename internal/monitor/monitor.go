// Package monitor reacts to window and shell events by queueing
// orchestrator work on the control loop.
package monitor

import (
	"io"
	"log/slog"

	"github.com/1broseidon/maxdesk/internal/control"
	"github.com/1broseidon/maxdesk/internal/metrics"
	"github.com/1broseidon/maxdesk/internal/orchestrator"
	"github.com/1broseidon/maxdesk/internal/platform"
	"github.com/1broseidon/maxdesk/internal/tracker"
)

// Target is the orchestrator surface the monitor drives.
type Target interface {
	Restore(w platform.WindowID, reason orchestrator.Reason) error
	HandleDestroyed(w platform.WindowID) error
	ShellRestarted() bool
}

// Config wires a Monitor.
type Config struct {
	Loop    *control.Loop
	Store   *tracker.Store
	Windows platform.WindowService
	Target  Target
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// OnShellRestart runs on the control loop after the target has reset.
	OnShellRestart func(available bool)
}

// Monitor turns event callbacks into control loop tasks. Its event methods
// are safe to call from any goroutine.
type Monitor struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a monitor.
func New(cfg Config) *Monitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Monitor{cfg: cfg, logger: logger}
}

// StateChanged reports that w's show state may have changed.
func (m *Monitor) StateChanged(w platform.WindowID) {
	if !m.cfg.Store.IsTracked(w) {
		return
	}
	m.post("state-change", func() { m.handleStateChange(w) })
}

// Destroyed reports that w no longer exists.
func (m *Monitor) Destroyed(w platform.WindowID) {
	if !m.cfg.Store.IsTracked(w) {
		return
	}
	m.post("destroyed", func() {
		if err := m.cfg.Target.HandleDestroyed(w); err != nil {
			m.logger.Warn("destroy handling failed", "window", w, "error", err)
		}
	})
}

// ShellRestarted reports that the desktop shell was replaced.
func (m *Monitor) ShellRestarted() {
	m.post("shell-restart", func() {
		available := m.cfg.Target.ShellRestarted()
		if m.cfg.OnShellRestart != nil {
			m.cfg.OnShellRestart(available)
		}
	})
}

func (m *Monitor) post(name string, fn func()) {
	if err := m.cfg.Loop.Post(name, fn); err != nil {
		m.cfg.Metrics.EventDropped()
		m.logger.Warn("window event dropped", "event", name, "error", err)
	}
}

// handleStateChange arms a record the first time its window is seen
// maximized and restores it once it is seen in a normal state afterwards.
// Minimizing does not count as leaving the maximized state.
func (m *Monitor) handleStateChange(w platform.WindowID) {
	rec, ok := m.cfg.Store.Get(w)
	if !ok {
		return
	}
	state, err := m.cfg.Windows.ShowState(w)
	if err != nil {
		m.logger.Debug("show state unavailable", "window", w, "error", err)
		return
	}

	switch state {
	case platform.ShowMaximized:
		if !rec.Armed {
			m.cfg.Store.Arm(w)
			m.logger.Debug("tracked window maximized", "window", w)
		}
	case platform.ShowNormal:
		if !rec.Armed {
			return
		}
		m.logger.Info("tracked window unmaximized", "window", w)
		if err := m.cfg.Target.Restore(w, orchestrator.ReasonUnmaximized); err != nil {
			m.logger.Warn("auto restore failed", "window", w, "error", err)
		}
	}
}
