package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/1broseidon/maxdesk/internal/control"
	"github.com/1broseidon/maxdesk/internal/ipc"
	"github.com/1broseidon/maxdesk/internal/orchestrator"
	"github.com/1broseidon/maxdesk/internal/platform"
)

// ErrNoActiveWindow is returned when a command targets the active window and
// there is none.
var ErrNoActiveWindow = errors.New("no active window")

// Service runs trigger commands from IPC and hotkeys on the control loop.
type Service struct {
	loop    *control.Loop
	orch    *orchestrator.Orchestrator
	windows platform.WindowService
	reload  func(ctx context.Context) error
	logger  *slog.Logger
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Loop         *control.Loop
	Orchestrator *orchestrator.Orchestrator
	Windows      platform.WindowService
	// Reload re-reads configuration. May be nil.
	Reload func(ctx context.Context) error
	Logger *slog.Logger
}

// NewService creates a service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		loop:    cfg.Loop,
		orch:    cfg.Orchestrator,
		windows: cfg.Windows,
		reload:  cfg.Reload,
		logger:  logger,
	}
}

// Toggle migrates or restores window. A zero window means the active one.
func (s *Service) Toggle(ctx context.Context, window uint32) (uint32, error) {
	return s.onWindow(ctx, "toggle", window, s.orch.Toggle)
}

// PinToggle flips whether window is shown on all desktops.
func (s *Service) PinToggle(ctx context.Context, window uint32) (uint32, error) {
	return s.onWindow(ctx, "pin", window, s.orch.PinToggle)
}

// RestoreAll restores every tracked window.
func (s *Service) RestoreAll(ctx context.Context) (int, error) {
	counted := make(chan int, 1)
	err := s.loop.Do(ctx, "restore-all", func() error {
		counted <- s.orch.RestoreAll(orchestrator.ReasonRestoreAll)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return <-counted, nil
}

// Status summarises the tracking state.
func (s *Service) Status(context.Context) (ipc.StatusData, error) {
	records := s.orch.Store().GetAll()
	desktops := make(map[platform.DesktopID]struct{}, len(records))
	for _, r := range records {
		desktops[r.TempDesktop] = struct{}{}
	}
	return ipc.StatusData{
		TrackedWindows: len(records),
		TempDesktops:   len(desktops),
		Degraded:       s.orch.Degraded(),
	}, nil
}

// Tracked lists the migrated windows.
func (s *Service) Tracked(context.Context) ([]ipc.TrackedWindow, error) {
	records := s.orch.Store().GetAll()
	out := make([]ipc.TrackedWindow, 0, len(records))
	for _, r := range records {
		out = append(out, ipc.TrackedWindow{
			Window:          uint32(r.Window),
			Label:           r.Label,
			OriginalDesktop: r.OriginalDesktop.String(),
			TempDesktop:     r.TempDesktop.String(),
			MovedAt:         r.MovedAt,
			Armed:           r.Armed,
		})
	}
	return out, nil
}

// Reload re-reads configuration.
func (s *Service) Reload(ctx context.Context) error {
	if s.reload == nil {
		return fmt.Errorf("reload not supported")
	}
	return s.reload(ctx)
}

// onWindow resolves the target on the loop and runs fn there. The resolved
// window is passed back through a channel because Do may return on ctx
// expiry while the task is still running.
func (s *Service) onWindow(ctx context.Context, name string, window uint32, fn func(platform.WindowID) error) (uint32, error) {
	resolved := make(chan platform.WindowID, 1)
	err := s.loop.Do(ctx, name, func() error {
		w, err := s.resolve(window)
		if err != nil {
			return err
		}
		resolved <- w
		return fn(w)
	})

	select {
	case w := <-resolved:
		return uint32(w), err
	default:
		return window, err
	}
}

func (s *Service) resolve(window uint32) (platform.WindowID, error) {
	if window != 0 {
		return platform.WindowID(window), nil
	}
	w, err := s.windows.ActiveWindow()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoActiveWindow, err)
	}
	if w == 0 {
		return 0, ErrNoActiveWindow
	}
	return w, nil
}
