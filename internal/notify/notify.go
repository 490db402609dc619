// Package notify presents window transitions to the user.
package notify

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/1broseidon/maxdesk/internal/activity"
	"github.com/1broseidon/maxdesk/internal/platform"
)

// Kind is the transition being reported.
type Kind string

const (
	KindMigrated  Kind = "migrated"
	KindRestored  Kind = "restored"
	KindClosed    Kind = "closed"
	KindPinned    Kind = "pinned"
	KindUnpinned  Kind = "unpinned"
	KindElevated  Kind = "elevated"
	KindRecovered Kind = "recovered"
	KindFailed    Kind = "failed"
)

// Event describes one transition.
type Event struct {
	Kind    Kind
	Window  platform.WindowID
	Label   string
	Desktop platform.DesktopID
	Reason  string
	Count   int
	Err     error
}

// Message renders e as a single line for humans.
func (e Event) Message() string {
	name := e.Label
	if name == "" {
		name = fmt.Sprintf("window 0x%x", uint32(e.Window))
	}
	switch e.Kind {
	case KindMigrated:
		if e.Count > 1 {
			return fmt.Sprintf("Maximized %s (+%d) on a new desktop", name, e.Count-1)
		}
		return fmt.Sprintf("Maximized %s on a new desktop", name)
	case KindRestored:
		return fmt.Sprintf("Restored %s", name)
	case KindClosed:
		return fmt.Sprintf("%s closed; temporary desktop removed", name)
	case KindPinned:
		return fmt.Sprintf("Pinned %s to all desktops", name)
	case KindUnpinned:
		return fmt.Sprintf("Unpinned %s", name)
	case KindElevated:
		return fmt.Sprintf("%s runs elevated; maximize it manually", name)
	case KindRecovered:
		return fmt.Sprintf("Removed %d orphaned desktop(s)", e.Count)
	case KindFailed:
		return fmt.Sprintf("Could not move %s: %v", name, e.Err)
	default:
		return string(e.Kind)
	}
}

// Notifier receives transition events. Implementations must not block the
// caller for long; they run on the control loop.
type Notifier interface {
	Notify(e Event)
}

// Multi fans an event out to every notifier.
type Multi []Notifier

func (m Multi) Notify(e Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(e)
		}
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Notify(Event) {}

// LogNotifier writes events to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(e Event) {
	logger := n.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	args := []any{"kind", e.Kind, "window", e.Window}
	if e.Label != "" {
		args = append(args, "label", e.Label)
	}
	if e.Reason != "" {
		args = append(args, "reason", e.Reason)
	}
	if e.Err != nil {
		args = append(args, "error", e.Err)
		logger.Warn(e.Message(), args...)
		return
	}
	logger.Info(e.Message(), args...)
}

// ActivityNotifier appends events to the activity log.
type ActivityNotifier struct {
	Log *activity.Logger
}

func (n ActivityNotifier) Notify(e Event) {
	details := map[string]interface{}{}
	if e.Label != "" {
		details["label"] = e.Label
	}
	if e.Reason != "" {
		details["reason"] = e.Reason
	}
	if e.Count > 0 {
		details["count"] = e.Count
	}
	if e.Err != nil {
		details["error"] = e.Err.Error()
	}
	n.Log.Log(actionFor(e.Kind), uint32(e.Window), details)
}

func actionFor(k Kind) activity.Action {
	switch k {
	case KindMigrated:
		return activity.ActionMigrate
	case KindRestored:
		return activity.ActionRestore
	case KindClosed:
		return activity.ActionDestroyed
	case KindPinned:
		return activity.ActionPin
	case KindUnpinned:
		return activity.ActionUnpin
	case KindElevated:
		return activity.ActionElevated
	case KindRecovered:
		return activity.ActionRecover
	default:
		return activity.ActionFailed
	}
}

// CommandNotifier shows desktop notifications through an external program
// such as notify-send. The program gets the summary and body as arguments.
type CommandNotifier struct {
	Command string
	Logger  *slog.Logger

	start func(name string, args ...string) error
}

// NewCommandNotifier returns a notifier running command. An empty command
// falls back to notify-send.
func NewCommandNotifier(command string, logger *slog.Logger) *CommandNotifier {
	command = strings.TrimSpace(command)
	if command == "" {
		command = "notify-send"
	}
	return &CommandNotifier{Command: command, Logger: logger, start: startDetached}
}

func (n *CommandNotifier) Notify(e Event) {
	parts := strings.Fields(n.Command)
	if len(parts) == 0 {
		return
	}
	args := append(parts[1:], "maxdesk", e.Message())
	if err := n.start(parts[0], args...); err != nil && n.Logger != nil {
		n.Logger.Debug("notification command failed", "command", parts[0], "error", err)
	}
}

func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
