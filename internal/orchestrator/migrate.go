package orchestrator

import (
	"fmt"

	"github.com/1broseidon/maxdesk/internal/notify"
	"github.com/1broseidon/maxdesk/internal/platform"
	"github.com/1broseidon/maxdesk/internal/tracker"
)

// member is one window of a migrate batch.
type member struct {
	window    platform.WindowID
	original  platform.DesktopID
	placement platform.Placement
	label     string
}

// migrate runs the create/rename/move/switch/maximize/track sequence. Once
// the desktop exists the only failure exit is a full rollback.
func (o *Orchestrator) migrate(w platform.WindowID) error {
	start := o.now()
	desktops, err := o.service()
	if err != nil {
		return err
	}

	primary, err := o.snapshot(desktops, w)
	if err != nil {
		o.metrics.Migration("aborted", o.now().Sub(start))
		return fmt.Errorf("migrate window %d: %w", w, err)
	}
	batch := append([]member{primary}, o.companionsOf(desktops, primary)...)

	handle, err := desktops.CreateDesktop()
	if err != nil {
		o.metrics.Migration("aborted", o.now().Sub(start))
		o.notifier.Notify(notify.Event{Kind: notify.KindFailed, Window: w, Label: primary.label, Err: err})
		return fmt.Errorf("migrate window %d: create desktop: %w", w, err)
	}
	shared := tracker.Share(handle)

	if err := desktops.Rename(handle, o.namePrefix+primary.label); err != nil {
		o.logger.Debug("failed to rename temporary desktop", "desktop", handle.ID(), "error", err)
	}

	moved := make([]member, 0, len(batch))
	for _, m := range batch {
		if err := desktops.MoveWindow(m.window, handle); err != nil {
			o.rollback(desktops, shared, moved, "move")
			o.metrics.Migration("rolled_back", o.now().Sub(start))
			o.notifier.Notify(notify.Event{Kind: notify.KindFailed, Window: w, Label: primary.label, Err: err})
			return fmt.Errorf("migrate window %d: move window %d: %w", w, m.window, err)
		}
		moved = append(moved, m)
	}

	if err := desktops.SwitchTo(handle); err != nil {
		o.rollback(desktops, shared, moved, "switch")
		o.metrics.Migration("rolled_back", o.now().Sub(start))
		o.notifier.Notify(notify.Event{Kind: notify.KindFailed, Window: w, Label: primary.label, Err: err})
		return fmt.Errorf("migrate window %d: switch desktop: %w", w, err)
	}

	if o.settle > 0 {
		o.sleep(o.settle)
	}

	elevated := o.windows.IsElevated(w)
	if elevated {
		o.logger.Info("window is elevated, skipping maximize", "window", w)
	} else if err := o.windows.Maximize(w); err != nil {
		o.logger.Warn("failed to maximize window", "window", w, "error", err)
	}

	for _, m := range moved {
		if err := o.store.Track(m.window, m.original, shared, m.label, m.placement); err != nil {
			o.logger.Warn("failed to track window", "window", m.window, "error", err)
			continue
		}
		o.watch(m.window)
	}
	shared.Release()
	o.armIfMaximized(w)

	o.metrics.Migration("ok", o.now().Sub(start))
	o.metrics.SetTracked(o.store.Count())
	o.logger.Info("window migrated", "window", w, "desktop", handle.ID(), "batch", len(moved))
	o.notifier.Notify(notify.Event{Kind: notify.KindMigrated, Window: w, Label: primary.label, Desktop: handle.ID(), Count: len(moved)})
	if elevated {
		o.notifier.Notify(notify.Event{Kind: notify.KindElevated, Window: w, Label: primary.label})
	}
	return nil
}

// armIfMaximized arms w when it is already maximized. Its state change may
// have landed before the watch started, or never happened at all when the
// window was maximized before the migration.
func (o *Orchestrator) armIfMaximized(w platform.WindowID) {
	state, err := o.windows.ShowState(w)
	if err != nil || state != platform.ShowMaximized {
		return
	}
	if o.store.Arm(w) {
		o.logger.Debug("tracked window already maximized", "window", w)
	}
}

func (o *Orchestrator) snapshot(desktops platform.DesktopService, w platform.WindowID) (member, error) {
	original, err := desktops.CurrentDesktopOf(w)
	if err != nil {
		return member{}, fmt.Errorf("read desktop: %w", err)
	}
	placement, err := o.windows.Placement(w)
	if err != nil {
		return member{}, fmt.Errorf("read placement: %w", err)
	}
	return member{window: w, original: original, placement: placement, label: o.windows.Label(w)}, nil
}

// companionsOf returns the windows that travel with primary under the
// configured policy. Windows that are tracked, busy, on another desktop or
// unreadable are skipped.
func (o *Orchestrator) companionsOf(desktops platform.DesktopService, primary member) []member {
	if o.companions != CompanionSameProcess {
		return nil
	}
	siblings, err := o.windows.ProcessWindows(primary.window)
	if err != nil {
		o.logger.Debug("failed to list sibling windows", "window", primary.window, "error", err)
		return nil
	}

	var out []member
	for _, s := range siblings {
		if s == primary.window || o.store.IsTracked(s) || o.InFlight(s) {
			continue
		}
		m, err := o.snapshot(desktops, s)
		if err != nil || m.original != primary.original {
			continue
		}
		out = append(out, m)
	}
	return out
}

// rollback returns moved windows to their original desktops, removes the
// new desktop and drops the creator's reference.
func (o *Orchestrator) rollback(desktops platform.DesktopService, shared *tracker.SharedDesktop, moved []member, step string) {
	o.metrics.Rollback(step)
	o.logger.Warn("rolling back migration", "step", step, "moved", len(moved))

	for i := len(moved) - 1; i >= 0; i-- {
		m := moved[i]
		back, err := desktops.FindDesktop(m.original)
		if err != nil {
			o.logger.Warn("rollback: original desktop missing", "window", m.window, "error", err)
			continue
		}
		if err := desktops.MoveWindow(m.window, back); err != nil {
			o.logger.Warn("rollback: failed to move window back", "window", m.window, "error", err)
		}
		back.Release()
	}

	if err := desktops.RemoveDesktop(shared.Handle()); err != nil {
		o.logger.Warn("rollback: failed to remove temporary desktop", "desktop", shared.ID(), "error", err)
	}
	shared.Release()
}
