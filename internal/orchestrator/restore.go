package orchestrator

import (
	"github.com/1broseidon/maxdesk/internal/notify"
	"github.com/1broseidon/maxdesk/internal/platform"
	"github.com/1broseidon/maxdesk/internal/tracker"
)

func (o *Orchestrator) restore(w platform.WindowID, reason Reason) error {
	_, err := o.restoreDesktop(w, reason)
	return err
}

// restoreDesktop untracks every record on w's temporary desktop before
// touching any window, then degrades instead of aborting on each failed
// step. It returns the number of records it untracked.
func (o *Orchestrator) restoreDesktop(w platform.WindowID, reason Reason) (int, error) {
	rec, ok := o.store.Get(w)
	if !ok {
		return 0, nil
	}
	records := o.store.UntrackDesktop(rec.TempDesktop)
	if len(records) == 0 {
		return 0, nil
	}
	for _, r := range records {
		o.unwatch(r.Window)
	}
	// The primary goes first so the desktop switch follows its origin.
	records = primaryFirst(records, w)

	desktops, err := o.service()
	if err != nil {
		o.logger.Warn("restore without desktop service", "window", w, "error", err)
		for _, r := range records {
			o.reapply(r)
			r.Desktop.Release()
		}
		o.metrics.SetTracked(o.store.Count())
		return len(records), nil
	}

	for _, r := range records {
		if !o.reapply(r) {
			continue
		}
		back, err := desktops.FindDesktop(r.OriginalDesktop)
		if err != nil {
			o.logger.Info("original desktop gone, leaving window in place", "window", r.Window, "error", err)
			continue
		}
		if err := desktops.MoveWindow(r.Window, back); err != nil {
			o.logger.Warn("failed to move window back", "window", r.Window, "error", err)
		}
		back.Release()
	}

	o.teardown(desktops, records[0])
	for _, r := range records {
		r.Desktop.Release()
	}

	o.metrics.Restore(string(reason))
	o.metrics.SetTracked(o.store.Count())
	o.logger.Info("window restored", "window", w, "reason", reason, "batch", len(records))
	o.notifier.Notify(notify.Event{Kind: notify.KindRestored, Window: w, Label: rec.Label, Reason: string(reason), Count: len(records)})
	return len(records), nil
}

// reapply restores r's placement snapshot. It reports whether the window
// still exists.
func (o *Orchestrator) reapply(r tracker.Record) bool {
	if !o.windows.IsWindow(r.Window) {
		return false
	}
	if err := o.windows.SetPlacement(r.Window, r.Placement); err != nil {
		o.logger.Warn("failed to restore placement", "window", r.Window, "error", err)
	}
	return true
}

// HandleDestroyed drops w's record. The temporary desktop is torn down only
// when no other record still lives on it.
func (o *Orchestrator) HandleDestroyed(w platform.WindowID) error {
	if !o.begin(w) {
		return ErrBusy
	}
	defer o.end(w)

	rec, ok := o.store.Untrack(w)
	if !ok {
		return nil
	}
	o.unwatch(w)
	defer rec.Desktop.Release()
	defer func() { o.metrics.SetTracked(o.store.Count()) }()

	if n := o.store.Sharing(rec.TempDesktop); n > 0 {
		o.logger.Info("tracked window destroyed, desktop still shared", "window", w, "remaining", n)
		return nil
	}

	desktops, err := o.service()
	if err != nil {
		o.logger.Warn("cannot remove temporary desktop", "window", w, "error", err)
		return nil
	}
	o.teardown(desktops, rec)
	o.logger.Info("tracked window destroyed", "window", w, "desktop", rec.TempDesktop)
	o.notifier.Notify(notify.Event{Kind: notify.KindClosed, Window: w, Label: rec.Label, Desktop: rec.TempDesktop})
	return nil
}

// teardown switches back to rec's original desktop when it still exists and
// removes the temporary desktop. It does not release references.
func (o *Orchestrator) teardown(desktops platform.DesktopService, rec tracker.Record) {
	if back, err := desktops.FindDesktop(rec.OriginalDesktop); err == nil {
		if err := desktops.SwitchTo(back); err != nil {
			o.logger.Warn("failed to switch back", "desktop", rec.OriginalDesktop, "error", err)
		}
		back.Release()
	}

	if err := desktops.RemoveDesktop(rec.Desktop.Handle()); err != nil {
		if platform.IsGone(err) {
			o.logger.Info("temporary desktop already removed", "desktop", rec.TempDesktop)
			return
		}
		o.logger.Warn("failed to remove temporary desktop", "desktop", rec.TempDesktop, "error", err)
	}
}

func primaryFirst(records []tracker.Record, w platform.WindowID) []tracker.Record {
	for i, r := range records {
		if r.Window == w && i > 0 {
			records[0], records[i] = records[i], records[0]
			break
		}
	}
	return records
}
