package orchestrator

import (
	"github.com/1broseidon/maxdesk/internal/notify"
	"github.com/1broseidon/maxdesk/internal/platform"
)

// Recover removes temporary desktops left behind by a previous run and
// deletes the shadow. Window placements are not restored. It returns the
// number of desktops removed.
func (o *Orchestrator) Recover() (int, error) {
	if o.shadow == nil {
		return 0, nil
	}
	entries, skipped, err := o.shadow.Read()
	if err != nil {
		return 0, err
	}
	if skipped > 0 {
		o.logger.Warn("skipped malformed shadow entries", "count", skipped)
	}
	if len(entries) == 0 {
		return 0, o.shadow.Delete()
	}

	desktops, err := o.service()
	if err != nil {
		// Keep the shadow; ShellRestarted retries once a service is back.
		o.recoverPending = true
		return 0, err
	}
	o.recoverPending = false

	removed := 0
	for _, e := range entries {
		h, err := desktops.FindDesktop(e.Desktop)
		if err != nil {
			o.logger.Debug("orphaned desktop already gone", "desktop", e.Desktop, "label", e.Label)
			continue
		}
		if err := desktops.RemoveDesktop(h); err != nil {
			o.logger.Warn("failed to remove orphaned desktop", "desktop", e.Desktop, "error", err)
		} else {
			removed++
			o.metrics.OrphanRemoved()
			o.logger.Info("removed orphaned desktop", "desktop", e.Desktop, "label", e.Label, "created", e.Timestamp)
		}
		h.Release()
	}

	if removed > 0 {
		o.notifier.Notify(notify.Event{Kind: notify.KindRecovered, Count: removed})
	}
	return removed, o.shadow.Delete()
}

// ShellRestarted abandons every tracked record, since the shell restart
// invalidated their handles, and rebuilds the desktop service. It reports
// whether the service is available afterwards.
func (o *Orchestrator) ShellRestarted() bool {
	dropped := o.store.Clear()
	for _, r := range dropped {
		o.unwatch(r.Window)
	}
	o.metrics.SetTracked(0)
	o.logger.Warn("desktop shell restarted, tracking reset", "abandoned", len(dropped))

	if o.connect == nil {
		return !o.Degraded()
	}
	desktops, err := o.connect()

	o.mu.Lock()
	wasDegraded := o.desktops == nil
	if err != nil {
		o.desktops = nil
	} else {
		o.desktops = desktops
	}
	o.mu.Unlock()

	if err != nil {
		o.logger.Error("desktop service reinit failed, running degraded", "error", err)
		return false
	}
	if wasDegraded {
		o.logger.Info("desktop service available again")
	}
	if o.recoverPending {
		if n, err := o.Recover(); err != nil {
			o.logger.Warn("deferred crash recovery failed", "error", err)
		} else {
			o.logger.Info("deferred crash recovery done", "removed", n)
		}
	}
	return true
}

// SetDesktops replaces the desktop service. nil puts the orchestrator in
// degraded mode.
func (o *Orchestrator) SetDesktops(d platform.DesktopService) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.desktops = d
}
