package orchestrator

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/1broseidon/maxdesk/internal/notify"
	"github.com/1broseidon/maxdesk/internal/persist"
	"github.com/1broseidon/maxdesk/internal/platform"
	"github.com/1broseidon/maxdesk/internal/platform/platformtest"
	"github.com/1broseidon/maxdesk/internal/tracker"
	"github.com/google/uuid"
)

type recorder struct{ events []notify.Event }

func (r *recorder) Notify(e notify.Event) { r.events = append(r.events, e) }

func (r *recorder) kinds() []notify.Kind {
	out := make([]notify.Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type harness struct {
	fake   *platformtest.Fake
	orch   *Orchestrator
	store  *tracker.Store
	shadow *persist.Shadow
	notes  *recorder
	slept  time.Duration
}

func newHarness(t *testing.T, desktops int, configure ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		fake:   platformtest.New(desktops),
		shadow: persist.NewShadow(filepath.Join(t.TempDir(), "shadow.jsonl")),
		notes:  &recorder{},
	}
	h.store = tracker.NewStore(h.shadow, h.fake.IsWindow, nil)
	opts := Options{
		Windows:      h.fake,
		Desktops:     h.fake,
		Store:        h.store,
		Shadow:       h.shadow,
		Events:       h.fake,
		Notifier:     h.notes,
		SwitchSettle: DefaultSwitchSettle,
		NamePrefix:   "max: ",
		Sleep:        func(d time.Duration) { h.slept += d },
	}
	for _, fn := range configure {
		fn(&opts)
	}
	h.orch = New(opts)
	return h
}

func sameProcess(o *Options) { o.Companions = CompanionSameProcess }

var homeRect = platform.Rect{X: 0, Y: 0, Width: 800, Height: 600}

func (h *harness) addWindow(id platform.WindowID, pid int, desktop int) {
	h.fake.AddWindow(platformtest.Window{
		ID:        id,
		PID:       pid,
		Title:     "win",
		Placement: platform.Placement{Normal: homeRect, State: platform.ShowNormal},
	}, desktop)
}

func (h *harness) desktopOf(t *testing.T, w platform.WindowID) platform.DesktopID {
	t.Helper()
	win, ok := h.fake.Window(w)
	if !ok {
		t.Fatalf("window %d does not exist", w)
	}
	return win.Desktop
}

func TestToggle_RoundTrip(t *testing.T) {
	h := newHarness(t, 2)
	h.addWindow(1, 100, 0)
	d1 := h.fake.Desktop(0)

	if err := h.orch.Toggle(1); err != nil {
		t.Fatalf("Toggle() migrate error: %v", err)
	}

	if got := h.fake.DesktopCount(); got != 3 {
		t.Fatalf("desktop count = %d, want 3", got)
	}
	d2 := h.fake.Desktop(2)
	if h.desktopOf(t, 1) != d2 {
		t.Fatal("window not on temporary desktop")
	}
	if h.fake.Current() != d2 {
		t.Fatal("temporary desktop not active")
	}
	if win, _ := h.fake.Window(1); win.Placement.State != platform.ShowMaximized {
		t.Fatalf("window state = %v, want maximized", win.Placement.State)
	}
	if h.fake.Name(d2) != "max: win" {
		t.Fatalf("desktop name = %q", h.fake.Name(d2))
	}
	if h.slept != DefaultSwitchSettle {
		t.Fatalf("settle delay = %v, want %v", h.slept, DefaultSwitchSettle)
	}
	rec, ok := h.store.Get(1)
	if !ok || rec.OriginalDesktop != d1 || rec.TempDesktop != d2 {
		t.Fatalf("record = %+v, %v", rec, ok)
	}
	if !h.fake.Watched(1) {
		t.Fatal("window not watched after migrate")
	}
	entries, _, err := h.shadow.Read()
	if err != nil || len(entries) != 1 || entries[0].Desktop != d2 {
		t.Fatalf("shadow = %+v, %v", entries, err)
	}

	if err := h.orch.Toggle(1); err != nil {
		t.Fatalf("Toggle() restore error: %v", err)
	}

	win, _ := h.fake.Window(1)
	if win.Placement.Normal != homeRect || win.Placement.State != platform.ShowNormal {
		t.Fatalf("placement = %v, want %v normal", win.Placement, homeRect)
	}
	if win.Desktop != d1 || h.fake.Current() != d1 {
		t.Fatal("window or active desktop not back on original")
	}
	if h.fake.DesktopCount() != 2 {
		t.Fatalf("desktop count = %d, want 2", h.fake.DesktopCount())
	}
	if h.store.Count() != 0 {
		t.Fatalf("store count = %d, want 0", h.store.Count())
	}
	if h.fake.LiveHandles() != 0 || h.fake.DoubleReleases() != 0 {
		t.Fatalf("handles live=%d double=%d", h.fake.LiveHandles(), h.fake.DoubleReleases())
	}
	if h.fake.Watched(1) {
		t.Fatal("window still watched after restore")
	}
	if _, err := os.Stat(h.shadow.Path()); !os.IsNotExist(err) {
		t.Fatalf("shadow file still present: %v", err)
	}
	kinds := h.notes.kinds()
	if len(kinds) != 2 || kinds[0] != notify.KindMigrated || kinds[1] != notify.KindRestored {
		t.Fatalf("notifications = %v", kinds)
	}
}

func TestToggle_NoopCases(t *testing.T) {
	h := newHarness(t, 1)
	h.addWindow(1, 100, 0)

	if err := h.orch.Toggle(99); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("Toggle(invalid) error = %v, want ErrInvalidWindow", err)
	}

	h.orch.begin(1)
	if err := h.orch.Toggle(1); !errors.Is(err, ErrBusy) {
		t.Fatalf("Toggle(in-flight) error = %v, want ErrBusy", err)
	}
	h.orch.end(1)

	if err := h.orch.Restore(1, ReasonToggle); err != nil {
		t.Fatalf("Restore(untracked) error: %v", err)
	}
	if err := h.orch.HandleDestroyed(1); err != nil {
		t.Fatalf("HandleDestroyed(untracked) error: %v", err)
	}
	if h.fake.Calls(platformtest.OpCreate) != 0 || h.fake.DesktopCount() != 1 {
		t.Fatal("no-op call touched desktops")
	}
	if len(h.notes.events) != 0 {
		t.Fatalf("no-op produced notifications: %v", h.notes.kinds())
	}
}

func TestMigrate_ReadFailureHasNoSideEffects(t *testing.T) {
	for _, op := range []platformtest.Op{platformtest.OpCurrentDesktopOf, platformtest.OpPlacement} {
		t.Run(string(op), func(t *testing.T) {
			h := newHarness(t, 1)
			h.addWindow(1, 100, 0)
			h.fake.FailNth(op, 1)

			if err := h.orch.Toggle(1); err == nil {
				t.Fatal("Toggle() succeeded despite read failure")
			}
			if h.fake.Calls(platformtest.OpCreate) != 0 {
				t.Fatal("desktop created after failed read")
			}
			if h.store.Count() != 0 {
				t.Fatal("window tracked after failed read")
			}
		})
	}
}

func TestMigrate_CreateFailure(t *testing.T) {
	h := newHarness(t, 1)
	h.addWindow(1, 100, 0)
	h.fake.FailNth(platformtest.OpCreate, 1)

	if err := h.orch.Toggle(1); err == nil {
		t.Fatal("Toggle() succeeded despite create failure")
	}
	if h.fake.DesktopCount() != 1 || h.store.Count() != 0 || h.fake.LiveHandles() != 0 {
		t.Fatal("create failure left side effects")
	}
	if kinds := h.notes.kinds(); len(kinds) != 1 || kinds[0] != notify.KindFailed {
		t.Fatalf("notifications = %v, want [failed]", kinds)
	}
}

func TestMigrate_RenameFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, 1)
	h.addWindow(1, 100, 0)
	h.fake.FailNth(platformtest.OpRename, 1)

	if err := h.orch.Toggle(1); err != nil {
		t.Fatalf("Toggle() error: %v", err)
	}
	if !h.store.IsTracked(1) {
		t.Fatal("window not tracked after rename failure")
	}
}

func TestMigrate_AtomicRollbackOnMove(t *testing.T) {
	for n := 1; n <= 3; n++ {
		t.Run(string(rune('0'+n)), func(t *testing.T) {
			h := newHarness(t, 2, sameProcess)
			for _, w := range []platform.WindowID{1, 2, 3} {
				h.addWindow(w, 100, 1)
			}
			before := h.fake.Desktops()
			current := h.fake.Current()
			h.fake.FailNth(platformtest.OpMove, n)

			if err := h.orch.Toggle(1); err == nil {
				t.Fatal("Toggle() succeeded despite move failure")
			}

			after := h.fake.Desktops()
			if len(after) != len(before) {
				t.Fatalf("desktop count = %d, want %d", len(after), len(before))
			}
			for i := range before {
				if after[i] != before[i] {
					t.Fatalf("desktop %d changed", i)
				}
			}
			for _, w := range []platform.WindowID{1, 2, 3} {
				if h.desktopOf(t, w) != before[1] {
					t.Fatalf("window %d not on its original desktop", w)
				}
			}
			if h.fake.Current() != current {
				t.Fatal("active desktop changed")
			}
			if h.store.Count() != 0 {
				t.Fatal("rolled back windows are tracked")
			}
			if h.fake.LiveHandles() != 0 || h.fake.DoubleReleases() != 0 {
				t.Fatalf("handles live=%d double=%d", h.fake.LiveHandles(), h.fake.DoubleReleases())
			}
			if len(h.fake.Removed()) != 1 {
				t.Fatalf("removed desktops = %d, want 1", len(h.fake.Removed()))
			}
		})
	}
}

func TestMigrate_RollbackOnSwitchFailure(t *testing.T) {
	h := newHarness(t, 2, sameProcess)
	h.addWindow(1, 100, 0)
	h.addWindow(2, 100, 0)
	d1 := h.fake.Desktop(0)
	h.fake.FailNth(platformtest.OpSwitch, 1)

	if err := h.orch.Toggle(1); err == nil {
		t.Fatal("Toggle() succeeded despite switch failure")
	}
	if h.fake.DesktopCount() != 2 {
		t.Fatalf("desktop count = %d, want 2", h.fake.DesktopCount())
	}
	if h.desktopOf(t, 1) != d1 || h.desktopOf(t, 2) != d1 {
		t.Fatal("windows not moved back")
	}
	if h.fake.Current() != d1 {
		t.Fatal("active desktop changed")
	}
	if h.store.Count() != 0 || h.fake.LiveHandles() != 0 {
		t.Fatal("switch rollback left state behind")
	}
	if win, _ := h.fake.Window(1); win.Placement.State != platform.ShowNormal {
		t.Fatal("window maximized despite rollback")
	}
}

func TestMigrate_NoViewWindowRollsBack(t *testing.T) {
	h := newHarness(t, 1)
	h.fake.AddWindow(platformtest.Window{ID: 1, Title: "shell", NoView: true}, 0)

	err := h.orch.Toggle(1)
	if !errors.Is(err, platform.ErrNoView) {
		t.Fatalf("Toggle() error = %v, want ErrNoView", err)
	}
	if h.fake.DesktopCount() != 1 {
		t.Fatal("temporary desktop left behind")
	}
}

func TestMigrate_CompanionsSkipOtherDesktopsAndTracked(t *testing.T) {
	h := newHarness(t, 2, sameProcess)
	h.addWindow(1, 100, 0)
	h.addWindow(2, 100, 0)
	h.addWindow(3, 100, 1)
	h.addWindow(4, 200, 0)

	if err := h.orch.Toggle(1); err != nil {
		t.Fatalf("Toggle() error: %v", err)
	}
	if !h.store.IsTracked(1) || !h.store.IsTracked(2) {
		t.Fatal("primary and same-desktop sibling should be tracked")
	}
	if h.store.IsTracked(3) || h.store.IsTracked(4) {
		t.Fatal("window on another desktop or from another process was moved")
	}
	rec1, _ := h.store.Get(1)
	rec2, _ := h.store.Get(2)
	if rec1.TempDesktop != rec2.TempDesktop || rec1.Desktop != rec2.Desktop {
		t.Fatal("grouped windows do not share a desktop handle")
	}
	if h.fake.LiveHandles() != 1 {
		t.Fatalf("live handles = %d, want 1", h.fake.LiveHandles())
	}
}

func TestSharedDesktopTeardown(t *testing.T) {
	orders := [][]platform.WindowID{{1, 2, 3}, {3, 2, 1}, {2, 1, 3}, {1, 3, 2}}
	for _, order := range orders {
		h := newHarness(t, 1, sameProcess)
		for _, w := range []platform.WindowID{1, 2, 3} {
			h.addWindow(w, 100, 0)
		}
		if err := h.orch.Toggle(1); err != nil {
			t.Fatalf("Toggle() error: %v", err)
		}
		if h.store.Count() != 3 || h.fake.DesktopCount() != 2 {
			t.Fatalf("after migrate: tracked=%d desktops=%d", h.store.Count(), h.fake.DesktopCount())
		}

		for i, w := range order {
			h.fake.CloseWindow(w)
			if err := h.orch.HandleDestroyed(w); err != nil {
				t.Fatalf("HandleDestroyed(%d) error: %v", w, err)
			}
			if i < len(order)-1 {
				if h.fake.DesktopCount() != 2 || h.fake.LiveHandles() != 1 {
					t.Fatalf("order %v: desktop torn down after %d of 3", order, i+1)
				}
			}
		}

		if h.fake.DesktopCount() != 1 || len(h.fake.Removed()) != 1 {
			t.Fatalf("order %v: desktops=%d removed=%d", order, h.fake.DesktopCount(), len(h.fake.Removed()))
		}
		if h.fake.LiveHandles() != 0 || h.fake.DoubleReleases() != 0 {
			t.Fatalf("order %v: live=%d double=%d", order, h.fake.LiveHandles(), h.fake.DoubleReleases())
		}
	}
}

func TestRestore_GroupReleasesOnce(t *testing.T) {
	h := newHarness(t, 1, sameProcess)
	h.addWindow(1, 100, 0)
	h.addWindow(2, 100, 0)
	d1 := h.fake.Desktop(0)

	if err := h.orch.Toggle(2); err != nil {
		t.Fatal(err)
	}
	if err := h.orch.Toggle(2); err != nil {
		t.Fatal(err)
	}
	if h.store.Count() != 0 || h.fake.DesktopCount() != 1 {
		t.Fatal("group restore incomplete")
	}
	if h.desktopOf(t, 1) != d1 || h.desktopOf(t, 2) != d1 {
		t.Fatal("grouped windows not returned")
	}
	if h.fake.LiveHandles() != 0 || h.fake.DoubleReleases() != 0 {
		t.Fatalf("live=%d double=%d", h.fake.LiveHandles(), h.fake.DoubleReleases())
	}
}

func TestRestore_OriginalDesktopRemoved(t *testing.T) {
	h := newHarness(t, 2)
	h.addWindow(1, 100, 1)
	d1 := h.fake.Desktop(1)

	if err := h.orch.Toggle(1); err != nil {
		t.Fatal(err)
	}
	h.fake.RemoveExternally(d1)

	if err := h.orch.Restore(1, ReasonToggle); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if h.store.Count() != 0 {
		t.Fatal("record survived restore")
	}
	if h.fake.DesktopCount() != 1 {
		t.Fatalf("desktop count = %d, want 1", h.fake.DesktopCount())
	}
	if !h.fake.IsWindow(1) {
		t.Fatal("window lost")
	}
	if win, _ := h.fake.Window(1); win.Placement.Normal != homeRect {
		t.Fatal("placement not restored")
	}
}

func TestRestore_WindowGoneStillCleansUp(t *testing.T) {
	h := newHarness(t, 1)
	h.addWindow(1, 100, 0)
	if err := h.orch.Toggle(1); err != nil {
		t.Fatal(err)
	}
	h.fake.CloseWindow(1)

	if err := h.orch.Restore(1, ReasonRestoreAll); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if h.fake.DesktopCount() != 1 || h.fake.LiveHandles() != 0 {
		t.Fatal("temporary desktop not cleaned up")
	}
	if h.fake.Calls(platformtest.OpSetPlacement) != 0 {
		t.Fatal("placement applied to a destroyed window")
	}
}

func TestRestore_PlatformFailuresDegrade(t *testing.T) {
	h := newHarness(t, 1)
	h.addWindow(1, 100, 0)
	if err := h.orch.Toggle(1); err != nil {
		t.Fatal(err)
	}
	h.fake.FailAlways(platformtest.OpSetPlacement)
	h.fake.FailAlways(platformtest.OpMove)

	if err := h.orch.Toggle(1); err != nil {
		t.Fatalf("restore returned error: %v", err)
	}
	if h.store.Count() != 0 || h.fake.DesktopCount() != 1 || h.fake.LiveHandles() != 0 {
		t.Fatal("restore did not finish teardown after failures")
	}
}

func TestRestoreAll_ContinuesPastFailures(t *testing.T) {
	h := newHarness(t, 1)
	h.addWindow(1, 100, 0)
	h.addWindow(2, 200, 0)
	h.addWindow(3, 300, 0)
	for _, w := range []platform.WindowID{1, 2, 3} {
		if err := h.orch.Toggle(w); err != nil {
			t.Fatalf("Toggle(%d) error: %v", w, err)
		}
	}
	if h.fake.DesktopCount() != 4 {
		t.Fatalf("desktop count = %d, want 4", h.fake.DesktopCount())
	}
	h.orch.begin(2)

	if n := h.orch.RestoreAll(ReasonRestoreAll); n != 2 {
		t.Fatalf("RestoreAll() = %d, want 2", n)
	}
	if !h.store.IsTracked(2) || h.store.Count() != 1 {
		t.Fatal("busy window should remain tracked, others restored")
	}
	h.orch.end(2)

	if n := h.orch.RestoreAll(ReasonShutdown); n != 1 {
		t.Fatalf("second RestoreAll() = %d, want 1", n)
	}
	if h.fake.DesktopCount() != 1 || h.fake.LiveHandles() != 0 {
		t.Fatalf("desktops=%d live=%d", h.fake.DesktopCount(), h.fake.LiveHandles())
	}
}

func TestRestoreAll_CountsUntrackedRecords(t *testing.T) {
	h := newHarness(t, 1, sameProcess)
	h.addWindow(1, 100, 0)
	h.addWindow(2, 100, 0)
	h.addWindow(3, 300, 0)
	if err := h.orch.Toggle(1); err != nil {
		t.Fatal(err)
	}
	if err := h.orch.Toggle(3); err != nil {
		t.Fatal(err)
	}
	if h.store.Count() != 3 {
		t.Fatalf("tracked = %d, want 3", h.store.Count())
	}

	// One group member is gone already, the single window vanishes unseen.
	h.fake.CloseWindow(2)
	if err := h.orch.HandleDestroyed(2); err != nil {
		t.Fatal(err)
	}
	h.fake.CloseWindow(3)

	if n := h.orch.RestoreAll(ReasonRestoreAll); n != 2 {
		t.Fatalf("RestoreAll() = %d, want 2", n)
	}
	if h.store.Count() != 0 || h.fake.DesktopCount() != 1 || h.fake.LiveHandles() != 0 {
		t.Fatalf("tracked=%d desktops=%d live=%d", h.store.Count(), h.fake.DesktopCount(), h.fake.LiveHandles())
	}
	if n := h.orch.RestoreAll(ReasonRestoreAll); n != 0 {
		t.Fatalf("RestoreAll() on empty store = %d, want 0", n)
	}
}

func TestMigrate_ArmsAlreadyMaximizedWindow(t *testing.T) {
	h := newHarness(t, 1)
	h.fake.SetAsyncMaximize(true)
	h.addWindow(1, 100, 0)
	h.addWindow(2, 200, 0)
	h.fake.SetShowState(2, platform.ShowMaximized)

	for _, w := range []platform.WindowID{1, 2} {
		if err := h.orch.Toggle(w); err != nil {
			t.Fatalf("Toggle(%d) error: %v", w, err)
		}
	}
	if rec, _ := h.store.Get(1); rec.Armed {
		t.Fatal("window with a pending maximize was armed")
	}
	if rec, _ := h.store.Get(2); !rec.Armed {
		t.Fatal("already maximized window was not armed")
	}
}

func TestCleanupStaleEntries(t *testing.T) {
	h := newHarness(t, 1)
	h.addWindow(1, 100, 0)
	h.addWindow(2, 200, 0)
	if err := h.orch.Toggle(1); err != nil {
		t.Fatal(err)
	}
	if err := h.orch.Toggle(2); err != nil {
		t.Fatal(err)
	}
	h.fake.CloseWindow(1)

	if n := h.orch.CleanupStaleEntries(); n != 1 {
		t.Fatalf("CleanupStaleEntries() = %d, want 1", n)
	}
	if h.store.IsTracked(1) || !h.store.IsTracked(2) {
		t.Fatal("wrong records swept")
	}
	if h.fake.DesktopCount() != 2 {
		t.Fatalf("desktop count = %d, want 2", h.fake.DesktopCount())
	}
	if n := h.orch.CleanupStaleEntries(); n != 0 {
		t.Fatalf("second sweep = %d, want 0", n)
	}
}

func TestMigrate_ElevatedSkipsMaximize(t *testing.T) {
	h := newHarness(t, 1)
	h.fake.AddWindow(platformtest.Window{ID: 1, Title: "root shell", Elevated: true}, 0)

	if err := h.orch.Toggle(1); err != nil {
		t.Fatalf("Toggle() error: %v", err)
	}
	if h.fake.Calls(platformtest.OpMaximize) != 0 {
		t.Fatal("elevated window was maximized")
	}
	if !h.store.IsTracked(1) || h.fake.DesktopCount() != 2 {
		t.Fatal("elevated window migration should still succeed")
	}
	kinds := h.notes.kinds()
	if len(kinds) != 2 || kinds[1] != notify.KindElevated {
		t.Fatalf("notifications = %v, want [migrated elevated]", kinds)
	}
}

func TestMigrate_MaximizeFailureKeepsMigration(t *testing.T) {
	h := newHarness(t, 1)
	h.addWindow(1, 100, 0)
	h.fake.FailNth(platformtest.OpMaximize, 1)

	if err := h.orch.Toggle(1); err != nil {
		t.Fatalf("Toggle() error: %v", err)
	}
	if !h.store.IsTracked(1) {
		t.Fatal("maximize failure rolled back the migration")
	}
}

func TestPinToggle(t *testing.T) {
	h := newHarness(t, 2)
	h.addWindow(1, 100, 0)

	if err := h.orch.PinToggle(1); err != nil {
		t.Fatalf("PinToggle() error: %v", err)
	}
	if win, _ := h.fake.Window(1); !win.Pinned {
		t.Fatal("window not pinned")
	}
	if err := h.orch.PinToggle(1); err != nil {
		t.Fatalf("PinToggle() error: %v", err)
	}
	if win, _ := h.fake.Window(1); win.Pinned {
		t.Fatal("window still pinned")
	}

	h.fake.FailNth(platformtest.OpPin, 1)
	if err := h.orch.PinToggle(1); err == nil {
		t.Fatal("PinToggle() succeeded despite failure")
	}
	if h.fake.Calls(platformtest.OpPin) != 2 {
		t.Fatal("failed pin was retried")
	}
	kinds := h.notes.kinds()
	want := []notify.Kind{notify.KindPinned, notify.KindUnpinned, notify.KindFailed}
	if len(kinds) != len(want) {
		t.Fatalf("notifications = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("notifications = %v, want %v", kinds, want)
		}
	}
}

func TestRecover(t *testing.T) {
	h := newHarness(t, 2)
	handle, err := h.fake.CreateDesktop()
	if err != nil {
		t.Fatal(err)
	}
	a := handle.ID()
	handle.Release()
	b := uuid.New()

	if err := h.shadow.Write([]persist.Entry{
		{Desktop: a, Label: "left over", Timestamp: time.Now()},
		{Desktop: b, Label: "already gone", Timestamp: time.Now()},
	}); err != nil {
		t.Fatal(err)
	}

	removed, err := h.orch.Recover()
	if err != nil {
		t.Fatalf("Recover() error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("Recover() removed %d, want 1", removed)
	}
	if h.fake.DesktopCount() != 2 {
		t.Fatalf("desktop count = %d, want 2", h.fake.DesktopCount())
	}
	if got := h.fake.Removed(); len(got) != 1 || got[0] != a {
		t.Fatalf("removed = %v, want [%s]", got, a)
	}
	if _, err := os.Stat(h.shadow.Path()); !os.IsNotExist(err) {
		t.Fatalf("shadow not deleted: %v", err)
	}
	if h.fake.LiveHandles() != 0 {
		t.Fatalf("live handles = %d", h.fake.LiveHandles())
	}
}

func TestRecover_DegradedKeepsShadow(t *testing.T) {
	h := newHarness(t, 1, func(o *Options) { o.Desktops = nil })
	if err := h.shadow.Write([]persist.Entry{{Desktop: uuid.New()}}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.orch.Recover(); !errors.Is(err, ErrDegraded) {
		t.Fatalf("Recover() error = %v, want ErrDegraded", err)
	}
	if _, err := os.Stat(h.shadow.Path()); err != nil {
		t.Fatalf("shadow removed while degraded: %v", err)
	}
}

func TestDegraded_TriggersAreNoops(t *testing.T) {
	h := newHarness(t, 1, func(o *Options) { o.Desktops = nil })
	h.addWindow(1, 100, 0)

	if !h.orch.Degraded() {
		t.Fatal("Degraded() = false")
	}
	if err := h.orch.Toggle(1); !errors.Is(err, ErrDegraded) {
		t.Fatalf("Toggle() error = %v, want ErrDegraded", err)
	}
	if err := h.orch.PinToggle(1); !errors.Is(err, ErrDegraded) {
		t.Fatalf("PinToggle() error = %v, want ErrDegraded", err)
	}
	if h.fake.Calls(platformtest.OpCreate) != 0 {
		t.Fatal("degraded orchestrator created a desktop")
	}
}

func TestShellRestarted(t *testing.T) {
	connects := 0
	var h *harness
	h = newHarness(t, 1, func(o *Options) {
		o.Connect = func() (platform.DesktopService, error) {
			connects++
			return h.fake, nil
		}
	})
	h.addWindow(1, 100, 0)
	if err := h.orch.Toggle(1); err != nil {
		t.Fatal(err)
	}

	if !h.orch.ShellRestarted() {
		t.Fatal("ShellRestarted() reported degraded")
	}
	if connects != 1 {
		t.Fatalf("connect called %d times, want 1", connects)
	}
	if h.store.Count() != 0 {
		t.Fatal("store not cleared")
	}
	if h.fake.LiveHandles() != 1 {
		t.Fatalf("live handles = %d, want 1 abandoned handle", h.fake.LiveHandles())
	}
	if h.fake.Watched(1) {
		t.Fatal("window still watched after reset")
	}
	if _, err := os.Stat(h.shadow.Path()); !os.IsNotExist(err) {
		t.Fatal("shadow not cleared with the store")
	}
}

func TestShellRestarted_RecoversFromDegraded(t *testing.T) {
	var h *harness
	fail := true
	h = newHarness(t, 1, func(o *Options) {
		o.Desktops = nil
		o.Connect = func() (platform.DesktopService, error) {
			if fail {
				return nil, platform.Fail("init", platform.KindUnavailable, errors.New("no wm"))
			}
			return h.fake, nil
		}
	})
	h.addWindow(1, 100, 0)

	if h.orch.ShellRestarted() {
		t.Fatal("ShellRestarted() succeeded with failing connect")
	}
	fail = false
	if !h.orch.ShellRestarted() {
		t.Fatal("ShellRestarted() did not recover")
	}
	if err := h.orch.Toggle(1); err != nil {
		t.Fatalf("Toggle() after recovery error: %v", err)
	}
}

func TestShellRestarted_RunsDeferredRecovery(t *testing.T) {
	var h *harness
	h = newHarness(t, 1, func(o *Options) {
		o.Desktops = nil
		o.Connect = func() (platform.DesktopService, error) { return h.fake, nil }
	})
	handle, err := h.fake.CreateDesktop()
	if err != nil {
		t.Fatal(err)
	}
	orphan := handle.ID()
	handle.Release()
	if err := h.shadow.Write([]persist.Entry{{Desktop: orphan, Label: "left over", Timestamp: time.Now()}}); err != nil {
		t.Fatal(err)
	}

	// Startup without a window manager.
	if _, err := h.orch.Recover(); !errors.Is(err, ErrDegraded) {
		t.Fatalf("Recover() error = %v, want ErrDegraded", err)
	}

	// The window manager shows up.
	if !h.orch.ShellRestarted() {
		t.Fatal("ShellRestarted() did not connect")
	}
	if got := h.fake.Removed(); len(got) != 1 || got[0] != orphan {
		t.Fatalf("removed = %v, want [%s]", got, orphan)
	}
	if _, err := os.Stat(h.shadow.Path()); !os.IsNotExist(err) {
		t.Fatalf("shadow not deleted after deferred recovery: %v", err)
	}

	// Later restarts do not recover again.
	if d, err := h.fake.CreateDesktop(); err == nil {
		d.Release()
	}
	if !h.orch.ShellRestarted() || len(h.fake.Removed()) != 1 {
		t.Fatalf("removed = %v after second restart", h.fake.Removed())
	}
}

func TestRetune_AppliesToNextMigration(t *testing.T) {
	h := newHarness(t, 1)
	h.addWindow(1, 100, 0)

	h.orch.Retune(Tuning{SwitchSettle: 40 * time.Millisecond, NamePrefix: "big: "})
	if err := h.orch.Toggle(1); err != nil {
		t.Fatalf("Toggle() error: %v", err)
	}
	if h.slept != 40*time.Millisecond {
		t.Fatalf("slept %v, want 40ms", h.slept)
	}
	if got := h.fake.Name(h.desktopOf(t, 1)); got != "big: win" {
		t.Fatalf("desktop name = %q", got)
	}
	if h.orch.companions != CompanionNone {
		t.Fatalf("companions = %q, want default", h.orch.companions)
	}
}
