//go:build linux

package platform

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/1broseidon/maxdesk/internal/x11"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// DefaultApplyTimeout bounds how long the backend waits for the window
// manager to apply an asynchronous desktop request.
const DefaultApplyTimeout = 750 * time.Millisecond

// LinuxBackend implements DesktopService and WindowService over EWMH.
//
// EWMH addresses desktops by index, so the backend keeps an index -> identity
// table, mirrors it into a root window property, and compacts it when a
// desktop is removed.
type LinuxBackend struct {
	conn    *x11.Connection
	timeout time.Duration

	mu   sync.Mutex
	ids  []DesktopID
	live atomic.Int64
}

var (
	_ DesktopService = (*LinuxBackend)(nil)
	_ WindowService  = (*LinuxBackend)(nil)
)

// NewLinuxBackend creates a backend over an existing X11 connection. It fails
// when no EWMH window manager is running.
func NewLinuxBackend(conn *x11.Connection) (*LinuxBackend, error) {
	if conn == nil {
		return nil, Fail("init", KindUnavailable, errors.New("x11 connection is nil"))
	}
	if _, err := conn.SupportingWMCheck(); err != nil {
		return nil, Fail("init", KindUnavailable, err)
	}
	b := &LinuxBackend{conn: conn, timeout: DefaultApplyTimeout}
	if err := b.guard("init", func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		_, err := b.syncLocked()
		return err
	}); err != nil {
		return nil, err
	}
	return b, nil
}

// NewLinuxWindows returns a window service over conn. Unlike NewLinuxBackend
// it works without a window manager, so window queries keep working while
// the desktop service is unavailable.
func NewLinuxWindows(conn *x11.Connection) (WindowService, error) {
	if conn == nil {
		return nil, Fail("init", KindUnavailable, errors.New("x11 connection is nil"))
	}
	return &LinuxBackend{conn: conn, timeout: DefaultApplyTimeout}, nil
}

// LiveHandles returns the number of handles not yet released.
func (b *LinuxBackend) LiveHandles() int64 {
	return b.live.Load()
}

type linuxDesktop struct {
	backend  *LinuxBackend
	id       DesktopID
	released atomic.Bool
}

func (d *linuxDesktop) ID() DesktopID { return d.id }

func (d *linuxDesktop) Release() {
	if d.released.CompareAndSwap(false, true) {
		d.backend.live.Add(-1)
	}
}

func (b *LinuxBackend) newHandle(id DesktopID) *linuxDesktop {
	b.live.Add(1)
	return &linuxDesktop{backend: b, id: id}
}

// guard converts panics raised inside xgb/xgbutil into adapter errors and
// wraps plain errors as platform failures.
func (b *LinuxBackend) guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Fail(op, KindPlatform, fmt.Errorf("panic: %v", r))
		}
	}()
	err = fn()
	if err != nil {
		var perr *Error
		if !errors.As(err, &perr) {
			err = Fail(op, KindPlatform, err)
		}
	}
	return err
}

// syncLocked reconciles the identity table with _NET_NUMBER_OF_DESKTOPS and
// the identities stored on the root window. Desktops added by someone else get
// fresh identities; desktops removed by someone else are assumed to be the
// trailing ones, which is what EWMH window managers drop when the count
// shrinks.
func (b *LinuxBackend) syncLocked() (int, error) {
	n, err := b.conn.GetDesktopCount()
	if err != nil {
		return 0, err
	}
	stored := b.conn.GetDesktopIdentities()
	ids := make([]DesktopID, n)
	dirty := len(stored) != n
	for i := range ids {
		if i < len(stored) {
			if id, err := uuid.Parse(stored[i]); err == nil {
				ids[i] = id
				continue
			}
		}
		dirty = true
		ids[i] = uuid.New()
	}
	b.ids = ids
	if dirty {
		if err := b.storeLocked(); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (b *LinuxBackend) storeLocked() error {
	out := make([]string, len(b.ids))
	for i, id := range b.ids {
		out[i] = id.String()
	}
	return b.conn.SetDesktopIdentities(out)
}

func (b *LinuxBackend) indexLocked(id DesktopID) (int, bool) {
	for i, known := range b.ids {
		if known == id {
			return i, true
		}
	}
	return -1, false
}

// resolveLocked maps a handle back to its current desktop index.
func (b *LinuxBackend) resolveLocked(op string, h DesktopHandle) (int, error) {
	d, ok := h.(*linuxDesktop)
	if !ok || d == nil || d.backend != b || d.released.Load() {
		return -1, Fail(op, KindInvalidHandle, errors.New("stale or foreign desktop handle"))
	}
	if _, err := b.syncLocked(); err != nil {
		return -1, err
	}
	idx, ok := b.indexLocked(d.id)
	if !ok {
		return -1, Fail(op, KindNotFound, fmt.Errorf("desktop %s", d.id))
	}
	return idx, nil
}

func (b *LinuxBackend) checkWindow(op string, w WindowID) error {
	if !b.conn.Exists(xproto.Window(w)) {
		return Fail(op, KindInvalidHandle, fmt.Errorf("window %d", w))
	}
	return nil
}

// CurrentDesktopOf returns the identity of the desktop hosting w. Sticky
// windows report the active desktop.
func (b *LinuxBackend) CurrentDesktopOf(w WindowID) (DesktopID, error) {
	var id DesktopID
	err := b.guard("current-desktop", func() error {
		if err := b.checkWindow("current-desktop", w); err != nil {
			return err
		}
		idx, err := b.conn.GetWindowDesktop(uint32(w))
		if err != nil {
			return err
		}
		if idx < 0 {
			if idx, err = b.conn.GetCurrentDesktop(); err != nil {
				return err
			}
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		if _, err := b.syncLocked(); err != nil {
			return err
		}
		if idx >= len(b.ids) {
			return Fail("current-desktop", KindNotFound, fmt.Errorf("desktop index %d", idx))
		}
		id = b.ids[idx]
		return nil
	})
	return id, err
}

// CreateDesktop appends a new desktop.
func (b *LinuxBackend) CreateDesktop() (DesktopHandle, error) {
	var h DesktopHandle
	err := b.guard("create-desktop", func() error {
		b.mu.Lock()
		defer b.mu.Unlock()

		n, err := b.syncLocked()
		if err != nil {
			return err
		}
		if err := b.conn.RequestDesktopCount(n+1, b.timeout); err != nil {
			return err
		}
		if _, err := b.syncLocked(); err != nil {
			return err
		}
		// Force a fresh identity for the new slot even if a stale one lingered.
		b.ids[n] = uuid.New()
		if err := b.storeLocked(); err != nil {
			return err
		}
		h = b.newHandle(b.ids[n])
		return nil
	})
	return h, err
}

// FindDesktop returns a handle for a live desktop identity.
func (b *LinuxBackend) FindDesktop(id DesktopID) (DesktopHandle, error) {
	var h DesktopHandle
	err := b.guard("find-desktop", func() error {
		b.mu.Lock()
		defer b.mu.Unlock()

		if _, err := b.syncLocked(); err != nil {
			return err
		}
		if _, ok := b.indexLocked(id); !ok {
			return Fail("find-desktop", KindNotFound, fmt.Errorf("desktop %s", id))
		}
		h = b.newHandle(id)
		return nil
	})
	return h, err
}

// MoveWindow relocates w onto target and waits until the move is visible.
// Every client goes through _NET_WM_DESKTOP, so there is no separate
// same-process path.
func (b *LinuxBackend) MoveWindow(w WindowID, target DesktopHandle) error {
	return b.guard("move-window", func() error {
		if err := b.checkWindow("move-window", w); err != nil {
			return err
		}
		if !b.conn.IsManaged(uint32(w)) {
			return Fail("move-window", KindNoView, fmt.Errorf("window %d is not a managed client", w))
		}

		b.mu.Lock()
		idx, err := b.resolveLocked("move-window", target)
		b.mu.Unlock()
		if err != nil {
			return err
		}

		if err := b.conn.SetWindowDesktop(uint32(w), uint32(idx)); err != nil {
			return err
		}
		return b.waitWindowDesktop(w, idx)
	})
}

func (b *LinuxBackend) waitWindowDesktop(w WindowID, idx int) error {
	deadline := time.Now().Add(b.timeout)
	for {
		got, err := b.conn.GetWindowDesktop(uint32(w))
		if err == nil && got == idx {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("window %d did not reach desktop %d", w, idx)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// SwitchTo activates target.
func (b *LinuxBackend) SwitchTo(target DesktopHandle) error {
	return b.guard("switch-desktop", func() error {
		b.mu.Lock()
		idx, err := b.resolveLocked("switch-desktop", target)
		b.mu.Unlock()
		if err != nil {
			return err
		}
		return b.conn.SetCurrentDesktop(idx, b.timeout)
	})
}

// RemoveDesktop destroys target. EWMH can only drop the trailing desktop, so
// windows on target move to the adjacent desktop, windows on later desktops
// shift down by one, names shift with them, and the count shrinks last.
func (b *LinuxBackend) RemoveDesktop(target DesktopHandle) error {
	return b.guard("remove-desktop", func() error {
		b.mu.Lock()
		defer b.mu.Unlock()

		idx, err := b.resolveLocked("remove-desktop", target)
		if err != nil {
			return err
		}
		n := len(b.ids)
		if n <= 1 {
			return Fail("remove-desktop", KindPlatform, errors.New("cannot remove the only desktop"))
		}

		fallback := idx - 1
		if fallback < 0 {
			fallback = idx + 1
		}
		compact := func(d int) int {
			if d == idx {
				d = fallback
			}
			if d > idx {
				d--
			}
			return d
		}

		current, err := b.conn.GetCurrentDesktop()
		if err != nil {
			return err
		}

		clients, err := b.conn.ClientList()
		if err != nil {
			return err
		}
		for _, win := range clients {
			d, err := b.conn.GetWindowDesktop(uint32(win))
			if err != nil || d < idx {
				continue
			}
			if err := b.conn.SetWindowDesktop(uint32(win), uint32(compact(d))); err != nil {
				return err
			}
		}

		if names := b.conn.GetDesktopNames(); idx < len(names) {
			names = append(names[:idx:idx], names[idx+1:]...)
			if err := b.conn.SetDesktopNames(names); err != nil {
				return err
			}
		}

		if next := compact(current); next != current {
			if err := b.conn.SetCurrentDesktop(next, b.timeout); err != nil {
				return err
			}
		}
		if err := b.conn.RequestDesktopCount(n-1, b.timeout); err != nil {
			return err
		}
		b.ids = append(b.ids[:idx:idx], b.ids[idx+1:]...)
		return b.storeLocked()
	})
}

// Rename sets the desktop's entry in _NET_DESKTOP_NAMES.
func (b *LinuxBackend) Rename(target DesktopHandle, name string) error {
	return b.guard("rename-desktop", func() error {
		b.mu.Lock()
		defer b.mu.Unlock()

		idx, err := b.resolveLocked("rename-desktop", target)
		if err != nil {
			return err
		}
		names := b.conn.GetDesktopNames()
		for len(names) < len(b.ids) {
			names = append(names, fmt.Sprintf("Desktop %d", len(names)+1))
		}
		names[idx] = name
		return b.conn.SetDesktopNames(names)
	})
}

// IsPinned reports whether w is shown on all desktops.
func (b *LinuxBackend) IsPinned(w WindowID) (bool, error) {
	var pinned bool
	err := b.guard("is-pinned", func() error {
		if err := b.checkWindow("is-pinned", w); err != nil {
			return err
		}
		d, err := b.conn.GetWindowDesktop(uint32(w))
		if err != nil {
			return err
		}
		pinned = d < 0
		return nil
	})
	return pinned, err
}

// Pin shows w on all desktops.
func (b *LinuxBackend) Pin(w WindowID) error {
	return b.guard("pin", func() error {
		if err := b.checkWindow("pin", w); err != nil {
			return err
		}
		return b.conn.SetWindowDesktop(uint32(w), x11.AllDesktops)
	})
}

// Unpin keeps w on the active desktop only.
func (b *LinuxBackend) Unpin(w WindowID) error {
	return b.guard("unpin", func() error {
		if err := b.checkWindow("unpin", w); err != nil {
			return err
		}
		current, err := b.conn.GetCurrentDesktop()
		if err != nil {
			return err
		}
		return b.conn.SetWindowDesktop(uint32(w), uint32(current))
	})
}

// IsWindow reports whether w still exists.
func (b *LinuxBackend) IsWindow(w WindowID) bool {
	ok := false
	b.guard("is-window", func() error {
		ok = b.conn.Exists(xproto.Window(w))
		return nil
	})
	return ok
}

// Placement captures w's geometry and show state.
func (b *LinuxBackend) Placement(w WindowID) (Placement, error) {
	var p Placement
	err := b.guard("placement", func() error {
		if err := b.checkWindow("placement", w); err != nil {
			return err
		}
		x, y, width, height, err := b.conn.Geometry(xproto.Window(w))
		if err != nil {
			return err
		}
		p = Placement{
			Normal: Rect{X: x, Y: y, Width: width, Height: height},
			State:  b.showState(w),
		}
		return nil
	})
	return p, err
}

// SetPlacement reapplies a snapshot: geometry first, then show state.
func (b *LinuxBackend) SetPlacement(w WindowID, p Placement) error {
	return b.guard("set-placement", func() error {
		if err := b.checkWindow("set-placement", w); err != nil {
			return err
		}
		win := xproto.Window(w)
		if b.conn.IsHidden(win) && p.State != ShowMinimized {
			if err := b.conn.Unminimize(win); err != nil {
				return err
			}
		}
		r := p.Normal
		if err := b.conn.MoveResizeWindow(win, r.X, r.Y, r.Width, r.Height); err != nil {
			return err
		}
		switch p.State {
		case ShowMaximized:
			return b.conn.SetMaximized(win, true)
		case ShowMinimized:
			return b.conn.Minimize(win)
		}
		return nil
	})
}

// ShowState returns w's current show state.
func (b *LinuxBackend) ShowState(w WindowID) (ShowState, error) {
	var s ShowState
	err := b.guard("show-state", func() error {
		if err := b.checkWindow("show-state", w); err != nil {
			return err
		}
		s = b.showState(w)
		return nil
	})
	return s, err
}

func (b *LinuxBackend) showState(w WindowID) ShowState {
	win := xproto.Window(w)
	if b.conn.IsHidden(win) {
		return ShowMinimized
	}
	if maximized, _ := b.conn.IsMaximized(win); maximized {
		return ShowMaximized
	}
	return ShowNormal
}

// Maximize maximizes w in both directions.
func (b *LinuxBackend) Maximize(w WindowID) error {
	return b.guard("maximize", func() error {
		if err := b.checkWindow("maximize", w); err != nil {
			return err
		}
		win := xproto.Window(w)
		if b.conn.IsHidden(win) {
			if err := b.conn.Unminimize(win); err != nil {
				return err
			}
		}
		return b.conn.SetMaximized(win, true)
	})
}

// IsElevated reports whether w belongs to a root-owned process while this
// process is not root. Synthetic requests to such clients are commonly
// refused by hardened window managers.
func (b *LinuxBackend) IsElevated(w WindowID) bool {
	if os.Geteuid() == 0 {
		return false
	}
	pid := 0
	b.guard("is-elevated", func() error {
		pid = b.conn.WindowPID(xproto.Window(w))
		return nil
	})
	if pid <= 0 {
		return false
	}
	var st unix.Stat_t
	if err := unix.Stat(fmt.Sprintf("/proc/%d", pid), &st); err != nil {
		return false
	}
	return st.Uid == 0
}

// ProcessWindows returns the visible, titled, unowned normal clients that
// share w's process.
func (b *LinuxBackend) ProcessWindows(w WindowID) ([]WindowID, error) {
	var out []WindowID
	err := b.guard("process-windows", func() error {
		if err := b.checkWindow("process-windows", w); err != nil {
			return err
		}
		pid := b.conn.WindowPID(xproto.Window(w))
		if pid == 0 {
			return nil
		}
		clients, err := b.conn.ClientList()
		if err != nil {
			return err
		}
		for _, win := range clients {
			if WindowID(win) == w || b.conn.WindowPID(win) != pid {
				continue
			}
			if !b.conn.IsNormalWindow(win) || b.conn.IsTransient(win) || b.conn.IsHidden(win) {
				continue
			}
			if b.conn.WindowTitle(win) == "" {
				continue
			}
			if d, err := b.conn.GetWindowDesktop(uint32(win)); err != nil || d < 0 {
				continue
			}
			out = append(out, WindowID(win))
		}
		return nil
	})
	return out, err
}

// Label returns a short human-readable name for w.
func (b *LinuxBackend) Label(w WindowID) string {
	var label string
	b.guard("label", func() error {
		win := xproto.Window(w)
		class := b.conn.WindowClass(win)
		title := b.conn.WindowTitle(win)
		switch {
		case class != "" && title != "" && !strings.Contains(title, class):
			label = class + ": " + title
		case title != "":
			label = title
		default:
			label = class
		}
		return nil
	})
	return label
}

// ActiveWindow returns the focused client.
func (b *LinuxBackend) ActiveWindow() (WindowID, error) {
	var w WindowID
	err := b.guard("active-window", func() error {
		win, err := b.conn.GetActiveWindow()
		if err != nil {
			return err
		}
		if win == 0 {
			return Fail("active-window", KindInvalidHandle, errors.New("no active window"))
		}
		w = WindowID(win)
		return nil
	})
	return w, err
}

// LinuxEvents adapts an x11.Watcher to EventSource.
type LinuxEvents struct {
	Watcher *x11.Watcher
}

var _ EventSource = LinuxEvents{}

func (e LinuxEvents) Watch(w WindowID) error { return e.Watcher.Watch(uint32(w)) }

func (e LinuxEvents) Unwatch(w WindowID) { e.Watcher.Unwatch(uint32(w)) }
