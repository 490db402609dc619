package x11

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/BurntSushi/xgbutil/xwindow"
)

// WindowEvents receives notifications for watched windows. Callbacks run on
// the X event loop goroutine.
type WindowEvents struct {
	OnStateChange func(windowID uint32)
	OnDestroy     func(windowID uint32)
	// OnWMRestart fires when _NET_SUPPORTING_WM_CHECK points at a new window.
	OnWMRestart func()
}

// Watcher selects property and structure events on individual windows and on
// the root window.
type Watcher struct {
	conn     *Connection
	handlers WindowEvents

	stateAtom xproto.Atom
	checkAtom xproto.Atom

	mu        sync.Mutex
	watched   map[xproto.Window]struct{}
	lastCheck xproto.Window
}

// NewWatcher subscribes to root property changes and returns a watcher for
// per-window notifications.
func NewWatcher(conn *Connection, handlers WindowEvents) (*Watcher, error) {
	stateAtom, err := xprop.Atm(conn.XUtil, "_NET_WM_STATE")
	if err != nil {
		return nil, fmt.Errorf("failed to intern _NET_WM_STATE: %w", err)
	}
	checkAtom, err := xprop.Atm(conn.XUtil, "_NET_SUPPORTING_WM_CHECK")
	if err != nil {
		return nil, fmt.Errorf("failed to intern _NET_SUPPORTING_WM_CHECK: %w", err)
	}

	w := &Watcher{
		conn:      conn,
		handlers:  handlers,
		stateAtom: stateAtom,
		checkAtom: checkAtom,
		watched:   make(map[xproto.Window]struct{}),
	}
	w.lastCheck, _ = conn.SupportingWMCheck()

	root := xwindow.New(conn.XUtil, conn.Root)
	if err := root.Listen(xproto.EventMaskPropertyChange); err != nil {
		return nil, fmt.Errorf("failed to listen on root window: %w", err)
	}
	xevent.PropertyNotifyFun(func(xu *xgbutil.XUtil, ev xevent.PropertyNotifyEvent) {
		if ev.Atom == w.checkAtom {
			w.checkWMRestart()
		}
	}).Connect(conn.XUtil, conn.Root)

	return w, nil
}

// Watch starts delivering state and destroy notifications for windowID.
func (w *Watcher) Watch(windowID uint32) error {
	win := xproto.Window(windowID)

	w.mu.Lock()
	if _, ok := w.watched[win]; ok {
		w.mu.Unlock()
		return nil
	}
	w.watched[win] = struct{}{}
	w.mu.Unlock()

	if err := xwindow.New(w.conn.XUtil, win).Listen(
		xproto.EventMaskPropertyChange,
		xproto.EventMaskStructureNotify,
	); err != nil {
		w.mu.Lock()
		delete(w.watched, win)
		w.mu.Unlock()
		return fmt.Errorf("failed to listen on window %d: %w", windowID, err)
	}

	xevent.PropertyNotifyFun(func(xu *xgbutil.XUtil, ev xevent.PropertyNotifyEvent) {
		if ev.Atom == w.stateAtom && w.handlers.OnStateChange != nil {
			w.handlers.OnStateChange(uint32(ev.Window))
		}
	}).Connect(w.conn.XUtil, win)

	xevent.DestroyNotifyFun(func(xu *xgbutil.XUtil, ev xevent.DestroyNotifyEvent) {
		w.forget(ev.Window)
		if w.handlers.OnDestroy != nil {
			w.handlers.OnDestroy(uint32(ev.Window))
		}
	}).Connect(w.conn.XUtil, win)

	return nil
}

// Unwatch stops notifications for windowID.
func (w *Watcher) Unwatch(windowID uint32) {
	win := xproto.Window(windowID)
	if !w.forget(win) {
		return
	}
	xevent.Detach(w.conn.XUtil, win)
	// The window may already be gone; a failed mask reset is harmless.
	xproto.ChangeWindowAttributes(w.conn.XUtil.Conn(), win, xproto.CwEventMask, []uint32{xproto.EventMaskNoEvent})
}

func (w *Watcher) forget(win xproto.Window) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[win]; !ok {
		return false
	}
	delete(w.watched, win)
	return true
}

// checkWMRestart fires OnWMRestart when the supporting WM check window is
// replaced. The property is usually deleted and re-set during a restart, so
// only a transition to a new, valid window counts.
func (w *Watcher) checkWMRestart() {
	current, err := w.conn.SupportingWMCheck()
	if err != nil || current == 0 {
		return
	}

	w.mu.Lock()
	changed := current != w.lastCheck
	w.lastCheck = current
	w.mu.Unlock()

	if changed && w.handlers.OnWMRestart != nil {
		w.handlers.OnWMRestart()
	}
}
