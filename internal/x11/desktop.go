package x11

import (
	"fmt"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/xprop"
)

// AllDesktops is the _NET_WM_DESKTOP value of a window shown on every desktop.
const AllDesktops = 0xFFFFFFFF

const sourceIndication = 2 // pager/direct action

// GetCurrentDesktop returns the current virtual desktop number (0-indexed).
func (c *Connection) GetCurrentDesktop() (int, error) {
	desktop, err := ewmh.CurrentDesktopGet(c.XUtil)
	if err != nil {
		return 0, fmt.Errorf("failed to get current desktop: %w", err)
	}
	return int(desktop), nil
}

// GetWindowDesktop returns the desktop number a window is on.
// Returns -1 for "sticky" windows (visible on all desktops).
func (c *Connection) GetWindowDesktop(windowID uint32) (int, error) {
	desktop, err := ewmh.WmDesktopGet(c.XUtil, xproto.Window(windowID))
	if err != nil {
		return 0, fmt.Errorf("failed to get window desktop: %w", err)
	}
	if desktop == AllDesktops {
		return -1, nil
	}
	return int(desktop), nil
}

// GetDesktopCount returns the number of virtual desktops.
func (c *Connection) GetDesktopCount() (int, error) {
	count, err := ewmh.NumberOfDesktopsGet(c.XUtil)
	if err != nil {
		return 0, fmt.Errorf("failed to get desktop count: %w", err)
	}
	return int(count), nil
}

// RequestDesktopCount asks the window manager to change the number of desktops
// and waits up to timeout for the change to be applied.
func (c *Connection) RequestDesktopCount(count int, timeout time.Duration) error {
	if err := c.sendRootMessage(c.Root, "_NET_NUMBER_OF_DESKTOPS", uint32(count)); err != nil {
		return fmt.Errorf("failed to request %d desktops: %w", count, err)
	}
	return c.waitFor(timeout, func() bool {
		n, err := c.GetDesktopCount()
		return err == nil && n == count
	})
}

// SetCurrentDesktop switches the active desktop and waits up to timeout for
// the window manager to apply it.
func (c *Connection) SetCurrentDesktop(desktop int, timeout time.Duration) error {
	if err := c.sendRootMessage(c.Root, "_NET_CURRENT_DESKTOP", uint32(desktop), uint32(xproto.TimeCurrentTime)); err != nil {
		return fmt.Errorf("failed to switch to desktop %d: %w", desktop, err)
	}
	return c.waitFor(timeout, func() bool {
		cur, err := c.GetCurrentDesktop()
		return err == nil && cur == desktop
	})
}

// SetWindowDesktop moves a window to the specified virtual desktop.
// Pass AllDesktops to make the window sticky.
func (c *Connection) SetWindowDesktop(windowID uint32, desktop uint32) error {
	return c.sendRootMessage(xproto.Window(windowID), "_NET_WM_DESKTOP", desktop, sourceIndication)
}

// GetDesktopNames returns _NET_DESKTOP_NAMES. Missing names are not an error.
func (c *Connection) GetDesktopNames() []string {
	names, err := ewmh.DesktopNamesGet(c.XUtil)
	if err != nil {
		return nil
	}
	return names
}

// SetDesktopNames writes _NET_DESKTOP_NAMES on the root window.
func (c *Connection) SetDesktopNames(names []string) error {
	if err := ewmh.DesktopNamesSet(c.XUtil, names); err != nil {
		return fmt.Errorf("failed to set desktop names: %w", err)
	}
	return nil
}

// ClientList returns the managed top-level windows.
func (c *Connection) ClientList() ([]xproto.Window, error) {
	clients, err := ewmh.ClientListGet(c.XUtil)
	if err != nil {
		return nil, fmt.Errorf("failed to get client list: %w", err)
	}
	return clients, nil
}

// IsManaged reports whether the window manager lists the window as a client.
func (c *Connection) IsManaged(windowID uint32) bool {
	clients, err := c.ClientList()
	if err != nil {
		return false
	}
	for _, w := range clients {
		if uint32(w) == windowID {
			return true
		}
	}
	return false
}

// SupportingWMCheck returns the window advertised by the running EWMH window
// manager. It changes whenever the window manager restarts.
func (c *Connection) SupportingWMCheck() (xproto.Window, error) {
	win, err := ewmh.SupportingWmCheckGet(c.XUtil, c.Root)
	if err != nil {
		return 0, fmt.Errorf("no EWMH window manager: %w", err)
	}
	return win, nil
}

// waitFor polls cond until it holds or timeout expires. Window managers apply
// root client messages asynchronously.
func (c *Connection) waitFor(timeout time.Duration, cond func() bool) error {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("window manager did not apply request within %s", timeout)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

const identityProperty = "_MAXDESK_DESKTOP_IDS"

// GetDesktopIdentities returns the index-aligned identity list stored on the
// root window. The property outlives this process, which is what lets a
// restarted daemon recognise desktops it created earlier.
func (c *Connection) GetDesktopIdentities() []string {
	ids, err := xprop.PropValStrs(xprop.GetProperty(c.XUtil, c.Root, identityProperty))
	if err != nil {
		return nil
	}
	return ids
}

// SetDesktopIdentities replaces the identity list on the root window.
func (c *Connection) SetDesktopIdentities(ids []string) error {
	var data []byte
	for _, id := range ids {
		data = append(data, id...)
		data = append(data, 0)
	}
	if err := xprop.ChangeProp(c.XUtil, c.Root, 8, identityProperty, "UTF8_STRING", data); err != nil {
		return fmt.Errorf("failed to store desktop identities: %w", err)
	}
	return nil
}
