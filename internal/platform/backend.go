package platform

import (
	"fmt"

	"github.com/google/uuid"
)

// WindowID is a platform-neutral top-level window identifier. The referent is
// owned by the window system and can disappear at any time.
type WindowID uint32

// DesktopID is the stable 128-bit identity of a virtual desktop.
type DesktopID = uuid.UUID

// NilDesktop is the zero DesktopID.
var NilDesktop = uuid.Nil

// Rect describes a rectangular region in screen coordinates.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// ShowState is the coarse show state of a window.
type ShowState int

const (
	ShowNormal ShowState = iota
	ShowMinimized
	ShowMaximized
)

// String returns the string representation of the show state.
func (s ShowState) String() string {
	switch s {
	case ShowNormal:
		return "normal"
	case ShowMinimized:
		return "minimized"
	case ShowMaximized:
		return "maximized"
	default:
		return "unknown"
	}
}

// Placement is a snapshot of a window's geometry and show state.
type Placement struct {
	Normal Rect
	State  ShowState
}

func (p Placement) String() string {
	return fmt.Sprintf("%s %dx%d at %d,%d", p.State, p.Normal.Width, p.Normal.Height, p.Normal.X, p.Normal.Y)
}

// DesktopHandle is a live reference to a virtual desktop. Every handle
// returned by CreateDesktop or FindDesktop must be released exactly once.
type DesktopHandle interface {
	ID() DesktopID
	Release()
}

// DesktopService is the desktop-management surface. Every operation either
// fully happens or reports an error; none leaks a platform fault.
type DesktopService interface {
	CurrentDesktopOf(w WindowID) (DesktopID, error)
	CreateDesktop() (DesktopHandle, error)
	FindDesktop(id DesktopID) (DesktopHandle, error)
	MoveWindow(w WindowID, target DesktopHandle) error
	SwitchTo(target DesktopHandle) error
	RemoveDesktop(target DesktopHandle) error
	Rename(target DesktopHandle, name string) error
	IsPinned(w WindowID) (bool, error)
	Pin(w WindowID) error
	Unpin(w WindowID) error
}

// WindowService covers the per-window queries and mutations the orchestrator
// needs besides desktop membership.
type WindowService interface {
	IsWindow(w WindowID) bool
	Placement(w WindowID) (Placement, error)
	SetPlacement(w WindowID, p Placement) error
	ShowState(w WindowID) (ShowState, error)
	Maximize(w WindowID) error
	IsElevated(w WindowID) bool
	// ProcessWindows returns the visible, titled, unowned top-level windows
	// belonging to the same process as w, excluding w itself.
	ProcessWindows(w WindowID) ([]WindowID, error)
	Label(w WindowID) string
	ActiveWindow() (WindowID, error)
}

// EventSource delivers window notifications for watched windows.
type EventSource interface {
	Watch(w WindowID) error
	Unwatch(w WindowID)
}
