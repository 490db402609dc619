// Package platformtest provides an in-memory desktop shell for tests.
package platformtest

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/1broseidon/maxdesk/internal/platform"
	"github.com/google/uuid"
)

// Op names a fake operation for failure injection and call counting.
type Op string

const (
	OpCurrentDesktopOf Op = "current-desktop-of"
	OpCreate           Op = "create"
	OpFind             Op = "find"
	OpMove             Op = "move"
	OpSwitch           Op = "switch"
	OpRemove           Op = "remove"
	OpRename           Op = "rename"
	OpIsPinned         Op = "is-pinned"
	OpPin              Op = "pin"
	OpUnpin            Op = "unpin"
	OpPlacement        Op = "placement"
	OpSetPlacement     Op = "set-placement"
	OpMaximize         Op = "maximize"
)

// ErrInjected is wrapped by every injected failure.
var ErrInjected = errors.New("injected failure")

// Window is the fake's view of a top-level window.
type Window struct {
	ID        platform.WindowID
	PID       int
	Title     string
	Desktop   platform.DesktopID
	Pinned    bool
	Placement platform.Placement
	Elevated  bool
	// NoView windows cannot be moved between desktops.
	NoView bool
}

// Fake implements platform.DesktopService, platform.WindowService and
// platform.EventSource over in-memory state.
type Fake struct {
	mu       sync.Mutex
	desktops []platform.DesktopID
	names    map[platform.DesktopID]string
	current  int
	windows  map[platform.WindowID]*Window
	active   platform.WindowID
	watched  map[platform.WindowID]bool
	// asyncMaximize leaves Maximize pending until the test lands it.
	asyncMaximize bool

	calls    map[Op]int
	failAt   map[Op]int
	failAll  map[Op]bool
	acquired int
	released int
	doubles  int
	removed  []platform.DesktopID
}

var (
	_ platform.DesktopService = (*Fake)(nil)
	_ platform.WindowService  = (*Fake)(nil)
	_ platform.EventSource    = (*Fake)(nil)
)

// New returns a fake with n desktops, the first one active.
func New(n int) *Fake {
	f := &Fake{
		names:   make(map[platform.DesktopID]string),
		windows: make(map[platform.WindowID]*Window),
		watched: make(map[platform.WindowID]bool),
		calls:   make(map[Op]int),
		failAt:  make(map[Op]int),
		failAll: make(map[Op]bool),
	}
	for i := 0; i < n; i++ {
		f.desktops = append(f.desktops, uuid.New())
	}
	return f
}

// FailNth makes the nth call of op from now on fail (1-based).
func (f *Fake) FailNth(op Op, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAt[op] = f.calls[op] + n
}

// FailAlways makes every call of op fail until Heal is called.
func (f *Fake) FailAlways(op Op) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll[op] = true
}

// Heal clears all injected failures.
func (f *Fake) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAt = make(map[Op]int)
	f.failAll = make(map[Op]bool)
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) enter(op Op) error {
	f.calls[op]++
	if f.failAll[op] || f.failAt[op] == f.calls[op] {
		return platform.Fail(string(op), platform.KindPlatform, ErrInjected)
	}
	return nil
}

// AddWindow places a window on the desktop at index desktop.
func (f *Fake) AddWindow(w Window, desktop int) *Window {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Desktop = f.desktops[desktop]
	if w.Placement.Normal == (platform.Rect{}) {
		w.Placement.Normal = platform.Rect{X: 100, Y: 100, Width: 800, Height: 600}
	}
	win := &w
	f.windows[w.ID] = win
	if f.active == 0 {
		f.active = w.ID
	}
	return win
}

// CloseWindow destroys a window.
func (f *Fake) CloseWindow(w platform.WindowID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.windows, w)
	if f.active == w {
		f.active = 0
	}
}

// SetActive focuses w.
func (f *Fake) SetActive(w platform.WindowID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = w
}

// SetAsyncMaximize makes Maximize succeed without changing the show state,
// like a window manager that has not applied the request yet.
func (f *Fake) SetAsyncMaximize(async bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asyncMaximize = async
}

// SetShowState changes w's show state as if the user did it.
func (f *Fake) SetShowState(w platform.WindowID, s platform.ShowState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if win, ok := f.windows[w]; ok {
		win.Placement.State = s
	}
}

// RemoveExternally deletes a desktop behind the controller's back.
func (f *Fake) RemoveExternally(id platform.DesktopID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if idx := f.indexLocked(id); idx >= 0 {
		f.removeLocked(idx)
	}
}

// DesktopCount returns the number of desktops.
func (f *Fake) DesktopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.desktops)
}

// Desktops returns the desktop identities in order.
func (f *Fake) Desktops() []platform.DesktopID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.DesktopID(nil), f.desktops...)
}

// Desktop returns the identity at index i.
func (f *Fake) Desktop(i int) platform.DesktopID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.desktops[i]
}

// Current returns the active desktop.
func (f *Fake) Current() platform.DesktopID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.desktops[f.current]
}

// Name returns a desktop's name.
func (f *Fake) Name(id platform.DesktopID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.names[id]
}

// Window returns a copy of w's state.
func (f *Fake) Window(w platform.WindowID) (Window, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	win, ok := f.windows[w]
	if !ok {
		return Window{}, false
	}
	return *win, true
}

// Removed lists desktops removed through RemoveDesktop, in order.
func (f *Fake) Removed() []platform.DesktopID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.DesktopID(nil), f.removed...)
}

// LiveHandles returns acquired minus released handles.
func (f *Fake) LiveHandles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired - f.released
}

// DoubleReleases counts Release calls on already released handles.
func (f *Fake) DoubleReleases() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doubles
}

// Watched reports whether w is currently watched.
func (f *Fake) Watched(w platform.WindowID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watched[w]
}

type handle struct {
	fake     *Fake
	id       platform.DesktopID
	released bool
}

func (h *handle) ID() platform.DesktopID { return h.id }

func (h *handle) Release() {
	h.fake.mu.Lock()
	defer h.fake.mu.Unlock()
	if h.released {
		h.fake.doubles++
		return
	}
	h.released = true
	h.fake.released++
}

func (f *Fake) newHandleLocked(id platform.DesktopID) *handle {
	f.acquired++
	return &handle{fake: f, id: id}
}

func (f *Fake) indexLocked(id platform.DesktopID) int {
	for i, d := range f.desktops {
		if d == id {
			return i
		}
	}
	return -1
}

func (f *Fake) resolveLocked(op Op, h platform.DesktopHandle) (int, error) {
	fh, ok := h.(*handle)
	if !ok || fh == nil || fh.fake != f || fh.released {
		return -1, platform.Fail(string(op), platform.KindInvalidHandle, errors.New("stale handle"))
	}
	idx := f.indexLocked(fh.id)
	if idx < 0 {
		return -1, platform.Fail(string(op), platform.KindNotFound, fmt.Errorf("desktop %s", fh.id))
	}
	return idx, nil
}

func (f *Fake) windowLocked(op Op, w platform.WindowID) (*Window, error) {
	win, ok := f.windows[w]
	if !ok {
		return nil, platform.Fail(string(op), platform.KindInvalidHandle, fmt.Errorf("window %d", w))
	}
	return win, nil
}

func (f *Fake) removeLocked(idx int) {
	id := f.desktops[idx]
	fallback := idx - 1
	if fallback < 0 {
		fallback = idx + 1
	}
	for _, win := range f.windows {
		if win.Desktop == id {
			win.Desktop = f.desktops[fallback]
		}
	}
	if f.current == idx {
		f.current = fallback
	}
	f.desktops = append(f.desktops[:idx:idx], f.desktops[idx+1:]...)
	if f.current > idx {
		f.current--
	}
	delete(f.names, id)
}

func (f *Fake) CurrentDesktopOf(w platform.WindowID) (platform.DesktopID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpCurrentDesktopOf); err != nil {
		return platform.NilDesktop, err
	}
	win, err := f.windowLocked(OpCurrentDesktopOf, w)
	if err != nil {
		return platform.NilDesktop, err
	}
	if win.Pinned {
		return f.desktops[f.current], nil
	}
	return win.Desktop, nil
}

func (f *Fake) CreateDesktop() (platform.DesktopHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpCreate); err != nil {
		return nil, err
	}
	id := uuid.New()
	f.desktops = append(f.desktops, id)
	return f.newHandleLocked(id), nil
}

func (f *Fake) FindDesktop(id platform.DesktopID) (platform.DesktopHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpFind); err != nil {
		return nil, err
	}
	if f.indexLocked(id) < 0 {
		return nil, platform.Fail(string(OpFind), platform.KindNotFound, fmt.Errorf("desktop %s", id))
	}
	return f.newHandleLocked(id), nil
}

func (f *Fake) MoveWindow(w platform.WindowID, target platform.DesktopHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpMove); err != nil {
		return err
	}
	win, err := f.windowLocked(OpMove, w)
	if err != nil {
		return err
	}
	if win.NoView {
		return platform.Fail(string(OpMove), platform.KindNoView, fmt.Errorf("window %d", w))
	}
	idx, err := f.resolveLocked(OpMove, target)
	if err != nil {
		return err
	}
	win.Desktop = f.desktops[idx]
	return nil
}

func (f *Fake) SwitchTo(target platform.DesktopHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpSwitch); err != nil {
		return err
	}
	idx, err := f.resolveLocked(OpSwitch, target)
	if err != nil {
		return err
	}
	f.current = idx
	return nil
}

func (f *Fake) RemoveDesktop(target platform.DesktopHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpRemove); err != nil {
		return err
	}
	idx, err := f.resolveLocked(OpRemove, target)
	if err != nil {
		return err
	}
	if len(f.desktops) <= 1 {
		return platform.Fail(string(OpRemove), platform.KindPlatform, errors.New("cannot remove the only desktop"))
	}
	f.removed = append(f.removed, f.desktops[idx])
	f.removeLocked(idx)
	return nil
}

func (f *Fake) Rename(target platform.DesktopHandle, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpRename); err != nil {
		return err
	}
	idx, err := f.resolveLocked(OpRename, target)
	if err != nil {
		return err
	}
	f.names[f.desktops[idx]] = name
	return nil
}

func (f *Fake) IsPinned(w platform.WindowID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpIsPinned); err != nil {
		return false, err
	}
	win, err := f.windowLocked(OpIsPinned, w)
	if err != nil {
		return false, err
	}
	return win.Pinned, nil
}

func (f *Fake) Pin(w platform.WindowID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpPin); err != nil {
		return err
	}
	win, err := f.windowLocked(OpPin, w)
	if err != nil {
		return err
	}
	win.Pinned = true
	return nil
}

func (f *Fake) Unpin(w platform.WindowID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpUnpin); err != nil {
		return err
	}
	win, err := f.windowLocked(OpUnpin, w)
	if err != nil {
		return err
	}
	win.Pinned = false
	win.Desktop = f.desktops[f.current]
	return nil
}

func (f *Fake) IsWindow(w platform.WindowID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.windows[w]
	return ok
}

func (f *Fake) Placement(w platform.WindowID) (platform.Placement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpPlacement); err != nil {
		return platform.Placement{}, err
	}
	win, err := f.windowLocked(OpPlacement, w)
	if err != nil {
		return platform.Placement{}, err
	}
	return win.Placement, nil
}

func (f *Fake) SetPlacement(w platform.WindowID, p platform.Placement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpSetPlacement); err != nil {
		return err
	}
	win, err := f.windowLocked(OpSetPlacement, w)
	if err != nil {
		return err
	}
	win.Placement = p
	return nil
}

func (f *Fake) ShowState(w platform.WindowID) (platform.ShowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	win, err := f.windowLocked(OpPlacement, w)
	if err != nil {
		return platform.ShowNormal, err
	}
	return win.Placement.State, nil
}

func (f *Fake) Maximize(w platform.WindowID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpMaximize); err != nil {
		return err
	}
	win, err := f.windowLocked(OpMaximize, w)
	if err != nil {
		return err
	}
	if !f.asyncMaximize {
		win.Placement.State = platform.ShowMaximized
	}
	return nil
}

func (f *Fake) IsElevated(w platform.WindowID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	win, ok := f.windows[w]
	return ok && win.Elevated
}

// ProcessWindows returns the other windows sharing w's PID, ordered by ID.
func (f *Fake) ProcessWindows(w platform.WindowID) ([]platform.WindowID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	win, err := f.windowLocked("process-windows", w)
	if err != nil {
		return nil, err
	}
	if win.PID == 0 {
		return nil, nil
	}
	var out []platform.WindowID
	for id, other := range f.windows {
		if id != w && other.PID == win.PID && other.Title != "" {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (f *Fake) Label(w platform.WindowID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if win, ok := f.windows[w]; ok {
		return win.Title
	}
	return ""
}

func (f *Fake) ActiveWindow() (platform.WindowID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == 0 {
		return 0, platform.Fail("active-window", platform.KindInvalidHandle, errors.New("no active window"))
	}
	return f.active, nil
}

func (f *Fake) Watch(w platform.WindowID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watched[w] = true
	return nil
}

func (f *Fake) Unwatch(w platform.WindowID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.watched, w)
}
