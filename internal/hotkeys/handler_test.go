package hotkeys

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingActions struct {
	mu       sync.Mutex
	toggles  int
	pins     int
	restores int
	err      error
}

func (r *recordingActions) Toggle(context.Context, uint32) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toggles++
	return 1, r.err
}

func (r *recordingActions) PinToggle(context.Context, uint32) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pins++
	return 1, r.err
}

func (r *recordingActions) RestoreAll(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restores++
	return 0, r.err
}

func newTestHandler(actions Actions, debounce time.Duration) *Handler {
	h := NewHandler(nil, 0, actions, debounce, nil)
	h.dispatch = func(fn func()) { fn() }
	return h
}

func TestDebounced_DropsRepeats(t *testing.T) {
	actions := &recordingActions{}
	h := newTestHandler(actions, time.Hour)

	fire := h.debounced("toggle", h.toggle)
	fire()
	fire()
	fire()

	if actions.toggles != 1 {
		t.Fatalf("expected 1 toggle, got %d", actions.toggles)
	}
}

func TestDebounced_ZeroDebounceFiresEveryTime(t *testing.T) {
	actions := &recordingActions{}
	h := newTestHandler(actions, 0)

	fire := h.debounced("pin", h.pin)
	for i := 0; i < 4; i++ {
		fire()
	}

	if actions.pins != 4 {
		t.Fatalf("expected 4 pins, got %d", actions.pins)
	}
}

func TestDebounced_BindingsAreIndependent(t *testing.T) {
	actions := &recordingActions{}
	h := newTestHandler(actions, time.Hour)

	toggle := h.debounced("toggle", h.toggle)
	restore := h.debounced("restore-all", h.restoreAll)
	toggle()
	restore()
	toggle()
	restore()

	if actions.toggles != 1 || actions.restores != 1 {
		t.Fatalf("expected one of each, got toggles=%d restores=%d", actions.toggles, actions.restores)
	}
}

func TestDebounced_ActionErrorIsSwallowed(t *testing.T) {
	actions := &recordingActions{err: errors.New("busy")}
	h := newTestHandler(actions, 0)

	h.debounced("toggle", h.toggle)()

	if actions.toggles != 1 {
		t.Fatalf("expected toggle to run, got %d", actions.toggles)
	}
}
