package hotkeys

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/BurntSushi/xgbutil/xevent"
	"golang.org/x/time/rate"
)

// actionTimeout bounds one hotkey-triggered workflow.
const actionTimeout = 15 * time.Second

// Actions is what the hotkeys trigger. A zero window targets the active one.
type Actions interface {
	Toggle(ctx context.Context, window uint32) (uint32, error)
	PinToggle(ctx context.Context, window uint32) (uint32, error)
	RestoreAll(ctx context.Context) (int, error)
}

// Bindings maps key sequences to actions. Empty sequences are not grabbed.
type Bindings struct {
	Toggle     string
	Pin        string
	RestoreAll string
}

// Handler manages global keyboard shortcuts
type Handler struct {
	xu       *xgbutil.XUtil
	root     xproto.Window
	actions  Actions
	debounce time.Duration
	logger   *slog.Logger

	// dispatch runs a triggered action off the X event loop.
	dispatch func(fn func())
}

var ignoreModsOnce sync.Once

// NewHandler creates a new hotkey handler. Repeated presses of the same
// binding closer together than debounce are dropped.
func NewHandler(xu *xgbutil.XUtil, root xproto.Window, actions Actions, debounce time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if xu != nil {
		ignoreModsOnce.Do(func() {
			configureIgnoreMods(xu)
		})
	}

	return &Handler{
		xu:       xu,
		root:     root,
		actions:  actions,
		debounce: debounce,
		logger:   logger,
		dispatch: func(fn func()) { go fn() },
	}
}

// RegisterAll grabs every non-empty binding.
func (h *Handler) RegisterAll(b Bindings) error {
	if b.Toggle != "" {
		if err := h.RegisterFunc(b.Toggle, h.debounced("toggle", h.toggle)); err != nil {
			return fmt.Errorf("failed to register toggle hotkey %q: %w", b.Toggle, err)
		}
		h.logger.Info("hotkey registered", "action", "toggle", "keys", b.Toggle)
	}
	if b.Pin != "" {
		if err := h.RegisterFunc(b.Pin, h.debounced("pin", h.pin)); err != nil {
			return fmt.Errorf("failed to register pin hotkey %q: %w", b.Pin, err)
		}
		h.logger.Info("hotkey registered", "action", "pin", "keys", b.Pin)
	}
	if b.RestoreAll != "" {
		if err := h.RegisterFunc(b.RestoreAll, h.debounced("restore-all", h.restoreAll)); err != nil {
			return fmt.Errorf("failed to register restore-all hotkey %q: %w", b.RestoreAll, err)
		}
		h.logger.Info("hotkey registered", "action", "restore-all", "keys", b.RestoreAll)
	}
	return nil
}

// Unregister releases every grab held on the root window.
func (h *Handler) Unregister() {
	if h.xu == nil {
		return
	}
	keybind.Detach(h.xu, h.root)
}

// RegisterFunc registers an arbitrary hotkey callback.
func (h *Handler) RegisterFunc(keySequence string, callback func()) error {
	return keybind.KeyPressFun(func(xu *xgbutil.XUtil, ev xevent.KeyPressEvent) {
		callback()
	}).Connect(h.xu, h.root, keySequence, true)
}

// debounced wraps action with a per-binding rate limit and moves it off the
// event loop.
func (h *Handler) debounced(name string, action func(context.Context) error) func() {
	limit := rate.Inf
	if h.debounce > 0 {
		limit = rate.Every(h.debounce)
	}
	limiter := rate.NewLimiter(limit, 1)

	return func() {
		if !limiter.Allow() {
			h.logger.Debug("hotkey repeat ignored", "action", name)
			return
		}
		h.dispatch(func() {
			ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
			defer cancel()
			if err := action(ctx); err != nil {
				h.logger.Warn("hotkey action failed", "action", name, "error", err)
			}
		})
	}
}

func (h *Handler) toggle(ctx context.Context) error {
	w, err := h.actions.Toggle(ctx, 0)
	if err == nil {
		h.logger.Debug("toggle hotkey handled", "window", w)
	}
	return err
}

func (h *Handler) pin(ctx context.Context) error {
	_, err := h.actions.PinToggle(ctx, 0)
	return err
}

func (h *Handler) restoreAll(ctx context.Context) error {
	n, err := h.actions.RestoreAll(ctx)
	if err == nil {
		h.logger.Info("restore-all hotkey handled", "restored", n)
	}
	return err
}

func configureIgnoreMods(xu *xgbutil.XUtil) {
	// Always ignore CapsLock.
	caps := uint16(xproto.ModMaskLock)

	numLock := modMaskForKeysym(xu, "Num_Lock")
	scrollLock := modMaskForKeysym(xu, "Scroll_Lock")

	unique := make(map[uint16]struct{})
	add := func(mask uint16) {
		unique[mask] = struct{}{}
	}

	add(0)
	base := []uint16{caps}
	if numLock != 0 && numLock != caps {
		base = append(base, numLock)
	}
	if scrollLock != 0 && scrollLock != caps && scrollLock != numLock {
		base = append(base, scrollLock)
	}

	for subset := 1; subset < (1 << len(base)); subset++ {
		var mask uint16
		for bit := range base {
			if subset&(1<<bit) != 0 {
				mask |= base[bit]
			}
		}
		add(mask)
	}

	ignore := make([]uint16, 0, len(unique))
	for mask := range unique {
		ignore = append(ignore, mask)
	}

	xevent.IgnoreMods = ignore
}

func modMaskForKeysym(xu *xgbutil.XUtil, keysym string) uint16 {
	for _, keycode := range keybind.StrToKeycodes(xu, keysym) {
		if mask := keybind.ModGet(xu, keycode); mask != 0 {
			return mask
		}
	}
	return 0
}
