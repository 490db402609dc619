package ipc

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeController struct {
	mu       sync.Mutex
	active   uint32
	toggled  []uint32
	pinned   []uint32
	restored int
	reloads  int
	tracked  []TrackedWindow
	err      error
}

func (f *fakeController) target(w uint32) uint32 {
	if w == 0 {
		return f.active
	}
	return w
}

func (f *fakeController) Toggle(_ context.Context, w uint32) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	w = f.target(w)
	f.toggled = append(f.toggled, w)
	return w, nil
}

func (f *fakeController) PinToggle(_ context.Context, w uint32) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w = f.target(w)
	f.pinned = append(f.pinned, w)
	return w, nil
}

func (f *fakeController) RestoreAll(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restored, nil
}

func (f *fakeController) Status(context.Context) (StatusData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return StatusData{TrackedWindows: len(f.tracked), TempDesktops: 1}, nil
}

func (f *fakeController) Tracked(context.Context) ([]TrackedWindow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tracked, nil
}

func (f *fakeController) Reload(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	return nil
}

func startServer(t *testing.T, ctrl Controller) *Client {
	t.Helper()
	path := filepath.Join(t.TempDir(), "maxdesk.sock")
	srv, err := NewServer(ServerConfig{SocketPath: path, Controller: ctrl})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(srv.Stop)
	return NewClientWithPath(path)
}

func TestServer_ToggleExplicitAndActive(t *testing.T) {
	ctrl := &fakeController{active: 0x42}
	client := startServer(t, ctrl)

	w, err := client.Toggle(0x10)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if w != 0x10 {
		t.Fatalf("expected window 0x10, got 0x%x", w)
	}

	w, err = client.Toggle(0)
	if err != nil {
		t.Fatalf("toggle active: %v", err)
	}
	if w != 0x42 {
		t.Fatalf("expected active window 0x42, got 0x%x", w)
	}

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if len(ctrl.toggled) != 2 || ctrl.toggled[0] != 0x10 || ctrl.toggled[1] != 0x42 {
		t.Fatalf("unexpected toggles %v", ctrl.toggled)
	}
}

func TestServer_PinActive(t *testing.T) {
	ctrl := &fakeController{active: 7}
	client := startServer(t, ctrl)

	w, err := client.Pin(0)
	if err != nil {
		t.Fatalf("pin: %v", err)
	}
	if w != 7 {
		t.Fatalf("expected window 7, got %d", w)
	}
}

func TestServer_ControllerErrorIsReported(t *testing.T) {
	ctrl := &fakeController{err: errors.New("window no longer exists")}
	client := startServer(t, ctrl)

	_, err := client.Toggle(5)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "window no longer exists") {
		t.Fatalf("expected controller error, got %v", err)
	}
}

func TestServer_StatusListAndRestoreAll(t *testing.T) {
	moved := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ctrl := &fakeController{
		restored: 3,
		tracked: []TrackedWindow{
			{Window: 1, Label: "editor", TempDesktop: "d1", MovedAt: moved, Armed: true},
		},
	}
	client := startServer(t, ctrl)

	status, err := client.GetStatus()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.DaemonRunning || status.TrackedWindows != 1 || status.TempDesktops != 1 {
		t.Fatalf("unexpected status %+v", status)
	}

	list, err := client.ListTracked()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Label != "editor" || !list[0].MovedAt.Equal(moved) || !list[0].Armed {
		t.Fatalf("unexpected list %+v", list)
	}

	n, err := client.RestoreAll()
	if err != nil {
		t.Fatalf("restore all: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 restored, got %d", n)
	}

	if err := client.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if ctrl.reloads != 1 {
		t.Fatalf("expected 1 reload, got %d", ctrl.reloads)
	}
}

func TestServer_ListTrackedEmpty(t *testing.T) {
	client := startServer(t, &fakeController{})

	list, err := client.ListTracked()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %v", list)
	}
}

func TestHandleCommand_Validation(t *testing.T) {
	srv := &Server{ctrl: &fakeController{}, timeout: time.Second}
	srv.logger = discardLogger()

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"unknown command", Request{Command: "FLY"}, "Unknown command"},
		{"toggle without payload", Request{Command: CommandToggle}, "window is required"},
		{"toggle zero window", Request{Command: CommandToggle, Payload: []byte(`{"window":0}`)}, "window is required"},
		{"pin bad payload", Request{Command: CommandPin, Payload: []byte(`{"window":"x"}`)}, "Invalid window payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			resp := srv.handleCommand(context.Background(), &req)
			if resp.Status != "ERROR" {
				t.Fatalf("expected error response, got %+v", resp)
			}
			if !strings.Contains(resp.Error, tt.want) {
				t.Fatalf("expected %q in %q", tt.want, resp.Error)
			}
		})
	}
}

func TestClient_NoDaemon(t *testing.T) {
	client := NewClientWithPath(filepath.Join(t.TempDir(), "absent.sock"))
	if err := client.Ping(); err == nil || !strings.Contains(err.Error(), "is the daemon running") {
		t.Fatalf("expected connection error, got %v", err)
	}
}
