package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/1broseidon/maxdesk/internal/runtimepath"
)

// DefaultRequestTimeout bounds how long a single command may run.
const DefaultRequestTimeout = 15 * time.Second

// Controller executes trigger commands for the server. A zero window means
// the currently active window.
type Controller interface {
	Toggle(ctx context.Context, window uint32) (uint32, error)
	PinToggle(ctx context.Context, window uint32) (uint32, error)
	RestoreAll(ctx context.Context) (int, error)
	Status(ctx context.Context) (StatusData, error)
	Tracked(ctx context.Context) ([]TrackedWindow, error)
	Reload(ctx context.Context) error
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// SocketPath defaults to runtimepath.SocketPath().
	SocketPath     string
	Controller     Controller
	Logger         *slog.Logger
	RequestTimeout time.Duration
}

// Server handles IPC requests from clients
type Server struct {
	socketPath   string
	listener     net.Listener
	ctrl         Controller
	logger       *slog.Logger
	timeout      time.Duration
	startTime    time.Time
	shuttingDown bool
	shutdownMu   sync.Mutex
}

// NewServer creates a new IPC server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Controller == nil {
		return nil, fmt.Errorf("ipc server requires a controller")
	}
	socketPath := cfg.SocketPath
	if socketPath == "" {
		p, err := runtimepath.SocketPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve IPC socket path: %w", err)
		}
		socketPath = p
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	// Remove existing socket if present
	os.Remove(socketPath)

	return &Server{
		socketPath: socketPath,
		ctrl:       cfg.Controller,
		logger:     logger,
		timeout:    timeout,
		startTime:  time.Now(),
	}, nil
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Start begins listening for IPC connections
func (s *Server) Start() error {
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	s.listener = listener

	// Set socket permissions
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.Info("IPC server listening", "socket", s.socketPath)

	go s.acceptLoop()

	return nil
}

// Run starts the server and stops it when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.shutdownMu.Lock()
			if s.shuttingDown {
				s.shutdownMu.Unlock()
				return
			}
			s.shutdownMu.Unlock()
			s.logger.Warn("IPC accept error", "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		go s.handleConnection(conn)
	}
}

// handleConnection handles a single IPC connection
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)

	// Read the request (expect JSON on a single line)
	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.logger.Warn("IPC read error", "error", err)
		return
	}

	req, err := ParseRequest(data)
	if err != nil {
		s.sendError(conn, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	resp := s.handleCommand(ctx, req)

	respData, err := resp.Marshal()
	if err != nil {
		s.logger.Error("failed to marshal IPC response", "error", err)
		return
	}

	respData = append(respData, '\n')
	if _, err := conn.Write(respData); err != nil {
		s.logger.Warn("failed to send IPC response", "error", err)
	}
}

// handleCommand processes an IPC command and returns a response
func (s *Server) handleCommand(ctx context.Context, req *Request) *Response {
	s.logger.Debug("IPC command", "command", req.Command)

	switch req.Command {
	case CommandToggle:
		return s.handleWindowCommand(ctx, req.Payload, true, s.ctrl.Toggle)
	case CommandToggleActive:
		return s.handleWindowCommand(ctx, nil, false, s.ctrl.Toggle)
	case CommandPin:
		return s.handleWindowCommand(ctx, req.Payload, true, s.ctrl.PinToggle)
	case CommandPinActive:
		return s.handleWindowCommand(ctx, nil, false, s.ctrl.PinToggle)
	case CommandRestoreAll:
		return s.handleRestoreAll(ctx)
	case CommandGetStatus:
		return s.handleGetStatus(ctx)
	case CommandListTracked:
		return s.handleListTracked(ctx)
	case CommandReload:
		return s.handleReload(ctx)
	default:
		return NewErrorResponse(fmt.Sprintf("Unknown command: %s", req.Command))
	}
}

func (s *Server) handleWindowCommand(ctx context.Context, payload json.RawMessage, needWindow bool, fn func(context.Context, uint32) (uint32, error)) *Response {
	var target WindowPayload
	if needWindow {
		if len(payload) == 0 {
			return NewErrorResponse("window is required")
		}
		if err := json.Unmarshal(payload, &target); err != nil {
			return NewErrorResponse(fmt.Sprintf("Invalid window payload: %v", err))
		}
		if target.Window == 0 {
			return NewErrorResponse("window is required")
		}
	}

	w, err := fn(ctx, target.Window)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	resp, _ := NewOKResponse(WindowData{Window: w})
	return resp
}

func (s *Server) handleRestoreAll(ctx context.Context) *Response {
	n, err := s.ctrl.RestoreAll(ctx)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to restore: %v", err))
	}
	resp, _ := NewOKResponse(RestoreAllData{Restored: n})
	return resp
}

// handleGetStatus returns current daemon status
func (s *Server) handleGetStatus(ctx context.Context) *Response {
	status, err := s.ctrl.Status(ctx)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to get status: %v", err))
	}
	status.UptimeSeconds = int64(time.Since(s.startTime).Seconds())
	status.DaemonRunning = true

	resp, _ := NewOKResponse(status)
	return resp
}

func (s *Server) handleListTracked(ctx context.Context) *Response {
	windows, err := s.ctrl.Tracked(ctx)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to list tracked windows: %v", err))
	}
	if windows == nil {
		windows = []TrackedWindow{}
	}
	resp, _ := NewOKResponse(TrackedData{Windows: windows})
	return resp
}

// handleReload reloads the configuration
func (s *Server) handleReload(ctx context.Context) *Response {
	s.logger.Info("IPC: received RELOAD command")
	if err := s.ctrl.Reload(ctx); err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to reload config: %v", err))
	}
	resp, _ := NewOKResponse(nil)
	return resp
}

// sendError sends an error response
func (s *Server) sendError(conn net.Conn, errMsg string) {
	resp := NewErrorResponse(errMsg)
	data, _ := resp.Marshal()
	data = append(data, '\n')
	conn.Write(data)
}

// Stop gracefully shuts down the IPC server
func (s *Server) Stop() {
	s.shutdownMu.Lock()
	if s.shuttingDown {
		s.shutdownMu.Unlock()
		return
	}
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	os.Remove(s.socketPath)
}
