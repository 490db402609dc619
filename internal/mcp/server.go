// Package mcp exposes the daemon's trigger commands as MCP tools over stdio.
package mcp

import (
	"context"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/maxdesk/internal/ipc"
)

const (
	ServerName    = "maxdesk"
	ServerVersion = "0.1.0"
)

// Daemon is the IPC surface the tools call.
type Daemon interface {
	Toggle(window uint32) (uint32, error)
	Pin(window uint32) (uint32, error)
	RestoreAll() (int, error)
	ListTracked() ([]ipc.TrackedWindow, error)
	GetStatus() (*ipc.StatusData, error)
}

// Server is the MCP server for maxdesk.
type Server struct {
	mcpServer *mcpsdk.Server
	daemon    Daemon
	now       func() time.Time
}

// NewServer creates a new MCP server that forwards to daemon. A nil daemon
// uses the default IPC socket.
func NewServer(daemon Daemon) *Server {
	if daemon == nil {
		daemon = ipc.NewClient()
	}
	s := &Server{
		daemon: daemon,
		now:    time.Now,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "toggle_window",
		Description: "Move a window onto a fresh temporary virtual desktop and maximize it there, or, if it already lives on one, put it back where it was and remove the temporary desktop.",
	}, s.handleToggleWindow)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "pin_window",
		Description: "Toggle whether a window is shown on all virtual desktops.",
	}, s.handlePinWindow)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "restore_all",
		Description: "Return every window currently on a temporary desktop to its original desktop and remove the temporary desktops.",
	}, s.handleRestoreAll)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_tracked",
		Description: "List the windows currently living on temporary desktops.",
	}, s.handleListTracked)
}
