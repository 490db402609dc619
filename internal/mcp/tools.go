package mcp

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) handleToggleWindow(_ context.Context, _ *mcpsdk.CallToolRequest, args WindowInput) (*mcpsdk.CallToolResult, WindowOutput, error) {
	w, err := s.daemon.Toggle(args.Window)
	if err != nil {
		return nil, WindowOutput{}, fmt.Errorf("toggle_window: %w", err)
	}
	return nil, WindowOutput{Window: w, Action: "toggled"}, nil
}

func (s *Server) handlePinWindow(_ context.Context, _ *mcpsdk.CallToolRequest, args WindowInput) (*mcpsdk.CallToolResult, WindowOutput, error) {
	w, err := s.daemon.Pin(args.Window)
	if err != nil {
		return nil, WindowOutput{}, fmt.Errorf("pin_window: %w", err)
	}
	return nil, WindowOutput{Window: w, Action: "pin toggled"}, nil
}

func (s *Server) handleRestoreAll(_ context.Context, _ *mcpsdk.CallToolRequest, _ RestoreAllInput) (*mcpsdk.CallToolResult, RestoreAllOutput, error) {
	n, err := s.daemon.RestoreAll()
	if err != nil {
		return nil, RestoreAllOutput{}, fmt.Errorf("restore_all: %w", err)
	}
	return nil, RestoreAllOutput{Restored: n}, nil
}

func (s *Server) handleListTracked(_ context.Context, _ *mcpsdk.CallToolRequest, _ ListTrackedInput) (*mcpsdk.CallToolResult, ListTrackedOutput, error) {
	tracked, err := s.daemon.ListTracked()
	if err != nil {
		return nil, ListTrackedOutput{}, fmt.Errorf("list_tracked: %w", err)
	}

	now := s.now()
	out := ListTrackedOutput{Windows: make([]TrackedInfo, 0, len(tracked))}
	for _, t := range tracked {
		out.Windows = append(out.Windows, TrackedInfo{
			Window:          t.Window,
			Label:           t.Label,
			OriginalDesktop: t.OriginalDesktop,
			TempDesktop:     t.TempDesktop,
			MovedAt:         t.MovedAt.Format(time.RFC3339),
			AgeSeconds:      int64(now.Sub(t.MovedAt).Seconds()),
		})
	}

	// Status is informational; a failure here does not fail the listing.
	if status, err := s.daemon.GetStatus(); err == nil {
		out.Degraded = status.Degraded
	}
	return nil, out, nil
}
