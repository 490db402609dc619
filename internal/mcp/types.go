package mcp

// WindowInput targets one window.
type WindowInput struct {
	Window uint32 `json:"window,omitempty" jsonschema:"X11 window id (decimal). Omit or pass 0 to target the currently active window."`
}

// WindowOutput is the output for toggle_window and pin_window.
type WindowOutput struct {
	Window uint32 `json:"window"`
	Action string `json:"action"`
}

// RestoreAllInput is the input for the restore_all tool.
type RestoreAllInput struct{}

// RestoreAllOutput is the output for the restore_all tool.
type RestoreAllOutput struct {
	Restored int `json:"restored"`
}

// ListTrackedInput is the input for the list_tracked tool.
type ListTrackedInput struct{}

// TrackedInfo describes one window living on a temporary desktop.
type TrackedInfo struct {
	Window          uint32 `json:"window"`
	Label           string `json:"label"`
	OriginalDesktop string `json:"original_desktop"`
	TempDesktop     string `json:"temp_desktop"`
	MovedAt         string `json:"moved_at"`
	AgeSeconds      int64  `json:"age_seconds"`
}

// ListTrackedOutput is the output for the list_tracked tool.
type ListTrackedOutput struct {
	Windows  []TrackedInfo `json:"windows"`
	Degraded bool          `json:"degraded"`
}
