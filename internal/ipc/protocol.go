package ipc

import (
	"encoding/json"
	"fmt"
	"time"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandToggle       CommandType = "TOGGLE"
	CommandToggleActive CommandType = "TOGGLE_ACTIVE"
	CommandPin          CommandType = "PIN"
	CommandPinActive    CommandType = "PIN_ACTIVE"
	CommandRestoreAll   CommandType = "RESTORE_ALL"
	CommandGetStatus    CommandType = "GET_STATUS"
	CommandListTracked  CommandType = "LIST_TRACKED"
	CommandReload       CommandType = "RELOAD"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// WindowPayload names the target of TOGGLE and PIN.
type WindowPayload struct {
	Window uint32 `json:"window"`
}

// WindowData reports the window a trigger command acted on.
type WindowData struct {
	Window uint32 `json:"window"`
}

// RestoreAllData is returned by RESTORE_ALL.
type RestoreAllData struct {
	Restored int `json:"restored"`
}

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	TrackedWindows int   `json:"tracked_windows"`
	TempDesktops   int   `json:"temp_desktops"`
	Degraded       bool  `json:"degraded"`
	UptimeSeconds  int64 `json:"uptime_seconds"`
	DaemonRunning  bool  `json:"daemon_running"`
}

// TrackedWindow describes one migrated window.
type TrackedWindow struct {
	Window          uint32    `json:"window"`
	Label           string    `json:"label"`
	OriginalDesktop string    `json:"original_desktop"`
	TempDesktop     string    `json:"temp_desktop"`
	MovedAt         time.Time `json:"moved_at"`
	Armed           bool      `json:"armed"`
}

// TrackedData represents the data returned by LIST_TRACKED
type TrackedData struct {
	Windows []TrackedWindow `json:"windows"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: "OK",
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: "ERROR",
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
