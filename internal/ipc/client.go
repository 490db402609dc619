package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/1broseidon/maxdesk/internal/runtimepath"
)

// Client handles IPC communication with the daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new IPC client
func NewClient() *Client {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		// Keep constructor non-failing; sendRequest surfaces connection errors.
		socketPath = ""
	}
	return NewClientWithPath(socketPath)
}

// NewClientWithPath creates a client for the daemon listening on socketPath.
func NewClientWithPath(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    DefaultRequestTimeout + 5*time.Second,
	}
}

// sendRequest sends a request and waits for a response
func (c *Client) sendRequest(req *Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w (is the daemon running?)", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	reqData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqData = append(reqData, '\n')
	if _, err := conn.Write(reqData); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	reader := bufio.NewReader(conn)
	respData, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.Status == "ERROR" {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}

	return &resp, nil
}

func (c *Client) windowCommand(cmd CommandType, window uint32) (uint32, error) {
	req := &Request{Command: cmd}
	if window != 0 {
		payload, err := json.Marshal(WindowPayload{Window: window})
		if err != nil {
			return 0, fmt.Errorf("failed to marshal window payload: %w", err)
		}
		req.Payload = payload
	}

	resp, err := c.sendRequest(req)
	if err != nil {
		return 0, err
	}
	var data WindowData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return 0, fmt.Errorf("failed to parse window data: %w", err)
	}
	return data.Window, nil
}

// Toggle migrates or restores window. A zero window targets the active one.
func (c *Client) Toggle(window uint32) (uint32, error) {
	if window == 0 {
		return c.windowCommand(CommandToggleActive, 0)
	}
	return c.windowCommand(CommandToggle, window)
}

// Pin flips whether window is shown on all desktops. A zero window targets
// the active one.
func (c *Client) Pin(window uint32) (uint32, error) {
	if window == 0 {
		return c.windowCommand(CommandPinActive, 0)
	}
	return c.windowCommand(CommandPin, window)
}

// RestoreAll restores every migrated window and returns how many moved back.
func (c *Client) RestoreAll() (int, error) {
	resp, err := c.sendRequest(&Request{Command: CommandRestoreAll})
	if err != nil {
		return 0, err
	}
	var data RestoreAllData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return 0, fmt.Errorf("failed to parse restore data: %w", err)
	}
	return data.Restored, nil
}

// Reload sends a RELOAD command to the daemon
func (c *Client) Reload() error {
	_, err := c.sendRequest(&Request{Command: CommandReload})
	return err
}

// GetStatus retrieves daemon status
func (c *Client) GetStatus() (*StatusData, error) {
	resp, err := c.sendRequest(&Request{Command: CommandGetStatus})
	if err != nil {
		return nil, err
	}

	var status StatusData
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status data: %w", err)
	}
	return &status, nil
}

// ListTracked retrieves the migrated windows.
func (c *Client) ListTracked() ([]TrackedWindow, error) {
	resp, err := c.sendRequest(&Request{Command: CommandListTracked})
	if err != nil {
		return nil, err
	}

	var data TrackedData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse tracked data: %w", err)
	}
	return data.Windows, nil
}

// Ping checks if the daemon is responding
func (c *Client) Ping() error {
	_, err := c.GetStatus()
	return err
}
