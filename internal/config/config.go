package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Companion policies accepted by companion_policy.
const (
	CompanionNone        = "none"
	CompanionSameProcess = "same-process"
)

// NotificationsConfig configures desktop notifications.
type NotificationsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Command receives the summary and body as trailing arguments.
	Command string `yaml:"command"`
}

// ActivityLogConfig configures the transition log file.
type ActivityLogConfig struct {
	Enabled bool `yaml:"enabled"`
	// File is the log file path (default: ~/.local/share/maxdesk/activity.log)
	File string `yaml:"file,omitempty"`
	// MaxSizeMB is the maximum log file size before rotation (default: 10)
	MaxSizeMB int `yaml:"max_size_mb"`
	// MaxFiles is the number of rotated files to keep (default: 3)
	MaxFiles int `yaml:"max_files"`
}

// Config holds the application configuration.
type Config struct {
	ToggleHotkey      string              `yaml:"toggle_hotkey"`
	PinHotkey         string              `yaml:"pin_hotkey"`
	RestoreAllHotkey  string              `yaml:"restore_all_hotkey"`
	HotkeyDebounceMS  int                 `yaml:"hotkey_debounce_ms"`
	CompanionPolicy   string              `yaml:"companion_policy"`
	SwitchSettleMS    int                 `yaml:"switch_settle_ms"`
	StaleSweepSeconds int                 `yaml:"stale_sweep_seconds"`
	DesktopNamePrefix string              `yaml:"desktop_name_prefix"`
	Display           string              `yaml:"display,omitempty"`
	XAuthority        string              `yaml:"xauthority,omitempty"`
	LogLevel          string              `yaml:"log_level"`
	Notifications     NotificationsConfig `yaml:"notifications"`
	ActivityLog       ActivityLogConfig   `yaml:"activity_log"`
	MetricsAddr       string              `yaml:"metrics_addr,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		ToggleHotkey:      "Mod4-Mod1-m",
		PinHotkey:         "Mod4-Mod1-p",
		RestoreAllHotkey:  "Mod4-Mod1-BackSpace",
		HotkeyDebounceMS:  250,
		CompanionPolicy:   CompanionNone,
		SwitchSettleMS:    250,
		StaleSweepSeconds: 10,
		DesktopNamePrefix: "max: ",
		LogLevel:          "info",
		Notifications: NotificationsConfig{
			Enabled: true,
			Command: "notify-send",
		},
		ActivityLog: ActivityLogConfig{
			Enabled:   false,
			MaxSizeMB: 10,
			MaxFiles:  3,
		},
	}
}

// SwitchSettle returns the delay between switching desktops and maximizing.
func (c *Config) SwitchSettle() time.Duration {
	return time.Duration(c.SwitchSettleMS) * time.Millisecond
}

// HotkeyDebounce returns the minimum interval between hotkey firings.
func (c *Config) HotkeyDebounce() time.Duration {
	return time.Duration(c.HotkeyDebounceMS) * time.Millisecond
}

// StaleSweepInterval returns the stale-entry sweep period.
func (c *Config) StaleSweepInterval() time.Duration {
	return time.Duration(c.StaleSweepSeconds) * time.Second
}

// GetActivityLogConfig returns the activity log configuration with defaults
// applied.
func (c *Config) GetActivityLogConfig() ActivityLogConfig {
	if c == nil {
		return ActivityLogConfig{}
	}
	cfg := c.ActivityLog
	if cfg.File == "" {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			home = os.Getenv("HOME")
		}
		if home == "" {
			// Last resort fallback - use current directory
			home = "."
		}
		cfg.File = filepath.Join(home, ".local/share/maxdesk/activity.log")
	}
	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxFiles == 0 {
		cfg.MaxFiles = 3
	}
	return cfg
}

// Save writes the configuration to the standard location.
//
// Note: this marshals the effective config and will not preserve comments or
// include structure from the original YAML.
func (c *Config) Save() error {
	path, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the configuration to path.
func (c *Config) SaveTo(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the effective configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ToggleHotkey) == "" {
		return &ValidationError{Path: "toggle_hotkey", Err: fmt.Errorf("toggle_hotkey is required")}
	}
	if c.HotkeyDebounceMS < 0 {
		return &ValidationError{Path: "hotkey_debounce_ms", Err: fmt.Errorf("hotkey_debounce_ms must be >= 0")}
	}
	switch c.CompanionPolicy {
	case CompanionNone, CompanionSameProcess:
	default:
		return &ValidationError{Path: "companion_policy", Err: fmt.Errorf("companion_policy must be one of: none, same-process")}
	}
	if c.SwitchSettleMS < 0 || c.SwitchSettleMS > 5000 {
		return &ValidationError{Path: "switch_settle_ms", Err: fmt.Errorf("switch_settle_ms must be between 0 and 5000")}
	}
	if c.StaleSweepSeconds < 1 {
		return &ValidationError{Path: "stale_sweep_seconds", Err: fmt.Errorf("stale_sweep_seconds must be >= 1")}
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{Path: "log_level", Err: fmt.Errorf("log_level must be one of: debug, info, warning, error")}
	}
	if c.Notifications.Enabled && strings.TrimSpace(c.Notifications.Command) == "" {
		return &ValidationError{Path: "notifications.command", Err: fmt.Errorf("notifications.command must not be empty when notifications are enabled")}
	}
	if c.ActivityLog.MaxSizeMB < 0 {
		return &ValidationError{Path: "activity_log.max_size_mb", Err: fmt.Errorf("max_size_mb must be >= 0")}
	}
	if c.ActivityLog.MaxFiles < 0 {
		return &ValidationError{Path: "activity_log.max_files", Err: fmt.Errorf("max_files must be >= 0")}
	}
	if addr := strings.TrimSpace(c.MetricsAddr); addr != "" && !strings.Contains(addr, ":") {
		return &ValidationError{Path: "metrics_addr", Err: fmt.Errorf("metrics_addr must be host:port")}
	}
	return nil
}

// validationWarnings reports settings that are valid but likely mistakes.
func (c *Config) validationWarnings() []string {
	var warnings []string
	if strings.TrimSpace(c.PinHotkey) != "" && c.PinHotkey == c.ToggleHotkey {
		warnings = append(warnings, "pin_hotkey is the same as toggle_hotkey; only one will fire")
	}
	if strings.TrimSpace(c.RestoreAllHotkey) != "" && c.RestoreAllHotkey == c.ToggleHotkey {
		warnings = append(warnings, "restore_all_hotkey is the same as toggle_hotkey; only one will fire")
	}
	if c.SwitchSettleMS == 0 {
		warnings = append(warnings, "switch_settle_ms is 0; some window managers drop maximize requests during the desktop switch")
	}
	return warnings
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []string {
	return c.validationWarnings()
}
