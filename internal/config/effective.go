package config

import (
	"fmt"
	"strings"
)

// ValidationError points at the offending config path and, when known, the
// file position that set it.
type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// BuildEffectiveConfig applies raw on top of the defaults.
func BuildEffectiveConfig(raw RawConfig) (*Config, error) {
	cfg := DefaultConfig()

	if raw.ToggleHotkey != nil {
		cfg.ToggleHotkey = strings.TrimSpace(*raw.ToggleHotkey)
	}
	if raw.PinHotkey != nil {
		cfg.PinHotkey = strings.TrimSpace(*raw.PinHotkey)
	}
	if raw.RestoreAllHotkey != nil {
		cfg.RestoreAllHotkey = strings.TrimSpace(*raw.RestoreAllHotkey)
	}
	if raw.HotkeyDebounceMS != nil {
		cfg.HotkeyDebounceMS = *raw.HotkeyDebounceMS
	}
	if raw.CompanionPolicy != nil {
		cfg.CompanionPolicy = strings.ToLower(strings.TrimSpace(*raw.CompanionPolicy))
	}
	if raw.SwitchSettleMS != nil {
		cfg.SwitchSettleMS = *raw.SwitchSettleMS
	}
	if raw.StaleSweepSeconds != nil {
		cfg.StaleSweepSeconds = *raw.StaleSweepSeconds
	}
	if raw.DesktopNamePrefix != nil {
		cfg.DesktopNamePrefix = *raw.DesktopNamePrefix
	}
	if raw.Display != nil {
		cfg.Display = strings.TrimSpace(*raw.Display)
	}
	if raw.XAuthority != nil {
		cfg.XAuthority = strings.TrimSpace(*raw.XAuthority)
	}
	if raw.LogLevel != nil {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(*raw.LogLevel))
	}
	if raw.MetricsAddr != nil {
		cfg.MetricsAddr = strings.TrimSpace(*raw.MetricsAddr)
	}

	if n := raw.Notifications; n != nil {
		if n.Enabled != nil {
			cfg.Notifications.Enabled = *n.Enabled
		}
		if n.Command != nil {
			cfg.Notifications.Command = strings.TrimSpace(*n.Command)
		}
	}

	if a := raw.ActivityLog; a != nil {
		if a.Enabled != nil {
			cfg.ActivityLog.Enabled = *a.Enabled
		}
		if a.File != nil {
			cfg.ActivityLog.File = expandHome(strings.TrimSpace(*a.File))
		}
		if a.MaxSizeMB != nil {
			cfg.ActivityLog.MaxSizeMB = *a.MaxSizeMB
		}
		if a.MaxFiles != nil {
			cfg.ActivityLog.MaxFiles = *a.MaxFiles
		}
	}

	return cfg, nil
}
