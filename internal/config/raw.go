package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// IncludeList supports either:
//
//	include: "/path/to/file.yaml"
//
// or:
//
//	include:
//	  - "/path/to/file.yaml"
//	  - "/path/to/dir"
type IncludeList []string

func (l *IncludeList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case 0:
		// Not present.
		*l = nil
		return nil
	case yaml.ScalarNode:
		if value.Tag != "!!str" {
			return fmt.Errorf("include must be a string or list of strings")
		}
		*l = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return fmt.Errorf("include entries must be strings")
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("include must be a string or list of strings")
	}
}

type RawNotificationsConfig struct {
	Enabled *bool   `yaml:"enabled"`
	Command *string `yaml:"command"`
}

type RawActivityLogConfig struct {
	Enabled   *bool   `yaml:"enabled"`
	File      *string `yaml:"file"`
	MaxSizeMB *int    `yaml:"max_size_mb"`
	MaxFiles  *int    `yaml:"max_files"`
}

// RawConfig mirrors Config with optional fields so that layered files only
// override what they set.
type RawConfig struct {
	Include           IncludeList             `yaml:"include"`
	ToggleHotkey      *string                 `yaml:"toggle_hotkey"`
	PinHotkey         *string                 `yaml:"pin_hotkey"`
	RestoreAllHotkey  *string                 `yaml:"restore_all_hotkey"`
	HotkeyDebounceMS  *int                    `yaml:"hotkey_debounce_ms"`
	CompanionPolicy   *string                 `yaml:"companion_policy"`
	SwitchSettleMS    *int                    `yaml:"switch_settle_ms"`
	StaleSweepSeconds *int                    `yaml:"stale_sweep_seconds"`
	DesktopNamePrefix *string                 `yaml:"desktop_name_prefix"`
	Display           *string                 `yaml:"display"`
	XAuthority        *string                 `yaml:"xauthority"`
	LogLevel          *string                 `yaml:"log_level"`
	Notifications     *RawNotificationsConfig `yaml:"notifications"`
	ActivityLog       *RawActivityLogConfig   `yaml:"activity_log"`
	MetricsAddr       *string                 `yaml:"metrics_addr"`
}

func (c RawConfig) merge(overlay RawConfig) RawConfig {
	out := c

	mergeString(&out.ToggleHotkey, overlay.ToggleHotkey)
	mergeString(&out.PinHotkey, overlay.PinHotkey)
	mergeString(&out.RestoreAllHotkey, overlay.RestoreAllHotkey)
	mergeInt(&out.HotkeyDebounceMS, overlay.HotkeyDebounceMS)
	mergeString(&out.CompanionPolicy, overlay.CompanionPolicy)
	mergeInt(&out.SwitchSettleMS, overlay.SwitchSettleMS)
	mergeInt(&out.StaleSweepSeconds, overlay.StaleSweepSeconds)
	mergeString(&out.DesktopNamePrefix, overlay.DesktopNamePrefix)
	mergeString(&out.Display, overlay.Display)
	mergeString(&out.XAuthority, overlay.XAuthority)
	mergeString(&out.LogLevel, overlay.LogLevel)
	mergeString(&out.MetricsAddr, overlay.MetricsAddr)

	if overlay.Notifications != nil {
		n := RawNotificationsConfig{}
		if out.Notifications != nil {
			n = *out.Notifications
		}
		if overlay.Notifications.Enabled != nil {
			n.Enabled = overlay.Notifications.Enabled
		}
		mergeString(&n.Command, overlay.Notifications.Command)
		out.Notifications = &n
	}

	if overlay.ActivityLog != nil {
		a := RawActivityLogConfig{}
		if out.ActivityLog != nil {
			a = *out.ActivityLog
		}
		if overlay.ActivityLog.Enabled != nil {
			a.Enabled = overlay.ActivityLog.Enabled
		}
		mergeString(&a.File, overlay.ActivityLog.File)
		mergeInt(&a.MaxSizeMB, overlay.ActivityLog.MaxSizeMB)
		mergeInt(&a.MaxFiles, overlay.ActivityLog.MaxFiles)
		out.ActivityLog = &a
	}

	return out
}

func mergeString(dst **string, overlay *string) {
	if overlay != nil {
		*dst = overlay
	}
}

func mergeInt(dst **int, overlay *int) {
	if overlay != nil {
		*dst = overlay
	}
}
