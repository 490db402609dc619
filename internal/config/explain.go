package config

import (
	"fmt"
	"strings"
)

// Explain returns the effective value at the given YAML-like path and its source.
//
// Supported paths include:
//
//	toggle_hotkey
//	pin_hotkey
//	restore_all_hotkey
//	hotkey_debounce_ms
//	companion_policy
//	switch_settle_ms
//	stale_sweep_seconds
//	desktop_name_prefix
//	display
//	xauthority
//	log_level
//	metrics_addr
//	notifications.enabled
//	activity_log.max_files
func Explain(res *LoadResult, path string) (any, Source, error) {
	if res == nil || res.Config == nil {
		return nil, Source{}, fmt.Errorf("no config loaded")
	}
	if path == "" {
		return nil, Source{}, fmt.Errorf("path is empty")
	}

	value, err := lookupValue(res.Config, path)
	if err != nil {
		return nil, Source{}, err
	}

	if src, ok := res.Sources[path]; ok {
		return value, src, nil
	}
	return value, Source{Kind: SourceDefault, Name: "defaults"}, nil
}

func lookupValue(cfg *Config, path string) (any, error) {
	parts := strings.Split(path, ".")
	if len(parts) == 1 {
		switch parts[0] {
		case "toggle_hotkey":
			return cfg.ToggleHotkey, nil
		case "pin_hotkey":
			return cfg.PinHotkey, nil
		case "restore_all_hotkey":
			return cfg.RestoreAllHotkey, nil
		case "hotkey_debounce_ms":
			return cfg.HotkeyDebounceMS, nil
		case "companion_policy":
			return cfg.CompanionPolicy, nil
		case "switch_settle_ms":
			return cfg.SwitchSettleMS, nil
		case "stale_sweep_seconds":
			return cfg.StaleSweepSeconds, nil
		case "desktop_name_prefix":
			return cfg.DesktopNamePrefix, nil
		case "display":
			return cfg.Display, nil
		case "xauthority":
			return cfg.XAuthority, nil
		case "log_level":
			return cfg.LogLevel, nil
		case "metrics_addr":
			return cfg.MetricsAddr, nil
		case "notifications":
			return cfg.Notifications, nil
		case "activity_log":
			return cfg.ActivityLog, nil
		}
		return nil, fmt.Errorf("unknown path: %s", path)
	}
	if len(parts) != 2 {
		return nil, fmt.Errorf("unknown path: %s", path)
	}

	switch parts[0] {
	case "notifications":
		switch parts[1] {
		case "enabled":
			return cfg.Notifications.Enabled, nil
		case "command":
			return cfg.Notifications.Command, nil
		}
	case "activity_log":
		switch parts[1] {
		case "enabled":
			return cfg.ActivityLog.Enabled, nil
		case "file":
			return cfg.GetActivityLogConfig().File, nil
		case "max_size_mb":
			return cfg.ActivityLog.MaxSizeMB, nil
		case "max_files":
			return cfg.ActivityLog.MaxFiles, nil
		}
	}
	return nil, fmt.Errorf("unknown path: %s", path)
}
