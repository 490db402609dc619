package activity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogger_DisabledIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	l, err := NewLogger(Config{Enabled: false, FilePath: path})
	if err != nil {
		t.Fatalf("NewLogger() error: %v", err)
	}
	l.Log(ActionMigrate, 1, nil)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("disabled logger created %s", path)
	}

	var nilLogger *Logger
	nilLogger.Log(ActionMigrate, 1, nil)
	if err := nilLogger.Close(); err != nil {
		t.Fatalf("nil Close() error: %v", err)
	}
}

func TestLogger_WritesSortedDetails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "activity.log")
	l, err := NewLogger(Config{Enabled: true, FilePath: path, MaxSizeMB: 10, MaxFiles: 3})
	if err != nil {
		t.Fatalf("NewLogger() error: %v", err)
	}
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	l.Log(ActionRestore, 0x2a, map[string]interface{}{"reason": "toggle", "count": 2})
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := `2026-01-02 03:04:05 [RESTORE] window=0x2a count=2 reason="toggle"` + "\n"
	if string(data) != want {
		t.Fatalf("entry = %q, want %q", data, want)
	}
}

func TestLogger_Rotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.log")
	l, err := NewLogger(Config{Enabled: true, FilePath: path, MaxSizeMB: 1, MaxFiles: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	l.currentSize = 1024 * 1024
	l.Log(ActionPin, 7, nil)

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("rotated file missing: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[PIN] window=0x7") {
		t.Fatalf("new file = %q", data)
	}
}
