// Package picker asks the user to choose one tracked window through an
// external dmenu-style launcher.
package picker

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrCancelled is returned when the launcher closes without a selection.
var ErrCancelled = errors.New("selection cancelled")

// Launchers lists the supported commands in detection order.
var Launchers = []string{"rofi", "fuzzel", "wofi", "dmenu"}

// Item is one selectable window.
type Item struct {
	Window uint32
	Label  string
}

// Launcher runs a dmenu-compatible command.
type Launcher struct {
	command string
	// indexOutput launchers print the selected row number.
	indexOutput bool
	run         func(name string, args []string, input string) (string, error)
}

// New returns the launcher called name. "" and "auto" pick the first one
// found in PATH.
func New(name string) (*Launcher, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "auto" {
		for _, candidate := range Launchers {
			if _, err := exec.LookPath(candidate); err == nil {
				return newLauncher(candidate), nil
			}
		}
		return nil, fmt.Errorf("no launcher found in PATH (looked for: %s)", strings.Join(Launchers, ", "))
	}

	for _, candidate := range Launchers {
		if candidate != name {
			continue
		}
		if _, err := exec.LookPath(name); err != nil {
			return nil, fmt.Errorf("launcher %q not found in PATH", name)
		}
		return newLauncher(name), nil
	}
	return nil, fmt.Errorf("unknown launcher %q (expected: auto, %s)", name, strings.Join(Launchers, ", "))
}

func newLauncher(command string) *Launcher {
	return &Launcher{
		command:     command,
		indexOutput: command == "rofi" || command == "fuzzel",
		run:         runCommand,
	}
}

// Name returns the launcher command.
func (l *Launcher) Name() string {
	return l.command
}

// Choose shows items and returns the one picked.
func (l *Launcher) Choose(prompt string, items []Item) (Item, error) {
	if len(items) == 0 {
		return Item{}, errors.New("nothing to choose from")
	}
	rows := make([]string, len(items))
	for i, item := range items {
		rows[i] = Row(item)
	}

	out, err := l.run(l.command, l.args(prompt), strings.Join(rows, "\n"))
	if err != nil {
		return Item{}, err
	}
	return l.parse(strings.TrimSpace(out), items, rows)
}

func (l *Launcher) args(prompt string) []string {
	switch l.command {
	case "rofi":
		return []string{"-dmenu", "-i", "-p", prompt, "-format", "i", "-no-custom"}
	case "fuzzel":
		return []string{"--dmenu", "--index", "--prompt", prompt + " "}
	case "wofi":
		return []string{"--dmenu", "--insensitive", "--prompt", prompt}
	default:
		return []string{"-i", "-p", prompt}
	}
}

func (l *Launcher) parse(selection string, items []Item, rows []string) (Item, error) {
	if selection == "" {
		return Item{}, ErrCancelled
	}
	if l.indexOutput {
		if idx, err := strconv.Atoi(selection); err == nil {
			if idx < 0 || idx >= len(items) {
				return Item{}, fmt.Errorf("selection index %d out of range", idx)
			}
			return items[idx], nil
		}
	}
	for i, row := range rows {
		if row == selection {
			return items[i], nil
		}
	}
	return Item{}, fmt.Errorf("unknown selection %q", selection)
}

// Row renders item as a single launcher line. The window id keeps rows
// with equal titles distinct.
func Row(item Item) string {
	label := strings.Join(strings.Fields(item.Label), " ")
	if label == "" {
		label = "(untitled)"
	}
	return fmt.Sprintf("%s  [0x%x]", label, item.Window)
}

func runCommand(name string, args []string, input string) (string, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdin = strings.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err == nil {
		return string(out), nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// 1 is "no selection" for every supported launcher, 130 is Ctrl+C.
		if code := exitErr.ExitCode(); code == 1 || code == 130 {
			return "", ErrCancelled
		}
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return "", fmt.Errorf("%s failed: %s", name, msg)
	}
	return "", fmt.Errorf("%s failed: %w", name, err)
}
