package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/1broseidon/maxdesk/internal/ipc"
	"github.com/1broseidon/maxdesk/internal/picker"
)

func runPick(args []string) int {
	fs := flag.NewFlagSet("pick", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	launcherName := fs.String("launcher", "auto", "Launcher: auto, rofi, fuzzel, wofi, dmenu")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: maxdesk pick [--launcher NAME]")
		fmt.Fprintln(os.Stderr, "")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	client := ipc.NewClient()
	windows, err := client.ListTracked()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if len(windows) == 0 {
		fmt.Println("no windows on temporary desktops")
		return 0
	}

	launcher, err := picker.New(*launcherName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	items := make([]picker.Item, len(windows))
	for i, w := range windows {
		items[i] = picker.Item{Window: w.Window, Label: w.Label}
	}
	item, err := launcher.Choose("restore", items)
	if errors.Is(err, picker.ErrCancelled) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	w, err := client.Toggle(item.Window)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("restored: window 0x%x\n", w)
	return 0
}
