package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/1broseidon/maxdesk/internal/ipc"
	"github.com/1broseidon/maxdesk/internal/orchestrator"
	"github.com/1broseidon/maxdesk/internal/persist"
	"github.com/1broseidon/maxdesk/internal/platform"
	"github.com/1broseidon/maxdesk/internal/runtimepath"
	"github.com/1broseidon/maxdesk/internal/x11"
)

func runRecover(args []string) int {
	fs := flag.NewFlagSet("recover", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	force := fs.Bool("force", false, "Run even if a daemon appears to be running")
	verbose := fs.Bool("v", false, "Verbose logging")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: maxdesk recover [--force] [-v]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Remove temporary desktops recorded by a daemon that did not shut down")
		fmt.Fprintln(os.Stderr, "cleanly. Windows stay where they are. The daemon does this on start.")
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	if !*force && ipc.NewClient().Ping() == nil {
		fmt.Fprintln(os.Stderr, "daemon is running; its temporary desktops are still in use (use --force to override)")
		return 1
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	shadowPath, err := runtimepath.ShadowPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	conn, err := x11.NewConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to display: %v\n", err)
		return 1
	}
	defer conn.Close()

	backend, err := platform.NewLinuxBackend(conn)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	orch := orchestrator.New(orchestrator.Options{
		Windows:  backend,
		Desktops: backend,
		Shadow:   persist.NewShadow(shadowPath),
		Logger:   logger,
	})
	n, err := orch.Recover()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("removed: %d\n", n)
	return 0
}
