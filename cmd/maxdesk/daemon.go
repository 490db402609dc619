package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/1broseidon/maxdesk/internal/activity"
	"github.com/1broseidon/maxdesk/internal/config"
	"github.com/1broseidon/maxdesk/internal/control"
	"github.com/1broseidon/maxdesk/internal/daemon"
	"github.com/1broseidon/maxdesk/internal/hotkeys"
	"github.com/1broseidon/maxdesk/internal/ipc"
	"github.com/1broseidon/maxdesk/internal/metrics"
	"github.com/1broseidon/maxdesk/internal/monitor"
	"github.com/1broseidon/maxdesk/internal/notify"
	"github.com/1broseidon/maxdesk/internal/orchestrator"
	"github.com/1broseidon/maxdesk/internal/persist"
	"github.com/1broseidon/maxdesk/internal/platform"
	"github.com/1broseidon/maxdesk/internal/runtimepath"
	"github.com/1broseidon/maxdesk/internal/tracker"
	"github.com/1broseidon/maxdesk/internal/x11"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds the restore-everything pass on exit.
const shutdownTimeout = 30 * time.Second

func runDaemon(args []string) int {
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	path := fs.String("config", "", "Config file path (default: ~/.config/maxdesk/config.yaml)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: maxdesk daemon [--config PATH]")
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon takes no arguments")
		fs.Usage()
		return 2
	}

	res, err := loadConfigResult(*path)
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 1
	}
	cfg := res.Config
	for _, w := range res.Warnings {
		log.Printf("Config warning: %s", w)
	}

	if ipc.NewClient().Ping() == nil {
		log.Printf("maxdesk daemon is already running")
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	applyDisplayEnv(cfg)
	conn, err := x11.NewConnection()
	if err != nil {
		log.Printf("Failed to connect to display: %v", err)
		return 1
	}
	closeX := sync.OnceFunc(conn.Close)
	defer closeX()

	windows, err := platform.NewLinuxWindows(conn)
	if err != nil {
		log.Printf("Failed to create window service: %v", err)
		return 1
	}

	// current is the desktop service in use, replaced on every reconnect.
	var current atomic.Pointer[platform.LinuxBackend]
	connect := func() (platform.DesktopService, error) {
		b, err := platform.NewLinuxBackend(conn)
		if err != nil {
			return nil, err
		}
		current.Store(b)
		return b, nil
	}
	var desktops platform.DesktopService
	if d, err := connect(); err != nil {
		logger.Warn("no EWMH window manager, starting degraded", "error", err)
	} else {
		desktops = d
	}

	shadowPath, err := runtimepath.ShadowPath()
	if err != nil {
		log.Printf("Failed to resolve state path: %v", err)
		return 1
	}
	shadow := persist.NewShadow(shadowPath)
	m := metrics.New()
	m.WatchHandles(func() int64 {
		if b := current.Load(); b != nil {
			return b.LiveHandles()
		}
		return 0
	})

	notifier, activityLog := buildNotifier(cfg, logger)
	defer activityLog.Close()

	store := tracker.NewStore(shadow, windows.IsWindow, logger)
	loop := control.NewLoop(control.DefaultQueueSize, logger)

	var mon *monitor.Monitor
	watcher, err := x11.NewWatcher(conn, x11.WindowEvents{
		OnStateChange: func(id uint32) { mon.StateChanged(platform.WindowID(id)) },
		OnDestroy:     func(id uint32) { mon.Destroyed(platform.WindowID(id)) },
		OnWMRestart:   func() { mon.ShellRestarted() },
	})
	if err != nil {
		log.Printf("Failed to subscribe to window events: %v", err)
		return 1
	}

	orch := orchestrator.New(orchestrator.Options{
		Windows:      windows,
		Desktops:     desktops,
		Connect:      connect,
		Store:        store,
		Shadow:       shadow,
		Events:       platform.LinuxEvents{Watcher: watcher},
		Notifier:     notifier,
		Metrics:      m,
		Logger:       logger,
		Companions:   orchestrator.CompanionPolicy(cfg.CompanionPolicy),
		SwitchSettle: cfg.SwitchSettle(),
		NamePrefix:   cfg.DesktopNamePrefix,
	})
	mon = monitor.New(monitor.Config{
		Loop:    loop,
		Store:   store,
		Windows: windows,
		Target:  orch,
		Metrics: m,
		Logger:  logger,
		OnShellRestart: func(available bool) {
			if !available {
				notifier.Notify(notify.Event{Kind: notify.KindFailed, Err: orchestrator.ErrDegraded})
			}
		},
	})

	// The loop is not running yet, so recovery runs inline.
	if n, err := orch.Recover(); errors.Is(err, orchestrator.ErrDegraded) {
		logger.Warn("crash recovery deferred until a window manager is available")
	} else if err != nil {
		logger.Warn("crash recovery failed", "error", err)
	} else if n > 0 {
		log.Printf("Removed %d orphaned desktop(s) from a previous run", n)
	}

	reload := func(ctx context.Context) error {
		res, err := loadConfigResult(*path)
		if err != nil {
			return err
		}
		next := res.Config
		level.Set(parseLevel(next.LogLevel))
		return loop.Do(ctx, "reload", func() error {
			orch.Retune(orchestrator.Tuning{
				Companions:   orchestrator.CompanionPolicy(next.CompanionPolicy),
				SwitchSettle: next.SwitchSettle(),
				NamePrefix:   next.DesktopNamePrefix,
			})
			logger.Info("configuration reloaded", "companions", next.CompanionPolicy, "settle", next.SwitchSettle())
			return nil
		})
	}

	svc := daemon.NewService(daemon.ServiceConfig{
		Loop:         loop,
		Orchestrator: orch,
		Windows:      windows,
		Reload:       reload,
		Logger:       logger,
	})

	hk := hotkeys.NewHandler(conn.XUtil, conn.Root, svc, cfg.HotkeyDebounce(), logger)
	if err := hk.RegisterAll(hotkeys.Bindings{
		Toggle:     cfg.ToggleHotkey,
		Pin:        cfg.PinHotkey,
		RestoreAll: cfg.RestoreAllHotkey,
	}); err != nil {
		log.Printf("Failed to register hotkeys: %v", err)
		return 1
	}

	ipcServer, err := ipc.NewServer(ipc.ServerConfig{Controller: svc, Logger: logger})
	if err != nil {
		log.Printf("Failed to create IPC server: %v", err)
		return 1
	}

	reconciler := daemon.NewReconciler(daemon.ReconcilerConfig{
		Interval: cfg.StaleSweepInterval(),
		Logger:   logger,
	}, loop, orch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return reconciler.Run(gctx) })
	g.Go(func() error { return ipcServer.Run(gctx) })
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return m.Serve(gctx, cfg.MetricsAddr) })
	}
	g.Go(func() error {
		conn.EventLoop()
		if gctx.Err() == nil {
			return errors.New("X event loop exited")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		hk.Unregister()
		conn.Quit()
		closeX()
		return nil
	})
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
		defer signal.Stop(sigCh)
		for {
			select {
			case <-gctx.Done():
				return nil
			case sig := <-sigCh:
				if sig == syscall.SIGHUP {
					log.Println("Received SIGHUP, reloading config...")
					if err := reload(gctx); err != nil {
						log.Printf("Config reload failed: %v", err)
					}
					continue
				}
				log.Println("Shutting down maxdesk daemon...")
				shutdown(loop, orch, shadow, logger)
				cancel()
				return nil
			}
		}
	})

	log.Printf("maxdesk daemon started (toggle: %s, companions: %s)", cfg.ToggleHotkey, cfg.CompanionPolicy)
	if err := g.Wait(); err != nil {
		log.Printf("maxdesk daemon stopped: %v", err)
		return 1
	}
	log.Println("maxdesk daemon stopped")
	return 0
}

// shutdown restores every tracked window on the loop and removes the shadow.
func shutdown(loop *control.Loop, orch *orchestrator.Orchestrator, shadow *persist.Shadow, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := loop.Do(ctx, "shutdown", func() error {
		n := orch.RestoreAll(orchestrator.ReasonShutdown)
		logger.Info("restored windows before exit", "count", n)
		return nil
	})
	if err != nil {
		logger.Error("shutdown restore failed", "error", err)
		return
	}
	if err := shadow.Delete(); err != nil {
		logger.Warn("failed to delete shadow", "error", err)
	}
}

func applyDisplayEnv(cfg *config.Config) {
	if cfg.Display != "" {
		os.Setenv("DISPLAY", cfg.Display)
	}
	if cfg.XAuthority != "" {
		os.Setenv("XAUTHORITY", cfg.XAuthority)
	}
}

// buildNotifier fans events out to the log, the desktop notification command
// and the activity file as configured.
func buildNotifier(cfg *config.Config, logger *slog.Logger) (notify.Notifier, *activity.Logger) {
	notifiers := notify.Multi{notify.LogNotifier{Logger: logger}}
	if cfg.Notifications.Enabled {
		notifiers = append(notifiers, notify.NewCommandNotifier(cfg.Notifications.Command, logger))
	}

	actCfg := cfg.GetActivityLogConfig()
	activityLog, err := activity.NewLogger(activity.Config{
		Enabled:   actCfg.Enabled,
		FilePath:  actCfg.File,
		MaxSizeMB: actCfg.MaxSizeMB,
		MaxFiles:  actCfg.MaxFiles,
	})
	if err != nil {
		logger.Warn("activity log disabled", "error", err)
		activityLog, _ = activity.NewLogger(activity.Config{})
	}
	if actCfg.Enabled && err == nil {
		notifiers = append(notifiers, notify.ActivityNotifier{Log: activityLog})
	}
	return notifiers, activityLog
}
