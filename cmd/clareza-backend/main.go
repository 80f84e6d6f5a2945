package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clareza/clareza/internal/bridge"
	"github.com/clareza/clareza/internal/config"
	"github.com/clareza/clareza/internal/dispatch"
	"github.com/clareza/clareza/internal/document"
	"github.com/clareza/clareza/internal/history"
	"github.com/clareza/clareza/internal/logging"
	"github.com/clareza/clareza/internal/recent"
	"github.com/clareza/clareza/internal/scheduler"
	"github.com/clareza/clareza/internal/server"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to config file (.yaml or .toml)")
	port := flag.Int("port", 0, "Port to listen on (overrides config)")
	bind := flag.String("bind", "", "Address to bind to (overrides config)")
	model := flag.String("model", "", "Initial model (overrides config)")
	mode := flag.String("mode", "", "Bridge mode: oneshot or interactive (overrides config)")
	showVersion := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Load config
	var cfg *config.Config
	var err error

	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = config.Default()
	}

	if *port > 0 {
		cfg.Port = *port
	}
	if *bind != "" {
		cfg.Bind = *bind
	}
	if *model != "" {
		cfg.Bridge.Model = *model
	}
	if *mode != "" {
		cfg.Bridge.Mode = *mode
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Bind != "127.0.0.1" && cfg.Bind != "localhost" && cfg.Bind != "::1" {
		fmt.Fprintf(os.Stderr, "Warning: backend bind=%q exposes unauthenticated endpoints. Prefer 127.0.0.1.\n", cfg.Bind)
	}

	log := logging.New(logging.Config{Level: logging.ParseLevel(cfg.LogLevel)})
	if err := run(cfg, log); err != nil {
		log.Error("backend failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logging.Logger) error {
	disp := dispatch.New(dispatch.Config{
		QueueSize:  cfg.Bridge.EventBuffer,
		ReplaySize: cfg.Bridge.ReplayBuffer,
		Log:        log,
	})
	defer disp.Close()

	models, err := bridge.NewModelConfig(cfg.Bridge.Model)
	if err != nil {
		return err
	}

	hist, err := history.NewStore(cfg.HistoryDir())
	if err != nil {
		return err
	}

	docs := document.NewStore(document.Config{
		Dir:               cfg.DocumentsDir(),
		Language:          cfg.Documents.Language,
		VersionsRetention: cfg.Documents.VersionsRetention,
		Log:               log,
	})

	rec, err := recent.Open(cfg.RecentDBPath())
	if err != nil {
		return err
	}
	defer rec.Close()

	opts := bridge.OptionsFromConfig(cfg)
	opts.Models = models
	opts.Sink = disp
	opts.Log = log
	opts.History = hist
	oneShot := bridge.NewOneShot(opts)
	interactive := bridge.NewInteractive(opts)
	active, err := bridge.Select(cfg.Bridge.Mode, oneShot, interactive)
	if err != nil {
		return err
	}

	var sched *scheduler.Scheduler
	if cfg.Documents.BackupSchedule != "" {
		sched, err = scheduler.New(scheduler.Config{
			Schedule: cfg.Documents.BackupSchedule,
			Batch:    cfg.Documents.BackupBatch,
			Log:      log,
		}, docs, rec)
		if err != nil {
			return err
		}
		if err := sched.Start(); err != nil {
			return err
		}
	}

	srv := server.New(server.Deps{
		Config:      cfg,
		Version:     version,
		Log:         log,
		Bridge:      active,
		OneShot:     oneShot,
		Interactive: interactive,
		Models:      models,
		Dispatcher:  disp,
		Documents:   docs,
		Recent:      rec,
		History:     hist,
		Scheduler:   sched,
	})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err = <-errCh:
	case <-sigCh:
		fmt.Fprintf(os.Stderr, "\nShutting down...\n")
	}

	// Bridges first so their final notifications reach subscribers, then the
	// dispatcher, which ends every event stream, then the listener.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	oneShot.Shutdown()
	interactive.Shutdown()
	if sched != nil {
		if serr := sched.Stop(ctx); serr != nil {
			log.Warn("scheduler shutdown", map[string]any{"error": serr.Error()})
		}
	}
	disp.Close()
	if serr := srv.Shutdown(ctx); serr != nil {
		log.Warn("server shutdown", map[string]any{"error": serr.Error()})
	}
	return err
}
