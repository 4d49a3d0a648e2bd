package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/agentdeck/agentdeck/internal/archive"
	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/engine"
	"github.com/agentdeck/agentdeck/internal/logging"
	"github.com/agentdeck/agentdeck/internal/supervise"
	"github.com/agentdeck/agentdeck/internal/ws"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("agentdeck failed")
	}
}

// run owns the process lifecycle so that a signal-driven shutdown unwinds
// through the defers (archive index close included) instead of exiting
// from a goroutine.
func run() error {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	logPath := flag.String("log", "", "Override agent log path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("loading config %s: %w", *configPath, err)
		}
		cfg = config.Default()
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *logPath != "" {
		cfg.Agent.LogPath = *logPath
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

	if cfg.Agent.LogPath == "" {
		return fmt.Errorf("agent.log_path must be configured")
	}

	projectDir := cfg.Agent.WorkDir
	if projectDir == "" {
		projectDir = filepath.Dir(cfg.Agent.LogPath)
	}

	sup := supervise.New(
		supervise.LockPath(projectDir, cfg.Agent.LockName),
		nil,
		cfg.Supervisor.StopTimeout,
	)

	var archives *archive.Manager
	if cfg.Archive.Enabled {
		archives, err = archive.NewManager(cfg.Archive.Dir)
		if err != nil {
			return fmt.Errorf("opening archive store %s: %w", cfg.Archive.Dir, err)
		}
		defer archives.Close()
	}

	eng := engine.New(engine.Options{
		LogPath:      cfg.Agent.LogPath,
		PollInterval: cfg.Engine.PollInterval,
		Supervisor:   sup,
		Command: supervise.Command{
			Path: cfg.Agent.Command,
			Args: cfg.Agent.Args,
			Dir:  cfg.Agent.WorkDir,
			Env:  cfg.Agent.Env,
		},
		ResumeFlag: cfg.Agent.ResumeFlag,
		Archive:    archives,
	})

	broadcaster := ws.NewBroadcaster(eng, cfg.Engine.BroadcastThrottle, cfg.Engine.SnapshotInterval)
	server := ws.NewServer(eng, broadcaster, archives, cfg.Server.AllowedOrigins, cfg.Server.AuthToken)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go eng.Run(ctx)
	go broadcaster.Run(ctx)

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	errCh := make(chan error, 1)
	go func() {
		errCh <- ws.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logging.Info().Msg("shutting down")
		cancel()
		if sup.State() == supervise.StateRunning {
			if err := sup.Stop(); err != nil {
				logging.Warn().Err(err).Msg("agent stop on shutdown failed")
			}
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
}
