// Package app wires configuration, orchestrator, and control endpoint into
// the foreground launcher process and owns its shutdown sequence.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/antinozorionktr/healthconnect-a2a/internal/api"
	"github.com/antinozorionktr/healthconnect-a2a/internal/config"
	"github.com/antinozorionktr/healthconnect-a2a/internal/orchestrator"
	"github.com/antinozorionktr/healthconnect-a2a/pkg/logging"
)

// Application bundles the launcher's long-lived components.
type Application struct {
	Config       *Config
	Orchestrator *orchestrator.Orchestrator
	ControlAPI   *api.Server
}

// NewApplication loads configuration and builds the orchestrator. Nothing is
// started yet.
func NewApplication(cfg *Config) (*Application, error) {
	logLevel := logging.LevelInfo
	if cfg.Debug {
		logLevel = logging.LevelDebug
	}
	logging.Init(logLevel, os.Stderr)

	var launcherCfg config.LauncherConfig
	var err error
	if cfg.ConfigFile != "" {
		launcherCfg, err = config.LoadConfigFromFile(cfg.ConfigFile)
	} else {
		launcherCfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.Validate(launcherCfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.LauncherConfig = &launcherCfg

	orch, err := orchestrator.New(orchestrator.Config{
		Launcher: launcherCfg,
		Only:     cfg.Only,
		FailFast: !cfg.KeepGoing,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	app := &Application{
		Config:       cfg,
		Orchestrator: orch,
	}
	if launcherCfg.Control.Enabled {
		app.ControlAPI = api.NewServer(orch, launcherCfg.Control.Host, launcherCfg.Control.Port)
	}
	return app, nil
}

// Run launches the fleet and blocks until an interrupt or until the launch
// fails. It always tears the fleet down before returning.
func (a *Application) Run(ctx context.Context) error {
	if !a.Config.Force {
		if err := a.Orchestrator.CheckPortsFree(); err != nil {
			return err
		}
	}

	if a.ControlAPI != nil {
		if err := a.ControlAPI.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.ControlAPI.Shutdown(shutdownCtx); err != nil {
				logging.Error("App", err, "Control endpoint shutdown was not clean")
			}
		}()
	}

	// Mirror service transitions to the launch log.
	events := a.Orchestrator.SubscribeToStateChanges()
	go func() {
		for event := range events {
			if event.Error != nil {
				logging.Warn("App", "Service %s: %s -> %s (%v)", event.Label, event.OldState, event.NewState, event.Error)
				continue
			}
			logging.Info("App", "Service %s: %s -> %s", event.Label, event.OldState, event.NewState)
		}
	}()

	if err := a.Orchestrator.Start(ctx); err != nil {
		return err
	}

	status := a.Orchestrator.Status()
	if status.Healthy {
		logging.Info("App", "All services are ready. Press Ctrl+C to stop.")
	} else {
		logging.Warn("App", "Launch finished but the fleet is not fully healthy. Press Ctrl+C to stop.")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logging.Info("App", "Received %s, shutting down services", sig)
	case <-ctx.Done():
		logging.Info("App", "Context cancelled, shutting down services")
	}

	if err := a.Orchestrator.Stop(); err != nil {
		return fmt.Errorf("shutdown was not fully clean: %w", err)
	}
	return nil
}
