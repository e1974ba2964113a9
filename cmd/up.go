package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/antinozorionktr/healthconnect-a2a/internal/app"
)

// upDebug enables verbose logging across the launcher.
var upDebug bool

// upConfigFile overrides the layered configuration lookup.
var upConfigFile string

// upKeepGoing continues the launch past a service that never becomes ready,
// parking only its dependents instead of aborting the whole fleet.
var upKeepGoing bool

// upForce skips the pre-launch check that every configured port is free.
var upForce bool

// upCmd is the main command of hcctl: it launches the fleet in the
// foreground and supervises it until interrupted.
var upCmd = &cobra.Command{
	Use:   "up [service...]",
	Short: "Launch the service fleet in the foreground",
	Long: `Launches the configured services in dependency order and supervises them
until interrupted.

Each service is started only after everything it depends on has passed its
readiness probe. A service that never becomes ready aborts the launch and
tears down whatever already started, unless --keep-going is given, in which
case only its dependents are held back.

Naming services restricts the launch to those services plus their
dependencies:

  hcctl up coordinator-agent

While running, hcctl serves the aggregate health verdict and per-service
control operations on the configured control endpoint. Use 'hcctl status'
and 'hcctl service' from another terminal to interact with the running
fleet.

Configuration:
  hcctl loads configuration from .healthconnect/config.yaml in the current
  directory or the user config directory, with built-in defaults for the
  HealthConnect fleet. Use --config to point at an explicit file.`,
	RunE: runUp,
}

// runUp is the main entry point for the up command
func runUp(cmd *cobra.Command, args []string) error {
	only := args
	if len(only) == 1 && only[0] == "all" {
		only = nil
	}
	cfg := app.NewConfig(upDebug, upKeepGoing, upForce, upConfigFile, only)

	application, err := app.NewApplication(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(upCmd)

	upCmd.Flags().BoolVar(&upDebug, "debug", false, "Enable debug logging")
	upCmd.Flags().StringVar(&upConfigFile, "config", "", "Path to an explicit configuration file")
	upCmd.Flags().BoolVar(&upKeepGoing, "keep-going", false, "Continue the launch when a service never becomes ready")
	upCmd.Flags().BoolVar(&upForce, "force", false, "Skip the pre-launch port availability check")
}
