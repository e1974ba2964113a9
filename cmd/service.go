package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/antinozorionktr/healthconnect-a2a/internal/api"
	"github.com/antinozorionktr/healthconnect-a2a/internal/config"
	"github.com/antinozorionktr/healthconnect-a2a/internal/reporting"
)

var (
	serviceOutputFormat string
	controlHost         string
	controlPort         int
)

// serviceCmd represents the service command
var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage services in a running fleet",
	Long: `Manage individual services of a running hcctl fleet.

These commands talk to the control endpoint of a launcher started with
'hcctl up', so lifecycle operations go through the supervisor that owns
the processes.

Available commands:
  list     - List all services with their status
  start    - Start a service
  stop     - Stop a service and everything that depends on it
  restart  - Restart a service
  status   - Get detailed status of a service`,
}

// serviceListCmd lists all services
var serviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all services",
	Long: `List all managed services with their state, health, and process
information as seen by the running launcher.`,
	Args: cobra.NoArgs,
	RunE: runServiceList,
}

// serviceStartCmd starts a service
var serviceStartCmd = &cobra.Command{
	Use:   "start <service-name>",
	Short: "Start a service",
	Long: `Start a specific service by name.

All of the service's dependencies must already be running; hcctl does not
cascade-start them. Use 'hcctl service list' to see available services.`,
	Args: cobra.ExactArgs(1),
	RunE: runServiceStart,
}

// serviceStopCmd stops a service
var serviceStopCmd = &cobra.Command{
	Use:   "stop <service-name>",
	Short: "Stop a service and its dependents",
	Long: `Stop a specific service by name.

Everything that depends on the service is stopped first, so no service is
left running without its dependencies. A service stopped this way stays
down until explicitly started again.`,
	Args: cobra.ExactArgs(1),
	RunE: runServiceStop,
}

// serviceRestartCmd restarts a service
var serviceRestartCmd = &cobra.Command{
	Use:   "restart <service-name>",
	Short: "Restart a service",
	Long: `Restart a specific service by name.

This stops the service if it is running and starts it again with a fresh
restart budget.`,
	Args: cobra.ExactArgs(1),
	RunE: runServiceRestart,
}

// serviceStatusCmd gets detailed status of a service
var serviceStatusCmd = &cobra.Command{
	Use:   "status <service-name>",
	Short: "Get detailed status of a service",
	Long: `Show one service's latest snapshot: state, health, last probe result,
process ID, and restart count.`,
	Args: cobra.ExactArgs(1),
	RunE: runServiceStatus,
}

func init() {
	rootCmd.AddCommand(serviceCmd)

	serviceCmd.AddCommand(serviceListCmd)
	serviceCmd.AddCommand(serviceStartCmd)
	serviceCmd.AddCommand(serviceStopCmd)
	serviceCmd.AddCommand(serviceRestartCmd)
	serviceCmd.AddCommand(serviceStatusCmd)

	serviceCmd.PersistentFlags().StringVarP(&serviceOutputFormat, "output", "o", "table", "Output format (table, json)")
	serviceCmd.PersistentFlags().StringVar(&controlHost, "host", "", "Control endpoint host (default from configuration)")
	serviceCmd.PersistentFlags().IntVar(&controlPort, "port", 0, "Control endpoint port (default from configuration)")
}

// controlClient builds an API client for the running launcher, preferring
// explicit flags over the loaded configuration.
func controlClient() (*api.Client, error) {
	host := controlHost
	port := controlPort
	if host == "" || port == 0 {
		cfg, err := config.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		if host == "" {
			host = cfg.Control.Host
		}
		if port == 0 {
			port = cfg.Control.Port
		}
	}
	return api.NewClient(host, port), nil
}

func runServiceList(cmd *cobra.Command, args []string) error {
	client, err := controlClient()
	if err != nil {
		return err
	}

	status, err := client.Status(cmd.Context())
	if err != nil {
		return err
	}

	if serviceOutputFormat == "json" {
		return printJSON(status)
	}
	printStatusTable(status)
	return nil
}

func runServiceStart(cmd *cobra.Command, args []string) error {
	return lifecycleOp(cmd.Context(), args[0], "started", func(ctx context.Context, client *api.Client, name string) error {
		return client.StartService(ctx, name)
	})
}

func runServiceStop(cmd *cobra.Command, args []string) error {
	return lifecycleOp(cmd.Context(), args[0], "stopped", func(ctx context.Context, client *api.Client, name string) error {
		return client.StopService(ctx, name)
	})
}

func runServiceRestart(cmd *cobra.Command, args []string) error {
	return lifecycleOp(cmd.Context(), args[0], "restarted", func(ctx context.Context, client *api.Client, name string) error {
		return client.RestartService(ctx, name)
	})
}

func runServiceStatus(cmd *cobra.Command, args []string) error {
	client, err := controlClient()
	if err != nil {
		return err
	}

	snapshot, err := client.ServiceStatus(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if serviceOutputFormat == "json" {
		return printJSON(snapshot)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Name:\t%s\n", snapshot.Name)
	fmt.Fprintf(w, "State:\t%s\n", snapshot.State)
	fmt.Fprintf(w, "Health:\t%s\n", snapshot.Health)
	fmt.Fprintf(w, "Last probe:\t%s\n", formatProbe(snapshot))
	if snapshot.BlockedBy != "" {
		fmt.Fprintf(w, "Blocked by:\t%s\n", snapshot.BlockedBy)
	}
	if snapshot.PID != 0 {
		fmt.Fprintf(w, "PID:\t%d\n", snapshot.PID)
	}
	fmt.Fprintf(w, "Restarts:\t%d\n", snapshot.RestartCount)
	if snapshot.LastError != "" {
		fmt.Fprintf(w, "Last error:\t%s\n", snapshot.LastError)
	}
	return w.Flush()
}

func lifecycleOp(ctx context.Context, name, done string, op func(context.Context, *api.Client, string) error) error {
	client, err := controlClient()
	if err != nil {
		return err
	}
	if err := op(ctx, client, name); err != nil {
		return err
	}
	fmt.Printf("Service %s %s\n", name, done)
	return nil
}

func printJSON(payload any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func printStatusTable(status reporting.SystemHealth) {
	verdict := "UNHEALTHY"
	if status.Healthy {
		verdict = "HEALTHY"
	}
	fmt.Printf("Fleet: %s\n\n", verdict)

	names := make([]string, 0, len(status.Services))
	for name := range status.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATE\tHEALTH\tPROBE\tPID\tRESTARTS")
	for _, name := range names {
		snapshot := status.Services[name]
		pid := "-"
		if snapshot.PID != 0 {
			pid = fmt.Sprintf("%d", snapshot.PID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			snapshot.Name, snapshot.State, snapshot.Health, formatProbe(snapshot), pid, snapshot.RestartCount)
	}
	w.Flush()
}

func formatProbe(snapshot reporting.ServiceHealthSnapshot) string {
	if snapshot.LastProbeAt.IsZero() {
		return "never"
	}
	result := "fail"
	if snapshot.LastProbeOK {
		result = "ok"
	}
	return fmt.Sprintf("%s (%s ago)", result, time.Since(snapshot.LastProbeAt).Round(time.Second))
}
