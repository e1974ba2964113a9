package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

// errFleetUnhealthy makes 'hcctl status' exit non-zero for scripting.
var errFleetUnhealthy = errors.New("fleet is unhealthy")

// statusCmd shows the aggregate fleet status, shorthand for 'service list'.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the aggregate fleet status",
	Long: `Show the running fleet's aggregate health verdict and the per-service
detail behind it.

The command exits non-zero when the fleet is unhealthy, so it can be used
directly in scripts and health checks:

  hcctl status && echo "all good"`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := controlClient()
	if err != nil {
		return err
	}

	status, err := client.Status(cmd.Context())
	if err != nil {
		return err
	}

	if serviceOutputFormat == "json" {
		if err := printJSON(status); err != nil {
			return err
		}
	} else {
		printStatusTable(status)
	}

	if !status.Healthy {
		return errFleetUnhealthy
	}
	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&serviceOutputFormat, "output", "o", "table", "Output format (table, json)")
	statusCmd.Flags().StringVar(&controlHost, "host", "", "Control endpoint host (default from configuration)")
	statusCmd.Flags().IntVar(&controlPort, "port", 0, "Control endpoint port (default from configuration)")
}
