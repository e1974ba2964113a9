package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServiceCmd(t *testing.T) {
	cmd := serviceCmd

	assert.NotNil(t, cmd)
	assert.Equal(t, "service", cmd.Use)
	assert.Contains(t, cmd.Short, "Manage services")
	assert.True(t, cmd.HasSubCommands())

	// Check that all expected subcommands exist
	subcommands := []string{"list", "start", "stop", "restart", "status"}
	for _, subcmd := range subcommands {
		found := false
		for _, child := range cmd.Commands() {
			if child.Name() == subcmd {
				found = true
				break
			}
		}
		assert.True(t, found, "Subcommand %s not found", subcmd)
	}
}

func TestServiceListCmd(t *testing.T) {
	cmd := serviceListCmd

	assert.NotNil(t, cmd)
	assert.Equal(t, "list", cmd.Use)
	assert.Contains(t, cmd.Short, "List all services")
	assert.NotNil(t, cmd.RunE)
}

func TestServiceStartCmd(t *testing.T) {
	cmd := serviceStartCmd

	assert.NotNil(t, cmd)
	assert.Equal(t, "start <service-name>", cmd.Use)
	assert.Contains(t, cmd.Short, "Start a service")
	assert.NotNil(t, cmd.Args)
	assert.NotNil(t, cmd.RunE)
}

func TestServiceStopCmd(t *testing.T) {
	cmd := serviceStopCmd

	assert.NotNil(t, cmd)
	assert.Equal(t, "stop <service-name>", cmd.Use)
	assert.Contains(t, cmd.Short, "Stop a service")
	assert.NotNil(t, cmd.Args)
	assert.NotNil(t, cmd.RunE)
}

func TestServiceRestartCmd(t *testing.T) {
	cmd := serviceRestartCmd

	assert.NotNil(t, cmd)
	assert.Equal(t, "restart <service-name>", cmd.Use)
	assert.Contains(t, cmd.Short, "Restart a service")
	assert.NotNil(t, cmd.Args)
	assert.NotNil(t, cmd.RunE)
}

func TestServiceStatusCmd(t *testing.T) {
	cmd := serviceStatusCmd

	assert.NotNil(t, cmd)
	assert.Equal(t, "status <service-name>", cmd.Use)
	assert.Contains(t, cmd.Short, "Get detailed status")
	assert.NotNil(t, cmd.Args)
	assert.NotNil(t, cmd.RunE)
}

func TestUpCmd(t *testing.T) {
	assert.Equal(t, "up [service...]", upCmd.Use)
	assert.NotNil(t, upCmd.RunE)

	for _, flag := range []string{"debug", "config", "keep-going", "force"} {
		assert.NotNil(t, upCmd.Flags().Lookup(flag), "Flag %s not found", flag)
	}
}
