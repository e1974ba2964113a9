package app

import (
	"github.com/antinozorionktr/healthconnect-a2a/internal/config"
)

// Config holds the application configuration for a foreground launch.
type Config struct {
	// Debug enables verbose logging.
	Debug bool

	// ConfigFile overrides the layered configuration lookup with an
	// explicit file.
	ConfigFile string

	// Only restricts the launch to the named services and their
	// dependencies. Empty launches the whole enabled fleet.
	Only []string

	// KeepGoing continues the launch when a service never becomes ready,
	// parking only its dependents. The default is to abort.
	KeepGoing bool

	// Force skips the pre-launch port availability check.
	Force bool

	// LauncherConfig is the loaded fleet configuration.
	LauncherConfig *config.LauncherConfig
}

// NewConfig creates a new application configuration.
func NewConfig(debug, keepGoing, force bool, configFile string, only []string) *Config {
	return &Config{
		Debug:      debug,
		KeepGoing:  keepGoing,
		Force:      force,
		ConfigFile: configFile,
		Only:       only,
	}
}
