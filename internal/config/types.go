package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LauncherConfig is the top-level configuration structure for hcctl.
type LauncherConfig struct {
	GlobalSettings GlobalSettings `yaml:"globalSettings"`
	Control        ControlConfig  `yaml:"control"`
	Services       []ServiceSpec  `yaml:"services"`
}

// GlobalSettings holds settings that apply to the whole fleet.
type GlobalSettings struct {
	// LogDir is where each managed process's stdout/stderr stream is written
	// (<logDir>/<service>.log). Defaults to ./logs.
	LogDir string `yaml:"logDir,omitempty"`
	// GracePeriod is how long a stop request waits for a process to exit
	// before escalating to a forced kill.
	GracePeriod Duration `yaml:"gracePeriod,omitempty"`
}

// ControlConfig defines the control/health HTTP endpoint of the launcher.
// The container platform's liveness check points at this endpoint.
type ControlConfig struct {
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
	Enabled bool   `yaml:"enabled"`
}

// RestartPolicy decides what happens when a managed process exits.
type RestartPolicy string

const (
	// RestartNever leaves the process down regardless of exit code.
	RestartNever RestartPolicy = "never"
	// RestartOnFailure restarts only after a non-zero exit.
	RestartOnFailure RestartPolicy = "on-failure"
	// RestartAlways restarts after any exit.
	RestartAlways RestartPolicy = "always"
)

// Valid reports whether p is one of the known policies.
func (p RestartPolicy) Valid() bool {
	switch p {
	case RestartNever, RestartOnFailure, RestartAlways:
		return true
	}
	return false
}

// ServiceSpec describes one managed service: how to launch it, how to
// probe it, and what it depends on. Specs are immutable after loading.
type ServiceSpec struct {
	Name    string `yaml:"name"` // Unique name, e.g. "coordinator-agent"
	Enabled bool   `yaml:"enabled"`

	// Process launch contract. Command is the executable plus arguments;
	// it is executed directly, not through a shell.
	Command    []string          `yaml:"command"`
	WorkingDir string            `yaml:"workingDir,omitempty"`
	Env        map[string]string `yaml:"env,omitempty"`

	// Readiness probe contract: GET http://<host>:<port><readinessPath>
	// must return a 2xx status once the service is ready.
	Port          int    `yaml:"port"`
	ReadinessPath string `yaml:"readinessPath,omitempty"`

	// DependsOn lists services that must be Ready before this one starts.
	DependsOn []string `yaml:"dependsOn,omitempty"`

	Restart     RestartPolicy `yaml:"restart,omitempty"`
	MaxRestarts int           `yaml:"maxRestarts,omitempty"`

	// ProbeInterval is the polling period for readiness and runtime
	// health checks. ProbeTimeout bounds the whole wait for readiness
	// during ordered startup and is also the staleness window for the
	// aggregate verdict.
	ProbeInterval Duration `yaml:"probeInterval,omitempty"`
	ProbeTimeout  Duration `yaml:"probeTimeout,omitempty"`
}

// ReadinessURL builds the probe URL for the spec.
func (s ServiceSpec) ReadinessURL() string {
	path := s.ReadinessPath
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("http://localhost:%d%s", s.Port, path)
}

// Duration wraps time.Duration so YAML values like "30s" parse.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML accepts Go duration strings ("2s", "1m30s").
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in Go notation.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}
