package config

import "time"

// Defaults applied to every spec that does not override them.
const (
	DefaultProbeInterval = 2 * time.Second
	DefaultProbeTimeout  = 30 * time.Second
	DefaultGracePeriod   = 5 * time.Second
	DefaultMaxRestarts   = 3
	DefaultControlPort   = 8090
	DefaultLogDir        = "logs"
)

// GetDefaultConfig returns the built-in configuration describing the
// HealthConnect fleet: the four A2A agents plus the Streamlit dashboard.
// User and project configuration files overlay this (see LoadConfig).
func GetDefaultConfig() LauncherConfig {
	return LauncherConfig{
		GlobalSettings: GlobalSettings{
			LogDir:      DefaultLogDir,
			GracePeriod: Duration(DefaultGracePeriod),
		},
		Control: ControlConfig{
			Host:    "localhost",
			Port:    DefaultControlPort,
			Enabled: true,
		},
		Services: []ServiceSpec{
			{
				Name:          "patient-agent",
				Enabled:       true,
				Command:       []string{"python3", "hospital_a2a_system.py", "patient"},
				Port:          8001,
				ReadinessPath: "/.well-known/agent.json",
				Restart:       RestartOnFailure,
				MaxRestarts:   DefaultMaxRestarts,
			},
			{
				Name:          "doctor-agent",
				Enabled:       true,
				Command:       []string{"python3", "hospital_a2a_system.py", "doctor"},
				Port:          8002,
				ReadinessPath: "/.well-known/agent.json",
				Restart:       RestartOnFailure,
				MaxRestarts:   DefaultMaxRestarts,
			},
			{
				Name:          "booking-agent",
				Enabled:       true,
				Command:       []string{"python3", "hospital_a2a_system.py", "booking"},
				Port:          8003,
				ReadinessPath: "/.well-known/agent.json",
				Restart:       RestartOnFailure,
				MaxRestarts:   DefaultMaxRestarts,
			},
			{
				// The coordinator fans out to the specialist agents, so it
				// only starts once all three answer their agent card.
				Name:          "coordinator-agent",
				Enabled:       true,
				Command:       []string{"python3", "hospital_a2a_system.py", "coordinator"},
				Port:          8000,
				ReadinessPath: "/.well-known/agent.json",
				DependsOn:     []string{"patient-agent", "doctor-agent", "booking-agent"},
				Restart:       RestartOnFailure,
				MaxRestarts:   DefaultMaxRestarts,
			},
			{
				Name:    "dashboard",
				Enabled: true,
				Command: []string{
					"streamlit", "run", "frontend.py",
					"--server.port", "8501",
					"--server.headless", "true",
				},
				Port:          8501,
				ReadinessPath: "/_stcore/health",
				DependsOn:     []string{"coordinator-agent"},
				Restart:       RestartOnFailure,
				MaxRestarts:   DefaultMaxRestarts,
			},
		},
	}
}

// ApplyDefaults fills zero-valued per-service knobs from the package defaults.
func ApplyDefaults(cfg *LauncherConfig) {
	if cfg.GlobalSettings.LogDir == "" {
		cfg.GlobalSettings.LogDir = DefaultLogDir
	}
	if cfg.GlobalSettings.GracePeriod == 0 {
		cfg.GlobalSettings.GracePeriod = Duration(DefaultGracePeriod)
	}
	if cfg.Control.Host == "" {
		cfg.Control.Host = "localhost"
	}
	if cfg.Control.Port == 0 {
		cfg.Control.Port = DefaultControlPort
	}
	for i := range cfg.Services {
		svc := &cfg.Services[i]
		if svc.Restart == "" {
			svc.Restart = RestartOnFailure
		}
		if svc.MaxRestarts == 0 && svc.Restart != RestartNever {
			svc.MaxRestarts = DefaultMaxRestarts
		}
		if svc.ProbeInterval == 0 {
			svc.ProbeInterval = Duration(DefaultProbeInterval)
		}
		if svc.ProbeTimeout == 0 {
			svc.ProbeTimeout = Duration(DefaultProbeTimeout)
		}
		if svc.ReadinessPath == "" {
			svc.ReadinessPath = "/"
		}
	}
}
