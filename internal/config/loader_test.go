package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfigIsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	ApplyDefaults(&cfg)

	require.NoError(t, Validate(cfg))
	assert.Len(t, cfg.Services, 5)

	byName := make(map[string]ServiceSpec, len(cfg.Services))
	for _, svc := range cfg.Services {
		byName[svc.Name] = svc
	}

	coordinator, exists := byName["coordinator-agent"]
	require.True(t, exists)
	assert.ElementsMatch(t, []string{"patient-agent", "doctor-agent", "booking-agent"}, coordinator.DependsOn)

	dashboard, exists := byName["dashboard"]
	require.True(t, exists)
	assert.Equal(t, []string{"coordinator-agent"}, dashboard.DependsOn)
	assert.Equal(t, 8501, dashboard.Port)
	assert.Equal(t, "/_stcore/health", dashboard.ReadinessPath)
}

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	cfg := LauncherConfig{
		Services: []ServiceSpec{
			{Name: "svc", Enabled: true, Command: []string{"true"}, Port: 9000},
		},
	}
	ApplyDefaults(&cfg)

	assert.Equal(t, DefaultLogDir, cfg.GlobalSettings.LogDir)
	assert.Equal(t, Duration(DefaultGracePeriod), cfg.GlobalSettings.GracePeriod)
	assert.Equal(t, DefaultControlPort, cfg.Control.Port)

	svc := cfg.Services[0]
	assert.Equal(t, RestartOnFailure, svc.Restart)
	assert.Equal(t, DefaultMaxRestarts, svc.MaxRestarts)
	assert.Equal(t, Duration(DefaultProbeInterval), svc.ProbeInterval)
	assert.Equal(t, Duration(DefaultProbeTimeout), svc.ProbeTimeout)
	assert.Equal(t, "/", svc.ReadinessPath)
}

func TestMergeConfigsReplacesServicesByName(t *testing.T) {
	base := GetDefaultConfig()
	overlay := LauncherConfig{
		GlobalSettings: GlobalSettings{LogDir: "/var/log/hc"},
		Control:        ControlConfig{Port: 9999},
		Services: []ServiceSpec{
			{
				Name:    "dashboard",
				Enabled: false,
			},
			{
				Name:    "extra-agent",
				Enabled: true,
				Command: []string{"python3", "extra.py"},
				Port:    8010,
			},
		},
	}

	merged := mergeConfigs(base, overlay)

	assert.Equal(t, "/var/log/hc", merged.GlobalSettings.LogDir)
	assert.Equal(t, 9999, merged.Control.Port)
	assert.Len(t, merged.Services, 6)

	for _, svc := range merged.Services {
		if svc.Name == "dashboard" {
			assert.False(t, svc.Enabled, "overlay must replace the dashboard spec wholesale")
		}
	}
	assert.Equal(t, "extra-agent", merged.Services[5].Name, "unknown services are appended")
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
globalSettings:
  logDir: /tmp/hc-logs
  gracePeriod: 10s
services:
  - name: patient-agent
    enabled: true
    command: ["python3", "hospital_a2a_system.py", "patient"]
    port: 9001
    readinessPath: /.well-known/agent.json
    probeTimeout: 45s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/hc-logs", cfg.GlobalSettings.LogDir)
	assert.Equal(t, Duration(10*time.Second), cfg.GlobalSettings.GracePeriod)

	var patient ServiceSpec
	for _, svc := range cfg.Services {
		if svc.Name == "patient-agent" {
			patient = svc
		}
	}
	assert.Equal(t, 9001, patient.Port, "file overlay replaces the built-in spec")
	assert.Equal(t, Duration(45*time.Second), patient.ProbeTimeout)
	assert.Equal(t, Duration(DefaultProbeInterval), patient.ProbeInterval, "defaults still fill the gaps")
}

func TestLoadConfigFromFileMissing(t *testing.T) {
	_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadConfigLayersProjectOverUser(t *testing.T) {
	homeDir := t.TempDir()
	workDir := t.TempDir()

	origHome, origWd := osUserHomeDir, osGetwd
	defer func() { osUserHomeDir, osGetwd = origHome, origWd }()
	osUserHomeDir = func() (string, error) { return homeDir, nil }
	osGetwd = func() (string, error) { return workDir, nil }

	userDir := filepath.Join(homeDir, userConfigDir)
	require.NoError(t, os.MkdirAll(userDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, configFileName), []byte(`
globalSettings:
  logDir: /from-user
control:
  port: 7001
`), 0o644))

	projectDir := filepath.Join(workDir, projectConfigDir)
	require.NoError(t, os.MkdirAll(projectDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, configFileName), []byte(`
globalSettings:
  logDir: /from-project
`), 0o644))

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/from-project", cfg.GlobalSettings.LogDir, "project config wins over user config")
	assert.Equal(t, 7001, cfg.Control.Port, "user config wins over defaults")
}

func TestValidate(t *testing.T) {
	valid := func() LauncherConfig {
		cfg := LauncherConfig{
			Services: []ServiceSpec{
				{Name: "a", Enabled: true, Command: []string{"true"}, Port: 9001, Restart: RestartNever},
				{Name: "b", Enabled: true, Command: []string{"true"}, Port: 9002, Restart: RestartNever, DependsOn: []string{"a"}},
			},
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*LauncherConfig)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(cfg *LauncherConfig) {},
		},
		{
			name:    "empty name",
			mutate:  func(cfg *LauncherConfig) { cfg.Services[0].Name = "" },
			wantErr: "empty name",
		},
		{
			name:    "duplicate name",
			mutate:  func(cfg *LauncherConfig) { cfg.Services[1].Name = "a" },
			wantErr: "duplicate service name",
		},
		{
			name:    "missing command",
			mutate:  func(cfg *LauncherConfig) { cfg.Services[0].Command = nil },
			wantErr: "has no command",
		},
		{
			name:    "invalid port",
			mutate:  func(cfg *LauncherConfig) { cfg.Services[0].Port = 0 },
			wantErr: "invalid port",
		},
		{
			name:    "unknown restart policy",
			mutate:  func(cfg *LauncherConfig) { cfg.Services[0].Restart = "sometimes" },
			wantErr: "unknown restart policy",
		},
		{
			name:    "negative max restarts",
			mutate:  func(cfg *LauncherConfig) { cfg.Services[0].MaxRestarts = -1 },
			wantErr: "negative maxRestarts",
		},
		{
			name:    "self dependency",
			mutate:  func(cfg *LauncherConfig) { cfg.Services[0].DependsOn = []string{"a"} },
			wantErr: "depends on itself",
		},
		{
			name:    "dependency on unknown service",
			mutate:  func(cfg *LauncherConfig) { cfg.Services[1].DependsOn = []string{"ghost"} },
			wantErr: "unknown or disabled",
		},
		{
			name:    "dependency on disabled service",
			mutate:  func(cfg *LauncherConfig) { cfg.Services[0].Enabled = false },
			wantErr: "unknown or disabled",
		},
		{
			name: "dependency cycle",
			mutate: func(cfg *LauncherConfig) {
				cfg.Services[0].DependsOn = []string{"b"}
			},
			wantErr: "dependency cycle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnabledServices(t *testing.T) {
	cfg := LauncherConfig{
		Services: []ServiceSpec{
			{Name: "a", Enabled: true},
			{Name: "b", Enabled: false},
			{Name: "c", Enabled: true},
		},
	}

	enabled := EnabledServices(cfg)
	require.Len(t, enabled, 2)
	assert.Equal(t, "a", enabled[0].Name)
	assert.Equal(t, "c", enabled[1].Name)
}
