package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/antinozorionktr/healthconnect-a2a/internal/dependency"
	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/healthconnect"
	projectConfigDir = ".healthconnect"
	configFileName   = "config.yaml"
)

// LoadConfig loads the launcher configuration by layering default, user, and
// project settings. The result is not yet validated; call Validate before
// handing it to the orchestrator.
func LoadConfig() (LauncherConfig, error) {
	// 1. Start with the built-in fleet definition
	config := GetDefaultConfig()

	// 2. Overlay user-specific configuration
	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// User config is optional; don't fail
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else {
		if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
			userConfig, err := loadConfigFromFile(userConfigPath)
			if err != nil {
				return LauncherConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
			}
			config = mergeConfigs(config, userConfig)
		}
	}

	// 3. Overlay project-specific configuration
	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else {
		if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
			projectConfig, err := loadConfigFromFile(projectConfigPath)
			if err != nil {
				return LauncherConfig{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
			}
			config = mergeConfigs(config, projectConfig)
		}
	}

	ApplyDefaults(&config)
	return config, nil
}

// LoadConfigFromFile loads configuration from an explicit path (--config),
// bypassing the layered lookup but still overlaying the built-in defaults.
func LoadConfigFromFile(path string) (LauncherConfig, error) {
	fileConfig, err := loadConfigFromFile(path)
	if err != nil {
		return LauncherConfig{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	config := mergeConfigs(GetDefaultConfig(), fileConfig)
	ApplyDefaults(&config)
	return config, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a LauncherConfig from a YAML file.
func loadConfigFromFile(filePath string) (LauncherConfig, error) {
	var config LauncherConfig
	data, err := os.ReadFile(filePath)
	if err != nil {
		return LauncherConfig{}, err
	}
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return LauncherConfig{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config.
// Services are merged by name: an overlay service with a known name replaces
// the base definition wholesale, unknown names are appended in overlay order.
func mergeConfigs(base, overlay LauncherConfig) LauncherConfig {
	mergedConfig := base

	if overlay.GlobalSettings.LogDir != "" {
		mergedConfig.GlobalSettings.LogDir = overlay.GlobalSettings.LogDir
	}
	if overlay.GlobalSettings.GracePeriod != 0 {
		mergedConfig.GlobalSettings.GracePeriod = overlay.GlobalSettings.GracePeriod
	}

	if overlay.Control.Host != "" {
		mergedConfig.Control.Host = overlay.Control.Host
	}
	if overlay.Control.Port != 0 {
		mergedConfig.Control.Port = overlay.Control.Port
	}

	if len(overlay.Services) > 0 {
		byName := make(map[string]int, len(mergedConfig.Services))
		for i, svc := range mergedConfig.Services {
			byName[svc.Name] = i
		}
		for _, svc := range overlay.Services {
			if i, exists := byName[svc.Name]; exists {
				mergedConfig.Services[i] = svc
			} else {
				mergedConfig.Services = append(mergedConfig.Services, svc)
			}
		}
	}

	return mergedConfig
}

// Validate checks the merged configuration before any process is launched:
// unique non-empty names, launchable commands, resolvable dependencies, and
// an acyclic dependency graph. Disabled services are checked for name
// collisions only; a dependency on a disabled service is an error because
// the dependent could never start.
func Validate(cfg LauncherConfig) error {
	seen := make(map[string]bool, len(cfg.Services))
	enabled := make(map[string]bool, len(cfg.Services))
	for _, svc := range cfg.Services {
		if svc.Name == "" {
			return fmt.Errorf("service with empty name in configuration")
		}
		if seen[svc.Name] {
			return fmt.Errorf("duplicate service name %q", svc.Name)
		}
		seen[svc.Name] = true
		if svc.Enabled {
			enabled[svc.Name] = true
		}
	}

	g := dependency.New()
	for _, svc := range cfg.Services {
		if !svc.Enabled {
			continue
		}
		if len(svc.Command) == 0 {
			return fmt.Errorf("service %q has no command", svc.Name)
		}
		if svc.Port <= 0 || svc.Port > 65535 {
			return fmt.Errorf("service %q has invalid port %d", svc.Name, svc.Port)
		}
		if !svc.Restart.Valid() {
			return fmt.Errorf("service %q has unknown restart policy %q", svc.Name, svc.Restart)
		}
		if svc.MaxRestarts < 0 {
			return fmt.Errorf("service %q has negative maxRestarts", svc.Name)
		}

		deps := make([]dependency.NodeID, 0, len(svc.DependsOn))
		for _, dep := range svc.DependsOn {
			if dep == svc.Name {
				return fmt.Errorf("service %q depends on itself", svc.Name)
			}
			if !enabled[dep] {
				return fmt.Errorf("service %q depends on unknown or disabled service %q", svc.Name, dep)
			}
			deps = append(deps, dependency.NodeID(dep))
		}
		g.AddNode(dependency.Node{
			ID:        dependency.NodeID(svc.Name),
			DependsOn: deps,
		})
	}

	if _, err := g.TopologicalOrder(); err != nil {
		return fmt.Errorf("invalid dependency graph: %w", err)
	}

	return nil
}

// EnabledServices returns the enabled specs in declaration order.
func EnabledServices(cfg LauncherConfig) []ServiceSpec {
	var services []ServiceSpec
	for _, svc := range cfg.Services {
		if svc.Enabled {
			services = append(services, svc)
		}
	}
	return services
}

// GetUserConfigDir returns the user configuration directory path.
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
