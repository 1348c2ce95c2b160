package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"toolhost/pkg/logging"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/toolhost"
	projectConfigDir = ".toolhost"
	configFileName   = "config.yaml"
	serversFileName  = "servers.yaml"
)

// LoadConfig layers the user and project files over the defaults.
func LoadConfig() (Config, error) {
	config := GetDefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// user config is optional
		logging.Warn("Config", "Could not determine user config path: %v", err)
	} else {
		config, err = overlayFile(config, userConfigPath)
		if err != nil {
			return Config{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
		}
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		logging.Warn("Config", "Could not determine project config path: %v", err)
	} else {
		config, err = overlayFile(config, projectConfigPath)
		if err != nil {
			return Config{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
		}
	}

	if _, err := logging.ParseLevel(config.LogLevel); err != nil {
		return Config{}, err
	}
	return config, nil
}

func overlayFile(base Config, path string) (Config, error) {
	overlay, err := loadConfigFromFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return base, nil
	}
	if err != nil {
		return Config{}, err
	}
	return mergeConfigs(base, overlay), nil
}

var getUserConfigPath = func() (string, error) {
	dir, err := GetUserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a Config from a YAML file.
func loadConfigFromFile(filePath string) (Config, error) {
	var config Config
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' into 'base'. Zero values in overlay keep the base value.
func mergeConfigs(base, overlay Config) Config {
	merged := base

	if overlay.LogLevel != "" {
		merged.LogLevel = overlay.LogLevel
	}
	if overlay.Client.Name != "" {
		merged.Client.Name = overlay.Client.Name
	}
	if overlay.Client.Version != "" {
		merged.Client.Version = overlay.Client.Version
	}
	if overlay.ProtocolVersion != "" {
		merged.ProtocolVersion = overlay.ProtocolVersion
	}

	if overlay.Timeouts.Init > 0 {
		merged.Timeouts.Init = overlay.Timeouts.Init
	}
	if overlay.Timeouts.Request > 0 {
		merged.Timeouts.Request = overlay.Timeouts.Request
	}
	if overlay.Timeouts.StopGrace > 0 {
		merged.Timeouts.StopGrace = overlay.Timeouts.StopGrace
	}
	if overlay.Timeouts.BootstrapDelay > 0 {
		merged.Timeouts.BootstrapDelay = overlay.Timeouts.BootstrapDelay
	}

	if overlay.Events.Enabled {
		merged.Events.Enabled = true
	}
	if overlay.Events.Addr != "" {
		merged.Events.Addr = overlay.Events.Addr
	}
	if len(overlay.Events.AllowedOrigins) > 0 {
		merged.Events.AllowedOrigins = append([]string(nil), overlay.Events.AllowedOrigins...)
	}
	if overlay.Events.BufferSize > 0 {
		merged.Events.BufferSize = overlay.Events.BufferSize
	}

	if overlay.Logs.BufferSize > 0 {
		merged.Logs.BufferSize = overlay.Logs.BufferSize
	}
	if overlay.Tools.CacheTTL > 0 {
		merged.Tools.CacheTTL = overlay.Tools.CacheTTL
	}
	if overlay.SelfUpdate.Repository != "" {
		merged.SelfUpdate.Repository = overlay.SelfUpdate.Repository
	}

	return merged
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// DefaultServersPath is where installed servers are persisted.
func DefaultServersPath() (string, error) {
	dir, err := GetUserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, serversFileName), nil
}
