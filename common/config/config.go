// Package config provides shared configuration utilities for GoalTrack components
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// FindConfigFile searches for a config file in multiple platform-appropriate locations
// Returns the path and data if found, or an error if not found in any location
func FindConfigFile(filename string, component string) (string, []byte, error) {
	searchPaths := GetConfigSearchPaths(filename, component)

	for _, path := range searchPaths {
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}

	return "", nil, fmt.Errorf("%s not found in any search path", filename)
}

// GetConfigSearchPaths returns an ordered list of paths to search for config files
// component should be "worker" or "app"
func GetConfigSearchPaths(filename string, component string) []string {
	var searchPaths []string

	// 1. Component-specific system directory (highest priority for services)
	switch runtime.GOOS {
	case "windows":
		searchPaths = append(searchPaths, filepath.Join(os.Getenv("ProgramData"), "GoalTrack", component, filename))
	case "darwin":
		searchPaths = append(searchPaths, filepath.Join("/Library/Application Support", "GoalTrack", component, filename))
	default: // Linux and other Unix-like
		searchPaths = append(searchPaths, filepath.Join("/etc/goaltrack", component, filename))
	}

	// 2. User-specific config directory
	if homeDir, err := os.UserHomeDir(); err == nil {
		switch runtime.GOOS {
		case "windows":
			searchPaths = append(searchPaths, filepath.Join(homeDir, "AppData", "Local", "GoalTrack", component, filename))
		case "darwin":
			searchPaths = append(searchPaths, filepath.Join(homeDir, "Library", "Application Support", "GoalTrack", component, filename))
		default:
			searchPaths = append(searchPaths, filepath.Join(homeDir, ".config", "goaltrack", component, filename))
		}
	}

	// 3. Executable directory
	if exePath, err := os.Executable(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(filepath.Dir(exePath), filename))
	}

	// 4. Current working directory (lowest priority)
	searchPaths = append(searchPaths, filepath.Join(".", filename))

	return searchPaths
}

// GetDataDirectory returns the appropriate directory for storing application data
// When running as service, returns system-wide directory
// When running interactively, returns user-specific directory
func GetDataDirectory(component string, isService bool) (string, error) {
	var dataDir string

	if isService {
		switch runtime.GOOS {
		case "windows":
			dataDir = filepath.Join(os.Getenv("ProgramData"), "GoalTrack", component)
		case "darwin":
			dataDir = filepath.Join("/var/lib/goaltrack", component)
		default: // Linux
			dataDir = filepath.Join("/var/lib/goaltrack", component)
		}
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get user home directory: %w", err)
		}

		switch runtime.GOOS {
		case "windows":
			dataDir = filepath.Join(homeDir, "AppData", "Local", "GoalTrack", component)
		case "darwin":
			dataDir = filepath.Join(homeDir, "Library", "Application Support", "GoalTrack", component)
		default: // Linux and other Unix-like
			dataDir = filepath.Join(homeDir, ".local", "share", "goaltrack", component)
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}

// GetLogDirectory returns the appropriate directory for storing logs
func GetLogDirectory(component string, isService bool) (string, error) {
	var logDir string

	if isService {
		switch runtime.GOOS {
		case "windows":
			logDir = filepath.Join(os.Getenv("ProgramData"), "GoalTrack", component, "logs")
		case "darwin":
			logDir = filepath.Join("/var/log/goaltrack", component)
		default: // Linux
			logDir = filepath.Join("/var/log/goaltrack", component)
		}
	} else {
		logDir = "logs"
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	return logDir, nil
}

// WriteDefaultTOML writes a default TOML configuration file with the provided structure
func WriteDefaultTOML(configPath string, config interface{}) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadTOML loads a TOML configuration file into the provided structure
func LoadTOML(configPath string, config interface{}) error {
	if _, err := os.Stat(configPath); err != nil {
		return fmt.Errorf("config file not found: %w", err)
	}

	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// WorkerConfig is the configuration for the background worker daemon.
type WorkerConfig struct {
	App      AppConfig      `toml:"app"`
	Channel  ChannelConfig  `toml:"channel"`
	Update   UpdateConfig   `toml:"update"`
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
}

// AppConfig identifies the app on whose behalf notifications are shown.
type AppConfig struct {
	Name   string `toml:"name"`
	Origin string `toml:"origin"`
	Icon   string `toml:"icon"`
	Badge  string `toml:"badge"`
}

// ChannelConfig holds the foreground-to-worker message channel settings.
type ChannelConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// UpdateConfig holds update-check settings.
type UpdateConfig struct {
	ManifestURL string `toml:"manifest_url"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `toml:"level"`
}

// DefaultWorkerConfig returns the built-in defaults for the worker daemon.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		App: AppConfig{
			Name:   "GoalTrack",
			Origin: "https://app.goaltrack.io",
			Icon:   "/icons/icon-192.png",
			Badge:  "/icons/badge-72.png",
		},
		Channel: ChannelConfig{
			ListenAddr: "127.0.0.1:8974",
		},
		Update: UpdateConfig{
			ManifestURL: "https://app.goaltrack.io/update-manifest.json",
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// ApplyEnvOverrides applies common environment variable overrides

// ApplyDatabaseEnvOverrides overrides database config from the environment.
func ApplyDatabaseEnvOverrides(cfg *DatabaseConfig) {
	if val := os.Getenv("DB_PATH"); val != "" {
		cfg.Path = val
	}
}

// ApplyLoggingEnvOverrides overrides logging config from the environment.
func ApplyLoggingEnvOverrides(cfg *LoggingConfig) {
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Level = val
	}
}

// ApplyUpdateEnvOverrides overrides update config from the environment.
func ApplyUpdateEnvOverrides(cfg *UpdateConfig) {
	if val := os.Getenv("UPDATE_MANIFEST_URL"); val != "" {
		cfg.ManifestURL = val
	}
}
