// Package config loads the desktop client configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Config
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Config holds the session-layer settings. All fields have working defaults;
// a missing config file is not an error.
type Config struct {
	// WorkspaceRoot is where event logs and the session archive live.
	WorkspaceRoot string `yaml:"workspace_root"`

	// LogPath and LogLevel configure the diagnostic log.
	LogPath  string `yaml:"log_path"`
	LogLevel string `yaml:"log_level"`

	// Backend describes the agent process to spawn.
	Backend BackendConfig `yaml:"backend"`

	// Archive toggles SQLite transcript archiving on session deletion.
	Archive bool `yaml:"archive"`
}

// BackendConfig describes how to reach the agent backend.
type BackendConfig struct {
	// Command and Args spawn the agent process speaking JSON lines on
	// stdin/stdout. Empty Command selects the built-in loopback backend.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	root := filepath.Join(wd, "workspace")
	return Config{
		WorkspaceRoot: root,
		LogPath:       filepath.Join(root, "clusterdesk.log"),
		LogLevel:      "INFO",
		Archive:       true,
	}
}

// Load reads the config file at path and fills in defaults for anything it
// leaves unset. A missing file returns the defaults unchanged.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Config{Archive: true}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = Default().WorkspaceRoot
	}
	if cfg.LogPath == "" {
		cfg.LogPath = filepath.Join(cfg.WorkspaceRoot, "clusterdesk.log")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}
	return cfg, nil
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".clusterdesk", "config.yaml")
	}
	return "config.yaml"
}
