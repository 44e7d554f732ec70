// Package config loads the application configuration from YAML.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig defines the global gw configuration options.
type AppConfig struct {
	Theme       string `yaml:"theme"`        // Theme name: see AvailableThemes in internal/theme
	DebugLog    string `yaml:"debug_log"`    // Path of the debug log file, empty disables
	Forge       *bool  `yaml:"forge"`        // Enable gh-backed PR columns (default: true)
	AutoRefresh bool   `yaml:"auto_refresh"` // Watch the git dir and refresh on changes
	SyncRemote  *bool  `yaml:"sync_remote"`  // Run git fetch --all --prune per refresh (default: true)
	CacheDir    string `yaml:"cache_dir"`    // Override the cache directory
}

// DefaultConfig returns the default configuration values.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Theme:       "",
		AutoRefresh: true,
	}
}

// ForgeEnabled resolves the forge toggle with its default.
func (c *AppConfig) ForgeEnabled() bool {
	return c.Forge == nil || *c.Forge
}

// SyncEnabled resolves the remote-sync toggle with its default.
func (c *AppConfig) SyncEnabled() bool {
	return c.SyncRemote == nil || *c.SyncRemote
}

// DefaultPath returns ~/.config/gw/config.yaml.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gw", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gw", "config.yaml")
}

// LoadConfig reads a YAML config file. A missing file yields the
// defaults; a malformed file is an error.
func LoadConfig(path string) (*AppConfig, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(ExpandPath(path)) // #nosec G304 -- user-chosen config path
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
