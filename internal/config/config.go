// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for polychat.
//
// Configuration comes from ~/.polychat/config.toml with built-in defaults
// and POLYCHAT_* environment variable overrides applied last.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete polychat configuration.
type Config struct {
	// Profile is the owner identity conversations are stored under.
	Profile string `toml:"profile"`

	// Provider and Model select the backend used for new conversations.
	Provider string `toml:"provider"`
	Model    string `toml:"model"`

	// RequestTimeoutSecs bounds a single provider call end to end.
	RequestTimeoutSecs int `toml:"request_timeout_secs"`

	// AutosaveSecs is the interval between background persistence passes.
	AutosaveSecs int `toml:"autosave_secs"`

	// Local (Ollama) configuration
	Local LocalConfig `toml:"local"`

	// Paths configuration
	Paths PathsConfig `toml:"paths"`
}

// LocalConfig contains local Ollama configuration.
type LocalConfig struct {
	// OllamaURL is the URL of the Ollama server
	OllamaURL string `toml:"ollama_url"`
}

// PathsConfig locates the data files. Empty values resolve under the
// config directory.
type PathsConfig struct {
	// Database is the conversation database path
	Database string `toml:"database"`
	// Credentials is the provider secret file path
	Credentials string `toml:"credentials"`
}

// RequestTimeout returns the provider call timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// AutosaveInterval returns the background save interval as a duration.
func (c *Config) AutosaveInterval() time.Duration {
	return time.Duration(c.AutosaveSecs) * time.Second
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Profile:            "default",
		Provider:           "ollama",
		Model:              "",
		RequestTimeoutSecs: 60,
		AutosaveSecs:       30,

		Local: LocalConfig{
			OllamaURL: "http://127.0.0.1:11434",
		},

		Paths: PathsConfig{},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the polychat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".polychat"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// DatabasePath resolves the conversation database location.
func (c *Config) DatabasePath() (string, error) {
	if c.Paths.Database != "" {
		return c.Paths.Database, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "conversations.db"), nil
}

// CredentialsPath resolves the provider secret file location.
func (c *Config) CredentialsPath() (string, error) {
	if c.Paths.Credentials != "" {
		return c.Paths.Credentials, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "credentials.json"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file, falling back to defaults
// when no file exists. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	cfg.fillDefaults()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults fills in any missing values with defaults.
func (c *Config) fillDefaults() {
	defaults := Default()

	if c.Profile == "" {
		c.Profile = defaults.Profile
	}
	if c.Provider == "" {
		c.Provider = defaults.Provider
	}
	if c.RequestTimeoutSecs == 0 {
		c.RequestTimeoutSecs = defaults.RequestTimeoutSecs
	}
	if c.AutosaveSecs == 0 {
		c.AutosaveSecs = defaults.AutosaveSecs
	}
	if c.Local.OllamaURL == "" {
		c.Local.OllamaURL = defaults.Local.OllamaURL
	}
}

// Save writes the configuration to the default TOML path with 0600
// permissions.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath writes the configuration to a specific path.
func SaveToPath(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# polychat configuration file")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for values that cannot work at runtime.
func (c *Config) Validate() error {
	if c.Profile == "" {
		return fmt.Errorf("profile must not be empty")
	}
	if c.RequestTimeoutSecs <= 0 {
		return fmt.Errorf("request_timeout_secs must be positive, got %d", c.RequestTimeoutSecs)
	}
	if c.AutosaveSecs <= 0 {
		return fmt.Errorf("autosave_secs must be positive, got %d", c.AutosaveSecs)
	}
	if c.Local.OllamaURL != "" {
		u, err := url.Parse(c.Local.OllamaURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("local.ollama_url is not a valid URL: %q", c.Local.OllamaURL)
		}
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides:
//   - POLYCHAT_PROFILE: overrides profile
//   - POLYCHAT_PROVIDER: overrides provider
//   - POLYCHAT_MODEL: overrides model
//   - POLYCHAT_OLLAMA_URL: overrides local.ollama_url
//   - POLYCHAT_TIMEOUT_SECS: overrides request_timeout_secs
//   - POLYCHAT_DB_PATH: overrides paths.database
func (c *Config) ApplyEnvOverrides() {
	if profile := os.Getenv("POLYCHAT_PROFILE"); profile != "" {
		c.Profile = profile
	}
	if provider := os.Getenv("POLYCHAT_PROVIDER"); provider != "" {
		c.Provider = provider
	}
	if model := os.Getenv("POLYCHAT_MODEL"); model != "" {
		c.Model = model
	}
	if ollamaURL := os.Getenv("POLYCHAT_OLLAMA_URL"); ollamaURL != "" {
		c.Local.OllamaURL = ollamaURL
	}
	if timeout := os.Getenv("POLYCHAT_TIMEOUT_SECS"); timeout != "" {
		if secs, err := strconv.Atoi(timeout); err == nil && secs > 0 {
			c.RequestTimeoutSecs = secs
		}
	}
	if dbPath := os.Getenv("POLYCHAT_DB_PATH"); dbPath != "" {
		c.Paths.Database = dbPath
	}
}
