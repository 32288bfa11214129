// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "default", cfg.Profile)
	assert.Equal(t, "ollama", cfg.Provider)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 30*time.Second, cfg.AutosaveInterval())
}

func TestLoadFromPathFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
provider = "anthropic"
model = "claude-3-5-sonnet-20241022"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "claude-3-5-sonnet-20241022", cfg.Model)

	// Everything the file omits comes from defaults.
	assert.Equal(t, "default", cfg.Profile)
	assert.Equal(t, 60, cfg.RequestTimeoutSecs)
	assert.NotEmpty(t, cfg.Local.OllamaURL)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty profile", func(c *Config) { c.Profile = "" }},
		{"zero timeout", func(c *Config) { c.RequestTimeoutSecs = 0 }},
		{"negative autosave", func(c *Config) { c.AutosaveSecs = -1 }},
		{"bad ollama url", func(c *Config) { c.Local.OllamaURL = "not a url" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("POLYCHAT_PROFILE", "work")
	t.Setenv("POLYCHAT_PROVIDER", "openai")
	t.Setenv("POLYCHAT_MODEL", "gpt-4o")
	t.Setenv("POLYCHAT_TIMEOUT_SECS", "15")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "work", cfg.Profile)
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, 15, cfg.RequestTimeoutSecs)
}

func TestEnvOverrideIgnoresBadTimeout(t *testing.T) {
	t.Setenv("POLYCHAT_TIMEOUT_SECS", "not-a-number")
	cfg := Default()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, 60, cfg.RequestTimeoutSecs)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.Provider = "gemini"
	cfg.Model = "gemini-1.5-pro"
	require.NoError(t, SaveToPath(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini", loaded.Provider)
	assert.Equal(t, "gemini-1.5-pro", loaded.Model)
}
