// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, root, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte(content), 0o644))
}

func TestLoad_DefaultsOnly(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(root, nil)
	require.NoError(t, err)

	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, 1024, cfg.CacheSize)
	assert.Equal(t, 500, cfg.DebounceMillis)
	assert.Equal(t, "local", cfg.LLM.Provider)
	assert.Equal(t, "none", cfg.Telemetry.Exporter)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
workers: 4
cache_size: 64
exclude_prefixes:
  - third_party/
  - contrib/
llm:
  provider: anthropic
  model: claude-sonnet
`)
	cfg, err := Load(root, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 64, cfg.CacheSize)
	assert.Equal(t, []string{"third_party/", "contrib/"}, cfg.ExcludePrefixes)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	// Untouched fields keep their defaults.
	assert.Equal(t, 500, cfg.DebounceMillis)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "workers: 4\n")
	t.Setenv(EnvPrefix+"WORKERS", "8")
	t.Setenv(EnvPrefix+"LLM_PROVIDER", "openai")
	t.Setenv(EnvPrefix+"EXCLUDE_PREFIXES", "gen/, tools/")

	cfg, err := Load(root, nil)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, []string{"gen/", "tools/"}, cfg.ExcludePrefixes)
}

func TestLoad_DotEnvFeedsEnvironment(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"),
		[]byte(EnvPrefix+"CACHE_SIZE=99\n"), 0o644))
	// godotenv does not override variables already set, so clear it.
	os.Unsetenv(EnvPrefix + "CACHE_SIZE")
	t.Cleanup(func() { os.Unsetenv(EnvPrefix + "CACHE_SIZE") })

	cfg, err := Load(root, nil)
	require.NoError(t, err)
	assert.Equal(t, 99, cfg.CacheSize)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad provider", "llm:\n  provider: carrier-pigeon\n"},
		{"negative workers", "workers: -1\n"},
		{"bad exporter", "telemetry:\n  exporter: punchcards\n"},
		{"bad listen addr", "listen_addr: not-a-hostport\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			writeConfig(t, root, tc.yaml)
			_, err := Load(root, nil)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MalformedYAMLIsError(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "workers: [not an int\n")
	_, err := Load(root, nil)
	assert.Error(t, err)
}

func TestLoad_EmptyRootIsError(t *testing.T) {
	_, err := Load("", nil)
	assert.Error(t, err)
}
