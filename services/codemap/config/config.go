// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the layered build configuration.
//
// Precedence, highest first: command-line flags (applied by the CLI on
// top of the loaded config), environment variables (a .env file at the
// project root is folded into the environment via godotenv),
// codemap.config.yaml at the project root, and compiled defaults.
//
// Thread Safety: a loaded Config is immutable; treat it as read-only.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the per-project configuration file.
const ConfigFileName = "codemap.config.yaml"

// EnvPrefix namespaces every environment variable this package reads.
const EnvPrefix = "CODEBUDDY_"

// MaxConfigFileSize bounds how much YAML we are willing to parse.
const MaxConfigFileSize = 1 << 20

// Config is the full layered configuration for one project.
type Config struct {
	// Root is the project root being mapped. Always set by the loader,
	// never from the config file.
	Root string `yaml:"-" validate:"required"`

	// Workers bounds parallel extraction. 0 means GOMAXPROCS.
	Workers int `yaml:"workers" validate:"gte=0,lte=256"`

	// CacheSize is the parse cache capacity in entries.
	CacheSize int `yaml:"cache_size" validate:"gte=0"`

	// ExcludePrefixes lists path prefixes skipped by the walker, in
	// addition to gitignore rules.
	ExcludePrefixes []string `yaml:"exclude_prefixes"`

	// IncludeTests and IncludeVendor widen the walked file set.
	IncludeTests  bool `yaml:"include_tests"`
	IncludeVendor bool `yaml:"include_vendor"`

	// DebounceMillis is the watch-mode rebuild debounce window.
	DebounceMillis int `yaml:"debounce_millis" validate:"gte=0,lte=60000"`

	// SnapshotDir holds the local Badger snapshot database.
	SnapshotDir string `yaml:"snapshot_dir"`

	// ListenAddr is the HTTP service bind address.
	ListenAddr string `yaml:"listen_addr" validate:"omitempty,hostname_port"`

	LLM       LLMConfig       `yaml:"llm"`
	Search    SearchConfig    `yaml:"search"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Backup    BackupConfig    `yaml:"backup"`
}

// LLMConfig configures the summarization client.
type LLMConfig struct {
	// Provider selects the backing model family.
	Provider string `yaml:"provider" validate:"omitempty,oneof=openai anthropic local"`

	// Endpoint overrides the provider base URL, typically for a local
	// OpenAI-compatible server.
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`

	// Model is the model identifier sent with each call.
	Model string `yaml:"model"`

	// MaxPromptBytes caps outbound prompt size.
	MaxPromptBytes int `yaml:"max_prompt_bytes" validate:"gte=0"`

	// RequestsPerMinute throttles outbound calls. 0 disables the limiter.
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"gte=0,lte=10000"`
}

// SearchConfig configures the semantic search index.
type SearchConfig struct {
	// WeaviateHost and WeaviateScheme locate the vector index.
	WeaviateHost   string `yaml:"weaviate_host" validate:"omitempty,hostname_port"`
	WeaviateScheme string `yaml:"weaviate_scheme" validate:"omitempty,oneof=http https"`
}

// TelemetryConfig selects trace/metric exporters.
type TelemetryConfig struct {
	// Exporter is one of "none", "stdout", "otlp", "prometheus".
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=none stdout otlp prometheus"`

	// OTLPEndpoint is the collector address for the otlp exporter.
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"omitempty,hostname_port"`

	// InfluxURL, InfluxOrg, InfluxBucket configure the build-history
	// sink. Empty URL disables it. The token comes from the
	// environment only, never the file.
	InfluxURL    string `yaml:"influx_url" validate:"omitempty,url"`
	InfluxOrg    string `yaml:"influx_org"`
	InfluxBucket string `yaml:"influx_bucket"`
}

// BackupConfig configures off-machine snapshot retention.
type BackupConfig struct {
	// GCSBucket enables GCS backup when non-empty.
	GCSBucket string `yaml:"gcs_bucket"`
}

// Default returns the compiled-in defaults for a project root.
func Default(root string) *Config {
	return &Config{
		Root:           root,
		Workers:        0,
		CacheSize:      1024,
		DebounceMillis: 500,
		SnapshotDir:    filepath.Join(root, ".codebuddy", "snapshots"),
		ListenAddr:     "localhost:8844",
		LLM: LLMConfig{
			Provider:          "local",
			MaxPromptBytes:    64 * 1024,
			RequestsPerMinute: 60,
		},
		Search: SearchConfig{
			WeaviateScheme: "http",
		},
		Telemetry: TelemetryConfig{
			Exporter: "none",
		},
	}
}

// Load assembles the configuration for a project root.
//
// Description:
//
//	Starts from Default, overlays codemap.config.yaml when present,
//	folds a .env file at the root into the process environment, then
//	overlays CODEBUDDY_* environment variables, and finally validates
//	the result. Flags are the caller's layer, applied afterwards.
//
// Outputs:
//   - *Config: The validated configuration.
//   - error: Non-nil on unreadable/oversized/invalid YAML or a
//     validation failure. A missing config file is not an error.
func Load(root string, logger *slog.Logger) (*Config, error) {
	if root == "" {
		return nil, fmt.Errorf("project root must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg := Default(root)

	path := filepath.Join(root, ConfigFileName)
	if data, err := os.ReadFile(path); err == nil {
		if len(data) > MaxConfigFileSize {
			return nil, fmt.Errorf("config file %s exceeds maximum size (%d > %d)",
				path, len(data), MaxConfigFileSize)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.Root = root
		logger.Debug("Project config loaded", slog.String("path", path))
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	// A missing .env is the normal case.
	if err := godotenv.Load(filepath.Join(root, ".env")); err == nil {
		logger.Debug("Environment file loaded", slog.String("root", root))
	}
	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks a config against the struct validation tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("config field %s fails %q validation", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// applyEnv overlays CODEBUDDY_* environment variables.
func applyEnv(cfg *Config) {
	setString(&cfg.SnapshotDir, "SNAPSHOT_DIR")
	setString(&cfg.ListenAddr, "LISTEN_ADDR")
	setInt(&cfg.Workers, "WORKERS")
	setInt(&cfg.CacheSize, "CACHE_SIZE")
	setInt(&cfg.DebounceMillis, "DEBOUNCE_MILLIS")
	setBool(&cfg.IncludeTests, "INCLUDE_TESTS")
	setBool(&cfg.IncludeVendor, "INCLUDE_VENDOR")
	if v := lookup("EXCLUDE_PREFIXES"); v != "" {
		cfg.ExcludePrefixes = splitList(v)
	}

	setString(&cfg.LLM.Provider, "LLM_PROVIDER")
	setString(&cfg.LLM.Endpoint, "LLM_ENDPOINT")
	setString(&cfg.LLM.Model, "LLM_MODEL")
	setInt(&cfg.LLM.MaxPromptBytes, "LLM_MAX_PROMPT_BYTES")
	setInt(&cfg.LLM.RequestsPerMinute, "LLM_REQUESTS_PER_MINUTE")

	setString(&cfg.Search.WeaviateHost, "WEAVIATE_HOST")
	setString(&cfg.Search.WeaviateScheme, "WEAVIATE_SCHEME")

	setString(&cfg.Telemetry.Exporter, "TELEMETRY_EXPORTER")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTLP_ENDPOINT")
	setString(&cfg.Telemetry.InfluxURL, "INFLUX_URL")
	setString(&cfg.Telemetry.InfluxOrg, "INFLUX_ORG")
	setString(&cfg.Telemetry.InfluxBucket, "INFLUX_BUCKET")

	setString(&cfg.Backup.GCSBucket, "GCS_BUCKET")
}

func lookup(key string) string {
	return os.Getenv(EnvPrefix + key)
}

func setString(dst *string, key string) {
	if v := lookup(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := lookup(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := lookup(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
