package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, SHOPPINGLIST_CONFIG env,
//     ./config.yaml, /etc/shoppinglist/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	// Start with defaults.
	cfg := Defaults()

	// Discover and load YAML config file.
	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	// Apply environment variable overrides.
	applyEnvOverrides(&cfg)

	// Resolve _file references.
	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	// Validate.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. SHOPPINGLIST_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/shoppinglist/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	// Explicit path takes priority.
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("SHOPPINGLIST_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/shoppinglist/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps environment variables to config fields. The
// legacy DATABASE_URL variable is honored for the Postgres DSN so existing
// deployments keep working.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHOPPINGLIST_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SHOPPINGLIST_BASE_URL"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := os.Getenv("SHOPPINGLIST_STORAGE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("SHOPPINGLIST_DATABASE_URL"); v != "" {
		cfg.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" && cfg.Storage.Postgres.DSN == "" {
		cfg.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("SHOPPINGLIST_MIGRATE_ON_START"); v != "" {
		cfg.Storage.Postgres.MigrateOnStart = v == "true" || v == "1"
	}
	if v := os.Getenv("SHOPPINGLIST_METRICS_ENABLED"); v != "" {
		cfg.Observability.Metrics.Enabled = v == "true" || v == "1"
	}
}

// resolveFileReferences reads _file fields and populates the corresponding
// value fields. If the value field is already set, the file reference is
// ignored.
func resolveFileReferences(cfg *Config) error {
	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}
	return nil
}

// readSecretFile reads a file and returns its whitespace-trimmed content.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
