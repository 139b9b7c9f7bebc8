package config

import "fmt"

// Validate checks the configuration for consistency. It returns the first
// problem found.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxBodySize <= 0 {
		return fmt.Errorf("server.max_body_size must be positive, got %d", c.Server.MaxBodySize)
	}

	switch c.Storage.Type {
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required when storage.type is %q", c.Storage.Type)
		}
	case "memory":
		// No further settings.
	default:
		return fmt.Errorf("storage.type must be %q or %q, got %q", "postgres", "memory", c.Storage.Type)
	}

	if c.Observability.Metrics.Enabled && c.Observability.Metrics.Path == "" {
		return fmt.Errorf("observability.metrics.path is required when metrics are enabled")
	}

	return nil
}
