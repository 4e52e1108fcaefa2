package config

import (
	"errors"
	"fmt"

	"github.com/gookit/validate"
)

// Validate checks struct tags, then the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	v := validate.Struct(c)
	if !v.Validate() {
		return fmt.Errorf("invalid config: %w", v.Errors)
	}

	switch c.Store.Backend {
	case "file":
		if c.Store.FilePath == "" {
			return errors.New("invalid config: store.filePath is required for the file backend")
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			return errors.New("invalid config: store.redisAddr is required for the redis backend")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return errors.New("invalid config: store.databaseURL is required for the postgres backend")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid config: unknown store.backend %q", c.Store.Backend)
	}
	if c.Defaults.TimeFormat != "12h" && c.Defaults.TimeFormat != "24h" {
		return fmt.Errorf("invalid config: defaults.timeFormat must be 12h or 24h, got %q", c.Defaults.TimeFormat)
	}
	if c.Upstream.CacheTTL < 0 || c.Alarm.DevPollInterval < 0 {
		return errors.New("invalid config: durations must not be negative")
	}
	return nil
}
