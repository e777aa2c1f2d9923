package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *ClientConfig) Validate() error {
	if c.Pusher.AppKey == "" {
		return errors.New("pusher.app_key is required")
	}
	if c.Pusher.Port < 1 || c.Pusher.Port > 65535 {
		return fmt.Errorf("pusher.port must be between 1 and 65535, got %d", c.Pusher.Port)
	}

	if err := c.Connection.validate("connection"); err != nil {
		return err
	}

	for i, name := range c.Channels {
		if name == "" {
			return fmt.Errorf("channels[%d] is empty", i)
		}
		if needsAuth(name) && c.Auth.Endpoint == "" {
			return fmt.Errorf("auth.endpoint is required for channel %q", name)
		}
	}
	if c.Auth.MaxRetries < 0 {
		return errors.New("auth.max_retries must be >= 0")
	}

	if c.Archive.Enabled {
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
		if c.Archive.BufferSize < 1 {
			return errors.New("archive.buffer_size must be >= 1")
		}
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func needsAuth(channel string) bool {
	return strings.HasPrefix(channel, "private-") || strings.HasPrefix(channel, "presence-")
}

func (cc *ConnectionConfig) validate(prefix string) error {
	if cc.ReconnectInitialDelay < 0 {
		return fmt.Errorf("%s.reconnect_initial_delay must be >= 0", prefix)
	}
	if cc.ReconnectStep < 0 {
		return fmt.Errorf("%s.reconnect_step must be >= 0", prefix)
	}
	if cc.ReconnectMaxDelay < cc.ReconnectInitialDelay {
		return fmt.Errorf("%s.reconnect_max_delay (%s) cannot be less than reconnect_initial_delay (%s)",
			prefix, cc.ReconnectMaxDelay, cc.ReconnectInitialDelay)
	}
	if cc.PingInterval > 0 && cc.PongTimeout <= cc.PingInterval {
		return fmt.Errorf("%s.pong_timeout (%s) must exceed ping_interval (%s)",
			prefix, cc.PongTimeout, cc.PingInterval)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
