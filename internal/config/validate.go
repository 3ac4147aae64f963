package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDistribution(); err != nil {
		return err
	}
	if err := c.validateScoring(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateReservation(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDistribution() error {
	if c.Distribution.AnnotatorsPerClip <= 0 {
		return errors.New("distribution.annotators_per_clip must be positive")
	}
	if c.Distribution.ClipsPerBlock <= 0 {
		return errors.New("distribution.clips_per_block must be positive")
	}
	switch c.Distribution.Resume {
	case "count", "gap":
	default:
		return fmt.Errorf("distribution.resume must be count or gap, got %q", c.Distribution.Resume)
	}
	switch c.Distribution.Saturation {
	case "last_clip", "block":
	default:
		return fmt.Errorf("distribution.saturation must be last_clip or block, got %q", c.Distribution.Saturation)
	}
	if c.Corpus.FramePadding <= 0 {
		return errors.New("corpus.frame_padding must be positive")
	}
	return nil
}

func (c *Config) validateScoring() error {
	if c.Scoring.IoUThreshold <= 0 || c.Scoring.IoUThreshold > 1 {
		return fmt.Errorf("scoring.iou_threshold must be in (0, 1], got %v", c.Scoring.IoUThreshold)
	}
	if c.Scoring.Workers <= 0 {
		return errors.New("scoring.workers must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case "sqlite", "file":
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.Host == "" {
			return errors.New("storage.postgres requires dsn or host")
		}
	default:
		return fmt.Errorf("storage.backend must be sqlite, file, or postgres, got %q", c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateReservation() error {
	switch c.Reservation.Backend {
	case "none", "local":
	case "redis":
		if c.Reservation.Redis.Address == "" {
			return errors.New("reservation.redis.address is required for the redis backend")
		}
	default:
		return fmt.Errorf("reservation.backend must be none, local, or redis, got %q", c.Reservation.Backend)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

// ValidateServer checks settings only the HTTP server needs.
func (c *Config) ValidateServer() error {
	if c.Server.SecretKey == "" {
		return errors.New("server.secret_key is not set; set it in the config file or the SECRET_KEY environment variable")
	}
	return nil
}
