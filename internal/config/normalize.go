package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCorpus()
	c.normalizeDistribution()
	c.normalizeStorage()
	c.normalizeReservation()
	c.normalizeServer()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.VideosDir, err = expandPath(c.Paths.VideosDir); err != nil {
		return fmt.Errorf("paths.videos_dir: %w", err)
	}
	if c.Paths.ValidationVideosDir, err = expandPath(c.Paths.ValidationVideosDir); err != nil {
		return fmt.Errorf("paths.validation_videos_dir: %w", err)
	}
	if c.Paths.ValidationGTsDir, err = expandPath(c.Paths.ValidationGTsDir); err != nil {
		return fmt.Errorf("paths.validation_gts_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCorpus() {
	c.Corpus.FrameExtension = strings.TrimSpace(c.Corpus.FrameExtension)
	if c.Corpus.FrameExtension == "" {
		c.Corpus.FrameExtension = defaultFrameExtension
	}
	if !strings.HasPrefix(c.Corpus.FrameExtension, ".") {
		c.Corpus.FrameExtension = "." + c.Corpus.FrameExtension
	}
}

func (c *Config) normalizeDistribution() {
	c.Distribution.Resume = strings.ToLower(strings.TrimSpace(c.Distribution.Resume))
	if c.Distribution.Resume == "" {
		c.Distribution.Resume = defaultResume
	}
	c.Distribution.Saturation = strings.ToLower(strings.TrimSpace(c.Distribution.Saturation))
	if c.Distribution.Saturation == "" {
		c.Distribution.Saturation = defaultSaturation
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaultStorageBackend
	}
	if c.Storage.BatchSize <= 0 {
		c.Storage.BatchSize = defaultStorageBatchSize
	}
	if c.Storage.Postgres.DSN == "" {
		if value, ok := os.LookupEnv("ANNOTATOR_POSTGRES_DSN"); ok {
			c.Storage.Postgres.DSN = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeReservation() {
	c.Reservation.Backend = strings.ToLower(strings.TrimSpace(c.Reservation.Backend))
	if c.Reservation.Backend == "" {
		c.Reservation.Backend = defaultReservationBackend
	}
	if value, ok := os.LookupEnv("ANNOTATOR_REDIS_ADDR"); ok && strings.TrimSpace(value) != "" {
		c.Reservation.Redis.Address = strings.TrimSpace(value)
	}
	if c.Reservation.Redis.Prefix == "" {
		c.Reservation.Redis.Prefix = defaultRedisPrefix
	}
	if c.Reservation.Redis.TimeoutSeconds <= 0 {
		c.Reservation.Redis.TimeoutSeconds = defaultRedisTimeoutSeconds
	}
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	if c.Server.SecretKey == "" {
		if value, ok := os.LookupEnv("SECRET_KEY"); ok {
			c.Server.SecretKey = value
		}
	}
	if c.Server.SessionLifetimeDays <= 0 {
		c.Server.SessionLifetimeDays = defaultSessionLifetimeDays
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = defaultShutdownTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
