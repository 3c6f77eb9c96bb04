package ingest

import (
	"errors"
	"fmt"
)

// Static errors for configuration validation
var (
	ErrDataSourceRequired = errors.New("ingest dataSourceRid is required")
	ErrInvalidBufferSize  = errors.New("maxBufferedPoints must be positive")
	ErrIngestPathRequired = errors.New("ingest path is required")
	ErrQueueNameRequired  = errors.New("ingest queue name is required")
	ErrInvalidConcurrency = errors.New("queue concurrency must be positive")
)

// Config contains streamed ingestion settings.
type Config struct {
	DataSourceRID string `yaml:"dataSourceRid"`
	// MaxBufferedPoints triggers a flush once the writer holds this many points across all
	// series.
	MaxBufferedPoints int         `yaml:"maxBufferedPoints" default:"10000"`
	Path              string      `yaml:"path" default:"/ingest/v1/write"`
	Queue             QueueConfig `yaml:"queue"`
}

// QueueConfig enables the durable redis-backed queue between the writer and the platform.
type QueueConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Name        string `yaml:"name" default:"ingest"`
	MaxRetry    int    `yaml:"maxRetry" default:"5"`
	Concurrency int    `yaml:"concurrency" default:"4"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DataSourceRID == "" {
		return ErrDataSourceRequired
	}

	if c.MaxBufferedPoints <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBufferSize, c.MaxBufferedPoints)
	}

	if c.Path == "" {
		return ErrIngestPathRequired
	}

	if !c.Queue.Enabled {
		return nil
	}

	if c.Queue.Name == "" {
		return ErrQueueNameRequired
	}

	if c.Queue.Concurrency <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidConcurrency, c.Queue.Concurrency)
	}

	return nil
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	if c.MaxBufferedPoints == 0 {
		c.MaxBufferedPoints = 10000
	}

	if c.Path == "" {
		c.Path = "/ingest/v1/write"
	}

	if c.Queue.Name == "" {
		c.Queue.Name = "ingest"
	}

	if c.Queue.MaxRetry == 0 {
		c.Queue.MaxRetry = 5
	}

	if c.Queue.Concurrency == 0 {
		c.Queue.Concurrency = 4
	}
}
