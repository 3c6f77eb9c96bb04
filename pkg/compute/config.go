package compute

import (
	"errors"
	"fmt"
)

// Static errors for configuration validation
var (
	ErrInvalidBuckets      = errors.New("buckets must be positive")
	ErrInvalidBatchSize    = errors.New("maxBatchSize must be positive")
	ErrInvalidConcurrency  = errors.New("concurrency must be positive")
	ErrComputePathRequired = errors.New("compute path is required")
)

// Config contains compute client settings.
type Config struct {
	// Buckets is the number of buckets requested per expression. The remote evaluator chooses
	// the boundaries and may return fewer.
	Buckets int `yaml:"buckets" default:"1000"`
	// MaxBatchSize is the number of expressions sent in one round trip.
	MaxBatchSize int `yaml:"maxBatchSize" default:"32"`
	// Concurrency bounds the number of batch round trips in flight.
	Concurrency int `yaml:"concurrency" default:"4"`
	// DisableHoisting sends every expression as built. By default subexpressions shared between
	// the expressions of a round trip are moved into request context variables so the
	// evaluator computes them once.
	DisableHoisting bool   `yaml:"disableHoisting"`
	Path            string `yaml:"path" default:"/compute/v1/buckets"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Buckets <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBuckets, c.Buckets)
	}

	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBatchSize, c.MaxBatchSize)
	}

	if c.Concurrency <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidConcurrency, c.Concurrency)
	}

	if c.Path == "" {
		return ErrComputePathRequired
	}

	return nil
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	if c.Buckets == 0 {
		c.Buckets = 1000
	}

	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = 32
	}

	if c.Concurrency == 0 {
		c.Concurrency = 4
	}

	if c.Path == "" {
		c.Path = "/compute/v1/buckets"
	}
}
