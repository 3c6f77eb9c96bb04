package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

//nolint:gochecknoglobals // Shared jitter source
var (
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// ErrInvalidRetryConfig is returned for negative or inconsistent retry settings.
var ErrInvalidRetryConfig = errors.New("invalid retry config")

// RetryConfig controls exponential backoff of transient failures.
type RetryConfig struct {
	// MaxAttempts counts the first try. 1 disables retries.
	MaxAttempts  int           `yaml:"maxAttempts" default:"3"`
	InitialDelay time.Duration `yaml:"initialDelay" default:"100ms"`
	MaxDelay     time.Duration `yaml:"maxDelay" default:"5s"`
	Multiplier   float64       `yaml:"multiplier" default:"2"`
	Jitter       bool          `yaml:"jitter" default:"true"`
}

// Validate checks if the configuration is valid
func (c *RetryConfig) Validate() error {
	if c.InitialDelay < 0 || c.MaxDelay < 0 || c.Multiplier < 0 || c.MaxAttempts < 0 {
		return fmt.Errorf("%w: values cannot be negative", ErrInvalidRetryConfig)
	}

	if c.MaxDelay > 0 && c.InitialDelay > c.MaxDelay {
		return fmt.Errorf("%w: maxDelay must be >= initialDelay", ErrInvalidRetryConfig)
	}

	return nil
}

// SetDefaults sets default values for the configuration
func (c *RetryConfig) SetDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}

	if c.InitialDelay == 0 {
		c.InitialDelay = 100 * time.Millisecond
	}

	if c.MaxDelay == 0 {
		c.MaxDelay = 5 * time.Second
	}

	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
}

// PermanentError marks an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so Retry returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Retry runs fn until it succeeds, returns a permanent error, the attempts are exhausted or
// ctx is done. onRetry, when set, is called before each backoff sleep.
func Retry(ctx context.Context, cfg RetryConfig, fn func(attempt int) error, onRetry func(attempt int, err error)) error {
	cfg.SetDefaults()

	var lastErr error

	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			return err
		}

		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt+1, ctx.Err())
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		if onRetry != nil {
			onRetry(attempt, err)
		}

		sleep := delay
		if cfg.Jitter && delay >= 4 {
			randMu.Lock()
			sleep += time.Duration(randSource.Int63n(int64(delay / 4)))
			randMu.Unlock()
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff: %w", ctx.Err())
		case <-timer.C:
		}

		next := float64(delay) * cfg.Multiplier
		if next > float64(cfg.MaxDelay) {
			delay = cfg.MaxDelay
		} else {
			delay = time.Duration(next)
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
