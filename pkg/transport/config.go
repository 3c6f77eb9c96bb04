// Package transport provides the HTTP client used to talk to the platform: bearer
// authentication, request IDs, client-side rate limiting and retries of transient failures.
package transport

import (
	"errors"
	"net/url"
	"os"
	"time"
)

// Static errors for configuration validation
var (
	ErrURLRequired = errors.New("base URL is required")
	ErrInvalidURL  = errors.New("base URL must be an absolute http(s) URL")
)

// Config contains platform connection settings.
type Config struct {
	BaseURL   string        `yaml:"baseUrl"`
	Token     string        `yaml:"token"`
	TokenEnv  string        `yaml:"tokenEnv" default:"SERIESGRAPH_TOKEN"`
	Timeout   time.Duration `yaml:"timeout" default:"30s"`
	KeepAlive time.Duration `yaml:"keepAlive" default:"30s"`
	UserAgent string        `yaml:"userAgent" default:"seriesgraph"`
	Debug     bool          `yaml:"debug"`
	// RateLimit is the maximum sustained requests per second. Zero disables limiting.
	RateLimit float64     `yaml:"rateLimit"`
	RateBurst int         `yaml:"rateBurst" default:"10"`
	Retry     RetryConfig `yaml:"retry"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrURLRequired
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}

	return c.Retry.Validate()
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}

	if c.KeepAlive == 0 {
		c.KeepAlive = 30 * time.Second
	}

	if c.UserAgent == "" {
		c.UserAgent = "seriesgraph"
	}

	if c.RateBurst == 0 {
		c.RateBurst = 10
	}

	c.Retry.SetDefaults()
}

// BearerToken returns the configured token, falling back to the TokenEnv environment variable.
func (c *Config) BearerToken() string {
	if c.Token != "" {
		return c.Token
	}

	if c.TokenEnv != "" {
		return os.Getenv(c.TokenEnv)
	}

	return ""
}
