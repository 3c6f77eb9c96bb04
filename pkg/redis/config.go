// Package redis holds the redis settings shared by the catalog cache and the ingest queue.
package redis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Define static errors
var (
	ErrAddressRequired = errors.New("redis address is required")
)

// Config holds Redis client configuration
type Config struct {
	// Address is host:port or a redis:// URL.
	Address string `yaml:"address"`
	Prefix  string `yaml:"prefix" default:"seriesgraph"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Address == "" {
		return ErrAddressRequired
	}

	if c.Prefix == "" {
		c.Prefix = "seriesgraph"
	}

	return nil
}

// Options returns go-redis options for the configured address.
func (c *Config) Options() (*redis.Options, error) {
	if strings.Contains(c.Address, "://") {
		opt, err := redis.ParseURL(c.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid redis address: %w", err)
		}

		return opt, nil
	}

	return &redis.Options{Addr: c.Address}, nil
}

// KeyPrefix is the namespace prepended to every redis key, including its separator.
func (c *Config) KeyPrefix() string {
	if c.Prefix == "" {
		return ""
	}

	return c.Prefix + ":"
}

// PrefixKey adds the configured prefix to a Redis key
func (c *Config) PrefixKey(key string) string {
	return c.KeyPrefix() + key
}

// PrefixQueue adds the configured prefix to an Asynq queue name
func (c *Config) PrefixQueue(queue string) string {
	if c.Prefix == "" {
		return queue
	}

	return fmt.Sprintf("%s:%s", c.Prefix, queue)
}
