package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/seriesgraph/pkg/compute"
	"github.com/ethpandaops/seriesgraph/pkg/ingest"
	"github.com/ethpandaops/seriesgraph/pkg/redis"
	"github.com/ethpandaops/seriesgraph/pkg/transport"
)

// CLIConfig represents the configuration shared by all commands
type CLIConfig struct {
	// Logging level
	Logging string `yaml:"logging" default:"info" validate:"oneof=panic fatal warn info debug trace"`
	// MetricsAddr serves prometheus metrics while a command runs. Empty disables it.
	MetricsAddr string `yaml:"metricsAddr"`

	Platform transport.Config `yaml:"platform"`

	// Redis configuration (optional, enables the catalog cache and the ingest queue)
	Redis redis.Config `yaml:"redis,omitempty"`

	Catalog struct {
		CacheTTL time.Duration `yaml:"cacheTtl" default:"5m"`
		// Strict fails when an explicit tag disagrees with a scope default instead of
		// overriding it.
		Strict bool `yaml:"strict"`
	} `yaml:"catalog"`

	Compute compute.Config `yaml:"compute"`
	Ingest  ingest.Config  `yaml:"ingest"`
}

// Validate validates the CLI configuration
func (c *CLIConfig) Validate() error {
	if c.Platform.UserAgent == "" || c.Platform.UserAgent == "seriesgraph" {
		c.Platform.UserAgent = userAgent()
	}
	c.Platform.SetDefaults()

	if err := c.Platform.Validate(); err != nil {
		return fmt.Errorf("invalid platform config: %w", err)
	}

	if c.Redis.Address != "" {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("invalid redis config: %w", err)
		}
	}

	c.Compute.SetDefaults()

	if err := c.Compute.Validate(); err != nil {
		return fmt.Errorf("invalid compute config: %w", err)
	}

	return nil
}

// ValidateIngest validates the ingest section, which only the ingest commands need.
func (c *CLIConfig) ValidateIngest() error {
	c.Ingest.SetDefaults()

	if err := c.Ingest.Validate(); err != nil {
		return err
	}

	if c.Ingest.Queue.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("ingest queue: %w", redis.ErrAddressRequired)
	}

	return nil
}

// LoadCLIConfig loads CLI configuration from a YAML file
func LoadCLIConfig(path string) (*CLIConfig, error) {
	if path == "" {
		path = "config.yaml"
	}

	config := &CLIConfig{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	// Try to read the file, but allow it to not exist
	yamlFile, err := os.ReadFile(path) //nolint:gosec // User-provided config file path
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(yamlFile, config); err != nil {
		return nil, err
	}

	return config, nil
}
