package cartsync

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shopkit/cartsync/logging"
)

// ListConfig holds the lifecycle parameters of one list instance.
type ListConfig struct {
	// TTLHours is the replica's lifetime in hours.
	TTLHours int `yaml:"ttl_hours"`

	// EvictKeep is how many of the newest items survive a quota eviction.
	EvictKeep int `yaml:"evict_keep"`

	// MaxRetries bounds queued-operation redelivery attempts.
	MaxRetries int `yaml:"max_retries"`
}

// TTL returns the configured lifetime as a duration.
func (c ListConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// GatewayConfig holds the backend endpoint settings.
type GatewayConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Timeout returns the configured request timeout as a duration.
func (c GatewayConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Config is the engine configuration loaded from a YAML file.
type Config struct {
	Gateway        GatewayConfig  `yaml:"gateway"`
	Cart           ListConfig     `yaml:"cart"`
	Saved          ListConfig     `yaml:"saved"`
	ConflictPolicy ConflictPolicy `yaml:"conflict_policy"`
	Logging        logging.Config `yaml:"logging"`
}

// DefaultConfig returns the configuration with spec defaults applied.
func DefaultConfig() Config {
	return Config{
		Gateway: GatewayConfig{TimeoutMs: 10000},
		Cart: ListConfig{
			TTLHours:   int(DefaultCartTTL / time.Hour),
			EvictKeep:  DefaultCartEvictKeep,
			MaxRetries: DefaultMaxRetries,
		},
		Saved: ListConfig{
			TTLHours:   int(DefaultSavedTTL / time.Hour),
			EvictKeep:  DefaultSavedEvictKeep,
			MaxRetries: DefaultMaxRetries,
		},
		ConflictPolicy: SumQuantities,
		Logging:        logging.DefaultConfig,
	}
}

// LoadConfig reads a YAML configuration file, filling unset fields with
// defaults and validating the result.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parsing config %s: %w", path, err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Cart.TTLHours <= 0 {
		c.Cart.TTLHours = defaults.Cart.TTLHours
	}
	if c.Cart.EvictKeep <= 0 {
		c.Cart.EvictKeep = defaults.Cart.EvictKeep
	}
	if c.Cart.MaxRetries <= 0 {
		c.Cart.MaxRetries = defaults.Cart.MaxRetries
	}
	if c.Saved.TTLHours <= 0 {
		c.Saved.TTLHours = defaults.Saved.TTLHours
	}
	if c.Saved.EvictKeep <= 0 {
		c.Saved.EvictKeep = defaults.Saved.EvictKeep
	}
	if c.Saved.MaxRetries <= 0 {
		c.Saved.MaxRetries = defaults.Saved.MaxRetries
	}
	if c.Gateway.TimeoutMs <= 0 {
		c.Gateway.TimeoutMs = defaults.Gateway.TimeoutMs
	}
	if c.ConflictPolicy == "" {
		c.ConflictPolicy = defaults.ConflictPolicy
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if !c.ConflictPolicy.Valid() {
		return fmt.Errorf("unknown conflict policy %q", c.ConflictPolicy)
	}
	if c.Cart.TTLHours <= 0 || c.Saved.TTLHours <= 0 {
		return fmt.Errorf("replica ttl must be positive")
	}
	if c.Cart.EvictKeep <= 0 || c.Saved.EvictKeep <= 0 {
		return fmt.Errorf("evict_keep must be positive")
	}
	if c.Cart.MaxRetries <= 0 || c.Saved.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be positive")
	}
	return nil
}
