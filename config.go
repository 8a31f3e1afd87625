package spotcore

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	defaultSnapshotInterval = 3 * time.Second
	defaultRequestBuffer    = 4096
)

// MarketConfig declares one tradable pair.
type MarketConfig struct {
	ID         string `yaml:"id"`
	BaseAsset  string `yaml:"base_asset"`
	QuoteAsset string `yaml:"quote_asset"`
}

// SnapshotConfig controls where and how often engine state is persisted.
type SnapshotConfig struct {
	Dir      string `yaml:"dir"`
	Interval string `yaml:"interval"` // e.g. "3s"
}

// KafkaConfig selects the Kafka event publisher when brokers are set.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// Config is the process configuration.
type Config struct {
	Markets       []MarketConfig               `yaml:"markets"`
	SeedBalances  map[string]map[string]string `yaml:"seed_balances"` // userID -> asset -> amount
	Snapshot      SnapshotConfig               `yaml:"snapshot"`
	Kafka         KafkaConfig                  `yaml:"kafka"`
	RequestBuffer int                          `yaml:"request_buffer"`

	snapshotInterval time.Duration
}

// LoadConfig reads and validates a YAML config file. It returns an error if
// the file is missing or invalid (fail fast).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SnapshotInterval returns the parsed snapshot interval.
func (c *Config) SnapshotInterval() time.Duration {
	if c.snapshotInterval == 0 {
		return defaultSnapshotInterval
	}
	return c.snapshotInterval
}

func (c *Config) validate() error {
	if len(c.Markets) == 0 {
		return fmt.Errorf("config: at least one market is required")
	}
	seenMarkets := make(map[string]struct{}, len(c.Markets))
	for _, m := range c.Markets {
		if m.ID == "" || m.BaseAsset == "" || m.QuoteAsset == "" {
			return fmt.Errorf("config: market %q needs id, base_asset and quote_asset", m.ID)
		}
		if _, ok := seenMarkets[m.ID]; ok {
			return fmt.Errorf("config: duplicate market %q", m.ID)
		}
		seenMarkets[m.ID] = struct{}{}
	}

	for userID, assets := range c.SeedBalances {
		for asset, amount := range assets {
			amt, err := decimal.NewFromString(amount)
			if err != nil || amt.IsNegative() {
				return fmt.Errorf("config: seed balance %s/%s: %q is not a non-negative decimal", userID, asset, amount)
			}
		}
	}

	if c.Snapshot.Dir == "" {
		c.Snapshot.Dir = "snapshots"
	}
	if c.Snapshot.Interval != "" {
		d, err := time.ParseDuration(c.Snapshot.Interval)
		if err != nil || d <= 0 {
			return fmt.Errorf("config: snapshot interval %q is not a positive duration", c.Snapshot.Interval)
		}
		c.snapshotInterval = d
	}

	if c.RequestBuffer <= 0 {
		c.RequestBuffer = defaultRequestBuffer
	}

	return nil
}
