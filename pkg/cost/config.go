package cost

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates the knobs for every cost-provider constructor in this
// package (ATR, fee, slippage, hold-time) into a single YAML-loadable
// document, the way a deployment ships one "ATR" confkit section that wires
// up all of cost's estimators at once rather than one section per provider.
type Config struct {
	ATR ATRProviderConfig `yaml:"atr"`

	FeeCacheTTLRaw string        `yaml:"fee_cache_ttl"` // e.g. "1h"
	FeeCacheTTL    time.Duration `yaml:"-"`

	Slippage SlippageProviderConfig `yaml:"slippage"`
	HoldTime HoldTimeProviderConfig `yaml:"hold_time"`

	// FeeOverrides replaces entries in the static per-venue fee table
	// (venue name -> schedule); venues left unset keep staticFeeTable's
	// defaults.
	FeeOverrides map[string]FeeConfig `yaml:"fee_overrides"`
}

func (c Config) withDefaults() Config {
	if c.ATR.Period <= 0 {
		c.ATR.Period = 14
	}
	if c.Slippage.SizeThresholdSmall <= 0 {
		c.Slippage.SizeThresholdSmall = 10000
	}
	if c.Slippage.SizeThresholdLarge <= 0 {
		c.Slippage.SizeThresholdLarge = 50000
	}
	if c.Slippage.WarningThresholdBps <= 0 {
		c.Slippage.WarningThresholdBps = 10.0
	}
	if c.HoldTime.Default <= 0 {
		c.HoldTime.Default = 4 * time.Hour
	}
	return c
}

func (c *Config) normalise() error {
	if err := c.ATR.normalise(); err != nil {
		return err
	}
	if err := c.Slippage.normalise(); err != nil {
		return err
	}
	if err := c.HoldTime.normalise(); err != nil {
		return err
	}
	if c.FeeCacheTTLRaw != "" {
		d, err := time.ParseDuration(c.FeeCacheTTLRaw)
		if err != nil {
			return fmt.Errorf("atr config: invalid fee_cache_ttl %q: %w", c.FeeCacheTTLRaw, err)
		}
		c.FeeCacheTTL = d
	}
	return nil
}

// LoadConfig reads a cost-provider Config from a YAML file, applying
// defaults to any field left unset.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read atr config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal atr config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	return &cfg, nil
}
