// Package config loads the single configuration object spec.md §6
// requires at book construction, grounded on
// 0xtitan6-polymarket-mm/internal/config/config.go's viper-backed
// mapstructure-tagged Load/Validate pattern. Unlike that config (a
// top-level strategy/risk/API bundle for a long-running bot), this
// one is deliberately small and flat, matching the handful of
// recognized keys spec.md §6 enumerates — and, per that same section,
// rejects unknown keys at construction rather than silently ignoring
// them.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"lobsim/internal/common"
	"lobsim/internal/dispatcher"
	"lobsim/internal/impact"
	"lobsim/internal/matching"
)

// ImpactConfig is the nested `impact` key of spec.md §6's
// configuration object.
type ImpactConfig struct {
	Eta           float64 `mapstructure:"eta"`
	Gamma         float64 `mapstructure:"gamma"`
	ADV           float64 `mapstructure:"adv"`
	DecayHalfLife int64   `mapstructure:"decay_half_life"`
}

// Config is the top-level configuration object of spec.md §6:
// {tick_size, self_trade_policy, allow_market_orders, impact,
// iceberg_refresh_delay}. An additional max_cascade_depth key
// supplements the spec's explicit list to surface the dispatcher's
// cascade-depth cap (spec.md §9) as a construction-time parameter
// rather than a hardcoded constant.
type Config struct {
	TickSize            int64        `mapstructure:"tick_size"`
	SelfTradePolicy     string       `mapstructure:"self_trade_policy"`
	AllowMarketOrders   bool         `mapstructure:"allow_market_orders"`
	Impact              ImpactConfig `mapstructure:"impact"`
	IcebergRefreshDelay int64        `mapstructure:"iceberg_refresh_delay"`
	MaxCascadeDepth     int          `mapstructure:"max_cascade_depth"`
}

// Load reads config from a YAML/JSON/TOML file at path (format
// inferred from its extension, per viper convention) and rejects any
// key not named above — spec.md §6: "Unknown keys are rejected at
// construction."
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config (unknown key?): %w", err)
	}
	return &cfg, nil
}

// Validate checks the required fields and value ranges. Unlike
// 0xtitan6-polymarket-mm's Validate (which checks API credentials and
// risk limits), this one enforces the book-construction invariants
// spec.md §3/§6 actually state.
func (c *Config) Validate() error {
	if c.TickSize <= 0 {
		return fmt.Errorf("tick_size must be > 0")
	}
	if _, err := c.selfTradePolicy(); err != nil {
		return err
	}
	if c.Impact.ADV < 0 {
		return fmt.Errorf("impact.adv must be >= 0")
	}
	if c.IcebergRefreshDelay < 0 {
		return fmt.Errorf("iceberg_refresh_delay must be >= 0")
	}
	return nil
}

func (c *Config) selfTradePolicy() (common.SelfTradePolicy, error) {
	switch c.SelfTradePolicy {
	case "CANCEL_OLDEST":
		return common.CancelOldest, nil
	case "CANCEL_NEWEST":
		return common.CancelNewest, nil
	case "REJECT_TAKER":
		return common.RejectTaker, nil
	default:
		return 0, fmt.Errorf("self_trade_policy must be one of CANCEL_OLDEST, CANCEL_NEWEST, REJECT_TAKER (got %q)", c.SelfTradePolicy)
	}
}

// MatchingConfig projects this Config into the subset
// internal/matching.Engine needs.
func (c *Config) MatchingConfig() matching.Config {
	policy, _ := c.selfTradePolicy() // validated by Validate before use
	return matching.Config{
		TickSize:            common.TickSize(c.TickSize),
		SelfTradePolicy:     policy,
		AllowMarketOrders:   c.AllowMarketOrders,
		IcebergRefreshDelay: c.IcebergRefreshDelay,
	}
}

// DispatcherConfig projects this Config into the subset
// internal/dispatcher.Dispatcher needs.
func (c *Config) DispatcherConfig() dispatcher.Config {
	return dispatcher.Config{MaxCascadeDepth: c.MaxCascadeDepth}
}

// ImpactParams projects this Config into internal/impact.Params.
func (c *Config) ImpactParams() impact.Params {
	return impact.Params{
		Eta:           c.Impact.Eta,
		Gamma:         c.Impact.Gamma,
		ADV:           c.Impact.ADV,
		DecayHalfLife: c.Impact.DecayHalfLife,
	}
}
