package pricing

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// CategoryPricing holds the per-category price table and reward base.
type CategoryPricing struct {
	// Tiers maps a required review count to the task price in base units.
	Tiers map[int]int64 `yaml:"tiers"`
	// BaseReward is the rank-1 reward in base units; lower ranks are scaled
	// down by the rank multipliers.
	BaseReward int64 `yaml:"base_reward"`
}

// Config is the full pricing table. Loaded from YAML, merged over defaults.
type Config struct {
	Categories map[Category]CategoryPricing `yaml:"categories"`
	// RankMultiplierPct scales BaseReward per rank, index 0 = rank 1.
	// The first entry must be 100.
	RankMultiplierPct []int `yaml:"rank_multiplier_pct"`
	// SubmissionCredit is the flat amount credited for every accepted
	// submission, independent of consensus outcome.
	SubmissionCredit int64 `yaml:"submission_credit"`
	// FallbackRate is the display-currency-per-token rate used when the
	// live rate source is unavailable.
	FallbackRate string `yaml:"fallback_rate"`
}

// DefaultConfig returns the built-in pricing table.
func DefaultConfig() Config {
	return Config{
		Categories: map[Category]CategoryPricing{
			CategoryThumbnail: {
				Tiers:      map[int]int64{100: 2_000_000, 200: 3_600_000},
				BaseReward: 10_000,
			},
			CategoryImage: {
				Tiers:      map[int]int64{200: 3_000_000, 300: 4_200_000},
				BaseReward: 10_000,
			},
			CategoryVideo: {
				Tiers:      map[int]int64{300: 9_000_000, 500: 14_000_000},
				BaseReward: 25_000,
			},
		},
		RankMultiplierPct: []int{100, 70, 40},
		SubmissionCredit:  200,
		FallbackRate:      "1.75",
	}
}

// LoadConfig loads the pricing table from a YAML file, merging it over the
// defaults. An empty path returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Config{}, fmt.Errorf("pricing file does not exist: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read pricing file %s: %w", path, err)
	}

	var overrides Config
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal pricing file %s: %w", path, err)
	}

	config.merge(overrides)
	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid pricing file %s: %w", path, err)
	}
	return config, nil
}

// merge applies the non-empty parts of overrides. A category present in the
// overrides replaces that category's entry wholesale.
func (c *Config) merge(overrides Config) {
	for category, pricing := range overrides.Categories {
		c.Categories[category] = pricing
	}
	if len(overrides.RankMultiplierPct) > 0 {
		c.RankMultiplierPct = overrides.RankMultiplierPct
	}
	if overrides.SubmissionCredit > 0 {
		c.SubmissionCredit = overrides.SubmissionCredit
	}
	if overrides.FallbackRate != "" {
		c.FallbackRate = overrides.FallbackRate
	}
}

// Validate checks the table for values the settlement math relies on.
func (c *Config) Validate() error {
	if len(c.Categories) == 0 {
		return fmt.Errorf("no categories configured")
	}
	for category, pricing := range c.Categories {
		if len(pricing.Tiers) == 0 {
			return fmt.Errorf("category %q has no tiers", category)
		}
		for tier, price := range pricing.Tiers {
			if tier <= 0 {
				return fmt.Errorf("category %q has invalid tier %d", category, tier)
			}
			if price <= 0 {
				return fmt.Errorf("category %q tier %d has invalid price %d", category, tier, price)
			}
		}
		if pricing.BaseReward <= 0 {
			return fmt.Errorf("category %q has invalid base reward %d", category, pricing.BaseReward)
		}
	}
	if len(c.RankMultiplierPct) == 0 {
		return fmt.Errorf("no rank multipliers configured")
	}
	if c.RankMultiplierPct[0] != 100 {
		return fmt.Errorf("rank 1 multiplier must be 100, got %d", c.RankMultiplierPct[0])
	}
	for i, pct := range c.RankMultiplierPct {
		if pct <= 0 || pct > 100 {
			return fmt.Errorf("rank %d multiplier %d out of range (0, 100]", i+1, pct)
		}
	}
	if c.SubmissionCredit <= 0 {
		return fmt.Errorf("submission credit must be positive, got %d", c.SubmissionCredit)
	}
	if rate, err := decimal.NewFromString(c.FallbackRate); err != nil || !rate.IsPositive() {
		return fmt.Errorf("invalid fallback rate %q", c.FallbackRate)
	}
	return nil
}
