package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/crowdrank/crowdrank-backend/pkg/logging"
)

// Category is a content category with its own price table.
type Category string

const (
	CategoryThumbnail Category = "thumbnail"
	CategoryImage     Category = "image"
	CategoryVideo     Category = "video"
)

// BaseUnitsPerToken is the number of base units in one token. All stored
// amounts are integer base units.
const BaseUnitsPerToken = 1_000_000_000

// ErrInvalidPricingTier is returned when no price exists for a category and
// review-tier combination. Callers must treat it as a request error, never
// as a zero price.
var ErrInvalidPricingTier = errors.New("invalid pricing tier")

// Oracle answers price and reward lookups from a fixed table and converts
// base-unit amounts to the display currency.
type Oracle struct {
	config       Config
	rates        RateSource
	fallbackRate decimal.Decimal
	logger       logging.Logger
}

// NewOracle validates the table and builds an Oracle. A nil rates source
// pins the display conversion to the configured fallback rate.
func NewOracle(config Config, rates RateSource, logger logging.Logger) (*Oracle, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pricing config: %w", err)
	}
	fallback, err := decimal.NewFromString(config.FallbackRate)
	if err != nil {
		return nil, fmt.Errorf("invalid fallback rate %q: %w", config.FallbackRate, err)
	}
	if rates == nil {
		rates = FixedRateSource{Rate: fallback}
	}
	return &Oracle{
		config:       config,
		rates:        rates,
		fallbackRate: fallback,
		logger:       logger,
	}, nil
}

// TaskPrice returns the task price in base units for a category and review
// tier. Unknown combinations return ErrInvalidPricingTier.
func (o *Oracle) TaskPrice(category Category, reviewTier int) (int64, error) {
	pricing, ok := o.config.Categories[category]
	if !ok {
		return 0, fmt.Errorf("%w: unknown category %q", ErrInvalidPricingTier, category)
	}
	price, ok := pricing.Tiers[reviewTier]
	if !ok {
		return 0, fmt.Errorf("%w: category %q has no %d-review tier", ErrInvalidPricingTier, category, reviewTier)
	}
	return price, nil
}

// WorkerReward returns the per-voter reward in base units for an option that
// finished at the given rank. Ranks beyond the multiplier table pay nothing.
func (o *Oracle) WorkerReward(category Category, rank int) (int64, error) {
	pricing, ok := o.config.Categories[category]
	if !ok {
		return 0, fmt.Errorf("%w: unknown category %q", ErrInvalidPricingTier, category)
	}
	if rank < 1 || rank > len(o.config.RankMultiplierPct) {
		return 0, nil
	}
	pct := int64(o.config.RankMultiplierPct[rank-1])
	return pricing.BaseReward * pct / 100, nil
}

// SubmissionCredit is the flat amount credited for every accepted submission.
func (o *Oracle) SubmissionCredit() int64 {
	return o.config.SubmissionCredit
}

// RewardedRanks is how many ranks earn a reward.
func (o *Oracle) RewardedRanks() int {
	return len(o.config.RankMultiplierPct)
}

// RankMultipliers returns a copy of the per-rank percentage multipliers.
func (o *Oracle) RankMultipliers() []int {
	multipliers := make([]int, len(o.config.RankMultiplierPct))
	copy(multipliers, o.config.RankMultiplierPct)
	return multipliers
}

// Categories lists the configured categories in name order.
func (o *Oracle) Categories() []Category {
	categories := make([]Category, 0, len(o.config.Categories))
	for category := range o.config.Categories {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
	return categories
}

// Tiers lists the valid review tiers for a category in ascending order.
func (o *Oracle) Tiers(category Category) []int {
	pricing, ok := o.config.Categories[category]
	if !ok {
		return nil
	}
	tiers := make([]int, 0, len(pricing.Tiers))
	for tier := range pricing.Tiers {
		tiers = append(tiers, tier)
	}
	sort.Ints(tiers)
	return tiers
}

// DisplayAmount converts base units to the display currency using the live
// rate. A rate-fetch failure falls back to the configured fixed rate so that
// pricing reads never fail on an exchange outage.
func (o *Oracle) DisplayAmount(ctx context.Context, baseUnits int64) decimal.Decimal {
	rate, err := o.rates.GetRate(ctx)
	if err != nil {
		o.logger.Warnf("Exchange rate fetch failed, using fallback rate %s: %v", o.fallbackRate, err)
		rate = o.fallbackRate
	}
	return ToDisplay(baseUnits, rate)
}

// ToDisplay converts base units to the display currency at the given rate
// (display currency per token).
func ToDisplay(baseUnits int64, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(baseUnits).Mul(rate).Div(decimal.NewFromInt(BaseUnitsPerToken))
}

// FromDisplay converts a display-currency amount back to base units at the
// given rate, rounded to the nearest base unit.
func FromDisplay(display decimal.Decimal, rate decimal.Decimal) (int64, error) {
	if !rate.IsPositive() {
		return 0, fmt.Errorf("rate must be positive, got %s", rate)
	}
	baseUnits := display.Div(rate).Mul(decimal.NewFromInt(BaseUnitsPerToken)).Round(0)
	if baseUnits.BigInt().BitLen() > 63 {
		return 0, fmt.Errorf("amount %s out of range", display)
	}
	return baseUnits.IntPart(), nil
}
