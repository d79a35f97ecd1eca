package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/crowdrank/crowdrank-backend/pkg/pricing"
)

type tierPrice struct {
	ReviewTier   int             `json:"review_tier"`
	Price        int64           `json:"price"`
	DisplayPrice decimal.Decimal `json:"display_price"`
}

type rankReward struct {
	Rank          int             `json:"rank"`
	Reward        int64           `json:"reward"`
	DisplayReward decimal.Decimal `json:"display_reward"`
}

type categoryPricing struct {
	Tiers       []tierPrice  `json:"tiers"`
	RankRewards []rankReward `json:"rank_rewards"`
}

type pricingResponse struct {
	TokenDisplayRate        decimal.Decimal                      `json:"token_display_rate"`
	SubmissionCredit        int64                                `json:"submission_credit"`
	SubmissionCreditDisplay decimal.Decimal                      `json:"submission_credit_display"`
	RankMultipliersPct      []int                                `json:"rank_multipliers_pct"`
	Categories              map[pricing.Category]categoryPricing `json:"categories"`
}

// GetPricing returns the full price table with display-currency conversions.
func (h *Handler) GetPricing(c *gin.Context) {
	ctx := c.Request.Context()

	response := pricingResponse{
		TokenDisplayRate:        h.oracle.DisplayAmount(ctx, pricing.BaseUnitsPerToken),
		SubmissionCredit:        h.oracle.SubmissionCredit(),
		SubmissionCreditDisplay: h.oracle.DisplayAmount(ctx, h.oracle.SubmissionCredit()),
		RankMultipliersPct:      h.oracle.RankMultipliers(),
		Categories:              make(map[pricing.Category]categoryPricing),
	}

	for _, category := range h.oracle.Categories() {
		entry := categoryPricing{}
		for _, tier := range h.oracle.Tiers(category) {
			price, err := h.oracle.TaskPrice(category, tier)
			if err != nil {
				continue
			}
			entry.Tiers = append(entry.Tiers, tierPrice{
				ReviewTier:   tier,
				Price:        price,
				DisplayPrice: h.oracle.DisplayAmount(ctx, price),
			})
		}
		for rank := 1; rank <= h.oracle.RewardedRanks(); rank++ {
			reward, err := h.oracle.WorkerReward(category, rank)
			if err != nil {
				continue
			}
			entry.RankRewards = append(entry.RankRewards, rankReward{
				Rank:          rank,
				Reward:        reward,
				DisplayReward: h.oracle.DisplayAmount(ctx, reward),
			})
		}
		response.Categories[category] = entry
	}

	c.JSON(http.StatusOK, response)
}
