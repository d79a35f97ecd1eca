package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/crowdrank/crowdrank-backend/pkg/logging"
	"github.com/crowdrank/crowdrank-backend/pkg/retry"
)

// RateSource provides the display-currency-per-token exchange rate.
type RateSource interface {
	GetRate(ctx context.Context) (decimal.Decimal, error)
}

// FixedRateSource always returns the same rate. Used as the fallback source
// and in tests.
type FixedRateSource struct {
	Rate decimal.Decimal
}

func (s FixedRateSource) GetRate(_ context.Context) (decimal.Decimal, error) {
	return s.Rate, nil
}

// HTTPRateSource fetches the rate from a price API endpoint.
type HTTPRateSource struct {
	url        string
	httpClient *retry.HTTPClient
	logger     logging.Logger
}

func NewHTTPRateSource(url string, httpClient *retry.HTTPClient, logger logging.Logger) *HTTPRateSource {
	return &HTTPRateSource{
		url:        url,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (s *HTTPRateSource) GetRate(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.DoWithRetry(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			s.logger.Errorf("Error closing response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rate request failed with status: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read response body: %w", err)
	}

	return extractRate(body)
}

// rateResponse covers the field names common across price APIs.
type rateResponse struct {
	Rate  float64 `json:"rate"`
	Price float64 `json:"price"`
	USD   float64 `json:"usd"`
	Value float64 `json:"value"`
}

// extractRate pulls a positive rate out of the response, accepting either a
// JSON object with a known field or a bare number body.
func extractRate(body []byte) (decimal.Decimal, error) {
	var parsed rateResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, candidate := range []float64{parsed.Rate, parsed.Price, parsed.USD, parsed.Value} {
			if candidate > 0 {
				return decimal.NewFromFloat(candidate), nil
			}
		}
	}

	if rate, err := decimal.NewFromString(strings.TrimSpace(string(body))); err == nil && rate.IsPositive() {
		return rate, nil
	}

	return decimal.Zero, fmt.Errorf("no usable rate in response: %s", truncateBody(body))
}

func truncateBody(body []byte) string {
	const max = 120
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
