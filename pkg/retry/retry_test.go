package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/crowdrank/crowdrank-backend/pkg/logging"
)

func fastConfig(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries:      maxRetries,
		InitialDelay:    5 * time.Millisecond,
		MaxDelay:        50 * time.Millisecond,
		BackoffFactor:   2.0,
		JitterFactor:    0.1,
		LogRetryAttempt: false,
	}
}

func TestRetry_SuccessAndFailurePaths(t *testing.T) {
	logger := logging.NewNoOpLogger()

	tests := []struct {
		name           string
		operation      func() (string, error)
		config         *RetryConfig
		expectedResult string
		expectError    bool
	}{
		{
			name: "success on first try",
			operation: func() (string, error) {
				return "success", nil
			},
			config:         fastConfig(3),
			expectedResult: "success",
			expectError:    false,
		},
		{
			name: "failure after all retries",
			operation: func() (string, error) {
				return "", errors.New("operation failed")
			},
			config:      fastConfig(2),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Retry(context.Background(), tt.operation, tt.config, logger)

			if tt.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "failed after")
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expectedResult, result)
			}
		})
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	logger := logging.NewNoOpLogger()

	attempts := 0
	operation := func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	}

	result, err := Retry(context.Background(), operation, fastConfig(5), logger)

	assert.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ShouldRetryPredicateStopsEarly(t *testing.T) {
	logger := logging.NewNoOpLogger()
	permanent := errors.New("permanent failure")

	attempts := 0
	config := fastConfig(5)
	config.ShouldRetry = func(err error, attempt int) bool {
		return !errors.Is(err, permanent)
	}

	_, err := Retry(context.Background(), func() (string, error) {
		attempts++
		return "", permanent
	}, config, logger)

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestRetry_ContextCancellation_StopsRetrying(t *testing.T) {
	logger := logging.NewNoOpLogger()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Retry(ctx, func() (string, error) {
		return "", errors.New("should not matter")
	}, fastConfig(5), logger)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetry_NilConfigUsesDefaults(t *testing.T) {
	logger := logging.NewNoOpLogger()

	result, err := Retry(context.Background(), func() (string, error) {
		return "ok", nil
	}, nil, logger)

	assert.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestRetryFunc_WrapsErrorOnlyOperations(t *testing.T) {
	logger := logging.NewNoOpLogger()

	attempts := 0
	err := RetryFunc(context.Background(), func() error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	}, fastConfig(3), logger)

	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*RetryConfig)
		expectErr bool
	}{
		{"valid default", func(c *RetryConfig) {}, false},
		{"negative max retries", func(c *RetryConfig) { c.MaxRetries = -1 }, true},
		{"zero initial delay", func(c *RetryConfig) { c.InitialDelay = 0 }, true},
		{"zero max delay", func(c *RetryConfig) { c.MaxDelay = 0 }, true},
		{"backoff below one", func(c *RetryConfig) { c.BackoffFactor = 0.5 }, true},
		{"jitter above one", func(c *RetryConfig) { c.JitterFactor = 1.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultRetryConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCalculateNextDelay_CapsAtMaxDelay(t *testing.T) {
	next := CalculateNextDelay(40*time.Millisecond, 2.0, 50*time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, next)

	next = CalculateNextDelay(10*time.Millisecond, 2.0, 50*time.Millisecond)
	assert.Equal(t, 20*time.Millisecond, next)
}

func TestCalculateDelayWithJitter_StaysWithinBounds(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		d := CalculateDelayWithJitter(base, 0.2)
		assert.GreaterOrEqual(t, d, base)
		assert.LessOrEqual(t, d, base+time.Duration(0.2*float64(base)))
	}

	assert.Equal(t, base, CalculateDelayWithJitter(base, 0))
}
