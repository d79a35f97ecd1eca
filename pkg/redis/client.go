package redis

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/crowdrank/crowdrank-backend/pkg/logging"
	"github.com/crowdrank/crowdrank-backend/pkg/retry"
)

// Client wraps the go-redis client with logging and retry on transient
// failures. It carries only the operations the settlement services use.
type Client struct {
	redisClient *redis.Client
	config      RedisConfig
	logger      logging.Logger
	retryConfig *retry.RetryConfig
}

// NewRedisClient connects to the configured redis endpoint and verifies the
// connection before returning.
func NewRedisClient(logger logging.Logger, config RedisConfig) (*Client, error) {
	opt, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if config.Password != "" {
		opt.Password = config.Password
	}
	applyConnectionSettings(opt, config)

	client := &Client{
		redisClient: redis.NewClient(opt),
		config:      config,
		logger:      logger,
		retryConfig: &retry.RetryConfig{
			MaxRetries:      3,
			InitialDelay:    50 * time.Millisecond,
			MaxDelay:        500 * time.Millisecond,
			BackoffFactor:   2.0,
			JitterFactor:    0.1,
			LogRetryAttempt: false,
		},
	}

	if err := client.CheckConnection(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Infof("Successfully connected to redis")
	return client, nil
}

func applyConnectionSettings(opt *redis.Options, config RedisConfig) {
	opt.PoolSize = config.PoolSize
	opt.MinIdleConns = config.MinIdleConns
	opt.MaxRetries = config.MaxRetries
	opt.DialTimeout = config.DialTimeout
	opt.ReadTimeout = config.ReadTimeout
	opt.WriteTimeout = config.WriteTimeout
	opt.PoolTimeout = config.PoolTimeout
}

// CheckConnection validates the redis connection
func (c *Client) CheckConnection() error {
	timeout := c.config.HealthTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return c.executeWithRetry(ctx, func() error {
		return c.redisClient.Ping(ctx).Err()
	})
}

// Ping checks if redis is reachable
func (c *Client) Ping() error {
	timeout := c.config.PingTimeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return c.executeWithRetry(ctx, func() error {
		return c.redisClient.Ping(ctx).Err()
	})
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	var result string
	err := c.executeWithRetry(ctx, func() error {
		val, err := c.redisClient.Get(ctx, key).Result()
		if err == redis.Nil {
			result = ""
			return nil
		}
		if err != nil {
			return err
		}
		result = val
		return nil
	})
	return result, err
}

func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.executeWithRetry(ctx, func() error {
		return c.redisClient.Set(ctx, key, value, expiration).Err()
	})
}

func (c *Client) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	var result bool
	err := c.executeWithRetry(ctx, func() error {
		val, err := c.redisClient.SetNX(ctx, key, value, expiration).Result()
		if err != nil {
			return err
		}
		result = val
		return nil
	})
	return result, err
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.executeWithRetry(ctx, func() error {
		return c.redisClient.Del(ctx, keys...).Err()
	})
}

// Eval executes a Lua script
func (c *Client) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	var result interface{}
	err := c.executeWithRetry(ctx, func() error {
		val, err := c.redisClient.Eval(ctx, script, keys, args...).Result()
		if err != nil {
			return err
		}
		result = val
		return nil
	})
	return result, err
}

func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	var result time.Duration
	err := c.executeWithRetry(ctx, func() error {
		val, err := c.redisClient.TTL(ctx, key).Result()
		if err != nil {
			return err
		}
		result = val
		return nil
	})
	return result, err
}

func (c *Client) executeWithRetry(ctx context.Context, operation func() error) error {
	return retry.RetryFunc(ctx, operation, c.retryConfig, c.logger)
}

// Client returns the underlying redis client for advanced operations
func (c *Client) Client() *redis.Client {
	return c.redisClient
}

func (c *Client) Close() error {
	return c.redisClient.Close()
}
