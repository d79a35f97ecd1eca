package redis

import "time"

// RedisConfig holds connection settings for the shared coordination store.
// URL uses the redis:// scheme; an empty URL disables redis entirely and
// callers fall back to store-level serialization alone.
type RedisConfig struct {
	URL      string
	Password string

	PoolSize      int
	MinIdleConns  int
	MaxRetries    int
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	PoolTimeout   time.Duration
	HealthTimeout time.Duration
	PingTimeout   time.Duration
}

// DefaultRedisConfig returns connection settings suitable for a small
// deployment.
func DefaultRedisConfig(url string) RedisConfig {
	return RedisConfig{
		URL:           url,
		PoolSize:      10,
		MinIdleConns:  2,
		MaxRetries:    3,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		PoolTimeout:   4 * time.Second,
		HealthTimeout: 5 * time.Second,
		PingTimeout:   2 * time.Second,
	}
}

// IsConfigured reports whether a redis endpoint was provided.
func (c RedisConfig) IsConfigured() bool {
	return c.URL != ""
}
