// Package config loads the sweeper service configuration from the
// environment.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/crowdrank/crowdrank-backend/internal/ledger"
	"github.com/crowdrank/crowdrank-backend/pkg/env"
	"github.com/crowdrank/crowdrank-backend/pkg/payout"
	pkgredis "github.com/crowdrank/crowdrank-backend/pkg/redis"
)

// Payout dispatcher modes.
const (
	PayoutModeSimulated = "simulated"
	PayoutModeChain     = "chain"
)

type Config struct {
	devMode bool

	metricsPort string

	databaseHost     string
	databasePort     string
	databaseUser     string
	databasePassword string
	databaseName     string
	databaseSSLMode  string

	pricingConfigPath string

	sweepInterval        time.Duration
	housekeepingSchedule string
	settlingStaleAfter   time.Duration
	withdrawalStaleAfter time.Duration

	redisURL          string
	redisPassword     string
	settlementLockTTL time.Duration

	payoutMode           string
	payoutRPCURL         string
	payoutPrivateKey     string
	payoutGasLimit       uint64
	simulatedFailureRate float64
}

var cfg Config

// Init initializes the configuration
func Init() error {
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("error loading .env file: %w", err)
	}
	cfg = Config{
		devMode:              env.GetEnvBool("DEV_MODE", false),
		metricsPort:          env.GetEnvString("SWEEPER_METRICS_PORT", "9011"),
		databaseHost:         env.GetEnvString("DATABASE_HOST", "localhost"),
		databasePort:         env.GetEnvString("DATABASE_PORT", "5432"),
		databaseUser:         env.GetEnvString("DATABASE_USER", "postgres"),
		databasePassword:     env.GetEnvString("DATABASE_PASSWORD", "postgres"),
		databaseName:         env.GetEnvString("DATABASE_NAME", "crowdrank"),
		databaseSSLMode:      env.GetEnvString("DATABASE_SSL_MODE", "disable"),
		pricingConfigPath:    env.GetEnvString("PRICING_CONFIG_PATH", ""),
		sweepInterval:        env.GetEnvDuration("SWEEP_INTERVAL", 120*time.Second),
		housekeepingSchedule: env.GetEnvString("HOUSEKEEPING_SCHEDULE", "0 * * * *"),
		settlingStaleAfter:   env.GetEnvDuration("SETTLING_STALE_AFTER", 10*time.Minute),
		withdrawalStaleAfter: env.GetEnvDuration("WITHDRAWAL_STALE_AFTER", 15*time.Minute),
		redisURL:             env.GetEnvString("REDIS_URL", ""),
		redisPassword:        env.GetEnvString("REDIS_PASSWORD", ""),
		settlementLockTTL:    env.GetEnvDuration("SETTLEMENT_LOCK_TTL", 2*time.Minute),
		payoutMode:           env.GetEnvString("PAYOUT_MODE", PayoutModeSimulated),
		payoutRPCURL:         env.GetEnvString("PAYOUT_RPC_URL", ""),
		payoutPrivateKey:     env.GetEnvString("PAYOUT_PRIVATE_KEY", ""),
		payoutGasLimit:       uint64(env.GetEnvInt64("PAYOUT_GAS_LIMIT", 0)),
		simulatedFailureRate: env.GetEnvFloat64("SIMULATED_FAILURE_RATE", 0),
	}

	return validateConfig()
}

func validateConfig() error {
	if !env.IsValidPort(cfg.metricsPort) {
		return fmt.Errorf("invalid metrics port: %s", cfg.metricsPort)
	}
	if !env.IsValidPort(cfg.databasePort) {
		return fmt.Errorf("invalid database port: %s", cfg.databasePort)
	}
	if cfg.sweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", cfg.sweepInterval)
	}
	if cfg.settlingStaleAfter <= 0 {
		return fmt.Errorf("settling stale cutoff must be positive, got %s", cfg.settlingStaleAfter)
	}
	if cfg.withdrawalStaleAfter <= 0 {
		return fmt.Errorf("withdrawal stale cutoff must be positive, got %s", cfg.withdrawalStaleAfter)
	}
	if cfg.settlementLockTTL <= 0 {
		return fmt.Errorf("settlement lock TTL must be positive, got %s", cfg.settlementLockTTL)
	}
	if _, err := cron.ParseStandard(cfg.housekeepingSchedule); err != nil {
		return fmt.Errorf("invalid housekeeping schedule %q: %w", cfg.housekeepingSchedule, err)
	}
	switch cfg.payoutMode {
	case PayoutModeSimulated:
	case PayoutModeChain:
		if env.IsEmpty(cfg.payoutRPCURL) {
			return fmt.Errorf("PAYOUT_RPC_URL is required in chain payout mode")
		}
		if !env.IsValidPrivateKey(cfg.payoutPrivateKey) {
			return fmt.Errorf("invalid payout private key")
		}
	default:
		return fmt.Errorf("unknown payout mode: %s", cfg.payoutMode)
	}
	if cfg.simulatedFailureRate < 0 || cfg.simulatedFailureRate > 1 {
		return fmt.Errorf("simulated failure rate must be within [0, 1]: %f", cfg.simulatedFailureRate)
	}
	return nil
}

func IsDevMode() bool {
	return cfg.devMode
}

// GetMetricsPort returns the port serving /metrics and /health
func GetMetricsPort() string {
	return cfg.metricsPort
}

func GetDatabaseConfig() ledger.Config {
	return ledger.Config{
		Host:     cfg.databaseHost,
		Port:     cfg.databasePort,
		User:     cfg.databaseUser,
		Password: cfg.databasePassword,
		DBName:   cfg.databaseName,
		SSLMode:  cfg.databaseSSLMode,
	}
}

func GetPricingConfigPath() string {
	return cfg.pricingConfigPath
}

func GetSweepInterval() time.Duration {
	return cfg.sweepInterval
}

func GetHousekeepingSchedule() string {
	return cfg.housekeepingSchedule
}

func GetSettlingStaleAfter() time.Duration {
	return cfg.settlingStaleAfter
}

func GetWithdrawalStaleAfter() time.Duration {
	return cfg.withdrawalStaleAfter
}

// GetRedisConfig returns the coordination store settings. An empty URL means
// the deployment runs without cross-replica settlement locks.
func GetRedisConfig() pkgredis.RedisConfig {
	redisConfig := pkgredis.DefaultRedisConfig(cfg.redisURL)
	redisConfig.Password = cfg.redisPassword
	return redisConfig
}

func GetSettlementLockTTL() time.Duration {
	return cfg.settlementLockTTL
}

func GetPayoutMode() string {
	return cfg.payoutMode
}

// GetChainConfig returns the on-chain dispatcher settings
func GetChainConfig() payout.ChainConfig {
	return payout.ChainConfig{
		RPCURL:     cfg.payoutRPCURL,
		PrivateKey: cfg.payoutPrivateKey,
		GasLimit:   cfg.payoutGasLimit,
	}
}

func GetSimulatedFailureRate() float64 {
	return cfg.simulatedFailureRate
}
