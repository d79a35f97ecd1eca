// Package config loads the API server settings from the environment.
package config

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/crowdrank/crowdrank-backend/internal/ledger"
	"github.com/crowdrank/crowdrank-backend/pkg/env"
	"github.com/crowdrank/crowdrank-backend/pkg/payout"
)

// Payout dispatcher modes.
const (
	PayoutModeSimulated = "simulated"
	PayoutModeChain     = "chain"
)

type Config struct {
	devMode bool

	// API server port
	apiPort string

	// Postgres connection
	databaseHost     string
	databasePort     string
	databaseUser     string
	databasePassword string
	databaseName     string
	databaseSSLMode  string

	// Content store credentials
	pinataJWT        string
	pinataGatewayURL string

	// Pricing table override and display-rate source
	pricingConfigPath string
	rateSourceURL     string

	// Payout dispatch
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
		apiPort:              env.GetEnvString("API_SERVER_PORT", "9010"),
		databaseHost:         env.GetEnvString("DATABASE_HOST", "localhost"),
		databasePort:         env.GetEnvString("DATABASE_PORT", "5432"),
		databaseUser:         env.GetEnvString("DATABASE_USER", "postgres"),
		databasePassword:     env.GetEnvString("DATABASE_PASSWORD", "postgres"),
		databaseName:         env.GetEnvString("DATABASE_NAME", "crowdrank"),
		databaseSSLMode:      env.GetEnvString("DATABASE_SSL_MODE", "disable"),
		pinataJWT:            env.GetEnvString("PINATA_JWT", ""),
		pinataGatewayURL:     env.GetEnvString("PINATA_GATEWAY_URL", "https://gateway.pinata.cloud"),
		pricingConfigPath:    env.GetEnvString("PRICING_CONFIG_PATH", ""),
		rateSourceURL:        env.GetEnvString("RATE_SOURCE_URL", ""),
		payoutMode:           env.GetEnvString("PAYOUT_MODE", PayoutModeSimulated),
		payoutRPCURL:         env.GetEnvString("PAYOUT_RPC_URL", ""),
		payoutPrivateKey:     env.GetEnvString("PAYOUT_PRIVATE_KEY", ""),
		payoutGasLimit:       uint64(env.GetEnvInt64("PAYOUT_GAS_LIMIT", 0)),
		simulatedFailureRate: env.GetEnvFloat64("SIMULATED_FAILURE_RATE", 0),
	}
	if err := validateConfig(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !cfg.devMode {
		gin.SetMode(gin.ReleaseMode)
	}
	return nil
}

func validateConfig() error {
	if !env.IsValidPort(cfg.apiPort) {
		return fmt.Errorf("invalid API server port: %s", cfg.apiPort)
	}
	if !env.IsValidPort(cfg.databasePort) {
		return fmt.Errorf("invalid database port: %s", cfg.databasePort)
	}
	if env.IsEmpty(cfg.pinataJWT) {
		return fmt.Errorf("PINATA_JWT is required")
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

// IsDevMode returns whether the service is running in development mode
func IsDevMode() bool {
	return cfg.devMode
}

// GetAPIPort returns the API server port
func GetAPIPort() string {
	return cfg.apiPort
}

// GetDatabaseConfig returns the ledger store connection settings
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

// GetPinataJWT returns the content store bearer token
func GetPinataJWT() string {
	return cfg.pinataJWT
}

// GetPinataGatewayURL returns the content store read gateway
func GetPinataGatewayURL() string {
	return cfg.pinataGatewayURL
}

// GetPricingConfigPath returns the optional pricing YAML path
func GetPricingConfigPath() string {
	return cfg.pricingConfigPath
}

// GetRateSourceURL returns the optional display-rate source URL
func GetRateSourceURL() string {
	return cfg.rateSourceURL
}

// GetPayoutMode returns the payout dispatcher mode
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

// GetSimulatedFailureRate returns the simulated dispatcher failure rate
func GetSimulatedFailureRate() float64 {
	return cfg.simulatedFailureRate
}
