package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crowdrank/crowdrank-backend/internal/apiserver"
	"github.com/crowdrank/crowdrank-backend/internal/apiserver/config"
	"github.com/crowdrank/crowdrank-backend/internal/apiserver/events"
	"github.com/crowdrank/crowdrank-backend/internal/apiserver/handlers"
	"github.com/crowdrank/crowdrank-backend/internal/apiserver/metrics"
	"github.com/crowdrank/crowdrank-backend/internal/apiserver/websocket"
	"github.com/crowdrank/crowdrank-backend/internal/consensus"
	"github.com/crowdrank/crowdrank-backend/internal/ledger"
	"github.com/crowdrank/crowdrank-backend/pkg/contentstore"
	"github.com/crowdrank/crowdrank-backend/pkg/logging"
	"github.com/crowdrank/crowdrank-backend/pkg/payout"
	"github.com/crowdrank/crowdrank-backend/pkg/pricing"
	"github.com/crowdrank/crowdrank-backend/pkg/retry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := config.Init(); err != nil {
		panic(fmt.Sprintf("Failed to initialize config: %v", err))
	}

	logConfig := logging.LoggerConfig{
		LogDir:        logging.BaseDataDir,
		ProcessName:   logging.ApiServerProcess,
		IsDevelopment: config.IsDevMode(),
	}

	logger, err := logging.NewZapLogger(logConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	logger.Info("Starting API server...",
		"mode", config.IsDevMode(),
		"port", config.GetAPIPort(),
		"payout_mode", config.GetPayoutMode(),
	)

	store, err := ledger.Open(config.GetDatabaseConfig(), logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		logger.Fatalf("Failed to migrate database schema: %v", err)
	}

	pricingConfig, err := pricing.LoadConfig(config.GetPricingConfigPath())
	if err != nil {
		logger.Fatalf("Failed to load pricing config: %v", err)
	}

	var rates pricing.RateSource
	if url := config.GetRateSourceURL(); url != "" {
		httpClient, err := retry.NewHTTPClient(retry.DefaultHTTPRetryConfig(), logger)
		if err != nil {
			logger.Fatalf("Failed to create rate source HTTP client: %v", err)
		}
		rates = pricing.NewHTTPRateSource(url, httpClient, logger)
	}

	oracle, err := pricing.NewOracle(pricingConfig, rates, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize pricing oracle: %v", err)
	}

	dispatcher, err := newDispatcher(logger)
	if err != nil {
		logger.Fatalf("Failed to initialize payout dispatcher: %v", err)
	}

	content, err := contentstore.NewClient(contentstore.NewConfig(config.GetPinataGatewayURL(), config.GetPinataJWT()), logger)
	if err != nil {
		logger.Fatalf("Failed to initialize content store client: %v", err)
	}
	defer content.Close()

	hub := websocket.NewHub(logger)
	publisher := events.NewPublisher(hub, logger)
	engine := consensus.NewEngine(store, oracle, dispatcher, publisher, logger)
	withdrawals := consensus.NewWithdrawalService(store, dispatcher, publisher, logger)

	server := apiserver.NewServer(handlers.Dependencies{
		Store:       store,
		Engine:      engine,
		Withdrawals: withdrawals,
		Oracle:      oracle,
		Content:     content,
		Hub:         hub,
		Metrics:     metrics.NewDefault(),
		Logger:      logger,
	})

	serverErrors := make(chan error, 1)
	go func() {
		logger.Infof("API server listening on port %s...", config.GetAPIPort())
		if err := server.Start(config.GetAPIPort()); err != nil {
			serverErrors <- fmt.Errorf("HTTP server error: %v", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error received", "error", err)
	case sig := <-shutdown:
		logger.Info("Received shutdown signal", "signal", sig.String())
	}

	performGracefulShutdown(server, logger)
}

func newDispatcher(logger logging.Logger) (payout.Dispatcher, error) {
	switch config.GetPayoutMode() {
	case config.PayoutModeChain:
		return payout.NewChainDispatcher(context.Background(), config.GetChainConfig(), logger)
	default:
		return payout.NewSimulatedDispatcher(config.GetSimulatedFailureRate()), nil
	}
}

func performGracefulShutdown(server *apiserver.Server, logger logging.Logger) {
	logger.Info("Initiating graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Shutdown complete")
}
