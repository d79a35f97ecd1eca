package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/crowdrank/crowdrank-backend/internal/consensus"
	"github.com/crowdrank/crowdrank-backend/internal/ledger"
	"github.com/crowdrank/crowdrank-backend/internal/sweeper"
	"github.com/crowdrank/crowdrank-backend/internal/sweeper/config"
	"github.com/crowdrank/crowdrank-backend/pkg/logging"
	"github.com/crowdrank/crowdrank-backend/pkg/payout"
	"github.com/crowdrank/crowdrank-backend/pkg/pricing"
	"github.com/crowdrank/crowdrank-backend/pkg/redis"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := config.Init(); err != nil {
		panic(fmt.Sprintf("Failed to initialize config: %v", err))
	}

	logConfig := logging.LoggerConfig{
		LogDir:        logging.BaseDataDir,
		ProcessName:   logging.SweeperProcess,
		IsDevelopment: config.IsDevMode(),
	}

	logger, err := logging.NewZapLogger(logConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	logger.Info("Starting settlement sweeper...",
		"mode", config.IsDevMode(),
		"sweep_interval", config.GetSweepInterval(),
		"payout_mode", config.GetPayoutMode(),
	)

	store, err := ledger.Open(config.GetDatabaseConfig(), logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	pricingConfig, err := pricing.LoadConfig(config.GetPricingConfigPath())
	if err != nil {
		logger.Fatalf("Failed to load pricing config: %v", err)
	}

	oracle, err := pricing.NewOracle(pricingConfig, nil, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize pricing oracle: %v", err)
	}

	dispatcher, err := newDispatcher(logger)
	if err != nil {
		logger.Fatalf("Failed to initialize payout dispatcher: %v", err)
	}

	engine := consensus.NewEngine(store, oracle, dispatcher, nil, logger)

	var locks *redis.Client
	if redisConfig := config.GetRedisConfig(); redisConfig.IsConfigured() {
		locks, err = redis.NewRedisClient(logger, redisConfig)
		if err != nil {
			logger.Fatalf("Failed to connect to redis: %v", err)
		}
		defer locks.Close()
	} else {
		logger.Info("Redis not configured, running without cross-replica settlement locks")
	}

	sweeperMetrics := sweeper.NewDefaultMetrics()

	service, err := sweeper.New(store, engine, locks, sweeper.Config{
		SweepInterval:        config.GetSweepInterval(),
		HousekeepingSchedule: config.GetHousekeepingSchedule(),
		SettlingStaleAfter:   config.GetSettlingStaleAfter(),
		WithdrawalStaleAfter: config.GetWithdrawalStaleAfter(),
		SettlementLockTTL:    config.GetSettlementLockTTL(),
	}, sweeperMetrics, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize sweeper: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		service.Start(ctx)
	}()

	sweeperMetrics.Collector().Start()
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", config.GetMetricsPort()),
		Handler: newMetricsMux(sweeperMetrics),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Infof("Metrics server listening on port %s...", config.GetMetricsPort())
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("metrics server error: %v", err)
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

	performGracefulShutdown(cancel, &wg, metricsServer, sweeperMetrics, logger)
}

func newDispatcher(logger logging.Logger) (payout.Dispatcher, error) {
	switch config.GetPayoutMode() {
	case config.PayoutModeChain:
		return payout.NewChainDispatcher(context.Background(), config.GetChainConfig(), logger)
	default:
		return payout.NewSimulatedDispatcher(config.GetSimulatedFailureRate()), nil
	}
}

func newMetricsMux(sweeperMetrics *sweeper.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", sweeperMetrics.Collector().Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}

func performGracefulShutdown(cancel context.CancelFunc, wg *sync.WaitGroup, metricsServer *http.Server, sweeperMetrics *sweeper.Metrics, logger logging.Logger) {
	logger.Info("Initiating graceful shutdown...")

	ctx, cancelTimeout := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelTimeout()

	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("Metrics server shutdown error", "error", err)
	}

	cancel()
	wg.Wait()
	sweeperMetrics.Collector().Stop()
	logger.Info("Shutdown complete")
}
