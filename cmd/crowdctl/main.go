package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/crowdrank/crowdrank-backend/internal/consensus"
	"github.com/crowdrank/crowdrank-backend/internal/ledger"
	"github.com/crowdrank/crowdrank-backend/pkg/logging"
	"github.com/crowdrank/crowdrank-backend/pkg/payout"
	"github.com/crowdrank/crowdrank-backend/pkg/pricing"
)

func main() {
	// Pick up DATABASE_* and PAYOUT_* defaults from a local .env if present.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "crowdctl",
		Usage: "CrowdRank operator CLI",
		Flags: databaseFlags(),
		Commands: []*cli.Command{
			MigrateCommand(),
			SweepCommand(),
			StatsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalln("Command failed:", err)
	}
}

func databaseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "db-host", Value: "localhost", EnvVars: []string{"DATABASE_HOST"}, Usage: "postgres host"},
		&cli.StringFlag{Name: "db-port", Value: "5432", EnvVars: []string{"DATABASE_PORT"}, Usage: "postgres port"},
		&cli.StringFlag{Name: "db-user", Value: "postgres", EnvVars: []string{"DATABASE_USER"}, Usage: "postgres user"},
		&cli.StringFlag{Name: "db-password", Value: "postgres", EnvVars: []string{"DATABASE_PASSWORD"}, Usage: "postgres password"},
		&cli.StringFlag{Name: "db-name", Value: "crowdrank", EnvVars: []string{"DATABASE_NAME"}, Usage: "postgres database name"},
		&cli.StringFlag{Name: "db-sslmode", Value: "disable", EnvVars: []string{"DATABASE_SSL_MODE"}, Usage: "postgres sslmode"},
	}
}

func newLogger() (logging.Logger, error) {
	return logging.NewZapLogger(logging.LoggerConfig{
		LogDir:        logging.BaseDataDir,
		ProcessName:   logging.CrowdctlProcess,
		IsDevelopment: true,
	})
}

func openStore(c *cli.Context, logger logging.Logger) (*ledger.Store, error) {
	return ledger.Open(ledger.Config{
		Host:     c.String("db-host"),
		Port:     c.String("db-port"),
		User:     c.String("db-user"),
		Password: c.String("db-password"),
		DBName:   c.String("db-name"),
		SSLMode:  c.String("db-sslmode"),
	}, logger)
}

func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:   "migrate",
		Usage:  "Create or update the ledger schema",
		Action: runMigrate,
	}
}

func runMigrate(c *cli.Context) error {
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	store, err := openStore(c, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		return err
	}
	logger.Info("Ledger schema is up to date")
	return nil
}

func SweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Settle every task at its review threshold, then exit",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "pricing-config", EnvVars: []string{"PRICING_CONFIG_PATH"}, Usage: "pricing YAML override"},
			&cli.StringFlag{Name: "payout-mode", Value: "simulated", EnvVars: []string{"PAYOUT_MODE"}, Usage: "payout dispatcher: simulated or chain"},
			&cli.Float64Flag{Name: "failure-rate", EnvVars: []string{"SIMULATED_FAILURE_RATE"}, Usage: "simulated dispatcher failure rate"},
			&cli.StringFlag{Name: "rpc-url", EnvVars: []string{"PAYOUT_RPC_URL"}, Usage: "chain RPC endpoint"},
			&cli.StringFlag{Name: "private-key", EnvVars: []string{"PAYOUT_PRIVATE_KEY"}, Usage: "payout signing key"},
			&cli.Uint64Flag{Name: "gas-limit", EnvVars: []string{"PAYOUT_GAS_LIMIT"}, Usage: "payout transfer gas limit"},
		},
		Action: runSweep,
	}
}

func runSweep(c *cli.Context) error {
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	store, err := openStore(c, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	pricingConfig, err := pricing.LoadConfig(c.String("pricing-config"))
	if err != nil {
		return err
	}
	oracle, err := pricing.NewOracle(pricingConfig, nil, logger)
	if err != nil {
		return err
	}

	var dispatcher payout.Dispatcher
	if c.String("payout-mode") == "chain" {
		dispatcher, err = payout.NewChainDispatcher(c.Context, payout.ChainConfig{
			RPCURL:     c.String("rpc-url"),
			PrivateKey: c.String("private-key"),
			GasLimit:   c.Uint64("gas-limit"),
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize chain dispatcher: %w", err)
		}
	} else {
		dispatcher = payout.NewSimulatedDispatcher(c.Float64("failure-rate"))
	}

	engine := consensus.NewEngine(store, oracle, dispatcher, nil, logger)
	results, err := engine.ProcessReadyTasks(c.Context)
	if err != nil {
		return err
	}

	for _, result := range results {
		fmt.Printf("task %d: %d submissions, %d payout(s) attempted, %d failed\n",
			result.TaskID, result.TotalSubmissions, result.PayoutsAttempted, result.PayoutsFailed)
	}
	logger.Infof("Settled %d task(s)", len(results))
	return nil
}

func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Print task, worker and withdrawal counts",
		Action: runStats,
	}
}

func runStats(c *cli.Context) error {
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	store, err := openStore(c, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := c.Context
	taskCounts, err := store.CountTasksByStatus(ctx)
	if err != nil {
		return err
	}
	workerCount, err := store.CountWorkers(ctx)
	if err != nil {
		return err
	}
	resultCount, err := store.CountResults(ctx)
	if err != nil {
		return err
	}
	withdrawalCounts, err := store.CountWithdrawalsByStatus(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Tasks:")
	for _, status := range []ledger.TaskStatus{ledger.TaskStatusOpen, ledger.TaskStatusSettling, ledger.TaskStatusClosed} {
		fmt.Printf("  %-12s %d\n", status, taskCounts[status])
	}
	fmt.Printf("Workers:       %d\n", workerCount)
	fmt.Printf("Results:       %d\n", resultCount)
	fmt.Println("Withdrawals:")
	for _, status := range []ledger.WithdrawalStatus{ledger.WithdrawalStatusProcessing, ledger.WithdrawalStatusSuccess, ledger.WithdrawalStatusFailure} {
		fmt.Printf("  %-12s %d\n", status, withdrawalCounts[status])
	}
	return nil
}
