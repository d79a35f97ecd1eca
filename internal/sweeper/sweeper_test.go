package sweeper

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdrank/crowdrank-backend/internal/consensus"
	"github.com/crowdrank/crowdrank-backend/internal/ledger"
	"github.com/crowdrank/crowdrank-backend/pkg/logging"
	"github.com/crowdrank/crowdrank-backend/pkg/payout"
	"github.com/crowdrank/crowdrank-backend/pkg/pricing"
)

func testConfig() Config {
	return Config{
		SweepInterval:        time.Minute,
		HousekeepingSchedule: "0 * * * *",
		SettlingStaleAfter:   time.Millisecond,
		WithdrawalStaleAfter: time.Millisecond,
		SettlementLockTTL:    time.Minute,
	}
}

type sweeperEnv struct {
	store   *ledger.Store
	engine  *consensus.Engine
	sweeper *Sweeper
}

func newSweeperEnv(t *testing.T) *sweeperEnv {
	t.Helper()
	logger := logging.NewNoOpLogger()
	store := ledger.NewTestStore(t)

	oracle, err := pricing.NewOracle(pricing.Config{
		Categories: map[pricing.Category]pricing.CategoryPricing{
			pricing.CategoryThumbnail: {
				Tiers:      map[int]int64{5: 2_000_000},
				BaseReward: 100,
			},
		},
		RankMultiplierPct: []int{100, 70, 40},
		SubmissionCredit:  200,
		FallbackRate:      "1.75",
	}, nil, logger)
	require.NoError(t, err)

	engine := consensus.NewEngine(store, oracle, payout.NewMockDispatcher(), nil, logger)
	sweeper, err := New(store, engine, nil, testConfig(), NewDefaultMetrics(), logger)
	require.NoError(t, err)

	return &sweeperEnv{store: store, engine: engine, sweeper: sweeper}
}

func (env *sweeperEnv) createTask(t *testing.T, required, optionCount int) *ledger.Task {
	t.Helper()
	task := &ledger.Task{
		Title:           "pick the best thumbnail",
		Category:        "thumbnail",
		RequiredReviews: required,
		PaymentAmount:   2_000_000,
	}
	for i := 0; i < optionCount; i++ {
		task.Options = append(task.Options, ledger.Option{
			ContentReference: fmt.Sprintf("bafy-%d", i),
			MediaKind:        ledger.MediaKindImage,
		})
	}
	require.NoError(t, env.store.CreateTask(context.Background(), task))
	return task
}

func (env *sweeperEnv) vote(t *testing.T, taskID int64, wallet string, optionID int64) {
	t.Helper()
	_, err := env.engine.SubmitVote(context.Background(), taskID, wallet, optionID)
	require.NoError(t, err)
}

func TestNewValidatesConfig(t *testing.T) {
	logger := logging.NewNoOpLogger()
	store := ledger.NewTestStore(t)
	engine := consensus.NewEngine(store, nil, nil, nil, logger)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero sweep interval", func(c *Config) { c.SweepInterval = 0 }},
		{"zero settling cutoff", func(c *Config) { c.SettlingStaleAfter = 0 }},
		{"zero withdrawal cutoff", func(c *Config) { c.WithdrawalStaleAfter = 0 }},
		{"bad cron schedule", func(c *Config) { c.HousekeepingSchedule = "not-a-schedule" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig()
			tt.mutate(&config)
			_, err := New(store, engine, nil, config, nil, logger)
			assert.Error(t, err)
		})
	}
}

func TestSweepSettlesOnlyReadyTasks(t *testing.T) {
	env := newSweeperEnv(t)
	ctx := context.Background()

	// 4 of 5 submissions puts readyTask at the threshold; idleTask stays
	// below it.
	readyTask := env.createTask(t, 5, 2)
	idleTask := env.createTask(t, 5, 2)
	wallets := []string{"0xw1", "0xw2", "0xw3", "0xw4"}
	for i, wallet := range wallets {
		env.vote(t, readyTask.ID, wallet, readyTask.Options[i%2].ID)
	}
	env.vote(t, idleTask.ID, "0xw5", idleTask.Options[0].ID)

	settled := env.sweeper.Sweep(ctx)
	assert.Equal(t, 1, settled)

	closed, err := env.store.GetTask(ctx, readyTask.ID)
	require.NoError(t, err)
	assert.True(t, closed.Done())

	open, err := env.store.GetTask(ctx, idleTask.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TaskStatusOpen, open.Status)

	// A second sweep finds nothing left to settle.
	assert.Zero(t, env.sweeper.Sweep(ctx))
}

func TestRunHousekeepingReleasesStaleClaim(t *testing.T) {
	env := newSweeperEnv(t)
	ctx := context.Background()

	task := env.createTask(t, 2, 2)
	env.vote(t, task.ID, "0xw1", task.Options[0].ID)
	env.vote(t, task.ID, "0xw2", task.Options[1].ID)

	// Simulate a settler that claimed the task and died.
	require.NoError(t, env.store.ClaimTaskForSettlement(ctx, task.ID))
	time.Sleep(10 * time.Millisecond)

	report := env.sweeper.RunHousekeeping(ctx)
	assert.Equal(t, int64(1), report.ReleasedTasks)

	reopened, err := env.store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TaskStatusOpen, reopened.Status)

	// The next sweep picks the released task up and settles it.
	assert.Equal(t, 1, env.sweeper.Sweep(ctx))
	settledTask, err := env.store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, settledTask.Done())
}

func TestRunHousekeepingRefundsStuckWithdrawals(t *testing.T) {
	env := newSweeperEnv(t)
	ctx := context.Background()

	worker, err := env.store.GetOrCreateWorkerByWallet(ctx, "0xw1")
	require.NoError(t, err)
	require.NoError(t, env.store.CreditSubmission(ctx, worker.ID, 1_000))

	// Simulate a withdrawal whose dispatcher call never resolved.
	withdrawal := &ledger.Withdrawal{WorkerID: worker.ID, Amount: 400}
	err = env.store.Atomically(ctx, func(tx *ledger.Store) error {
		if err := tx.LockBalanceForWithdrawal(ctx, worker.ID, 400); err != nil {
			return err
		}
		return tx.CreateWithdrawal(ctx, withdrawal)
	})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	report := env.sweeper.RunHousekeeping(ctx)
	assert.Equal(t, 1, report.FailedWithdrawals)

	resolved, err := env.store.GetWithdrawal(ctx, withdrawal.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.WithdrawalStatusFailure, resolved.Status)
	require.NotNil(t, resolved.ProcessedAt)

	refunded, err := env.store.GetWorker(ctx, worker.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), refunded.PendingBalance)
	assert.Zero(t, refunded.LockedBalance)

	// The transition out of processing happens exactly once.
	second := env.sweeper.RunHousekeeping(ctx)
	assert.Zero(t, second.FailedWithdrawals)
}
