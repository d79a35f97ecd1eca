package consensus

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdrank/crowdrank-backend/internal/ledger"
)

// settleWinFor settles a task where the worker voted for the winning
// option.
func settleWinFor(t *testing.T, env *testEnv, wallet string, serial int) {
	t.Helper()
	task := env.createTask(t, 2, 2)
	env.vote(t, task.ID, wallet, task.Options[0].ID)
	env.vote(t, task.ID, fmt.Sprintf("0xpeer%d", serial), task.Options[0].ID)
	_, err := env.engine.ProcessTaskCompletion(context.Background(), task.ID)
	require.NoError(t, err)
}

// settleRankFourFor settles a task where the worker's option lands at
// rank 4, outside the rewarded ranks.
func settleRankFourFor(t *testing.T, env *testEnv, wallet string, serial int) {
	t.Helper()
	task := env.createTask(t, 8, 5)
	options := task.Options
	prefix := fmt.Sprintf("0xfill%d", serial)
	env.vote(t, task.ID, prefix+"a1", options[0].ID)
	env.vote(t, task.ID, prefix+"a2", options[0].ID)
	env.vote(t, task.ID, prefix+"a3", options[0].ID)
	env.vote(t, task.ID, prefix+"b1", options[1].ID)
	env.vote(t, task.ID, prefix+"b2", options[1].ID)
	env.vote(t, task.ID, prefix+"c1", options[2].ID)
	env.vote(t, task.ID, prefix+"c2", options[2].ID)
	env.vote(t, task.ID, wallet, options[3].ID)
	_, err := env.engine.ProcessTaskCompletion(context.Background(), task.ID)
	require.NoError(t, err)
}

func TestWorkerStats(t *testing.T) {
	env := newTestEnv(t, flatRewardConfig())
	ctx := context.Background()
	wallet := "0xstat"

	settleWinFor(t, env, wallet, 1)
	settleRankFourFor(t, env, wallet, 1)

	// One more vote on a task that never settles.
	open := env.createTask(t, 5, 2)
	env.vote(t, open.ID, wallet, open.Options[0].ID)

	worker, err := env.store.GetWorkerByWallet(ctx, wallet)
	require.NoError(t, err)

	stats, err := env.engine.WorkerStats(ctx, worker.ID)
	require.NoError(t, err)
	assert.Equal(t, worker.ID, stats.WorkerID)
	assert.Equal(t, wallet, stats.WalletAddress)
	assert.Equal(t, 3, stats.TotalSubmissions)
	assert.Equal(t, 2, stats.CompletedTasks)
	assert.Equal(t, 1, stats.RankedSubmissions)
	assert.Equal(t, 50.0, stats.AccuracyScore)
	// Three flat credits plus one rank-1 reward.
	assert.Equal(t, int64(700), stats.PendingBalance)
	assert.Equal(t, int64(700), stats.LifetimeEarned)
	assert.Zero(t, stats.LockedBalance)
	assert.Equal(t, int64(1), stats.TasksCompleted)

	// Settlement refreshed the stored score too.
	assert.Equal(t, 50.0, worker.AccuracyScore)
}

func TestWorkerStatsRounding(t *testing.T) {
	env := newTestEnv(t, flatRewardConfig())
	ctx := context.Background()
	wallet := "0xthird"

	settleWinFor(t, env, wallet, 1)
	settleRankFourFor(t, env, wallet, 1)
	settleRankFourFor(t, env, wallet, 2)

	worker, err := env.store.GetWorkerByWallet(ctx, wallet)
	require.NoError(t, err)
	stats, err := env.engine.WorkerStats(ctx, worker.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.CompletedTasks)
	assert.Equal(t, 1, stats.RankedSubmissions)
	assert.InDelta(t, 33.33, stats.AccuracyScore, 0.0001)
}

func TestWorkerStatsNoSettledTasks(t *testing.T) {
	env := newTestEnv(t, flatRewardConfig())
	ctx := context.Background()

	task := env.createTask(t, 5, 2)
	env.vote(t, task.ID, "0xfresh", task.Options[0].ID)

	worker, err := env.store.GetWorkerByWallet(ctx, "0xfresh")
	require.NoError(t, err)
	stats, err := env.engine.WorkerStats(ctx, worker.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalSubmissions)
	assert.Zero(t, stats.CompletedTasks)
	assert.Zero(t, stats.AccuracyScore)
}

func TestWorkerStatsNotFound(t *testing.T) {
	env := newTestEnv(t, flatRewardConfig())

	_, err := env.engine.WorkerStats(context.Background(), 9999)
	assert.ErrorIs(t, err, ledger.ErrWorkerNotFound)
}
