package consensus

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdrank/crowdrank-backend/internal/ledger"
)

func TestProcessTaskCompletionEndToEnd(t *testing.T) {
	env := newTestEnv(t, flatRewardConfig())
	ctx := context.Background()
	task := env.createTask(t, 5, 3)
	options := task.Options

	// 4 of 5 submissions (80%): two for option 1, one each for 0 and 2.
	env.vote(t, task.ID, "0xw1", options[1].ID)
	env.vote(t, task.ID, "0xw2", options[1].ID)
	env.vote(t, task.ID, "0xw3", options[0].ID)
	env.vote(t, task.ID, "0xw4", options[2].ID)

	result, err := env.engine.ProcessTaskCompletion(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, result.LedgerCommitted)
	assert.Equal(t, 4, result.TotalSubmissions)
	assert.Equal(t, 4, result.PayoutsAttempted)
	assert.Zero(t, result.PayoutsFailed)

	// The 2-vote option ranks first; the 1-vote tie resolves in creation
	// order.
	require.Len(t, result.Ranking, 3)
	assert.Equal(t, options[1].ID, result.Ranking[0].OptionID)
	assert.Equal(t, options[0].ID, result.Ranking[1].OptionID)
	assert.Equal(t, options[2].ID, result.Ranking[2].OptionID)

	require.Len(t, result.Rewards, 4)
	for _, reward := range result.Rewards {
		assert.NotEmpty(t, reward.PayoutReference)
	}

	closed, err := env.store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, closed.Done())
	require.NotNil(t, closed.CompletedAt)

	stored, err := env.store.GetResultByTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.TotalSubmissions)
	require.Len(t, stored.OptionResults, 3)
	assert.Equal(t, 2, stored.OptionResults[0].VoteCount)
	assert.Equal(t, 50.0, stored.OptionResults[0].Percentage)
	assert.Equal(t, 25.0, stored.OptionResults[1].Percentage)

	// 200 flat credit plus the rank-tiered reward.
	assert.Equal(t, int64(300), env.pendingBalance(t, "0xw1"))
	assert.Equal(t, int64(300), env.pendingBalance(t, "0xw2"))
	assert.Equal(t, int64(270), env.pendingBalance(t, "0xw3"))
	assert.Equal(t, int64(240), env.pendingBalance(t, "0xw4"))

	rewarded, err := env.store.GetWorkerByWallet(ctx, "0xw1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rewarded.TasksCompleted)
	assert.Equal(t, 100.0, rewarded.AccuracyScore)

	dispatched := env.dispatcher.Dispatched()
	require.Len(t, dispatched, 4)
	amounts := make([]int64, len(dispatched))
	for i, p := range dispatched {
		amounts[i] = p.Amount
	}
	assert.Equal(t, []int64{100, 100, 70, 40}, amounts)

	completions := env.sink.Completions()
	require.Len(t, completions, 1)
	assert.Equal(t, task.ID, completions[0].TaskID)
	assert.Equal(t, 4, completions[0].TotalSubmissions)

	payouts := env.sink.Payouts()
	require.Len(t, payouts, 4)
	for _, event := range payouts {
		assert.Equal(t, PayoutKindReward, event.Kind)
		assert.Equal(t, PayoutStatusPaid, event.Status)
		assert.NotEmpty(t, event.Reference)
	}
}

func TestProcessTaskCompletionIdempotent(t *testing.T) {
	env := newTestEnv(t, flatRewardConfig())
	ctx := context.Background()
	task := env.createTask(t, 2, 2)
	env.vote(t, task.ID, "0xw1", task.Options[0].ID)
	env.vote(t, task.ID, "0xw2", task.Options[1].ID)

	first, err := env.engine.ProcessTaskCompletion(ctx, task.ID)
	require.NoError(t, err)

	before := map[string]int64{
		"0xw1": env.pendingBalance(t, "0xw1"),
		"0xw2": env.pendingBalance(t, "0xw2"),
	}
	storedBefore, err := env.store.GetResultByTask(ctx, task.ID)
	require.NoError(t, err)

	_, err = env.engine.ProcessTaskCompletion(ctx, task.ID)
	assert.ErrorIs(t, err, ledger.ErrTaskAlreadySettled)

	// Nothing moved: balances, the result row, and the dispatcher are all
	// exactly as after the first settlement.
	assert.Equal(t, before["0xw1"], env.pendingBalance(t, "0xw1"))
	assert.Equal(t, before["0xw2"], env.pendingBalance(t, "0xw2"))
	storedAfter, err := env.store.GetResultByTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, storedBefore.ID, storedAfter.ID)
	assert.Equal(t, storedBefore.TotalSubmissions, storedAfter.TotalSubmissions)
	assert.Len(t, env.dispatcher.Dispatched(), first.PayoutsAttempted)
}

func TestSettlementConservation(t *testing.T) {
	env := newTestEnv(t, flatRewardConfig())
	ctx := context.Background()
	task := env.createTask(t, 5, 3)
	options := task.Options

	// Votes A,A,B,A,C: option 0 wins, the 1-vote tie resolves by creation
	// order so option 1 ranks 2nd and option 2 ranks 3rd.
	env.vote(t, task.ID, "0xa1", options[0].ID)
	env.vote(t, task.ID, "0xa2", options[0].ID)
	env.vote(t, task.ID, "0xb1", options[1].ID)
	env.vote(t, task.ID, "0xa3", options[0].ID)
	env.vote(t, task.ID, "0xc1", options[2].ID)

	bystander, err := env.store.GetOrCreateWorkerByWallet(ctx, "0xbystander")
	require.NoError(t, err)

	result, err := env.engine.ProcessTaskCompletion(ctx, task.ID)
	require.NoError(t, err)

	var distributed int64
	for _, reward := range result.Rewards {
		distributed += reward.Amount
	}
	assert.Equal(t, int64(470), distributed)

	assert.Equal(t, int64(300), env.pendingBalance(t, "0xa1"))
	assert.Equal(t, int64(300), env.pendingBalance(t, "0xa2"))
	assert.Equal(t, int64(300), env.pendingBalance(t, "0xa3"))
	assert.Equal(t, int64(270), env.pendingBalance(t, "0xb1"))
	assert.Equal(t, int64(240), env.pendingBalance(t, "0xc1"))

	untouched, err := env.store.GetWorker(ctx, bystander.ID)
	require.NoError(t, err)
	assert.Zero(t, untouched.PendingBalance)
	assert.Zero(t, untouched.LifetimeEarned)
	assert.Zero(t, untouched.TasksCompleted)
}

func TestSettlementPayoutFailureKeepsLedger(t *testing.T) {
	env := newTestEnv(t, flatRewardConfig())
	ctx := context.Background()
	task := env.createTask(t, 2, 2)
	env.vote(t, task.ID, "0xgood", task.Options[0].ID)
	env.vote(t, task.ID, "0xbroken", task.Options[1].ID)

	env.dispatcher.FailWallet("0xbroken", errors.New("rpc unreachable"))

	result, err := env.engine.ProcessTaskCompletion(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, result.LedgerCommitted)
	assert.Equal(t, 2, result.PayoutsAttempted)
	assert.Equal(t, 1, result.PayoutsFailed)

	// The credited balance survives the failed dispatch; the worker can
	// still withdraw it later.
	assert.Equal(t, int64(270), env.pendingBalance(t, "0xbroken"))

	var failedEvents, paidEvents int
	for _, event := range env.sink.Payouts() {
		switch event.Status {
		case PayoutStatusFailed:
			failedEvents++
			assert.Empty(t, event.Reference)
		case PayoutStatusPaid:
			paidEvents++
		}
	}
	assert.Equal(t, 1, failedEvents)
	assert.Equal(t, 1, paidEvents)
}

func TestSettlementRankFourEarnsNothing(t *testing.T) {
	env := newTestEnv(t, flatRewardConfig())
	ctx := context.Background()
	task := env.createTask(t, 8, 5)
	options := task.Options

	env.vote(t, task.ID, "0xm1", options[0].ID)
	env.vote(t, task.ID, "0xm2", options[0].ID)
	env.vote(t, task.ID, "0xm3", options[0].ID)
	env.vote(t, task.ID, "0xn1", options[1].ID)
	env.vote(t, task.ID, "0xn2", options[1].ID)
	env.vote(t, task.ID, "0xo1", options[2].ID)
	env.vote(t, task.ID, "0xo2", options[2].ID)
	env.vote(t, task.ID, "0xlast", options[3].ID)

	result, err := env.engine.ProcessTaskCompletion(ctx, task.ID)
	require.NoError(t, err)

	// 7 voters picked top-3 options; the rank-4 voter keeps only the flat
	// credit.
	assert.Len(t, result.Rewards, 7)
	assert.Equal(t, int64(200), env.pendingBalance(t, "0xlast"))

	unrewarded, err := env.store.GetWorkerByWallet(ctx, "0xlast")
	require.NoError(t, err)
	assert.Zero(t, unrewarded.TasksCompleted)
	assert.Zero(t, unrewarded.AccuracyScore)
}

func TestProcessReadyTasks(t *testing.T) {
	env := newTestEnv(t, flatRewardConfig())
	ctx := context.Background()

	ready1 := env.createTask(t, 2, 2)
	ready2 := env.createTask(t, 5, 2)
	pending := env.createTask(t, 5, 2)

	env.vote(t, ready1.ID, "0xw1", ready1.Options[0].ID)
	env.vote(t, ready1.ID, "0xw2", ready1.Options[0].ID)
	for i := 0; i < 4; i++ {
		env.vote(t, ready2.ID, fmt.Sprintf("0xr2w%d", i), ready2.Options[1].ID)
	}
	env.vote(t, pending.ID, "0xw1", pending.Options[0].ID)

	readyTasks, err := env.engine.ReadyTasks(ctx)
	require.NoError(t, err)
	require.Len(t, readyTasks, 2)
	assert.Equal(t, ready1.ID, readyTasks[0].ID)
	assert.Equal(t, ready2.ID, readyTasks[1].ID)

	settled, err := env.engine.ProcessReadyTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, settled, 2)

	stillOpen, err := env.store.GetTask(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TaskStatusOpen, stillOpen.Status)

	// Nothing left to settle on the next sweep.
	settled, err = env.engine.ProcessReadyTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, settled)
}

func TestCheckAndSettle(t *testing.T) {
	env := newTestEnv(t, flatRewardConfig())
	ctx := context.Background()

	ready := env.createTask(t, 2, 2)
	env.vote(t, ready.ID, "0xw1", ready.Options[0].ID)
	env.vote(t, ready.ID, "0xw2", ready.Options[1].ID)
	env.engine.CheckAndSettle(ctx, ready.ID)
	settled, err := env.store.GetTask(ctx, ready.ID)
	require.NoError(t, err)
	assert.True(t, settled.Done())

	early := env.createTask(t, 5, 2)
	env.vote(t, early.ID, "0xw1", early.Options[0].ID)
	env.engine.CheckAndSettle(ctx, early.ID)
	open, err := env.store.GetTask(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TaskStatusOpen, open.Status)

	// Missing tasks are logged, never fatal.
	env.engine.CheckAndSettle(ctx, 9999)
}
