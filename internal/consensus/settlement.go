package consensus

import (
	"context"
	"errors"
	"time"

	"github.com/crowdrank/crowdrank-backend/internal/ledger"
	"github.com/crowdrank/crowdrank-backend/pkg/payout"
)

// SettlementResult reports one settled task. LedgerCommitted marks the end
// of the strict phase; the payout counters describe the best-effort phase
// that follows and never unwinds the ledger.
type SettlementResult struct {
	TaskID           int64           `json:"task_id"`
	TotalSubmissions int             `json:"total_submissions"`
	Ranking          []OptionOutcome `json:"ranking"`
	Rewards          []WorkerReward  `json:"rewards"`
	LedgerCommitted  bool            `json:"ledger_committed"`
	PayoutsAttempted int             `json:"payouts_attempted"`
	PayoutsFailed    int             `json:"payouts_failed"`
	CompletedAt      time.Time       `json:"completed_at"`
}

// ProcessTaskCompletion settles one task. It claims the task, computes
// consensus, commits the close+result+credits transaction, then runs the
// best-effort payout and notification phase. A second call for the same
// task fails with ledger.ErrTaskAlreadySettled and changes nothing.
func (e *Engine) ProcessTaskCompletion(ctx context.Context, taskID int64) (*SettlementResult, error) {
	if err := e.store.ClaimTaskForSettlement(ctx, taskID); err != nil {
		return nil, err
	}

	outcome, err := e.CalculateConsensus(ctx, taskID)
	if err != nil {
		e.releaseClaim(ctx, taskID)
		return nil, err
	}

	completedAt := time.Now().UTC()
	err = e.store.Atomically(ctx, func(tx *ledger.Store) error {
		if err := tx.CloseTask(ctx, taskID, completedAt); err != nil {
			return err
		}
		result := &ledger.Result{
			TaskID:           taskID,
			TotalSubmissions: outcome.TotalSubmissions,
		}
		for _, option := range outcome.Ranking {
			result.OptionResults = append(result.OptionResults, ledger.OptionResult{
				OptionID:   option.OptionID,
				VoteCount:  option.VoteCount,
				Rank:       option.Rank,
				Percentage: option.Percentage,
			})
		}
		if err := tx.CreateResult(ctx, result); err != nil {
			return err
		}
		for _, reward := range outcome.Rewards {
			if err := tx.CreditReward(ctx, reward.WorkerID, reward.Amount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ledger.ErrTaskAlreadySettled) {
			e.releaseClaim(ctx, taskID)
		}
		return nil, err
	}

	e.logger.Infof("Settled task %d: %d submissions, %d rewarded workers",
		taskID, outcome.TotalSubmissions, len(outcome.Rewards))

	result := &SettlementResult{
		TaskID:           taskID,
		TotalSubmissions: outcome.TotalSubmissions,
		Ranking:          outcome.Ranking,
		Rewards:          outcome.Rewards,
		LedgerCommitted:  true,
		CompletedAt:      completedAt,
	}
	e.dispatchRewards(ctx, result)
	e.refreshAccuracyScores(ctx, taskID)

	e.sink.NotifyTaskCompletion(ctx, TaskCompletionEvent{
		TaskID:           taskID,
		TotalSubmissions: result.TotalSubmissions,
		Ranking:          result.Ranking,
		CompletedAt:      completedAt,
	})
	for _, reward := range result.Rewards {
		status := PayoutStatusPaid
		if reward.PayoutReference == "" {
			status = PayoutStatusFailed
		}
		e.sink.NotifyWorkerPayout(ctx, WorkerPayoutEvent{
			WorkerID:  reward.WorkerID,
			Kind:      PayoutKindReward,
			TaskID:    taskID,
			Amount:    reward.Amount,
			Rank:      reward.Rank,
			Reference: reward.PayoutReference,
			Status:    status,
		})
	}
	return result, nil
}

// dispatchRewards pays each rewarded worker exactly once. Failures are
// logged and counted; the committed ledger state stays as is, since the
// credited pending balance remains withdrawable through the withdrawal
// flow.
func (e *Engine) dispatchRewards(ctx context.Context, result *SettlementResult) {
	for i := range result.Rewards {
		reward := &result.Rewards[i]
		result.PayoutsAttempted++
		receipt, err := e.dispatcher.Dispatch(ctx, payout.Payout{
			WalletAddress: reward.WalletAddress,
			Amount:        reward.Amount,
		})
		if err != nil {
			result.PayoutsFailed++
			e.logger.Errorf("Reward payout failed for worker %d on task %d: %v",
				reward.WorkerID, result.TaskID, err)
			continue
		}
		reward.PayoutReference = receipt.Reference
	}
}

// refreshAccuracyScores recomputes the stored accuracy of every voter on a
// freshly settled task. Best effort.
func (e *Engine) refreshAccuracyScores(ctx context.Context, taskID int64) {
	submissions, err := e.store.ListSubmissionsForTask(ctx, taskID)
	if err != nil {
		e.logger.Warnf("Failed to load voters for accuracy refresh on task %d: %v", taskID, err)
		return
	}
	for _, submission := range submissions {
		accuracy, err := e.workerAccuracy(ctx, submission.WorkerID)
		if err != nil {
			e.logger.Warnf("Failed to compute accuracy for worker %d: %v", submission.WorkerID, err)
			continue
		}
		if err := e.store.UpdateWorkerAccuracy(ctx, submission.WorkerID, accuracy.Score); err != nil {
			e.logger.Warnf("Failed to store accuracy for worker %d: %v", submission.WorkerID, err)
		}
	}
}

func (e *Engine) releaseClaim(ctx context.Context, taskID int64) {
	if err := e.store.ReleaseTaskClaim(ctx, taskID); err != nil {
		e.logger.Errorf("Failed to release settlement claim on task %d: %v", taskID, err)
	}
}

// ReadyTasks returns the open tasks that have reached the completion
// threshold.
func (e *Engine) ReadyTasks(ctx context.Context) ([]ledger.Task, error) {
	tasks, err := e.store.ListOpenTasks(ctx)
	if err != nil {
		return nil, err
	}
	var ready []ledger.Task
	for _, task := range tasks {
		current, err := e.store.CountSubmissionsForTask(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		if readyForConsensus(current, task.RequiredReviews) {
			ready = append(ready, task)
		}
	}
	return ready, nil
}

// ProcessReadyTasks settles every ready task independently: one task's
// failure is logged and never stops the sweep.
func (e *Engine) ProcessReadyTasks(ctx context.Context) ([]*SettlementResult, error) {
	ready, err := e.ReadyTasks(ctx)
	if err != nil {
		return nil, err
	}

	var settled []*SettlementResult
	for _, task := range ready {
		result, err := e.ProcessTaskCompletion(ctx, task.ID)
		if err != nil {
			if isBenignSettlementError(err) {
				e.logger.Debugf("Skipping task %d: %v", task.ID, err)
			} else {
				e.logger.Errorf("Failed to settle task %d: %v", task.ID, err)
			}
			continue
		}
		settled = append(settled, result)
	}
	return settled, nil
}

// CheckAndSettle settles a task if it just crossed the threshold. Benign
// races with other settlers are expected and only logged; the periodic
// sweep picks up anything missed here.
func (e *Engine) CheckAndSettle(ctx context.Context, taskID int64) {
	status, err := e.CheckTaskCompletion(ctx, taskID)
	if err != nil {
		e.logger.Warnf("Completion check failed on task %d: %v", taskID, err)
		return
	}
	if !status.ReadyForConsensus {
		return
	}
	if _, err := e.ProcessTaskCompletion(ctx, taskID); err != nil {
		if isBenignSettlementError(err) {
			e.logger.Debugf("Task %d settled elsewhere: %v", taskID, err)
			return
		}
		e.logger.Errorf("Failed to settle task %d: %v", taskID, err)
	}
}

// isBenignSettlementError reports races lost to a concurrent settler.
func isBenignSettlementError(err error) bool {
	return errors.Is(err, ledger.ErrTaskAlreadySettled) ||
		errors.Is(err, ledger.ErrTaskNotOpen) ||
		errors.Is(err, ErrNotReady)
}
