package consensus

import (
	"context"
	"math"

	"github.com/crowdrank/crowdrank-backend/internal/ledger"
)

// WorkerStats is the derived per-worker view: participation counters,
// accuracy over settled tasks, and current balances.
type WorkerStats struct {
	WorkerID          int64   `json:"worker_id"`
	WalletAddress     string  `json:"wallet_address"`
	TotalSubmissions  int     `json:"total_submissions"`
	CompletedTasks    int     `json:"completed_tasks"`
	RankedSubmissions int     `json:"ranked_submissions"`
	AccuracyScore     float64 `json:"accuracy_score"`
	PendingBalance    int64   `json:"pending_balance"`
	LockedBalance     int64   `json:"locked_balance"`
	LifetimeEarned    int64   `json:"lifetime_earned"`
	TasksCompleted    int64   `json:"tasks_completed"`
}

type accuracyBreakdown struct {
	// Completed counts submissions whose task has settled.
	Completed int
	// Ranked counts completed submissions whose option placed in a
	// rewarded rank.
	Ranked int
	// Score is Ranked/Completed as a percentage, two decimals.
	Score float64
}

// WorkerStats computes a worker's live statistics. Accuracy is the share
// of their settled-task votes that picked a top-ranked option.
func (e *Engine) WorkerStats(ctx context.Context, workerID int64) (*WorkerStats, error) {
	worker, err := e.store.GetWorker(ctx, workerID)
	if err != nil {
		return nil, err
	}
	submissions, err := e.store.ListSubmissionsForWorker(ctx, workerID)
	if err != nil {
		return nil, err
	}
	accuracy, err := e.accuracyFor(ctx, submissions)
	if err != nil {
		return nil, err
	}

	return &WorkerStats{
		WorkerID:          worker.ID,
		WalletAddress:     worker.WalletAddress,
		TotalSubmissions:  len(submissions),
		CompletedTasks:    accuracy.Completed,
		RankedSubmissions: accuracy.Ranked,
		AccuracyScore:     accuracy.Score,
		PendingBalance:    worker.PendingBalance,
		LockedBalance:     worker.LockedBalance,
		LifetimeEarned:    worker.LifetimeEarned,
		TasksCompleted:    worker.TasksCompleted,
	}, nil
}

func (e *Engine) workerAccuracy(ctx context.Context, workerID int64) (accuracyBreakdown, error) {
	submissions, err := e.store.ListSubmissionsForWorker(ctx, workerID)
	if err != nil {
		return accuracyBreakdown{}, err
	}
	return e.accuracyFor(ctx, submissions)
}

// accuracyFor grades submissions against settled rankings. Options on
// unsettled tasks have no rank yet and are excluded from the denominator.
func (e *Engine) accuracyFor(ctx context.Context, submissions []ledger.Submission) (accuracyBreakdown, error) {
	optionIDs := make([]int64, 0, len(submissions))
	for _, submission := range submissions {
		optionIDs = append(optionIDs, submission.OptionID)
	}
	ranks, err := e.store.GetOptionRanks(ctx, optionIDs)
	if err != nil {
		return accuracyBreakdown{}, err
	}

	var breakdown accuracyBreakdown
	rewarded := e.pricing.RewardedRanks()
	for _, submission := range submissions {
		rank, settled := ranks[submission.OptionID]
		if !settled {
			continue
		}
		breakdown.Completed++
		if rank <= rewarded {
			breakdown.Ranked++
		}
	}
	if breakdown.Completed > 0 {
		score := float64(breakdown.Ranked) / float64(breakdown.Completed) * 100
		breakdown.Score = math.Round(score*100) / 100
	}
	return breakdown, nil
}
