// Package consensus settles evaluation tasks: it checks the completion
// threshold, ranks options by votes, and pays rank-tiered rewards through
// a two-phase settlement (strict ledger transaction, then best-effort
// payouts and notifications).
package consensus

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/crowdrank/crowdrank-backend/internal/ledger"
	"github.com/crowdrank/crowdrank-backend/pkg/logging"
	"github.com/crowdrank/crowdrank-backend/pkg/payout"
	"github.com/crowdrank/crowdrank-backend/pkg/pricing"
)

// ErrNotReady means consensus was requested before the task reached the
// completion threshold. Callers may retry once more submissions arrive.
var ErrNotReady = errors.New("task has not reached the completion threshold")

// completionThresholdPct is how much of required_reviews must be submitted
// before a task settles. Below 100 so a long tail of missing reviewers
// cannot stall settlement forever.
const completionThresholdPct = 80

// Engine runs consensus and settlement against the ledger.
type Engine struct {
	store      *ledger.Store
	pricing    *pricing.Oracle
	dispatcher payout.Dispatcher
	sink       NotificationSink
	logger     logging.Logger
}

// NewEngine wires the engine's collaborators. A nil sink disables
// notifications.
func NewEngine(store *ledger.Store, oracle *pricing.Oracle, dispatcher payout.Dispatcher, sink NotificationSink, logger logging.Logger) *Engine {
	if sink == nil {
		sink = NoopSink{}
	}
	return &Engine{
		store:      store,
		pricing:    oracle,
		dispatcher: dispatcher,
		sink:       sink,
		logger:     logger,
	}
}

// CompletionStatus is the projection returned by CheckTaskCompletion.
type CompletionStatus struct {
	TaskID               int64   `json:"task_id"`
	RequiredSubmissions  int     `json:"required_submissions"`
	CurrentSubmissions   int     `json:"current_submissions"`
	CompletionPercentage float64 `json:"completion_percentage"`
	ReadyForConsensus    bool    `json:"ready_for_consensus"`
}

// OptionOutcome is one option's standing in a consensus ranking.
type OptionOutcome struct {
	OptionID   int64   `json:"option_id"`
	Position   int     `json:"position"`
	VoteCount  int     `json:"vote_count"`
	Rank       int     `json:"rank"`
	Percentage float64 `json:"percentage"`
}

// WorkerReward is one voter's reward for picking a top-ranked option.
// PayoutReference is filled during the best-effort payout phase.
type WorkerReward struct {
	WorkerID        int64  `json:"worker_id"`
	WalletAddress   string `json:"wallet_address"`
	OptionID        int64  `json:"option_id"`
	Rank            int    `json:"rank"`
	Amount          int64  `json:"amount"`
	PayoutReference string `json:"payout_reference,omitempty"`
}

// ConsensusResult is the full outcome of ranking a task's submissions.
type ConsensusResult struct {
	TaskID           int64           `json:"task_id"`
	Category         string          `json:"category"`
	TotalSubmissions int             `json:"total_submissions"`
	Ranking          []OptionOutcome `json:"ranking"`
	Rewards          []WorkerReward  `json:"rewards"`
}

// readyForConsensus is the integer form of current/required >= 80%,
// exact for any required count.
func readyForConsensus(current, required int) bool {
	if required <= 0 {
		return false
	}
	return current*100 >= required*completionThresholdPct
}

// CheckTaskCompletion reports how close a task is to its completion
// threshold.
func (e *Engine) CheckTaskCompletion(ctx context.Context, taskID int64) (*CompletionStatus, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	current, err := e.store.CountSubmissionsForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	status := &CompletionStatus{
		TaskID:              task.ID,
		RequiredSubmissions: task.RequiredReviews,
		CurrentSubmissions:  current,
		ReadyForConsensus:   readyForConsensus(current, task.RequiredReviews),
	}
	if task.RequiredReviews > 0 {
		status.CompletionPercentage = float64(current) / float64(task.RequiredReviews) * 100
	}
	return status, nil
}

// CalculateConsensus ranks a task's options by vote count and computes the
// per-voter rewards for the top ranks. Fails with ErrNotReady below the
// completion threshold.
func (e *Engine) CalculateConsensus(ctx context.Context, taskID int64) (*ConsensusResult, error) {
	task, err := e.store.GetTaskWithOptions(ctx, taskID)
	if err != nil {
		return nil, err
	}
	submissions, err := e.store.ListSubmissionsForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !readyForConsensus(len(submissions), task.RequiredReviews) {
		return nil, fmt.Errorf("%w: task %d has %d of %d submissions",
			ErrNotReady, taskID, len(submissions), task.RequiredReviews)
	}

	ranking, votersByOption := tallyVotes(task.Options, submissions)
	rewards, err := e.workerRewards(ctx, task.Category, ranking, votersByOption)
	if err != nil {
		return nil, err
	}

	return &ConsensusResult{
		TaskID:           task.ID,
		Category:         task.Category,
		TotalSubmissions: len(submissions),
		Ranking:          ranking,
		Rewards:          rewards,
	}, nil
}

// tallyVotes counts votes per option and assigns positional ranks. The sort
// is stable over options in creation order, so equal vote counts rank the
// earlier option first and ranks are always a permutation of 1..N.
func tallyVotes(options []ledger.Option, submissions []ledger.Submission) ([]OptionOutcome, map[int64][]int64) {
	outcomes := make([]OptionOutcome, 0, len(options))
	index := make(map[int64]int, len(options))
	for i, option := range options {
		index[option.ID] = i
		outcomes = append(outcomes, OptionOutcome{
			OptionID: option.ID,
			Position: option.Position,
		})
	}

	votersByOption := make(map[int64][]int64, len(options))
	total := 0
	for _, submission := range submissions {
		i, ok := index[submission.OptionID]
		if !ok {
			continue
		}
		outcomes[i].VoteCount++
		votersByOption[submission.OptionID] = append(votersByOption[submission.OptionID], submission.WorkerID)
		total++
	}

	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].VoteCount > outcomes[j].VoteCount
	})
	for i := range outcomes {
		outcomes[i].Rank = i + 1
		if total > 0 {
			outcomes[i].Percentage = float64(outcomes[i].VoteCount) / float64(total) * 100
		}
	}
	return outcomes, votersByOption
}

// workerRewards builds the reward list for voters of top-ranked options.
// Every voter for the same option receives the same amount.
func (e *Engine) workerRewards(ctx context.Context, category string, ranking []OptionOutcome, votersByOption map[int64][]int64) ([]WorkerReward, error) {
	rewarded := e.pricing.RewardedRanks()
	if rewarded > len(ranking) {
		rewarded = len(ranking)
	}

	var voterIDs []int64
	for _, outcome := range ranking[:rewarded] {
		voterIDs = append(voterIDs, votersByOption[outcome.OptionID]...)
	}
	workers, err := e.store.ListWorkersByIDs(ctx, voterIDs)
	if err != nil {
		return nil, err
	}

	var rewards []WorkerReward
	for _, outcome := range ranking[:rewarded] {
		amount, err := e.pricing.WorkerReward(pricing.Category(category), outcome.Rank)
		if err != nil {
			return nil, err
		}
		if amount == 0 {
			continue
		}
		for _, workerID := range votersByOption[outcome.OptionID] {
			worker, ok := workers[workerID]
			if !ok {
				return nil, fmt.Errorf("submission references missing worker %d: %w", workerID, ledger.ErrWorkerNotFound)
			}
			rewards = append(rewards, WorkerReward{
				WorkerID:      workerID,
				WalletAddress: worker.WalletAddress,
				OptionID:      outcome.OptionID,
				Rank:          outcome.Rank,
				Amount:        amount,
			})
		}
	}
	return rewards, nil
}

// SubmitVote records one worker's vote on an open task and credits the flat
// submission amount, both inside one transaction. The worker account is
// created on first contact.
func (e *Engine) SubmitVote(ctx context.Context, taskID int64, walletAddress string, optionID int64) (*ledger.Submission, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == ledger.TaskStatusClosed {
		return nil, ledger.ErrTaskAlreadySettled
	}
	if task.Status != ledger.TaskStatusOpen {
		return nil, ledger.ErrTaskNotOpen
	}
	if _, err := e.store.GetTaskOption(ctx, taskID, optionID); err != nil {
		return nil, err
	}
	worker, err := e.store.GetOrCreateWorkerByWallet(ctx, walletAddress)
	if err != nil {
		return nil, err
	}

	submission := &ledger.Submission{
		TaskID:       taskID,
		OptionID:     optionID,
		WorkerID:     worker.ID,
		RewardAmount: e.pricing.SubmissionCredit(),
	}
	err = e.store.Atomically(ctx, func(tx *ledger.Store) error {
		if err := tx.CreateSubmission(ctx, submission); err != nil {
			return err
		}
		return tx.CreditSubmission(ctx, worker.ID, submission.RewardAmount)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Infof("Worker %d voted for option %d on task %d", worker.ID, optionID, taskID)
	return submission, nil
}
