package consensus

import (
	"context"
	"time"
)

const (
	PayoutKindReward     = "reward"
	PayoutKindWithdrawal = "withdrawal"

	PayoutStatusPaid   = "paid"
	PayoutStatusFailed = "failed"
)

// TaskCompletionEvent announces a settled task.
type TaskCompletionEvent struct {
	TaskID           int64           `json:"task_id"`
	TotalSubmissions int             `json:"total_submissions"`
	Ranking          []OptionOutcome `json:"ranking"`
	CompletedAt      time.Time       `json:"completed_at"`
}

// WorkerPayoutEvent announces money movement for one worker: a settlement
// reward or a resolved withdrawal.
type WorkerPayoutEvent struct {
	WorkerID     int64  `json:"worker_id"`
	Kind         string `json:"kind"`
	TaskID       int64  `json:"task_id,omitempty"`
	WithdrawalID int64  `json:"withdrawal_id,omitempty"`
	Amount       int64  `json:"amount"`
	Rank         int    `json:"rank,omitempty"`
	Reference    string `json:"reference,omitempty"`
	Status       string `json:"status"`
}

// NotificationSink receives settlement side effects after the ledger
// transaction commits. Delivery is fire-and-forget: implementations log
// their own failures and must never block settlement.
type NotificationSink interface {
	NotifyTaskCompletion(ctx context.Context, event TaskCompletionEvent)
	NotifyWorkerPayout(ctx context.Context, event WorkerPayoutEvent)
}

// NoopSink discards all notifications.
type NoopSink struct{}

func (NoopSink) NotifyTaskCompletion(context.Context, TaskCompletionEvent) {}
func (NoopSink) NotifyWorkerPayout(context.Context, WorkerPayoutEvent)     {}
