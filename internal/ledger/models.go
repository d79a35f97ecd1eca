package ledger

import (
	"time"
)

// TaskStatus is the settlement lifecycle of a task. A task is claimed
// open→settling before consensus runs, and settling→closed by the
// settlement transaction. A failed settlement releases the claim back
// to open.
type TaskStatus string

const (
	TaskStatusOpen     TaskStatus = "open"
	TaskStatusSettling TaskStatus = "settling"
	TaskStatusClosed   TaskStatus = "closed"
)

// MediaKind is the kind of content an option holds.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// Task is one evaluation job. Append-only: tasks are never deleted.
type Task struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Title           string     `gorm:"not null" json:"title"`
	Category        string     `gorm:"not null;index" json:"category"`
	RequiredReviews int        `gorm:"not null" json:"required_reviews"`
	// PaymentAmount is fixed to the tier price at creation time.
	PaymentAmount int64      `gorm:"not null" json:"payment_amount"`
	Status        TaskStatus `gorm:"not null;index" json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"-"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Options       []Option   `gorm:"foreignKey:TaskID" json:"options,omitempty"`
}

// Done reports whether the task has been settled.
func (t *Task) Done() bool {
	return t.Status == TaskStatusClosed
}

// Option is one candidate piece of content under a task. Immutable.
type Option struct {
	ID     int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	TaskID int64 `gorm:"not null;index" json:"task_id"`
	// Position is the creation order within the task (0-based). Vote ties
	// rank the earlier position first.
	Position         int       `gorm:"not null" json:"position"`
	ContentReference string    `gorm:"not null" json:"content_reference"`
	MediaKind        MediaKind `gorm:"not null" json:"media_kind"`
	CreatedAt        time.Time `json:"created_at"`
}

// Submission is one worker's single vote for one option. The unique index
// on (task_id, worker_id) is what makes double voting impossible.
type Submission struct {
	ID       int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	TaskID   int64 `gorm:"not null;uniqueIndex:idx_submissions_task_worker" json:"task_id"`
	OptionID int64 `gorm:"not null;index" json:"option_id"`
	WorkerID int64 `gorm:"not null;uniqueIndex:idx_submissions_task_worker;index" json:"worker_id"`
	// RewardAmount is the flat credit granted at submission time.
	RewardAmount int64     `gorm:"not null" json:"reward_amount"`
	CreatedAt    time.Time `json:"created_at"`
}

// Result is the settlement record of one task. The unique index on task_id
// is the idempotency guarantee: at most one settlement ever commits.
type Result struct {
	ID               int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TaskID           int64          `gorm:"not null;uniqueIndex" json:"task_id"`
	TotalSubmissions int            `gorm:"not null" json:"total_submissions"`
	CreatedAt        time.Time      `json:"created_at"`
	OptionResults    []OptionResult `gorm:"foreignKey:ResultID" json:"option_results,omitempty"`
}

// OptionResult is the per-option outcome inside a Result.
type OptionResult struct {
	ID        int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ResultID  int64 `gorm:"not null;index" json:"result_id"`
	OptionID  int64 `gorm:"not null;uniqueIndex" json:"option_id"`
	VoteCount int   `gorm:"not null" json:"vote_count"`
	// Rank is positional and 1-based: ties share a vote count but never
	// a rank.
	Rank       int     `gorm:"not null" json:"rank"`
	Percentage float64 `gorm:"not null" json:"percentage"`
}

// Worker is an evaluator account. Balances only move through the atomic
// guarded updates on Store; they are never read-modified-written.
type Worker struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WalletAddress  string    `gorm:"not null;uniqueIndex" json:"wallet_address"`
	PendingBalance int64     `gorm:"not null;default:0" json:"pending_balance"`
	LockedBalance  int64     `gorm:"not null;default:0" json:"locked_balance"`
	LifetimeEarned int64     `gorm:"not null;default:0" json:"lifetime_earned"`
	TasksCompleted int64     `gorm:"not null;default:0" json:"tasks_completed"`
	AccuracyScore  float64   `gorm:"not null;default:0" json:"accuracy_score"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"-"`
}

// WithdrawalStatus is the withdrawal state machine: processing is the only
// non-terminal state, and a withdrawal transitions out of it exactly once.
type WithdrawalStatus string

const (
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusSuccess    WithdrawalStatus = "success"
	WithdrawalStatusFailure    WithdrawalStatus = "failure"
)

// Withdrawal records one payout attempt initiated by a worker.
type Withdrawal struct {
	ID       int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkerID int64            `gorm:"not null;index" json:"worker_id"`
	Amount   int64            `gorm:"not null" json:"amount"`
	Status   WithdrawalStatus `gorm:"not null;index" json:"status"`
	// Reference is the payout transaction reference, empty until resolved.
	Reference   string     `json:"reference,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}
