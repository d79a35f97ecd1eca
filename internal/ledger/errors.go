package ledger

import "errors"

var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrOptionNotFound     = errors.New("option not found")
	ErrWorkerNotFound     = errors.New("worker not found")
	ErrResultNotFound     = errors.New("result not found")
	ErrWithdrawalNotFound = errors.New("withdrawal not found")

	// ErrTaskAlreadySettled means a settlement for this task has already
	// committed. Callers treat it as success-by-another-writer.
	ErrTaskAlreadySettled = errors.New("task already settled")

	// ErrTaskNotOpen means the task could not be claimed for settlement
	// because another settlement currently holds the claim.
	ErrTaskNotOpen = errors.New("task is not open for settlement")

	// ErrDuplicateSubmission means this worker has already voted on this
	// task.
	ErrDuplicateSubmission = errors.New("duplicate submission")

	// ErrInsufficientBalance means a guarded balance update found fewer
	// funds than the operation required. No balance was changed.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidOptionCount means a task was created with fewer than two
	// or more than five options.
	ErrInvalidOptionCount = errors.New("task must have between 2 and 5 options")
)
