package ledger

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// CreateSubmission records one worker's vote. The (task_id, worker_id)
// unique index rejects a second vote with ErrDuplicateSubmission.
func (s *Store) CreateSubmission(ctx context.Context, submission *Submission) error {
	err := s.db.WithContext(ctx).Create(submission).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateSubmission
	}
	if err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

// CountSubmissionsForTask returns how many votes a task has received.
func (s *Store) CountSubmissionsForTask(ctx context.Context, taskID int64) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Submission{}).
		Where("task_id = ?", taskID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count submissions for task %d: %w", taskID, err)
	}
	return int(count), nil
}

// ListSubmissionsForTask returns a task's votes in insertion order.
func (s *Store) ListSubmissionsForTask(ctx context.Context, taskID int64) ([]Submission, error) {
	var submissions []Submission
	err := s.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("id ASC").
		Find(&submissions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions for task %d: %w", taskID, err)
	}
	return submissions, nil
}

// ListSubmissionsForWorker returns all votes a worker has cast.
func (s *Store) ListSubmissionsForWorker(ctx context.Context, workerID int64) ([]Submission, error) {
	var submissions []Submission
	err := s.db.WithContext(ctx).
		Where("worker_id = ?", workerID).
		Order("id ASC").
		Find(&submissions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions for worker %d: %w", workerID, err)
	}
	return submissions, nil
}
