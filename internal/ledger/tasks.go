package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const (
	MinOptionsPerTask = 2
	MaxOptionsPerTask = 5
)

// CreateTask inserts a task together with its options. Option positions
// are assigned from the slice order and are immutable afterwards.
func (s *Store) CreateTask(ctx context.Context, task *Task) error {
	if len(task.Options) < MinOptionsPerTask || len(task.Options) > MaxOptionsPerTask {
		return fmt.Errorf("%w: got %d", ErrInvalidOptionCount, len(task.Options))
	}
	if task.Status == "" {
		task.Status = TaskStatusOpen
	}
	for i := range task.Options {
		task.Options[i].Position = i
	}
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetTask fetches a task without its options.
func (s *Store) GetTask(ctx context.Context, taskID int64) (*Task, error) {
	var task Task
	err := s.db.WithContext(ctx).First(&task, "id = ?", taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %d: %w", taskID, err)
	}
	return &task, nil
}

// GetTaskWithOptions fetches a task with its options in position order.
func (s *Store) GetTaskWithOptions(ctx context.Context, taskID int64) (*Task, error) {
	var task Task
	err := s.db.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&task, "id = ?", taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %d: %w", taskID, err)
	}
	return &task, nil
}

// GetTaskOption fetches one option and verifies it belongs to the task.
func (s *Store) GetTaskOption(ctx context.Context, taskID, optionID int64) (*Option, error) {
	var option Option
	err := s.db.WithContext(ctx).
		First(&option, "id = ? AND task_id = ?", optionID, taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get option %d: %w", optionID, err)
	}
	return &option, nil
}

// ListOpenTasks returns tasks still accepting submissions, oldest first.
func (s *Store) ListOpenTasks(ctx context.Context) ([]Task, error) {
	var tasks []Task
	err := s.db.WithContext(ctx).
		Where("status = ?", TaskStatusOpen).
		Order("id ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list open tasks: %w", err)
	}
	return tasks, nil
}

// ClaimTaskForSettlement moves a task open→settling so only one settlement
// runs at a time. Returns ErrTaskAlreadySettled when the task is closed and
// ErrTaskNotOpen when another settlement holds the claim.
func (s *Store) ClaimTaskForSettlement(ctx context.Context, taskID int64) error {
	res := s.db.WithContext(ctx).
		Model(&Task{}).
		Where("id = ? AND status = ?", taskID, TaskStatusOpen).
		Update("status", TaskStatusSettling)
	if res.Error != nil {
		return fmt.Errorf("failed to claim task %d: %w", taskID, res.Error)
	}
	if res.RowsAffected == 0 {
		task, err := s.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Status == TaskStatusClosed {
			return ErrTaskAlreadySettled
		}
		return ErrTaskNotOpen
	}
	return nil
}

// ReleaseTaskClaim moves a task settling→open after a failed settlement.
func (s *Store) ReleaseTaskClaim(ctx context.Context, taskID int64) error {
	res := s.db.WithContext(ctx).
		Model(&Task{}).
		Where("id = ? AND status = ?", taskID, TaskStatusSettling).
		Update("status", TaskStatusOpen)
	if res.Error != nil {
		return fmt.Errorf("failed to release task %d: %w", taskID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("task %d is not claimed for settlement", taskID)
	}
	return nil
}

// CloseTask moves a task settling→closed and stamps the completion time.
// Runs inside the settlement transaction.
func (s *Store) CloseTask(ctx context.Context, taskID int64, completedAt time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&Task{}).
		Where("id = ? AND status = ?", taskID, TaskStatusSettling).
		Updates(map[string]interface{}{
			"status":       TaskStatusClosed,
			"completed_at": completedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to close task %d: %w", taskID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTaskAlreadySettled
	}
	return nil
}

// ReleaseStaleSettlingTasks releases settlement claims older than the
// cutoff back to open. Recovers tasks orphaned by a crashed settlement.
func (s *Store) ReleaseStaleSettlingTasks(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&Task{}).
		Where("status = ? AND updated_at < ?", TaskStatusSettling, cutoff).
		Update("status", TaskStatusOpen)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to release stale settlement claims: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountTasksByStatus returns the number of tasks in each status.
func (s *Store) CountTasksByStatus(ctx context.Context) (map[TaskStatus]int64, error) {
	var rows []struct {
		Status TaskStatus
		Total  int64
	}
	err := s.db.WithContext(ctx).
		Model(&Task{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	counts := make(map[TaskStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
