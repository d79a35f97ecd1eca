package ledger

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// CreateResult records a settlement outcome with its per-option rows. The
// unique index on task_id turns a concurrent second settlement into
// ErrTaskAlreadySettled, rolling back everything in the same transaction.
func (s *Store) CreateResult(ctx context.Context, result *Result) error {
	err := s.db.WithContext(ctx).Create(result).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrTaskAlreadySettled
	}
	if err != nil {
		return fmt.Errorf("failed to create result for task %d: %w", result.TaskID, err)
	}
	return nil
}

// GetResultByTask fetches a task's settlement result with option rows in
// rank order. Returns ErrResultNotFound while the task is unsettled.
func (s *Store) GetResultByTask(ctx context.Context, taskID int64) (*Result, error) {
	var result Result
	err := s.db.WithContext(ctx).
		Preload("OptionResults", func(db *gorm.DB) *gorm.DB {
			return db.Order("rank ASC")
		}).
		First(&result, "task_id = ?", taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result for task %d: %w", taskID, err)
	}
	return &result, nil
}

// GetOptionRanks returns the settled rank for each of the given options.
// Options on unsettled tasks are absent from the map.
func (s *Store) GetOptionRanks(ctx context.Context, optionIDs []int64) (map[int64]int, error) {
	if len(optionIDs) == 0 {
		return map[int64]int{}, nil
	}
	var rows []struct {
		OptionID int64
		Rank     int
	}
	err := s.db.WithContext(ctx).
		Model(&OptionResult{}).
		Select("option_id, rank").
		Where("option_id IN ?", optionIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get option ranks: %w", err)
	}
	ranks := make(map[int64]int, len(rows))
	for _, row := range rows {
		ranks[row.OptionID] = row.Rank
	}
	return ranks, nil
}

// CountResults returns the number of settled tasks.
func (s *Store) CountResults(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Result{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return count, nil
}
