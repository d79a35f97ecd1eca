package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// CreateWithdrawal records a new withdrawal in the processing state.
func (s *Store) CreateWithdrawal(ctx context.Context, withdrawal *Withdrawal) error {
	if withdrawal.Status == "" {
		withdrawal.Status = WithdrawalStatusProcessing
	}
	if err := s.db.WithContext(ctx).Create(withdrawal).Error; err != nil {
		return fmt.Errorf("failed to create withdrawal: %w", err)
	}
	return nil
}

// GetWithdrawal fetches a withdrawal by id.
func (s *Store) GetWithdrawal(ctx context.Context, withdrawalID int64) (*Withdrawal, error) {
	var withdrawal Withdrawal
	err := s.db.WithContext(ctx).First(&withdrawal, "id = ?", withdrawalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal %d: %w", withdrawalID, err)
	}
	return &withdrawal, nil
}

// ListWithdrawalsForWorker returns a worker's withdrawals, newest first.
func (s *Store) ListWithdrawalsForWorker(ctx context.Context, workerID int64) ([]Withdrawal, error) {
	var withdrawals []Withdrawal
	err := s.db.WithContext(ctx).
		Where("worker_id = ?", workerID).
		Order("id DESC").
		Find(&withdrawals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals for worker %d: %w", workerID, err)
	}
	return withdrawals, nil
}

// MarkWithdrawalSuccess resolves a processing withdrawal with the payout
// reference. The status guard makes the terminal transition happen once.
func (s *Store) MarkWithdrawalSuccess(ctx context.Context, withdrawalID int64, reference string, processedAt time.Time) error {
	return s.markWithdrawalResolved(ctx, withdrawalID, WithdrawalStatusSuccess, reference, processedAt)
}

// MarkWithdrawalFailure resolves a processing withdrawal as failed.
func (s *Store) MarkWithdrawalFailure(ctx context.Context, withdrawalID int64, processedAt time.Time) error {
	return s.markWithdrawalResolved(ctx, withdrawalID, WithdrawalStatusFailure, "", processedAt)
}

func (s *Store) markWithdrawalResolved(ctx context.Context, withdrawalID int64, status WithdrawalStatus, reference string, processedAt time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&Withdrawal{}).
		Where("id = ? AND status = ?", withdrawalID, WithdrawalStatusProcessing).
		Updates(map[string]interface{}{
			"status":       status,
			"reference":    reference,
			"processed_at": processedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to resolve withdrawal %d: %w", withdrawalID, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetWithdrawal(ctx, withdrawalID); err != nil {
			return err
		}
		return fmt.Errorf("withdrawal %d is already resolved", withdrawalID)
	}
	return nil
}

// ListStaleProcessingWithdrawals returns withdrawals stuck in processing
// since before the cutoff. Housekeeping fails and refunds them.
func (s *Store) ListStaleProcessingWithdrawals(ctx context.Context, cutoff time.Time) ([]Withdrawal, error) {
	var withdrawals []Withdrawal
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", WithdrawalStatusProcessing, cutoff).
		Order("id ASC").
		Find(&withdrawals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale withdrawals: %w", err)
	}
	return withdrawals, nil
}

// CountWithdrawalsByStatus returns the number of withdrawals per status.
func (s *Store) CountWithdrawalsByStatus(ctx context.Context) (map[WithdrawalStatus]int64, error) {
	var rows []struct {
		Status WithdrawalStatus
		Total  int64
	}
	err := s.db.WithContext(ctx).
		Model(&Withdrawal{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count withdrawals: %w", err)
	}
	counts := make(map[WithdrawalStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
