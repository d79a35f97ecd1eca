package ledger

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// GetWorker fetches a worker by id.
func (s *Store) GetWorker(ctx context.Context, workerID int64) (*Worker, error) {
	var worker Worker
	err := s.db.WithContext(ctx).First(&worker, "id = ?", workerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWorkerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get worker %d: %w", workerID, err)
	}
	return &worker, nil
}

// GetWorkerByWallet fetches a worker by wallet address.
func (s *Store) GetWorkerByWallet(ctx context.Context, walletAddress string) (*Worker, error) {
	var worker Worker
	err := s.db.WithContext(ctx).First(&worker, "wallet_address = ?", walletAddress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWorkerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get worker by wallet %s: %w", walletAddress, err)
	}
	return &worker, nil
}

// GetOrCreateWorkerByWallet returns the worker for a wallet, creating the
// account on first contact. A concurrent create loses the unique-index race
// and falls back to reading the winner's row.
func (s *Store) GetOrCreateWorkerByWallet(ctx context.Context, walletAddress string) (*Worker, error) {
	worker, err := s.GetWorkerByWallet(ctx, walletAddress)
	if err == nil {
		return worker, nil
	}
	if !errors.Is(err, ErrWorkerNotFound) {
		return nil, err
	}

	created := Worker{WalletAddress: walletAddress}
	err = s.db.WithContext(ctx).Create(&created).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return s.GetWorkerByWallet(ctx, walletAddress)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create worker for wallet %s: %w", walletAddress, err)
	}
	s.logger.Infof("Created worker %d for wallet %s", created.ID, walletAddress)
	return &created, nil
}

// CreditSubmission adds the flat submission credit to pending and lifetime
// balances in one guarded update.
func (s *Store) CreditSubmission(ctx context.Context, workerID, amount int64) error {
	res := s.db.WithContext(ctx).
		Model(&Worker{}).
		Where("id = ?", workerID).
		Updates(map[string]interface{}{
			"pending_balance": gorm.Expr("pending_balance + ?", amount),
			"lifetime_earned": gorm.Expr("lifetime_earned + ?", amount),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to credit submission for worker %d: %w", workerID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrWorkerNotFound
	}
	return nil
}

// CreditReward adds a settlement reward to pending and lifetime balances and
// counts the completed task. Runs inside the settlement transaction.
func (s *Store) CreditReward(ctx context.Context, workerID, amount int64) error {
	res := s.db.WithContext(ctx).
		Model(&Worker{}).
		Where("id = ?", workerID).
		Updates(map[string]interface{}{
			"pending_balance": gorm.Expr("pending_balance + ?", amount),
			"lifetime_earned": gorm.Expr("lifetime_earned + ?", amount),
			"tasks_completed": gorm.Expr("tasks_completed + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to credit reward for worker %d: %w", workerID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrWorkerNotFound
	}
	return nil
}

// LockBalanceForWithdrawal moves amount pending→locked. The balance guard
// is in the WHERE clause, so an overdraw changes nothing and reports
// ErrInsufficientBalance.
func (s *Store) LockBalanceForWithdrawal(ctx context.Context, workerID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("withdrawal amount must be positive, got %d", amount)
	}
	res := s.db.WithContext(ctx).
		Model(&Worker{}).
		Where("id = ? AND pending_balance >= ?", workerID, amount).
		Updates(map[string]interface{}{
			"pending_balance": gorm.Expr("pending_balance - ?", amount),
			"locked_balance":  gorm.Expr("locked_balance + ?", amount),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to lock balance for worker %d: %w", workerID, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetWorker(ctx, workerID); err != nil {
			return err
		}
		return ErrInsufficientBalance
	}
	return nil
}

// SettleLockedBalance burns locked funds after a successful payout.
func (s *Store) SettleLockedBalance(ctx context.Context, workerID, amount int64) error {
	res := s.db.WithContext(ctx).
		Model(&Worker{}).
		Where("id = ? AND locked_balance >= ?", workerID, amount).
		Update("locked_balance", gorm.Expr("locked_balance - ?", amount))
	if res.Error != nil {
		return fmt.Errorf("failed to settle locked balance for worker %d: %w", workerID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("worker %d has no locked balance of %d to settle", workerID, amount)
	}
	return nil
}

// RefundLockedBalance moves amount locked→pending after a failed payout.
// The compensating half of LockBalanceForWithdrawal.
func (s *Store) RefundLockedBalance(ctx context.Context, workerID, amount int64) error {
	res := s.db.WithContext(ctx).
		Model(&Worker{}).
		Where("id = ? AND locked_balance >= ?", workerID, amount).
		Updates(map[string]interface{}{
			"pending_balance": gorm.Expr("pending_balance + ?", amount),
			"locked_balance":  gorm.Expr("locked_balance - ?", amount),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to refund locked balance for worker %d: %w", workerID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("worker %d has no locked balance of %d to refund", workerID, amount)
	}
	return nil
}

// ListWorkersByIDs fetches the given workers keyed by id. Missing ids are
// simply absent from the map.
func (s *Store) ListWorkersByIDs(ctx context.Context, workerIDs []int64) (map[int64]*Worker, error) {
	if len(workerIDs) == 0 {
		return map[int64]*Worker{}, nil
	}
	var workers []Worker
	err := s.db.WithContext(ctx).Where("id IN ?", workerIDs).Find(&workers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list workers by ids: %w", err)
	}
	byID := make(map[int64]*Worker, len(workers))
	for i := range workers {
		byID[workers[i].ID] = &workers[i]
	}
	return byID, nil
}

// UpdateWorkerAccuracy stores a recomputed accuracy score.
func (s *Store) UpdateWorkerAccuracy(ctx context.Context, workerID int64, score float64) error {
	res := s.db.WithContext(ctx).
		Model(&Worker{}).
		Where("id = ?", workerID).
		Update("accuracy_score", score)
	if res.Error != nil {
		return fmt.Errorf("failed to update accuracy for worker %d: %w", workerID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrWorkerNotFound
	}
	return nil
}

// ListTopWorkers returns workers ordered by lifetime earnings.
func (s *Store) ListTopWorkers(ctx context.Context, limit int) ([]Worker, error) {
	var workers []Worker
	err := s.db.WithContext(ctx).
		Order("lifetime_earned DESC, id ASC").
		Limit(limit).
		Find(&workers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list top workers: %w", err)
	}
	return workers, nil
}

// CountWorkers returns the total number of worker accounts.
func (s *Store) CountWorkers(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Worker{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count workers: %w", err)
	}
	return count, nil
}
