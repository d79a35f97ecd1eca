package consensus

import (
	"context"
	"fmt"
	"time"

	"github.com/crowdrank/crowdrank-backend/internal/ledger"
	"github.com/crowdrank/crowdrank-backend/pkg/logging"
	"github.com/crowdrank/crowdrank-backend/pkg/payout"
)

// WithdrawalService moves pending balance out of the system. Unlike
// settlement rewards, a failed payout here rolls the balance move back, so
// a worker's funds are restored exactly.
type WithdrawalService struct {
	store      *ledger.Store
	dispatcher payout.Dispatcher
	sink       NotificationSink
	logger     logging.Logger
}

// NewWithdrawalService wires the withdrawal flow. A nil sink disables
// notifications.
func NewWithdrawalService(store *ledger.Store, dispatcher payout.Dispatcher, sink NotificationSink, logger logging.Logger) *WithdrawalService {
	if sink == nil {
		sink = NoopSink{}
	}
	return &WithdrawalService{
		store:      store,
		dispatcher: dispatcher,
		sink:       sink,
		logger:     logger,
	}
}

// RequestWithdrawal locks the amount, dispatches the payout, and resolves
// the withdrawal to a terminal state. On payout failure the lock is
// reverted in a compensating transaction and the returned record is
// Failure alongside the payout error.
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, workerID, amount int64) (*ledger.Withdrawal, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("withdrawal amount must be positive, got %d", amount)
	}
	worker, err := s.store.GetWorker(ctx, workerID)
	if err != nil {
		return nil, err
	}

	withdrawal := &ledger.Withdrawal{WorkerID: workerID, Amount: amount}
	err = s.store.Atomically(ctx, func(tx *ledger.Store) error {
		if err := tx.LockBalanceForWithdrawal(ctx, workerID, amount); err != nil {
			return err
		}
		return tx.CreateWithdrawal(ctx, withdrawal)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infof("Withdrawal %d locked %d for worker %d", withdrawal.ID, amount, workerID)

	receipt, dispatchErr := s.dispatcher.Dispatch(ctx, payout.Payout{
		WalletAddress: worker.WalletAddress,
		Amount:        amount,
	})
	processedAt := time.Now().UTC()

	if dispatchErr != nil {
		rollbackErr := s.store.Atomically(ctx, func(tx *ledger.Store) error {
			if err := tx.MarkWithdrawalFailure(ctx, withdrawal.ID, processedAt); err != nil {
				return err
			}
			return tx.RefundLockedBalance(ctx, workerID, amount)
		})
		if rollbackErr != nil {
			// Housekeeping fails and refunds stale processing rows later.
			s.logger.Errorf("Failed to roll back withdrawal %d: %v", withdrawal.ID, rollbackErr)
			return withdrawal, fmt.Errorf("payout failed and rollback is pending: %w", dispatchErr)
		}
		withdrawal.Status = ledger.WithdrawalStatusFailure
		withdrawal.ProcessedAt = &processedAt
		s.logger.Warnf("Withdrawal %d rolled back after payout failure: %v", withdrawal.ID, dispatchErr)
		s.notifyResolved(ctx, withdrawal, PayoutStatusFailed)
		return withdrawal, dispatchErr
	}

	err = s.store.Atomically(ctx, func(tx *ledger.Store) error {
		if err := tx.MarkWithdrawalSuccess(ctx, withdrawal.ID, receipt.Reference, processedAt); err != nil {
			return err
		}
		return tx.SettleLockedBalance(ctx, workerID, amount)
	})
	if err != nil {
		// The funds already left the system; do not refund.
		s.logger.Errorf("Payout %s sent but withdrawal %d could not be resolved: %v",
			receipt.Reference, withdrawal.ID, err)
		return withdrawal, fmt.Errorf("payout %s sent but ledger update failed: %w", receipt.Reference, err)
	}

	withdrawal.Status = ledger.WithdrawalStatusSuccess
	withdrawal.Reference = receipt.Reference
	withdrawal.ProcessedAt = &processedAt
	s.logger.Infof("Withdrawal %d paid %d to %s (%s)", withdrawal.ID, amount, worker.WalletAddress, receipt.Reference)
	s.notifyResolved(ctx, withdrawal, PayoutStatusPaid)
	return withdrawal, nil
}

func (s *WithdrawalService) notifyResolved(ctx context.Context, withdrawal *ledger.Withdrawal, status string) {
	s.sink.NotifyWorkerPayout(ctx, WorkerPayoutEvent{
		WorkerID:     withdrawal.WorkerID,
		Kind:         PayoutKindWithdrawal,
		WithdrawalID: withdrawal.ID,
		Amount:       withdrawal.Amount,
		Reference:    withdrawal.Reference,
		Status:       status,
	})
}
