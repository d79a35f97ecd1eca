// Package sweeper runs the periodic settlement pass: it settles tasks the
// event-triggered path missed and repairs state left behind by crashed
// settlers.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/crowdrank/crowdrank-backend/internal/consensus"
	"github.com/crowdrank/crowdrank-backend/internal/ledger"
	"github.com/crowdrank/crowdrank-backend/pkg/logging"
	"github.com/crowdrank/crowdrank-backend/pkg/redis"
)

const housekeepingTimeout = 5 * time.Minute

// Config carries the sweeper's timing knobs.
type Config struct {
	// SweepInterval is how often open tasks are checked for readiness.
	SweepInterval time.Duration
	// HousekeepingSchedule is a cron expression for the repair pass.
	HousekeepingSchedule string
	// SettlingStaleAfter is how long a task may sit in settling before its
	// claim is considered abandoned.
	SettlingStaleAfter time.Duration
	// WithdrawalStaleAfter is how long a withdrawal may sit in processing
	// before it is failed and refunded.
	WithdrawalStaleAfter time.Duration
	// SettlementLockTTL bounds how long a replica may hold a task's
	// settlement lock.
	SettlementLockTTL time.Duration
}

// Sweeper periodically settles ready tasks and runs housekeeping. A nil
// locks client disables cross-replica locking; the ledger's settling claim
// still serializes settlement within one database.
type Sweeper struct {
	store   *ledger.Store
	engine  *consensus.Engine
	locks   *redis.Client
	config  Config
	cron    *cron.Cron
	metrics *Metrics
	logger  logging.Logger
}

// New validates the configuration and schedules the housekeeping job.
func New(store *ledger.Store, engine *consensus.Engine, locks *redis.Client, config Config, metrics *Metrics, logger logging.Logger) (*Sweeper, error) {
	if config.SweepInterval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", config.SweepInterval)
	}
	if config.SettlingStaleAfter <= 0 {
		return nil, fmt.Errorf("settling stale cutoff must be positive, got %s", config.SettlingStaleAfter)
	}
	if config.WithdrawalStaleAfter <= 0 {
		return nil, fmt.Errorf("withdrawal stale cutoff must be positive, got %s", config.WithdrawalStaleAfter)
	}
	if locks != nil && config.SettlementLockTTL <= 0 {
		return nil, fmt.Errorf("settlement lock TTL must be positive, got %s", config.SettlementLockTTL)
	}
	if metrics == nil {
		metrics = NewDefaultMetrics()
	}

	s := &Sweeper{
		store:   store,
		engine:  engine,
		locks:   locks,
		config:  config,
		cron:    cron.New(),
		metrics: metrics,
		logger:  logger,
	}

	if _, err := s.cron.AddFunc(config.HousekeepingSchedule, s.housekeepingJob); err != nil {
		return nil, fmt.Errorf("invalid housekeeping schedule %q: %w", config.HousekeepingSchedule, err)
	}
	return s, nil
}

// Start blocks, sweeping every interval until the context is canceled. The
// housekeeping cron runs alongside.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Infof("Sweeper started: interval %s, housekeeping %q",
		s.config.SweepInterval, s.config.HousekeepingSchedule)
	s.cron.Start()
	defer func() {
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
	}()

	// Sweep once at startup so a restart never waits a full interval.
	s.Sweep(ctx)

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			s.logger.Infof("Sweeper stopping")
			return
		}
	}
}

// Sweep settles every ready task once and returns how many settled.
func (s *Sweeper) Sweep(ctx context.Context) int {
	s.metrics.SweepsTotal.Inc()

	ready, err := s.engine.ReadyTasks(ctx)
	if err != nil {
		s.logger.Errorf("Failed to list ready tasks: %v", err)
		return 0
	}

	settled := 0
	for _, task := range ready {
		if s.settleOne(ctx, task.ID) {
			settled++
		}
	}
	if settled > 0 {
		s.logger.Infof("Sweep settled %d of %d ready tasks", settled, len(ready))
	}
	return settled
}

// settleOne settles a single task behind the per-task lock.
func (s *Sweeper) settleOne(ctx context.Context, taskID int64) bool {
	release, acquired := s.acquireTaskLock(ctx, taskID)
	if !acquired {
		s.metrics.LockContentionTotal.Inc()
		s.logger.Debugf("Task %d is locked by another replica", taskID)
		return false
	}
	defer release()

	if _, err := s.engine.ProcessTaskCompletion(ctx, taskID); err != nil {
		if isBenignSweepError(err) {
			s.logger.Debugf("Task %d settled elsewhere: %v", taskID, err)
		} else {
			s.metrics.SettleFailuresTotal.Inc()
			s.logger.Errorf("Failed to settle task %d: %v", taskID, err)
		}
		return false
	}
	s.metrics.TasksSettledTotal.Inc()
	return true
}

// acquireTaskLock takes the cross-replica settlement lock when redis is
// configured. Lock infrastructure errors fall through to settling anyway:
// the ledger claim still guarantees single settlement, the lock only saves
// wasted work.
func (s *Sweeper) acquireTaskLock(ctx context.Context, taskID int64) (func(), bool) {
	if s.locks == nil {
		return func() {}, true
	}

	lock, err := s.locks.NewLock(redis.SettlementLockKey(taskID), s.config.SettlementLockTTL, redis.NoRetry())
	if err != nil {
		s.logger.Warnf("Could not build settlement lock for task %d: %v", taskID, err)
		return func() {}, true
	}
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		s.logger.Warnf("Settlement lock check failed for task %d: %v", taskID, err)
		return func() {}, true
	}
	if !acquired {
		return nil, false
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			s.logger.Warnf("Failed to release settlement lock for task %d: %v", taskID, err)
		}
	}, true
}

// HousekeepingReport summarizes one repair pass.
type HousekeepingReport struct {
	ReleasedTasks     int64
	FailedWithdrawals int
}

// RunHousekeeping releases stale settling claims and resolves withdrawals
// stuck in processing by failing them and refunding the locked amount.
func (s *Sweeper) RunHousekeeping(ctx context.Context) HousekeepingReport {
	s.metrics.HousekeepingRunsTotal.Inc()
	report := HousekeepingReport{}

	taskCutoff := time.Now().UTC().Add(-s.config.SettlingStaleAfter)
	released, err := s.store.ReleaseStaleSettlingTasks(ctx, taskCutoff)
	if err != nil {
		s.logger.Errorf("Failed to release stale settling tasks: %v", err)
	} else if released > 0 {
		report.ReleasedTasks = released
		s.metrics.StaleTasksReleasedTotal.Add(float64(released))
		s.logger.Warnf("Released %d stale settling claims back to open", released)
	}

	withdrawalCutoff := time.Now().UTC().Add(-s.config.WithdrawalStaleAfter)
	stale, err := s.store.ListStaleProcessingWithdrawals(ctx, withdrawalCutoff)
	if err != nil {
		s.logger.Errorf("Failed to list stale withdrawals: %v", err)
		return report
	}

	for _, withdrawal := range stale {
		processedAt := time.Now().UTC()
		err := s.store.Atomically(ctx, func(tx *ledger.Store) error {
			if err := tx.MarkWithdrawalFailure(ctx, withdrawal.ID, processedAt); err != nil {
				return err
			}
			return tx.RefundLockedBalance(ctx, withdrawal.WorkerID, withdrawal.Amount)
		})
		if err != nil {
			s.logger.Errorf("Failed to refund stuck withdrawal %d: %v", withdrawal.ID, err)
			continue
		}
		report.FailedWithdrawals++
		s.metrics.StaleWithdrawalsFailedTotal.Inc()
		s.logger.Warnf("Withdrawal %d was stuck in processing since %s, failed and refunded %d to worker %d",
			withdrawal.ID, withdrawal.CreatedAt.Format(time.RFC3339), withdrawal.Amount, withdrawal.WorkerID)
	}
	return report
}

// housekeepingJob adapts RunHousekeeping to the cron runner.
func (s *Sweeper) housekeepingJob() {
	ctx, cancel := context.WithTimeout(context.Background(), housekeepingTimeout)
	defer cancel()
	s.RunHousekeeping(ctx)
}

// isBenignSweepError reports settlement races lost to another settler.
func isBenignSweepError(err error) bool {
	return errors.Is(err, ledger.ErrTaskAlreadySettled) ||
		errors.Is(err, ledger.ErrTaskNotOpen) ||
		errors.Is(err, consensus.ErrNotReady)
}
