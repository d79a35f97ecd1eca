package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdrank/crowdrank-backend/pkg/logging"
)

// fakeCommands implements Commands in memory, mirroring the SetNX and
// compare-and-delete semantics the lock relies on.
type fakeCommands struct {
	mu         sync.Mutex
	values     map[string]string
	setNXCalls int
	setNXErr   error
	evalErr    error
	freeAfter  int // delete the key once SetNX has been attempted this many times
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{values: make(map[string]string)}
}

func (f *fakeCommands) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setNXCalls++
	if f.setNXErr != nil {
		return false, f.setNXErr
	}
	if f.freeAfter > 0 && f.setNXCalls >= f.freeAfter {
		delete(f.values, key)
		f.freeAfter = 0
	}
	if _, held := f.values[key]; held {
		return false, nil
	}
	f.values[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeCommands) Eval(_ context.Context, _ string, keys []string, args ...interface{}) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	if len(keys) != 1 || len(args) != 1 {
		return nil, errors.New("unexpected script invocation")
	}
	if f.values[keys[0]] == fmt.Sprint(args[0]) {
		delete(f.values, keys[0])
		return int64(1), nil
	}
	return int64(0), nil
}

func newTestLock(cmds Commands, strategy *RetryStrategy) *Lock {
	return &Lock{
		client:        cmds,
		logger:        logging.NewNoOpLogger(),
		key:           SettlementLockKey(42),
		token:         uuid.NewString(),
		ttl:           5 * time.Second,
		retryStrategy: strategy,
	}
}

func TestSettlementLockKey(t *testing.T) {
	assert.Equal(t, "settlement:task:42", SettlementLockKey(42))
	assert.Equal(t, "settlement:task:7001", SettlementLockKey(7001))
}

func TestNewLockValidation(t *testing.T) {
	client := &Client{logger: logging.NewNoOpLogger()}

	_, err := client.NewLock("settlement:task:1", 0, nil)
	require.Error(t, err)

	lock, err := client.NewLock("settlement:task:1", time.Second, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, lock.token)
	assert.Equal(t, 0, lock.retryStrategy.MaxRetries)
}

func TestLockAcquireFreeKey(t *testing.T) {
	cmds := newFakeCommands()
	lock := newTestLock(cmds, NoRetry())

	acquired, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.Equal(t, lock.token, cmds.values[lock.key])
}

func TestLockAcquireHeldKeyNoRetry(t *testing.T) {
	cmds := newFakeCommands()
	cmds.values[SettlementLockKey(42)] = "another-holder"
	lock := newTestLock(cmds, NoRetry())

	acquired, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.Equal(t, 1, cmds.setNXCalls)
}

func TestLockAcquireContentionThenFree(t *testing.T) {
	cmds := newFakeCommands()
	cmds.values[SettlementLockKey(42)] = "another-holder"
	cmds.freeAfter = 2
	lock := newTestLock(cmds, FixedRetry(3, time.Millisecond))

	acquired, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.Equal(t, 2, cmds.setNXCalls)
}

func TestLockAcquireContentionExhaustsRetries(t *testing.T) {
	cmds := newFakeCommands()
	cmds.values[SettlementLockKey(42)] = "another-holder"
	lock := newTestLock(cmds, FixedRetry(3, time.Millisecond))

	acquired, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.Equal(t, 3, cmds.setNXCalls)
}

func TestLockAcquireNetworkError(t *testing.T) {
	cmds := newFakeCommands()
	cmds.setNXErr = errors.New("connection refused")
	lock := newTestLock(cmds, FixedRetry(3, time.Millisecond))

	acquired, err := lock.Acquire(context.Background())
	require.Error(t, err)
	assert.False(t, acquired)
	// Network errors are not contention, so no retries happen.
	assert.Equal(t, 1, cmds.setNXCalls)
}

func TestLockReleaseOwner(t *testing.T) {
	cmds := newFakeCommands()
	lock := newTestLock(cmds, NoRetry())
	cmds.values[lock.key] = lock.token

	err := lock.Release(context.Background())
	require.NoError(t, err)
	_, held := cmds.values[lock.key]
	assert.False(t, held)
}

func TestLockReleaseNotOwner(t *testing.T) {
	cmds := newFakeCommands()
	lock := newTestLock(cmds, NoRetry())
	cmds.values[lock.key] = "someone-else"

	err := lock.Release(context.Background())
	require.ErrorIs(t, err, ErrLockNotAcquired)
	assert.Equal(t, "someone-else", cmds.values[lock.key])
}

func TestLockReleaseNotHeld(t *testing.T) {
	cmds := newFakeCommands()
	lock := newTestLock(cmds, NoRetry())

	err := lock.Release(context.Background())
	require.ErrorIs(t, err, ErrLockNotAcquired)
}

func TestLockReleaseEvalError(t *testing.T) {
	cmds := newFakeCommands()
	cmds.evalErr = errors.New("redis unavailable")
	lock := newTestLock(cmds, NoRetry())

	err := lock.Release(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockNotAcquired)
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig("redis://localhost:6379")
	assert.True(t, cfg.IsConfigured())
	assert.Equal(t, 10, cfg.PoolSize)
	assert.Equal(t, 3, cfg.MaxRetries)

	empty := RedisConfig{}
	assert.False(t, empty.IsConfigured())
}
