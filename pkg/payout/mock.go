package payout

import (
	"context"
	"fmt"
	"sync"
)

// MockDispatcher records every dispatch and fails the wallets it was told
// to fail. Intended for tests.
type MockDispatcher struct {
	mu         sync.Mutex
	dispatched []Payout
	failFor    map[string]error
	failAll    error
}

func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{failFor: make(map[string]error)}
}

// FailWallet makes every dispatch to the given wallet fail with the cause.
func (m *MockDispatcher) FailWallet(walletAddress string, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFor[walletAddress] = cause
}

// FailAll makes every dispatch fail with the cause until reset with nil.
func (m *MockDispatcher) FailAll(cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = cause
}

func (m *MockDispatcher) Dispatch(_ context.Context, payout Payout) (Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dispatched = append(m.dispatched, payout)
	if m.failAll != nil {
		return Receipt{}, fmt.Errorf("%w: %w", ErrPayoutFailed, m.failAll)
	}
	if cause, ok := m.failFor[payout.WalletAddress]; ok {
		return Receipt{}, fmt.Errorf("%w: %w", ErrPayoutFailed, cause)
	}

	return Receipt{
		WalletAddress: payout.WalletAddress,
		Amount:        payout.Amount,
		Reference:     fmt.Sprintf("mock-%d", len(m.dispatched)),
	}, nil
}

// Dispatched returns a copy of every payout seen, in order.
func (m *MockDispatcher) Dispatched() []Payout {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Payout, len(m.dispatched))
	copy(out, m.dispatched)
	return out
}
