package payout

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// SimulatedDispatcher issues synthetic receipts without touching a chain.
// An optional failure rate in [0, 1] makes a fraction of dispatches fail,
// for exercising partial-payout handling.
type SimulatedDispatcher struct {
	failureRate float64
	mu          sync.Mutex
	rng         *rand.Rand
}

func NewSimulatedDispatcher(failureRate float64) *SimulatedDispatcher {
	return &SimulatedDispatcher{
		failureRate: failureRate,
		rng:         rand.New(rand.NewSource(rand.Int63())),
	}
}

func (d *SimulatedDispatcher) Dispatch(_ context.Context, payout Payout) (Receipt, error) {
	if !common.IsHexAddress(payout.WalletAddress) {
		return Receipt{}, fmt.Errorf("%w: invalid wallet address %q", ErrPayoutFailed, payout.WalletAddress)
	}
	if payout.Amount <= 0 {
		return Receipt{}, fmt.Errorf("%w: non-positive amount %d", ErrPayoutFailed, payout.Amount)
	}

	if d.failureRate > 0 {
		d.mu.Lock()
		failed := d.rng.Float64() < d.failureRate
		d.mu.Unlock()
		if failed {
			return Receipt{}, fmt.Errorf("%w: simulated dispatch failure", ErrPayoutFailed)
		}
	}

	return Receipt{
		WalletAddress: payout.WalletAddress,
		Amount:        payout.Amount,
		Reference:     "sim-" + uuid.NewString(),
	}, nil
}
