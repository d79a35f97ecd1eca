// Package payout sends settlement rewards and withdrawals to worker wallets.
package payout

import (
	"context"
	"errors"
)

// ErrPayoutFailed wraps every dispatch failure, whatever the cause.
var ErrPayoutFailed = errors.New("payout failed")

// Payout is a single transfer instruction in base units.
type Payout struct {
	WalletAddress string
	Amount        int64
}

// Receipt identifies a dispatched transfer. Reference is the transaction
// hash for chain dispatches or a synthetic id for simulated ones.
type Receipt struct {
	WalletAddress string
	Amount        int64
	Reference     string
}

// Dispatcher sends value to worker wallets. Implementations must return
// errors that match ErrPayoutFailed via errors.Is.
type Dispatcher interface {
	Dispatch(ctx context.Context, payout Payout) (Receipt, error)
}
