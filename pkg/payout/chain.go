package payout

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"

	"github.com/crowdrank/crowdrank-backend/pkg/logging"
)

const defaultTransferGasLimit = 21000

// ChainConfig configures the on-chain dispatcher.
type ChainConfig struct {
	RPCURL     string
	PrivateKey string // hex encoded treasury key
	GasLimit   uint64 // 0 uses the plain-transfer default
}

// ChainDispatcher sends native-token transfers from the treasury wallet.
// Dispatches are serialized so concurrent settlements cannot reuse a nonce.
type ChainDispatcher struct {
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	from       common.Address
	chainID    *big.Int
	gasLimit   uint64
	logger     logging.Logger
	mu         sync.Mutex
}

func NewChainDispatcher(ctx context.Context, config ChainConfig, logger logging.Logger) (*ChainDispatcher, error) {
	client, err := ethclient.Dial(config.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain rpc: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(config.PrivateKey)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to parse treasury private key: %w", err)
	}

	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		client.Close()
		return nil, fmt.Errorf("failed to cast public key to ECDSA")
	}

	chainID, err := client.NetworkID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	gasLimit := config.GasLimit
	if gasLimit == 0 {
		gasLimit = defaultTransferGasLimit
	}

	return &ChainDispatcher{
		client:     client,
		privateKey: privateKey,
		from:       crypto.PubkeyToAddress(*publicKeyECDSA),
		chainID:    chainID,
		gasLimit:   gasLimit,
		logger:     logger,
	}, nil
}

func (d *ChainDispatcher) Dispatch(ctx context.Context, payout Payout) (Receipt, error) {
	if !common.IsHexAddress(payout.WalletAddress) {
		return Receipt{}, fmt.Errorf("%w: invalid wallet address %q", ErrPayoutFailed, payout.WalletAddress)
	}
	if payout.Amount <= 0 {
		return Receipt{}, fmt.Errorf("%w: non-positive amount %d", ErrPayoutFailed, payout.Amount)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	nonce, err := d.client.PendingNonceAt(ctx, d.from)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: failed to get nonce: %w", ErrPayoutFailed, err)
	}

	gasPrice, err := d.client.SuggestGasPrice(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: failed to get gas price: %w", ErrPayoutFailed, err)
	}

	tx := types.NewTransaction(nonce, common.HexToAddress(payout.WalletAddress), toWei(payout.Amount), d.gasLimit, gasPrice, nil)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(d.chainID), d.privateKey)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: failed to sign transaction: %w", ErrPayoutFailed, err)
	}

	if err := d.client.SendTransaction(ctx, signedTx); err != nil {
		return Receipt{}, fmt.Errorf("%w: failed to send transaction: %w", ErrPayoutFailed, err)
	}

	d.logger.Infof("Dispatched %d base units to %s, tx %s", payout.Amount, payout.WalletAddress, signedTx.Hash().Hex())
	return Receipt{
		WalletAddress: payout.WalletAddress,
		Amount:        payout.Amount,
		Reference:     signedTx.Hash().Hex(),
	}, nil
}

func (d *ChainDispatcher) Close() {
	d.client.Close()
}

// toWei converts base units (gwei scale) to wei.
func toWei(baseUnits int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(baseUnits), big.NewInt(params.GWei))
}
