package provider

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"

	"github.com/stableswap-ng/pool-deployer/chain/evm"
	"github.com/stableswap-ng/pool-deployer/pkg/logger"
)

var (
	simChainID = params.AllDevChainProtocolChanges.ChainID
	// simPrefundWei is the genesis balance of the simulated deployer, 1,000,000 ether.
	simPrefundWei = new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(params.Ether))
)

// simClient is a client of an in memory backend that mines on demand.
type simClient struct {
	simulated.Client

	mu      sync.Mutex
	backend *simulated.Backend
}

func newSimClient(tb testing.TB, alloc types.GenesisAlloc) *simClient {
	tb.Helper()

	backend := simulated.NewBackend(alloc, simulated.WithBlockGasLimit(50_000_000))
	backend.Commit()
	tb.Cleanup(func() { _ = backend.Close() })

	return &simClient{Client: backend.Client(), backend: backend}
}

// mine seals the pending transactions into a block.
func (c *simClient) mine() common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.backend.Commit()
}

// SimExecutor runs against go-ethereum's simulated backend and mines every transaction as soon
// as it is sent. It is meant for tests of code driving an evm.Executor.
type SimExecutor struct {
	*chainExecutor

	client *simClient
}

var _ evm.Executor = (*SimExecutor)(nil)

// NewSimExecutor starts a simulated chain with one prefunded deployer account.
func NewSimExecutor(tb testing.TB) *SimExecutor {
	tb.Helper()

	raw, err := crypto.GenerateKey()
	require.NoError(tb, err, "failed to generate deployer key")
	key := &DeployerKey{key: raw}

	transactor, err := key.Transactor(simChainID)
	require.NoError(tb, err)

	client := newSimClient(tb, types.GenesisAlloc{key.Address(): {Balance: simPrefundWei}})
	poll := newConfirmFunc(client, key.Address(), 10*time.Millisecond, time.Minute)

	return &SimExecutor{
		chainExecutor: &chainExecutor{
			mode:    evm.ModeSimulated,
			chainID: simChainID.Uint64(),
			chain: evm.Chain{
				Client:     client,
				Transactor: transactor,
				Confirm: func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
					client.mine()
					return poll(ctx, tx)
				},
			},
			lggr: logger.Test(tb),
		},
		client: client,
	}
}

// Mine seals a block without sending anything.
func (e *SimExecutor) Mine() {
	e.client.mine()
}

// DeployCode sends initCode as a contract creation and returns the created address.
func (e *SimExecutor) DeployCode(ctx context.Context, initCode []byte) (common.Address, error) {
	from := e.chain.Transactor.From

	nonce, err := e.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to read deployer nonce: %w", err)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to suggest gas price: %w", err)
	}

	tx, err := e.chain.Transactor.Signer(from, types.NewContractCreation(nonce, big.NewInt(0), 1_000_000, gasPrice, initCode))
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to sign contract creation: %w", err)
	}
	if err = e.client.SendTransaction(ctx, tx); err != nil {
		return common.Address{}, fmt.Errorf("failed to send contract creation: %w", err)
	}
	if _, err = e.chain.Confirm(ctx, tx); err != nil {
		return common.Address{}, err
	}

	return crypto.CreateAddress(from, nonce), nil
}
