package provider

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/stableswap-ng/pool-deployer/chain/evm"
	"github.com/stableswap-ng/pool-deployer/pkg/logger"
)

var _ evm.Executor = (*chainExecutor)(nil)

// chainExecutor executes against an evm.Chain: transactions are signed with the chain's deployer
// key and confirmed with its confirm function.
type chainExecutor struct {
	mode    evm.Mode
	chainID uint64
	chain   evm.Chain
	lggr    logger.Logger
	closeFn func(context.Context) error
}

func (e *chainExecutor) Mode() evm.Mode { return e.mode }
func (e *chainExecutor) ChainID() uint64 { return e.chainID }
func (e *chainExecutor) Sender() common.Address { return e.chain.Transactor.From }
func (e *chainExecutor) Client() evm.OnchainClient { return e.chain.Client }
func (e *chainExecutor) Chain() evm.Chain { return e.chain }

func (e *chainExecutor) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return e.chain.Client.CallContract(ctx, ethereum.CallMsg{
		From: e.Sender(),
		To:   &to,
		Data: data,
	}, nil)
}

// Send signs and broadcasts a single transaction. Nothing is resubmitted on failure.
func (e *chainExecutor) Send(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	opts := *e.chain.Transactor
	opts.Context = ctx

	contract := bind.NewBoundContract(to, abi.ABI{}, e.chain.Client, e.chain.Client, e.chain.Client)
	tx, err := contract.RawTransact(&opts, data)
	if err != nil {
		return nil, fmt.Errorf("failed to submit transaction to %s: %w", to.Hex(), err)
	}
	e.lggr.Infow("Transaction submitted", "tx", tx.Hash().Hex(), "to", to.Hex(), "chain", e.chain.String())

	receipt, err := e.chain.Confirm(ctx, tx)
	if err != nil {
		return nil, err
	}

	return receipt, nil
}

func (e *chainExecutor) Close(ctx context.Context) error {
	if e.closeFn == nil {
		return nil
	}

	return e.closeFn(ctx)
}
