// Package evm holds the execution primitives shared by every environment the deployer can run
// against: a go-ethereum client, a signing key and a confirmation function, bundled behind the
// Executor interface.
package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	chainsel "github.com/smartcontractkit/chain-selectors"
)

// ConfirmFunc blocks until tx is mined and returns its receipt. A reverted transaction is
// returned as an error carrying the decoded revert reason.
type ConfirmFunc func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)

// OnchainClient is the part of a go-ethereum client the deployer uses.
type OnchainClient interface {
	bind.ContractBackend
	bind.DeployBackend

	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
}

// Chain is a signing connection to one EVM chain.
type Chain struct {
	// Selector is 0 for chains unknown to chain-selectors, e.g. the simulated backend.
	Selector uint64
	Client   OnchainClient
	// Transactor signs every transaction sent by the deployer.
	Transactor *bind.TransactOpts
	Confirm    ConfirmFunc
}

// String returns "<name> (<selector>)".
func (c Chain) String() string {
	return fmt.Sprintf("%s (%d)", c.Name(), c.Selector)
}

// Name returns the chain-selectors name of the chain, or "unknown".
func (c Chain) Name() string {
	if details, ok := chainsel.ChainBySelector(c.Selector); ok && details.Name != "" {
		return details.Name
	}

	return "unknown"
}
