package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"

	"github.com/stableswap-ng/pool-deployer/chain/evm"
)

// ErrArchiveRequired is returned when a revert cannot be replayed because the node pruned the
// state of the block it was mined in.
var ErrArchiveRequired = errors.New("node has no state for the block, an archive node is required")

// ContractCaller executes read only calls. Revert reasons are recovered through it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// replayForReason executes call at blockNumber and returns why it reverts. Error(string) payloads
// are decoded, custom errors come back hex encoded and errors without data as their message.
func replayForReason(
	ctx context.Context, caller ContractCaller, call ethereum.CallMsg, blockNumber *big.Int,
) (string, error) {
	_, err := caller.CallContract(ctx, call, blockNumber)
	if err == nil {
		return "", errors.New("replay did not revert, no reason available")
	}
	if strings.Contains(err.Error(), "missing trie node") {
		return "", fmt.Errorf("%w: %w", ErrArchiveRequired, err)
	}
	if reason, ok := evm.RevertReason(err); ok {
		return reason, nil
	}

	return err.Error(), nil
}
