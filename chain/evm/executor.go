package evm

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Executor is a configured execution context bound to one network. Every context owns its
// resources, e.g. its own fork, and must be closed by the caller.
type Executor interface {
	// Mode reports the environment the executor runs against.
	Mode() Mode
	// ChainID returns the EIP-155 chain id of the connected chain.
	ChainID() uint64
	// Sender is the account transactions are sent from.
	Sender() common.Address
	// Client exposes the read side of the connection.
	Client() OnchainClient
	// Call executes a read-only call from the sender against the latest block.
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	// Send submits exactly one transaction and waits for it to be mined. A reverted transaction
	// is returned as an error carrying the decoded revert reason when one is available.
	Send(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error)
	// Close releases the resources held by the executor.
	Close(ctx context.Context) error
}

// RevertReason extracts a human readable revert reason from an error returned by a node. It
// understands JSON-RPC errors carrying revert data and decodes Error(string) payloads. The
// second return value is false when err carries no revert data.
func RevertReason(err error) (string, bool) {
	data, ok := revertData(err)
	if !ok {
		return "", false
	}
	if reason, uerr := abi.UnpackRevert(data); uerr == nil {
		return reason, true
	}
	if len(data) == 0 {
		return "", false
	}

	return hexutil.Encode(data), true
}

// revertData returns the raw revert payload attached to err.
func revertData(err error) ([]byte, bool) {
	// rpc.DataError without the ErrorCode method, which some transports omit.
	type dataError interface {
		Error() string
		ErrorData() any
	}

	var derr dataError
	if !errors.As(err, &derr) {
		return nil, false
	}

	switch v := derr.ErrorData().(type) {
	case string:
		b, herr := hexutil.Decode(v)
		if herr != nil {
			return nil, false
		}

		return b, true
	case []byte:
		return v, true
	case nil:
		return nil, false
	default:
		b, herr := hexutil.Decode(fmt.Sprintf("%v", v))
		if herr != nil {
			return nil, false
		}

		return b, true
	}
}
