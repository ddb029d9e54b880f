package evm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jsonErr mirrors the JSON-RPC error type returned by go-ethereum's rpc package.
type jsonErr struct {
	msg  string
	data any
}

func (e *jsonErr) Error() string  { return e.msg }
func (e *jsonErr) ErrorCode() int { return 3 }
func (e *jsonErr) ErrorData() any { return e.data }

func errorStringPayload(t *testing.T, reason string) []byte {
	t.Helper()

	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	require.NoError(t, err)

	return append(crypto.Keccak256([]byte("Error(string)"))[:4], packed...)
}

func TestRevertReason(t *testing.T) {
	t.Parallel()

	payload := errorStringPayload(t, "Invalid implementation index")
	custom := []byte{0xde, 0xad, 0xbe, 0xef}

	tests := []struct {
		name       string
		giveErr    error
		wantReason string
		wantOK     bool
	}{
		{
			name:       "hex encoded Error(string)",
			giveErr:    &jsonErr{msg: "execution reverted", data: hexutil.Encode(payload)},
			wantReason: "Invalid implementation index",
			wantOK:     true,
		},
		{
			name:       "wrapped",
			giveErr:    fmt.Errorf("simulate: %w", &jsonErr{msg: "execution reverted", data: hexutil.Encode(payload)}),
			wantReason: "Invalid implementation index",
			wantOK:     true,
		},
		{
			name:       "raw bytes",
			giveErr:    &jsonErr{msg: "execution reverted", data: payload},
			wantReason: "Invalid implementation index",
			wantOK:     true,
		},
		{
			name:       "custom error selector",
			giveErr:    &jsonErr{msg: "execution reverted", data: hexutil.Encode(custom)},
			wantReason: "0xdeadbeef",
			wantOK:     true,
		},
		{
			name:    "empty revert data",
			giveErr: &jsonErr{msg: "execution reverted", data: "0x"},
		},
		{
			name:    "nil data",
			giveErr: &jsonErr{msg: "execution reverted"},
		},
		{
			name:    "plain error",
			giveErr: errors.New("connection refused"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := RevertReason(tt.giveErr)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantReason, got)
		})
	}
}
