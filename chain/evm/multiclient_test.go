package evm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stableswap-ng/pool-deployer/pkg/logger"
)

// sepoliaSelector is the chain selector of "ethereum-testnet-sepolia".
const sepoliaSelector uint64 = 16015286601757825753

// newRPCServer returns a server which answers every request with body. The server is closed
// when the test ends.
func newRPCServer(t *testing.T, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv
}

const (
	okBody  = `{"jsonrpc":"2.0","id":1,"result":"0x1"}`
	errBody = `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"internal error"}}`
)

func TestMultiClient(t *testing.T) {
	t.Parallel()

	srv := newRPCServer(t, okBody, nil)
	lggr := logger.Test(t)

	mc, err := NewMultiClient(lggr, RPCConfig{ChainSelector: sepoliaSelector, RPCs: []RPC{
		{Name: "test-rpc", HTTPURL: srv.URL, PreferredURLScheme: URLSchemePreferenceHTTP},
	}})
	require.NoError(t, err)
	require.NotNil(t, mc)

	assert.Equal(t, "ethereum-testnet-sepolia", mc.network)
	assert.Equal(t, uint(RPCDefaultRetryAttempts), mc.RetryConfig.Attempts)
	assert.Equal(t, RPCDefaultRetryDelay, mc.RetryConfig.Delay)
	assert.Equal(t, uint(RPCDefaultDialRetryAttempts), mc.RetryConfig.DialAttempts)
	assert.Equal(t, RPCDefaultDialRetryDelay, mc.RetryConfig.DialDelay)

	_, err = NewMultiClient(lggr, RPCConfig{ChainSelector: sepoliaSelector, RPCs: []RPC{}})
	require.ErrorContains(t, err, "no RPCs provided")

	mc, err = NewMultiClient(lggr, RPCConfig{ChainSelector: sepoliaSelector, RPCs: []RPC{
		{Name: "primary", HTTPURL: srv.URL, PreferredURLScheme: URLSchemePreferenceHTTP},
		{Name: "backup", HTTPURL: srv.URL, PreferredURLScheme: URLSchemePreferenceHTTP},
	}})
	require.NoError(t, err)
	require.Len(t, mc.Backups, 1)
}

func TestMultiClient_unknownSelectorKeepsWorking(t *testing.T) {
	t.Parallel()

	srv := newRPCServer(t, okBody, nil)

	mc, err := NewMultiClient(logger.Test(t), RPCConfig{ChainSelector: 7, RPCs: []RPC{
		{Name: "test-rpc", HTTPURL: srv.URL},
	}})
	require.NoError(t, err)
	assert.Equal(t, "selector 7", mc.network)
}

func TestMultiClient_healthCheckSkipsBadRPC(t *testing.T) {
	t.Parallel()

	badSrv := newRPCServer(t, errBody, nil)
	goodSrv := newRPCServer(t, okBody, nil)

	mc, err := NewMultiClient(logger.Test(t), RPCConfig{ChainSelector: sepoliaSelector, RPCs: []RPC{
		{Name: "bad-rpc", HTTPURL: badSrv.URL, PreferredURLScheme: URLSchemePreferenceHTTP},
		{Name: "good-rpc", HTTPURL: goodSrv.URL, PreferredURLScheme: URLSchemePreferenceHTTP},
	}})
	require.NoError(t, err)
	require.NotNil(t, mc.Client)
	require.Empty(t, mc.Backups)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	blockNum, err := mc.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), blockNum)

	_, err = NewMultiClient(logger.Test(t), RPCConfig{ChainSelector: sepoliaSelector, RPCs: []RPC{
		{Name: "bad-rpc", HTTPURL: badSrv.URL},
	}})
	require.ErrorContains(t, err, "no valid RPC clients created")
}

func TestMultiClient_SendTransactionIsNotReplayed(t *testing.T) {
	t.Parallel()

	var primaryHits, backupHits atomic.Int32
	primary := newRPCServer(t, errBody, &primaryHits)
	backup := newRPCServer(t, okBody, &backupHits)

	primaryClient, err := ethclient.Dial(primary.URL)
	require.NoError(t, err)
	backupClient, err := ethclient.Dial(backup.URL)
	require.NoError(t, err)

	mc := &MultiClient{
		Client:      primaryClient,
		Backups:     []*ethclient.Client{backupClient},
		RetryConfig: defaultRetryConfig(),
		lggr:        logger.Test(t),
		network:     "ethereum-testnet-sepolia",
	}

	to := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tx := types.NewTx(&types.LegacyTx{To: &to, Gas: 21000})

	err = mc.SendTransaction(t.Context(), tx)
	require.ErrorContains(t, err, "internal error")
	assert.Equal(t, int32(1), primaryHits.Load())
	assert.Equal(t, int32(0), backupHits.Load())
}

func TestMultiClient_dialWithRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		giveRPC RPC
		wantErr string
	}{
		{
			name:    "unsupported scheme",
			giveRPC: RPC{Name: "llamarpc", WSURL: "wxz://eth.llamarpc.com", PreferredURLScheme: URLSchemePreferenceWS},
			wantErr: `no known transport for URL scheme "wxz"`,
		},
		{
			name:    "preferred scheme without url",
			giveRPC: RPC{Name: "llamarpc", HTTPURL: "https://eth.llamarpc.com", PreferredURLScheme: URLSchemePreferenceWS},
			wantErr: "prefers ws but has no ws url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mc := MultiClient{
				network:     "ethereum-mainnet",
				RetryConfig: RetryConfig{DialAttempts: 2, DialDelay: 5 * time.Millisecond, DialTimeout: time.Second},
				lggr:        logger.Test(t),
			}

			_, err := mc.dialWithRetry(tt.giveRPC)
			require.ErrorContains(t, err, tt.wantErr)
			require.ErrorContains(t, err, "of chain ethereum-mainnet")
			assert.NotContains(t, err.Error(), "eth.llamarpc.com")
		})
	}
}

func TestMultiClient_retryWithBackups(t *testing.T) {
	t.Parallel()

	srv := newRPCServer(t, okBody, nil)
	errRead := errors.New("read failed")

	tests := []struct {
		name      string
		giveRetry RetryConfig
		giveCall  func(ctx context.Context, client *ethclient.Client) error
		wantCalls int32
		wantErr   string
	}{
		{
			name:      "every attempt fails",
			giveRetry: RetryConfig{Attempts: 3, Delay: time.Millisecond, Timeout: time.Second},
			giveCall:  func(context.Context, *ethclient.Client) error { return errRead },
			wantCalls: 3,
			wantErr:   "read failed",
		},
		{
			name:      "attempt outlives its timeout",
			giveRetry: RetryConfig{Attempts: 1, Timeout: 20 * time.Millisecond},
			giveCall: func(ctx context.Context, _ *ethclient.Client) error {
				<-ctx.Done()
				return ctx.Err()
			},
			wantCalls: 1,
			wantErr:   "context deadline exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, err := ethclient.Dial(srv.URL)
			require.NoError(t, err)

			mc := MultiClient{
				Client:      client,
				network:     "ethereum-mainnet",
				RetryConfig: tt.giveRetry,
				lggr:        logger.Test(t),
			}

			var calls atomic.Int32
			err = mc.retryWithBackups(t.Context(), "eth_call", func(ctx context.Context, c *ethclient.Client) error {
				calls.Add(1)
				return tt.giveCall(ctx, c)
			})
			require.ErrorContains(t, err, tt.wantErr)
			require.ErrorContains(t, err, "all backup clients failed")
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestEnsureTimeout(t *testing.T) {
	t.Parallel()

	t.Run("parent deadline wins", func(t *testing.T) {
		t.Parallel()

		parent, cancel := context.WithTimeout(t.Context(), time.Hour)
		defer cancel()
		want, _ := parent.Deadline()

		ctx, done := ensureTimeout(parent, time.Minute)
		defer done()

		got, ok := ctx.Deadline()
		require.True(t, ok)
		assert.Equal(t, want, got)
	})

	t.Run("timeout applied without a parent deadline", func(t *testing.T) {
		t.Parallel()

		ctx, done := ensureTimeout(context.Background(), time.Minute)
		defer done()

		got, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Minute), got, time.Second)
	})
}

func TestMultiClient_reorderRPCs(t *testing.T) {
	t.Parallel()

	primary := ethclient.NewClient(nil)
	b1, b2, b3 := ethclient.NewClient(nil), ethclient.NewClient(nil), ethclient.NewClient(nil)

	tests := []struct {
		name        string
		giveBackups []*ethclient.Client
		givePromote int
		wantPrimary *ethclient.Client
		wantBackups []*ethclient.Client
	}{
		{
			name:        "promote the first backup",
			giveBackups: []*ethclient.Client{b1, b2, b3},
			givePromote: 1,
			wantPrimary: b1,
			wantBackups: []*ethclient.Client{b2, b3, primary},
		},
		{
			name:        "promote the last backup",
			giveBackups: []*ethclient.Client{b1, b2, b3},
			givePromote: 3,
			wantPrimary: b3,
			wantBackups: []*ethclient.Client{b1, b2, primary},
		},
		{
			name:        "index 0 is a no-op",
			giveBackups: []*ethclient.Client{b1, b2},
			givePromote: 0,
			wantPrimary: primary,
			wantBackups: []*ethclient.Client{b1, b2},
		},
		{
			name:        "out of range is a no-op",
			giveBackups: []*ethclient.Client{b1},
			givePromote: 2,
			wantPrimary: primary,
			wantBackups: []*ethclient.Client{b1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mc := &MultiClient{Client: primary, Backups: slices.Clone(tt.giveBackups), lggr: logger.Nop()}
			mc.reorderRPCs(tt.givePromote)

			assert.Same(t, tt.wantPrimary, mc.Client)
			require.Len(t, mc.Backups, len(tt.wantBackups))
			for i := range tt.wantBackups {
				assert.Same(t, tt.wantBackups[i], mc.Backups[i], "backup %d", i)
			}
		})
	}
}

func TestMultiClient_readFailsOverAndPromotes(t *testing.T) {
	t.Parallel()

	var primaryHits, backupHits atomic.Int32
	primary := newRPCServer(t, errBody, &primaryHits)
	backup := newRPCServer(t, okBody, &backupHits)

	primaryClient, err := ethclient.Dial(primary.URL)
	require.NoError(t, err)
	backupClient, err := ethclient.Dial(backup.URL)
	require.NoError(t, err)

	mc := &MultiClient{
		Client:      primaryClient,
		Backups:     []*ethclient.Client{backupClient},
		RetryConfig: RetryConfig{Attempts: 1, Timeout: time.Second},
		lggr:        logger.Test(t),
		network:     "ethereum-testnet-sepolia",
	}

	id, err := mc.ChainID(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id.Int64())
	assert.Equal(t, int32(1), primaryHits.Load())
	assert.Equal(t, int32(1), backupHits.Load())

	assert.Same(t, backupClient, mc.Client)
	require.Len(t, mc.Backups, 1)
	assert.Same(t, primaryClient, mc.Backups[0])
}
