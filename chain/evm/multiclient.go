package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"
	chainsel "github.com/smartcontractkit/chain-selectors"

	"github.com/stableswap-ng/pool-deployer/pkg/logger"
)

// Defaults of RetryConfig. Reads make one attempt per endpoint, then fail over to the next one.
const (
	RPCDefaultRetryAttempts = 1
	RPCDefaultRetryDelay    = time.Second
	RPCDefaultRetryTimeout  = 10 * time.Second

	RPCDefaultDialRetryAttempts = 1
	RPCDefaultDialRetryDelay    = time.Second
	RPCDefaultDialTimeout       = 10 * time.Second

	RPCDefaultHealthCheckTimeout = 2 * time.Second
)

// RetryConfig controls how often MultiClient retries an endpoint before moving on. Attempts must
// be at least 1.
type RetryConfig struct {
	Attempts     uint
	Delay        time.Duration
	Timeout      time.Duration
	DialAttempts uint
	DialDelay    time.Duration
	DialTimeout  time.Duration
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:     RPCDefaultRetryAttempts,
		Delay:        RPCDefaultRetryDelay,
		Timeout:      RPCDefaultRetryTimeout,
		DialAttempts: RPCDefaultDialRetryAttempts,
		DialDelay:    RPCDefaultDialRetryDelay,
		DialTimeout:  RPCDefaultDialTimeout,
	}
}

// WithRetryConfig overrides the default retry configuration.
func WithRetryConfig(cfg RetryConfig) func(*MultiClient) {
	return func(mc *MultiClient) {
		mc.RetryConfig = cfg
	}
}

var _ OnchainClient = &MultiClient{}

// MultiClient is an ethclient with fallback endpoints. Reads fail over to the backups in order
// and the first endpoint that answers is promoted to primary. Transactions are only ever
// submitted to the primary endpoint, once.
type MultiClient struct {
	*ethclient.Client
	Backups     []*ethclient.Client
	RetryConfig RetryConfig

	lggr    logger.Logger
	network string
	mu      sync.RWMutex
}

// NewMultiClient dials every RPC of cfg and keeps those that pass a health check. It fails when
// none does.
func NewMultiClient(lggr logger.Logger, cfg RPCConfig, opts ...func(*MultiClient)) (*MultiClient, error) {
	if len(cfg.RPCs) == 0 {
		return nil, errors.New("no RPCs provided, need at least one")
	}

	mc := &MultiClient{
		RetryConfig: defaultRetryConfig(),
		lggr:        lggr,
		network:     chainLabel(cfg.ChainSelector),
	}
	for _, opt := range opts {
		opt(mc)
	}

	healthy := make([]*ethclient.Client, 0, len(cfg.RPCs))
	for i, r := range cfg.RPCs {
		client, err := mc.connect(r)
		if err != nil {
			lggr.Warnw("Skipping RPC", "chain", mc.network, "rpc", r.Name, "index", i, "error", err)

			continue
		}
		healthy = append(healthy, client)
	}
	if len(healthy) == 0 {
		return nil, errors.New("no valid RPC clients created")
	}

	mc.Client, mc.Backups = healthy[0], healthy[1:]

	return mc, nil
}

// chainLabel names a chain in logs, falling back to its selector when chain-selectors does not
// know it.
func chainLabel(selector uint64) string {
	if chain, ok := chainsel.ChainBySelector(selector); ok {
		return chain.Name
	}

	return fmt.Sprintf("selector %d", selector)
}

// connect dials r and checks that it answers eth_blockNumber.
func (mc *MultiClient) connect(r RPC) (*ethclient.Client, error) {
	client, err := mc.dialWithRetry(r)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), RPCDefaultHealthCheckTimeout)
	defer cancel()
	if _, err = client.BlockNumber(ctx); err != nil {
		client.Close()

		return nil, fmt.Errorf("health check failed: %w", err)
	}

	return client, nil
}

// SendTransaction submits tx to the primary endpoint only. A failed submission is reported to
// the caller and never replayed on a backup.
func (mc *MultiClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := mc.clients()[0].SendTransaction(ctx, tx); err != nil {
		mc.lggr.Warnw("Transaction submission failed",
			"chain", mc.network, "tx", tx.Hash().Hex(), "error", maybeDataErr(err),
		)

		return err
	}

	return nil
}

func (mc *MultiClient) ChainID(ctx context.Context) (*big.Int, error) {
	return failover(ctx, mc, "ChainID", func(ctx context.Context, c *ethclient.Client) (*big.Int, error) {
		return c.ChainID(ctx)
	})
}

func (mc *MultiClient) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	return failover(ctx, mc, "CallContract", func(ctx context.Context, c *ethclient.Client) ([]byte, error) {
		return c.CallContract(ctx, msg, block)
	})
}

func (mc *MultiClient) CodeAt(ctx context.Context, account common.Address, block *big.Int) ([]byte, error) {
	return failover(ctx, mc, "CodeAt", func(ctx context.Context, c *ethclient.Client) ([]byte, error) {
		return c.CodeAt(ctx, account, block)
	})
}

func (mc *MultiClient) NonceAt(ctx context.Context, account common.Address, block *big.Int) (uint64, error) {
	return failover(ctx, mc, "NonceAt", func(ctx context.Context, c *ethclient.Client) (uint64, error) {
		return c.NonceAt(ctx, account, block)
	})
}

func (mc *MultiClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return failover(ctx, mc, "HeaderByNumber", func(ctx context.Context, c *ethclient.Client) (*types.Header, error) {
		return c.HeaderByNumber(ctx, number)
	})
}

func (mc *MultiClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return failover(ctx, mc, "SuggestGasPrice", func(ctx context.Context, c *ethclient.Client) (*big.Int, error) {
		return c.SuggestGasPrice(ctx)
	})
}

func (mc *MultiClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return failover(ctx, mc, "SuggestGasTipCap", func(ctx context.Context, c *ethclient.Client) (*big.Int, error) {
		return c.SuggestGasTipCap(ctx)
	})
}

func (mc *MultiClient) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return failover(ctx, mc, "PendingCodeAt", func(ctx context.Context, c *ethclient.Client) ([]byte, error) {
		return c.PendingCodeAt(ctx, account)
	})
}

func (mc *MultiClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return failover(ctx, mc, "PendingNonceAt", func(ctx context.Context, c *ethclient.Client) (uint64, error) {
		return c.PendingNonceAt(ctx, account)
	})
}

func (mc *MultiClient) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return failover(ctx, mc, "EstimateGas", func(ctx context.Context, c *ethclient.Client) (uint64, error) {
		return c.EstimateGas(ctx, call)
	})
}

func (mc *MultiClient) BalanceAt(ctx context.Context, account common.Address, block *big.Int) (*big.Int, error) {
	return failover(ctx, mc, "BalanceAt", func(ctx context.Context, c *ethclient.Client) (*big.Int, error) {
		return c.BalanceAt(ctx, account, block)
	})
}

func (mc *MultiClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return failover(ctx, mc, "TransactionReceipt", func(ctx context.Context, c *ethclient.Client) (*types.Receipt, error) {
		return c.TransactionReceipt(ctx, txHash)
	})
}

// WaitMined polls every endpoint for the receipt of tx and returns the first one found. Only the
// deadline of ctx bounds the wait, RetryConfig does not apply.
func (mc *MultiClient) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	clients := mc.clients()
	receipts := make(chan *types.Receipt, len(clients))
	for i, c := range clients {
		go func() {
			receipt, err := bind.WaitMined(ctx, c, tx)
			if err != nil {
				if ctx.Err() == nil {
					mc.lggr.Warnw("Waiting for receipt failed", "chain", mc.network, "client", i, "tx", tx.Hash().Hex(), "error", err)
				}

				return
			}
			receipts <- receipt
		}()
	}

	mc.lggr.Debugw("Waiting for receipt", "chain", mc.network, "tx", tx.Hash().Hex(), "clients", len(clients))
	select {
	case receipt := <-receipts:
		return receipt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// failover runs read against each endpoint in turn until one succeeds.
func failover[T any](
	ctx context.Context,
	mc *MultiClient,
	op string,
	read func(context.Context, *ethclient.Client) (T, error),
) (T, error) {
	var out T
	err := mc.retryWithBackups(ctx, op, func(ctx context.Context, c *ethclient.Client) error {
		v, err := read(ctx, c)
		if err != nil {
			return err
		}
		out = v

		return nil
	})

	return out, err
}

func (mc *MultiClient) retryWithBackups(ctx context.Context, op string, call func(context.Context, *ethclient.Client) error) error {
	traceID := uuid.NewString()

	var lastErr error
	for i, client := range mc.clients() {
		attempts := 0
		err := retry.Do(
			func() error {
				attempts++
				callCtx, cancel := ensureTimeout(ctx, mc.RetryConfig.Timeout)
				defer cancel()

				return call(callCtx, client)
			},
			retry.Attempts(mc.RetryConfig.Attempts),
			retry.Delay(mc.RetryConfig.Delay),
			retry.LastErrorOnly(true),
			retry.Context(ctx),
			retry.OnRetry(func(n uint, err error) {
				mc.lggr.Warnw("RPC read failed, retrying",
					"trace", traceID, "chain", mc.network, "op", op, "client", i, "attempt", n+1, "error", maybeDataErr(err),
				)
			}),
		)
		if err == nil {
			if attempts > 1 {
				mc.lggr.Infow("RPC read succeeded after retries", "trace", traceID, "chain", mc.network, "op", op, "client", i, "attempts", attempts)
			}
			mc.reorderRPCs(i)

			return nil
		}

		lastErr = err
		mc.lggr.Warnw("RPC read failed, trying the next endpoint",
			"trace", traceID, "chain", mc.network, "op", op, "client", i, "error", maybeDataErr(err),
		)
	}

	return errors.Join(lastErr, fmt.Errorf("all backup clients failed for chain %q", mc.network))
}

// dialWithRetry dials the endpoint r prefers. Endpoints are not logged, provider URLs embed API
// keys.
func (mc *MultiClient) dialWithRetry(r RPC) (*ethclient.Client, error) {
	endpoint, err := r.ToEndpoint()
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc %q of chain %s: %w", r.Name, mc.network, err)
	}

	var client *ethclient.Client
	err = retry.Do(
		func() error {
			ctx, cancel := context.WithTimeout(context.Background(), mc.RetryConfig.DialTimeout)
			defer cancel()

			c, derr := ethclient.DialContext(ctx, endpoint)
			if derr != nil {
				return derr
			}
			client = c

			return nil
		},
		retry.Attempts(mc.RetryConfig.DialAttempts),
		retry.Delay(mc.RetryConfig.DialDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			mc.lggr.Warnw("Dial failed, retrying", "chain", mc.network, "rpc", r.Name, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc %q of chain %s: %w", r.Name, mc.network, err)
	}

	return client, nil
}

// ensureTimeout keeps the deadline of parent when it has one and applies timeout otherwise.
func ensureTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := parent.Deadline(); ok {
		return context.WithCancel(parent)
	}

	return context.WithTimeout(parent, timeout)
}

// reorderRPCs promotes client idx of clients() to primary. The backups that failed before it go
// to the end, followed by the previous primary.
func (mc *MultiClient) reorderRPCs(idx int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if idx < 1 || idx > len(mc.Backups) {
		return
	}

	promoted := mc.Backups[idx-1]
	mc.Backups = slices.Concat(mc.Backups[idx:], mc.Backups[:idx-1], []*ethclient.Client{mc.Client})
	mc.Client = promoted
}

func (mc *MultiClient) clients() []*ethclient.Client {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return slices.Concat([]*ethclient.Client{mc.Client}, mc.Backups)
}

func maybeDataErr(err error) error {
	var d rpc.DataError
	if errors.As(err, &d) {
		return fmt.Errorf("%s: %v", d.Error(), d.ErrorData())
	}

	return err
}
