package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	chainsel "github.com/smartcontractkit/chain-selectors"
	"github.com/smartcontractkit/chainlink-testing-framework/framework/components/blockchain"

	"github.com/stableswap-ng/pool-deployer/chain/evm"
	"github.com/stableswap-ng/pool-deployer/pkg/logger"
)

var (
	// ErrMissingCredentials is returned when production mode lacks a usable key, or when the
	// configured deployer address does not belong to the key.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrEndpointUnreachable is returned when no RPC endpoint or fork can be reached, or when
	// the endpoint serves a different chain than requested.
	ErrEndpointUnreachable = errors.New("endpoint unreachable")
)

const (
	defaultConfirmTimeout = 3 * time.Minute
	defaultForkTick       = 200 * time.Millisecond
)

// Credentials identify the deployer account.
type Credentials struct {
	// Address is the deployer address. In fork mode it is the impersonated sender and defaults
	// to the first anvil test account. In production mode it must match PrivateKey when set.
	Address string
	// PrivateKey is the hex encoded deployer key. Required in production mode, never read in
	// fork mode.
	PrivateKey string
}

// ForkConfig configures fork mode.
type ForkConfig struct {
	// AttachURL points at an already running fork. When empty a disposable anvil container is
	// started from the first RPC of the environment.
	AttachURL   string
	Image       string
	BlockNumber uint64
	Port        int
	// Debug dumps the JSON-RPC traffic with the anvil node.
	Debug bool
}

// EnvironmentConfig selects and configures an execution environment for one network.
type EnvironmentConfig struct {
	Mode    evm.Mode
	ChainID uint64
	// RPCs are the endpoints of the live network. Production dials all of them, fork mode forks
	// from the first one.
	RPCs        []evm.RPC
	Credentials Credentials
	Fork        ForkConfig
	// Optional: ConfirmTimeout bounds the wait for a receipt. Defaults to 3 minutes.
	ConfirmTimeout time.Duration
	// Optional: ClientOpts configure the production MultiClient.
	ClientOpts []func(*evm.MultiClient)
	// Optional: Logger defaults to a production logger.
	Logger logger.Logger
}

func (c *EnvironmentConfig) applyDefaults() error {
	if c.ConfirmTimeout == 0 {
		c.ConfirmTimeout = defaultConfirmTimeout
	}
	if c.Logger == nil {
		lggr, err := logger.New(logger.Options{})
		if err != nil {
			return fmt.Errorf("failed to create default logger: %w", err)
		}
		c.Logger = lggr
	}

	return nil
}

// selector returns the chain selector of the configured chain, or 0 when it is not registered.
func (c EnvironmentConfig) selector() uint64 {
	details, err := chainsel.GetChainDetailsByChainIDAndFamily(fmt.Sprint(c.ChainID), chainsel.FamilyEVM)
	if err != nil {
		return 0
	}

	return details.ChainSelector
}

// Configure returns an executor for cfg.Mode. Each call owns its resources, e.g. its own fork
// container, which are released by the executor's Close.
func Configure(ctx context.Context, cfg EnvironmentConfig) (evm.Executor, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if cfg.ChainID == 0 {
		return nil, errors.New("chain id is required")
	}

	switch cfg.Mode {
	case evm.ModeFork:
		return configureFork(ctx, cfg)
	case evm.ModeProduction:
		return configureProduction(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", evm.ErrUnknownMode, cfg.Mode)
	}
}

func configureProduction(ctx context.Context, cfg EnvironmentConfig) (evm.Executor, error) {
	lggr := logger.Named(cfg.Logger, "production")

	key, err := productionKey(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	if len(cfg.RPCs) == 0 {
		return nil, fmt.Errorf("%w: no rpc endpoint configured for chain %d", ErrEndpointUnreachable, cfg.ChainID)
	}

	client, err := evm.NewMultiClient(lggr, evm.RPCConfig{
		ChainSelector: cfg.selector(),
		RPCs:          cfg.RPCs,
	}, cfg.ClientOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEndpointUnreachable, err)
	}

	if err = checkChainID(ctx, client, cfg.ChainID); err != nil {
		client.Close()
		return nil, err
	}

	transactor, err := key.Transactor(new(big.Int).SetUint64(cfg.ChainID))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrMissingCredentials, err)
	}

	lggr.Infow("Production environment ready", "chainID", cfg.ChainID, "sender", transactor.From.Hex())

	return &chainExecutor{
		mode:    evm.ModeProduction,
		chainID: cfg.ChainID,
		chain: evm.Chain{
			Selector:   cfg.selector(),
			Client:     client,
			Transactor: transactor,
			Confirm:    newConfirmFunc(client, transactor.From, defaultReceiptTick, cfg.ConfirmTimeout),
		},
		lggr: lggr,
		closeFn: func(context.Context) error {
			client.Close()
			for _, b := range client.Backups {
				b.Close()
			}

			return nil
		},
	}, nil
}

// productionKey parses the deployer key and checks it against the configured address.
func productionKey(creds Credentials) (*DeployerKey, error) {
	if creds.PrivateKey == "" {
		return nil, fmt.Errorf("%w: a deployer private key is required in production mode", ErrMissingCredentials)
	}

	key, err := ParseDeployerKey(creds.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingCredentials, err)
	}
	derived := key.Address()
	if creds.Address == "" {
		return key, nil
	}
	if !common.IsHexAddress(creds.Address) {
		return nil, fmt.Errorf("%w: deployer address %q is not a hex address", ErrMissingCredentials, creds.Address)
	}
	if common.HexToAddress(creds.Address) != derived {
		return nil, fmt.Errorf("%w: deployer address %s does not match the private key (%s)",
			ErrMissingCredentials, creds.Address, derived.Hex())
	}

	return key, nil
}

func configureFork(ctx context.Context, cfg EnvironmentConfig) (evm.Executor, error) {
	lggr := logger.Named(cfg.Logger, "fork")

	sender, err := forkSender(cfg.Credentials)
	if err != nil {
		return nil, err
	}

	var (
		url     = cfg.Fork.AttachURL
		closeFn func(context.Context) error
	)
	if url == "" {
		if len(cfg.RPCs) == 0 {
			return nil, fmt.Errorf("%w: no rpc endpoint to fork chain %d from", ErrEndpointUnreachable, cfg.ChainID)
		}
		forkURL, uerr := cfg.RPCs[0].ToEndpoint()
		if uerr != nil {
			return nil, fmt.Errorf("%w: %w", ErrEndpointUnreachable, uerr)
		}

		fork, serr := startAnvilFork(ctx, lggr, anvilForkConfig{
			ChainID:     cfg.ChainID,
			ForkURL:     forkURL,
			BlockNumber: cfg.Fork.BlockNumber,
			Image:       cfg.Fork.Image,
			Port:        cfg.Fork.Port,
		})
		if serr != nil {
			return nil, fmt.Errorf("%w: %w", ErrEndpointUnreachable, serr)
		}
		url = fork.HTTPURL
		closeFn = fork.Terminate
	}

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, closeOnErr(ctx, closeFn, fmt.Errorf("%w: failed to dial fork %s: %w", ErrEndpointUnreachable, url, err))
	}
	if err = checkChainID(ctx, client, cfg.ChainID); err != nil {
		client.Close()
		return nil, closeOnErr(ctx, closeFn, err)
	}

	fork := newAnvilForkClient(url, cfg.ConfirmTimeout, cfg.Fork.Debug)
	if err = fork.impersonate(ctx, sender); err != nil {
		client.Close()
		return nil, closeOnErr(ctx, closeFn, fmt.Errorf("%w: %w", ErrEndpointUnreachable, err))
	}

	lggr.Infow("Fork environment ready", "chainID", cfg.ChainID, "url", url, "sender", sender.Hex())

	return &forkExecutor{
		chainID:        cfg.ChainID,
		sender:         sender,
		client:         client,
		fork:           fork,
		lggr:           lggr,
		tickInterval:   defaultForkTick,
		confirmTimeout: cfg.ConfirmTimeout,
		closeFn: func(ctx context.Context) error {
			err := fork.stopImpersonating(ctx, sender)
			client.Close()
			if closeFn != nil {
				err = errors.Join(err, closeFn(ctx))
			}

			return err
		},
	}, nil
}

// forkSender returns the impersonated sender of a fork.
func forkSender(creds Credentials) (common.Address, error) {
	if creds.Address == "" {
		key, err := ParseDeployerKey(blockchain.DefaultAnvilPrivateKey)
		if err != nil {
			return common.Address{}, err
		}

		return key.Address(), nil
	}
	if !common.IsHexAddress(creds.Address) {
		return common.Address{}, fmt.Errorf("%w: deployer address %q is not a hex address", ErrMissingCredentials, creds.Address)
	}

	return common.HexToAddress(creds.Address), nil
}

type chainIDReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// checkChainID fails with ErrEndpointUnreachable when the endpoint serves another chain.
func checkChainID(ctx context.Context, client chainIDReader, want uint64) error {
	got, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to read chain id: %w", ErrEndpointUnreachable, err)
	}
	if !got.IsUint64() || got.Uint64() != want {
		return fmt.Errorf("%w: endpoint serves chain %s, want %d", ErrEndpointUnreachable, got, want)
	}

	return nil
}

func closeOnErr(ctx context.Context, closeFn func(context.Context) error, err error) error {
	if closeFn == nil {
		return err
	}

	return errors.Join(err, closeFn(ctx))
}
