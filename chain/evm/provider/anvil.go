package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/smartcontractkit/chainlink-testing-framework/framework"
	"github.com/smartcontractkit/chainlink-testing-framework/framework/components/blockchain"
	"github.com/smartcontractkit/freeport"
	"github.com/testcontainers/testcontainers-go"

	"github.com/stableswap-ng/pool-deployer/pkg/logger"
)

// DefaultAnvilImage is the foundry image used when the network entry does not name one.
const DefaultAnvilImage = "ghcr.io/foundry-rs/foundry:stable"

// networkOnce guards the creation of the CTF docker network, which is shared by every fork.
var networkOnce sync.Once

// anvilForkConfig describes a disposable anvil container forking a live network.
type anvilForkConfig struct {
	ChainID     uint64
	ForkURL     string
	BlockNumber uint64
	Image       string
	Port        int
	Attempts    uint
}

func (c anvilForkConfig) validate() error {
	if c.ForkURL == "" {
		return errors.New("fork url is required")
	}
	if c.ChainID == 0 {
		return errors.New("chain id is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Port)
	}

	return nil
}

// cmdParams returns the anvil flags that turn the container into a fork.
func (c anvilForkConfig) cmdParams() []string {
	params := []string{"--fork-url", c.ForkURL, "--auto-impersonate"}
	if c.BlockNumber > 0 {
		params = append(params, "--fork-block-number", strconv.FormatUint(c.BlockNumber, 10))
	}

	return params
}

// anvilFork is a running fork container.
type anvilFork struct {
	HTTPURL   string
	container testcontainers.Container
}

// Terminate stops the container. It is safe to call more than once.
func (f *anvilFork) Terminate(ctx context.Context) error {
	if f.container == nil {
		return nil
	}
	if err := f.container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate anvil container: %w", err)
	}
	f.container = nil

	return nil
}

// startAnvilFork starts an anvil container forking cfg.ForkURL and returns once the node
// answers. Startup is retried since container creation is flaky on busy docker hosts.
func startAnvilFork(ctx context.Context, lggr logger.Logger, cfg anvilForkConfig) (*anvilFork, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Image == "" {
		cfg.Image = DefaultAnvilImage
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 5
	}

	if err := framework.DefaultNetwork(&networkOnce); err != nil {
		return nil, fmt.Errorf("failed to set up CTF default network: %w", err)
	}

	fork, err := retry.DoWithData(func() (*anvilFork, error) {
		port := cfg.Port
		if port == 0 {
			ports, perr := freeport.Take(1)
			if perr != nil {
				return nil, fmt.Errorf("failed to allocate a free port: %w", perr)
			}
			port = ports[0]
		}

		input := &blockchain.Input{
			Type:                     blockchain.TypeAnvil,
			ChainID:                  strconv.FormatUint(cfg.ChainID, 10),
			Port:                     strconv.Itoa(port),
			Image:                    cfg.Image,
			DockerCmdParamsOverrides: cfg.cmdParams(),
		}

		lggr.Infow("Starting anvil fork", "chainID", cfg.ChainID, "port", port, "image", cfg.Image, "blockNumber", cfg.BlockNumber)
		output, rerr := blockchain.NewBlockchainNetwork(input)
		if rerr != nil {
			if cfg.Port == 0 {
				freeport.Return([]int{port})
			}

			return nil, fmt.Errorf("failed to create anvil container: %w", rerr)
		}
		if len(output.Nodes) == 0 {
			return nil, errors.New("anvil container exposes no nodes")
		}

		return &anvilFork{HTTPURL: output.Nodes[0].ExternalHTTPUrl, container: output.Container}, nil
	},
		retry.Context(ctx),
		retry.Attempts(cfg.Attempts),
		retry.Delay(1*time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.OnRetry(func(n uint, err error) {
			lggr.Warnw("Anvil fork failed to start, retrying", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start anvil fork after %d attempts: %w", cfg.Attempts, err)
	}

	return fork, nil
}
