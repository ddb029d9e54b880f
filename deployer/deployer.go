// Package deployer creates stable-swap pools through the factory of a network and verifies
// them. A deployment is a fixed pipeline of steps, each run as an operation with its own
// report:
//
//  1. validate the parameters
//  2. resolve the factory of the network
//  3. bind the factory entry point of the variant
//  4. configure the execution environment
//  5. simulate the creation call
//  6. submit the creation call, exactly once
//  7. confirm the pool exists
//  8. verify the pool against the parameters
//
// Steps 1 to 3 never touch the network, so configuration errors are reported before any
// connection is made.
package deployer

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stableswap-ng/pool-deployer/chain/evm"
	"github.com/stableswap-ng/pool-deployer/chain/evm/provider"
	"github.com/stableswap-ng/pool-deployer/network"
	"github.com/stableswap-ng/pool-deployer/operations"
	"github.com/stableswap-ng/pool-deployer/pkg/logger"
	"github.com/stableswap-ng/pool-deployer/pool"
	"github.com/stableswap-ng/pool-deployer/verify"
)

// ConfigureFunc configures the execution environment of a deployment.
type ConfigureFunc func(ctx context.Context, cfg provider.EnvironmentConfig) (evm.Executor, error)

// Request describes one deployment. It is not persisted.
type Request struct {
	// Network is the registry id of the target network, e.g. "ethereum:mainnet".
	Network    string
	Variant    pool.Variant
	Parameters pool.Parameters
	Mode       evm.Mode

	// Credentials are injected explicitly, the deployer never reads the process environment.
	Credentials provider.Credentials
	// Optional: RPCs override the endpoints of the registry entry.
	RPCs []evm.RPC
	// Optional: Fork configures fork mode. Image and port default to the registry entry.
	Fork provider.ForkConfig
}

// Result is the outcome of a deployment. It is immutable once returned.
type Result struct {
	Network     string                        `json:"network"`
	Variant     pool.Variant                  `json:"variant"`
	Mode        evm.Mode                      `json:"mode"`
	ChainID     uint64                        `json:"chain_id"`
	Factory     common.Address                `json:"factory"`
	Sender      common.Address                `json:"sender"`
	Pool        common.Address                `json:"pool"`
	TxHash      common.Hash                   `json:"tx_hash"`
	BlockNumber uint64                        `json:"block_number"`
	Report      verify.Report                 `json:"report"`
	Steps       []operations.Report[any, any] `json:"steps"`
}

// Deployer runs deployments against the networks of a registry.
type Deployer struct {
	registry       *network.Registry
	lggr           logger.Logger
	configure      ConfigureFunc
	confirmTimeout time.Duration
}

// Option configures a Deployer.
type Option func(*Deployer)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(lggr logger.Logger) Option {
	return func(d *Deployer) {
		d.lggr = lggr
	}
}

// WithConfigureFunc replaces provider.Configure, e.g. to run against a simulated chain.
func WithConfigureFunc(fn ConfigureFunc) Option {
	return func(d *Deployer) {
		d.configure = fn
	}
}

// WithConfirmTimeout bounds the wait for the creation receipt.
func WithConfirmTimeout(timeout time.Duration) Option {
	return func(d *Deployer) {
		d.confirmTimeout = timeout
	}
}

// New returns a Deployer resolving networks from registry.
func New(registry *network.Registry, opts ...Option) *Deployer {
	d := &Deployer{
		registry:  registry,
		lggr:      logger.Nop(),
		configure: provider.Configure,
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Deploy runs the deployment pipeline for req. A failure is returned as *Error. When the pool
// was created but fails verification, the Result is returned together with an error matching
// ErrRateSourceFailure or ErrParameterMismatch: the pool exists and is not rolled back.
func (d *Deployer) Deploy(ctx context.Context, req Request) (Result, error) {
	lggr := logger.With(logger.Named(d.lggr, req.Network), "variant", string(req.Variant), "mode", string(req.Mode))
	reporter := operations.NewMemoryReporter()
	b := operations.NewBundle(func() context.Context { return ctx }, lggr, reporter)

	res := Result{Network: req.Network, Variant: req.Variant, Mode: req.Mode}
	fail := func(step Step, err error) (Result, error) {
		res.Steps, _ = reporter.Reports()
		if last, ok := reporter.LastFailure(); ok {
			lggr.Errorw("Deployment stopped", "step", last.Def.ID, "elapsed", last.Elapsed, "error", last.Err.Message)
		}

		return res, &Error{Network: req.Network, Variant: req.Variant, Step: step, Err: err}
	}

	params, err := operations.ExecuteOperation(b, validateOp, struct{}{}, req.Parameters)
	if err != nil {
		return fail(StepValidate, err)
	}

	resolved, err := operations.ExecuteOperation(b, resolveOp, d.registry, req.Network)
	if err != nil {
		return fail(StepResolve, err)
	}
	res.Factory = resolved.Output.Factory
	res.ChainID = resolved.Output.ChainID

	bound, err := operations.ExecuteOperation(b, bindOp, struct{}{}, bindInput{
		Variant:    req.Variant,
		Parameters: params.Output,
	})
	if err != nil {
		return fail(StepBind, err)
	}

	env := &environmentDeps{configure: d.configure, cfg: d.environmentConfig(req, resolved.Output, lggr)}
	configured, err := operations.ExecuteOperation(b, configureOp, env, environmentInput{
		Network: req.Network,
		Mode:    req.Mode,
		ChainID: resolved.Output.ChainID,
	})
	if err != nil {
		return fail(StepConfigure, err)
	}
	exec := env.executor
	defer func() {
		if cerr := exec.Close(context.WithoutCancel(ctx)); cerr != nil {
			lggr.Warnw("Failed to release execution environment", "error", cerr)
		}
	}()
	res.Sender = configured.Output.Sender

	call := creationCall{Factory: res.Factory, Method: bound.Output.Method, Calldata: bound.Output.Calldata}
	simulated, err := operations.ExecuteOperation(b, simulateOp, exec, simulateInput{
		Call:                call,
		ImplementationIndex: params.Output.ImplementationIndex,
	})
	if err != nil {
		return fail(StepSimulate, err)
	}

	submitted, err := operations.ExecuteOperation(b, submitOp, exec, call)
	if err != nil {
		return fail(StepSubmit, err)
	}
	res.TxHash = submitted.Output.TxHash
	res.BlockNumber = submitted.Output.BlockNumber

	confirmed, err := operations.ExecuteOperation(b, confirmOp, exec, confirmInput{
		Factory:     res.Factory,
		Predicted:   simulated.Output,
		BlockNumber: submitted.Output.BlockNumber,
		Sender:      res.Sender,
		Coins:       params.Output.Coins[:params.Output.NumCoins()],
		Deployed:    submitted.Output.Deployed,
	})
	if err != nil {
		return fail(StepConfirm, err)
	}
	res.Pool = confirmed.Output
	lggr.Infow("Pool deployed", "pool", res.Pool.Hex(), "tx", res.TxHash.Hex(), "block", res.BlockNumber)

	verified, err := operations.ExecuteOperation(b, verifyOp, exec, verifyInput{
		Pool:       res.Pool,
		Parameters: params.Output,
	})
	res.Report = verified.Output
	if err != nil {
		return fail(StepVerification, err)
	}
	if verr := res.Report.Err(); verr != nil {
		lggr.Errorw("Pool failed verification, it must be fixed or abandoned", "pool", res.Pool.Hex(), "error", verr)

		return fail(StepVerification, verr)
	}

	res.Steps, _ = reporter.Reports()

	return res, nil
}

// environmentConfig builds the environment of req. Request values take precedence over the
// registry entry.
func (d *Deployer) environmentConfig(req Request, resolved resolveOutput, lggr logger.Logger) provider.EnvironmentConfig {
	cfg := provider.EnvironmentConfig{
		Mode:           req.Mode,
		ChainID:        resolved.ChainID,
		RPCs:           req.RPCs,
		Credentials:    req.Credentials,
		Fork:           req.Fork,
		ConfirmTimeout: d.confirmTimeout,
		Logger:         lggr,
	}
	if len(cfg.RPCs) == 0 {
		for _, rpc := range resolved.RPCs {
			cfg.RPCs = append(cfg.RPCs, evm.RPC{Name: rpc.Name, HTTPURL: rpc.HTTPURL, WSURL: rpc.WSURL})
		}
	}
	if resolved.Anvil != nil {
		if cfg.Fork.Image == "" {
			cfg.Fork.Image = resolved.Anvil.Image
		}
		if cfg.Fork.Port == 0 {
			cfg.Fork.Port = int(resolved.Anvil.Port)
		}
	}

	return cfg
}

// IsVerificationFailure reports whether err means the pool was created but failed
// verification.
func IsVerificationFailure(err error) bool {
	var derr *Error

	return errors.As(err, &derr) && derr.Step == StepVerification
}
