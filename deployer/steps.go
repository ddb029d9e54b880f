package deployer

import (
	"context"
	"fmt"
	"math/big"
	"slices"

	"github.com/Masterminds/semver/v3"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/stableswap-ng/pool-deployer/chain/evm"
	"github.com/stableswap-ng/pool-deployer/chain/evm/provider"
	"github.com/stableswap-ng/pool-deployer/contracts"
	"github.com/stableswap-ng/pool-deployer/network"
	"github.com/stableswap-ng/pool-deployer/operations"
	"github.com/stableswap-ng/pool-deployer/pool"
	"github.com/stableswap-ng/pool-deployer/verify"
)

var version1_0_0 = semver.MustParse("1.0.0")

var validateOp = operations.NewOperation(
	string(StepValidate), version1_0_0,
	"Validate the pool parameters",
	func(_ operations.Bundle, _ struct{}, params pool.Parameters) (pool.Parameters, error) {
		return pool.Validate(params)
	},
)

type resolveOutput struct {
	Factory common.Address       `json:"factory"`
	ChainID uint64               `json:"chain_id"`
	RPCs    []network.RPC        `json:"rpcs"`
	Anvil   *network.AnvilConfig `json:"anvil"`
}

var resolveOp = operations.NewOperation(
	string(StepResolve), version1_0_0,
	"Resolve the factory of the network",
	func(_ operations.Bundle, registry *network.Registry, id string) (resolveOutput, error) {
		factory, err := registry.Resolve(id)
		if err != nil {
			return resolveOutput{}, err
		}
		entry, err := registry.Entry(id)
		if err != nil {
			return resolveOutput{}, err
		}

		return resolveOutput{Factory: factory, ChainID: entry.ChainID, RPCs: entry.RPCs, Anvil: entry.Anvil}, nil
	},
)

type bindInput struct {
	Variant    pool.Variant    `json:"variant"`
	Parameters pool.Parameters `json:"parameters"`
}

type boundCall struct {
	Method   string        `json:"method"`
	Calldata hexutil.Bytes `json:"calldata"`
}

var bindOp = operations.NewOperation(
	string(StepBind), version1_0_0,
	"Encode the factory creation call of the pool variant",
	func(_ operations.Bundle, _ struct{}, in bindInput) (boundCall, error) {
		switch in.Variant {
		case pool.VariantPlain:
			data, err := contracts.PackDeployPlainPool(in.Parameters.CallArgs())
			if err != nil {
				return boundCall{}, fmt.Errorf("%w: %w", ErrInvalidParameters, err)
			}

			return boundCall{Method: contracts.MethodDeployPlainPool, Calldata: data}, nil
		case pool.VariantMeta:
			// The metapool call shape and its base pool wiring are not defined.
			return boundCall{}, fmt.Errorf("%w: %s", ErrUnsupportedVariant, in.Variant)
		default:
			return boundCall{}, fmt.Errorf("%w: %q", ErrUnsupportedVariant, in.Variant)
		}
	},
)

type environmentInput struct {
	Network string   `json:"network"`
	Mode    evm.Mode `json:"mode"`
	ChainID uint64   `json:"chain_id"`
}

type environmentOutput struct {
	Mode    evm.Mode       `json:"mode"`
	ChainID uint64         `json:"chain_id"`
	Sender  common.Address `json:"sender"`
}

// environmentDeps hands the configured executor back to the pipeline, executors are not
// serializable and stay out of the report.
type environmentDeps struct {
	configure ConfigureFunc
	cfg       provider.EnvironmentConfig
	executor  evm.Executor
}

var configureOp = operations.NewOperation(
	string(StepConfigure), version1_0_0,
	"Configure the execution environment",
	func(b operations.Bundle, deps *environmentDeps, in environmentInput) (environmentOutput, error) {
		exec, err := deps.configure(b.Context(), deps.cfg)
		if err != nil {
			return environmentOutput{}, err
		}
		deps.executor = exec
		b.Logger.Infow("Execution environment configured", "mode", exec.Mode(), "chainID", exec.ChainID(), "sender", exec.Sender().Hex())

		return environmentOutput{Mode: exec.Mode(), ChainID: exec.ChainID(), Sender: exec.Sender()}, nil
	},
)

type creationCall struct {
	Factory  common.Address `json:"factory"`
	Method   string         `json:"method"`
	Calldata hexutil.Bytes  `json:"calldata"`
}

type simulateInput struct {
	Call                creationCall `json:"call"`
	ImplementationIndex uint64       `json:"implementation_index"`
}

var simulateOp = operations.NewOperation(
	string(StepSimulate), version1_0_0,
	"Simulate the creation call to predict the pool address",
	func(b operations.Bundle, exec evm.Executor, in simulateInput) (common.Address, error) {
		ctx := b.Context()

		code, err := exec.Client().CodeAt(ctx, in.Call.Factory, nil)
		if err != nil {
			return common.Address{}, fmt.Errorf("failed to read factory code: %w", err)
		}
		if len(code) == 0 {
			return common.Address{}, fmt.Errorf("%w: no contract at %s on chain %d",
				ErrFactoryUnavailable, in.Call.Factory.Hex(), exec.ChainID())
		}

		factory := contracts.NewFactory(in.Call.Factory, exec.Client())
		impl, err := factory.PlainImplementation(&bind.CallOpts{Context: ctx}, new(big.Int).SetUint64(in.ImplementationIndex))
		if err != nil {
			return common.Address{}, fmt.Errorf("%w: failed to read implementation %d: %w", ErrDeployment, in.ImplementationIndex, err)
		}
		if impl == (common.Address{}) {
			return common.Address{}, fmt.Errorf("%w: factory has no plain implementation at index %d", ErrDeployment, in.ImplementationIndex)
		}

		ret, err := exec.Call(ctx, in.Call.Factory, in.Call.Calldata)
		if err != nil {
			return common.Address{}, fmt.Errorf("%w: %s simulation failed: %s", ErrDeployment, in.Call.Method, reason(err))
		}
		predicted, err := contracts.UnpackDeployPlainPool(ret)
		if err != nil {
			return common.Address{}, fmt.Errorf("%w: %w", ErrDeployment, err)
		}
		if predicted == (common.Address{}) {
			return common.Address{}, fmt.Errorf("%w: %s simulation returned the zero address", ErrDeployment, in.Call.Method)
		}
		b.Logger.Infow("Creation call simulated", "predictedPool", predicted.Hex(), "implementation", impl.Hex())

		return predicted, nil
	},
)

type submitOutput struct {
	TxHash      common.Hash `json:"tx_hash"`
	BlockNumber uint64      `json:"block_number"`
	GasUsed     uint64      `json:"gas_used"`
	// Deployed is nil when the receipt carries no PlainPoolDeployed event.
	Deployed *deployedEvent `json:"deployed,omitempty"`
}

// deployedEvent is the part of a PlainPoolDeployed event that identifies who created which pool.
type deployedEvent struct {
	Coins    []common.Address `json:"coins"`
	Deployer common.Address   `json:"deployer"`
}

func (e *deployedEvent) matches(sender common.Address, coins []common.Address) bool {
	return e != nil && e.Deployer == sender && slices.Equal(e.Coins, coins)
}

// submitOp sends the creation transaction. It runs at most once per deployment, a blind resend
// could create a second pool.
var submitOp = operations.NewOperation(
	string(StepSubmit), version1_0_0,
	"Submit the creation transaction",
	func(b operations.Bundle, exec evm.Executor, call creationCall) (submitOutput, error) {
		receipt, err := exec.Send(b.Context(), call.Factory, call.Calldata)
		if err != nil {
			return submitOutput{}, fmt.Errorf("%w: %w", ErrDeployment, err)
		}

		out := submitOutput{
			TxHash:      receipt.TxHash,
			BlockNumber: receipt.BlockNumber.Uint64(),
			GasUsed:     receipt.GasUsed,
		}
		if ev, ok := contracts.FindPlainPoolDeployed(call.Factory, receipt.Logs); ok {
			out.Deployed = &deployedEvent{Coins: ev.Coins, Deployer: ev.Deployer}
			b.Logger.Infow("Factory emitted PlainPoolDeployed", "coins", len(ev.Coins), "A", ev.A, "fee", ev.Fee, "deployer", ev.Deployer.Hex())
		} else {
			b.Logger.Warnw("Creation receipt carries no PlainPoolDeployed event", "tx", receipt.TxHash.Hex())
		}

		return out, nil
	},
)

type confirmInput struct {
	Factory     common.Address   `json:"factory"`
	Predicted   common.Address   `json:"predicted"`
	BlockNumber uint64           `json:"block_number"`
	Sender      common.Address   `json:"sender"`
	Coins       []common.Address `json:"coins"`
	Deployed    *deployedEvent   `json:"deployed,omitempty"`
}

var confirmOp = operations.NewOperation(
	string(StepConfirm), version1_0_0,
	"Confirm the pool contract exists",
	func(b operations.Bundle, exec evm.Executor, in confirmInput) (common.Address, error) {
		ctx := b.Context()
		block := new(big.Int).SetUint64(in.BlockNumber)

		ok, err := hasCode(ctx, exec, in.Predicted, block)
		if err != nil {
			return common.Address{}, err
		}
		if ok {
			return in.Predicted, nil
		}

		// Another pool was created between simulation and submission, so ours moved. Only
		// follow it when our own receipt proves we created a pool of these coins.
		if !in.Deployed.matches(in.Sender, in.Coins) {
			return common.Address{}, fmt.Errorf("%w: no code at predicted pool %s and no PlainPoolDeployed event from %s for these coins",
				ErrDeployment, in.Predicted.Hex(), in.Sender.Hex())
		}

		factory := contracts.NewFactory(in.Factory, exec.Client())
		opts := &bind.CallOpts{Context: ctx, BlockNumber: block}
		count, err := factory.PoolCount(opts)
		if err != nil {
			return common.Address{}, fmt.Errorf("%w: failed to read pool count: %w", ErrDeployment, err)
		}
		if count.Sign() == 0 {
			return common.Address{}, fmt.Errorf("%w: factory lists no pool after block %d", ErrDeployment, in.BlockNumber)
		}
		last, err := factory.PoolAt(opts, new(big.Int).Sub(count, big.NewInt(1)))
		if err != nil {
			return common.Address{}, fmt.Errorf("%w: failed to read last pool: %w", ErrDeployment, err)
		}
		if ok, err = hasCode(ctx, exec, last, block); err != nil {
			return common.Address{}, err
		}
		if !ok {
			return common.Address{}, fmt.Errorf("%w: no code at predicted pool %s", ErrDeployment, in.Predicted.Hex())
		}
		if err = checkPoolCoins(ctx, exec, last, in.Coins, block); err != nil {
			return common.Address{}, err
		}
		b.Logger.Warnw("Pool address differs from the simulation", "predicted", in.Predicted.Hex(), "pool", last.Hex())

		return last, nil
	},
)

// checkPoolCoins fails unless the pool at addr holds exactly coins, in order.
func checkPoolCoins(ctx context.Context, exec evm.Executor, addr common.Address, coins []common.Address, block *big.Int) error {
	for i, want := range coins {
		input, err := contracts.FuncCoins.EncodeArgs(big.NewInt(int64(i)))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDeployment, err)
		}
		ret, err := exec.Client().CallContract(ctx, ethereum.CallMsg{To: &addr, Data: input}, block)
		if err != nil {
			return fmt.Errorf("%w: failed to read coin %d of %s: %w", ErrDeployment, i, addr.Hex(), err)
		}

		var got common.Address
		if err = contracts.FuncCoins.DecodeReturns(ret, &got); err != nil {
			return fmt.Errorf("%w: failed to decode coin %d of %s: %w", ErrDeployment, i, addr.Hex(), err)
		}
		if got != want {
			return fmt.Errorf("%w: last listed pool %s holds %s at index %d, not %s",
				ErrDeployment, addr.Hex(), got.Hex(), i, want.Hex())
		}
	}

	return nil
}

func hasCode(ctx context.Context, exec evm.Executor, addr common.Address, block *big.Int) (bool, error) {
	code, err := exec.Client().CodeAt(ctx, addr, block)
	if err != nil {
		return false, fmt.Errorf("%w: failed to read code of %s: %w", ErrDeployment, addr.Hex(), err)
	}

	return len(code) > 0, nil
}

type verifyInput struct {
	Pool       common.Address  `json:"pool"`
	Parameters pool.Parameters `json:"parameters"`
}

var verifyOp = operations.NewOperation(
	string(StepVerification), version1_0_0,
	"Read back the pool state and compare it with the parameters",
	func(b operations.Bundle, exec evm.Executor, in verifyInput) (verify.Report, error) {
		report, err := verify.Verify(b.Context(), exec.Client(), in.Pool, in.Parameters)
		if err != nil {
			return report, fmt.Errorf("%w: %w", ErrVerification, err)
		}
		for _, c := range report.Checks {
			b.Logger.Infow("Verification check", "field", c.Field, "expected", c.Expected, "observed", c.Observed, "matches", c.Matches)
		}

		return report, nil
	},
)

// reason returns the revert reason of err, or err itself.
func reason(err error) string {
	if r, ok := evm.RevertReason(err); ok {
		return r
	}

	return err.Error()
}
