// Package contracts holds the ABI bindings of the stable-swap factory and pool contracts used by
// the deployer.
package contracts

import (
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/stableswap-ng/pool-deployer/pool"
)

//go:embed factory.abi.json
var factoryABIJSON string

// FactoryABI is the subset of the factory interface used by the deployer.
var FactoryABI = mustParseABI(factoryABIJSON)

const (
	MethodDeployPlainPool     = "deploy_plain_pool"
	methodPoolCount           = "pool_count"
	methodPoolList            = "pool_list"
	methodPoolImplementations = "pool_implementations"
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}

	return parsed
}

// PackDeployPlainPool encodes the plain pool creation call.
func PackDeployPlainPool(args pool.CallArgs) ([]byte, error) {
	return FactoryABI.Pack(MethodDeployPlainPool,
		args.Name,
		args.Symbol,
		args.Coins,
		args.A,
		args.Fee,
		args.OffpegFeeMultiplier,
		args.MaExpTime,
		args.ImplementationIdx,
		args.AssetTypes,
		args.MethodIDs,
		args.Oracles,
	)
}

// UnpackDeployPlainPool decodes the pool address returned by the creation call.
func UnpackDeployPlainPool(ret []byte) (common.Address, error) {
	return unpackAddress(MethodDeployPlainPool, ret)
}

func unpackAddress(method string, ret []byte) (common.Address, error) {
	out, err := FactoryABI.Unpack(method, ret)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("failed to unpack %s: want 1 value, got %d", method, len(out))
	}

	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// RevertReason extracts the message of a Error(string) revert payload.
func RevertReason(data []byte) (string, bool) {
	reason, err := abi.UnpackRevert(data)
	if err != nil {
		return "", false
	}

	return reason, true
}

// Factory is a read-only binding of a deployed factory.
type Factory struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewFactory binds the factory at address.
func NewFactory(address common.Address, caller bind.ContractCaller) *Factory {
	return &Factory{
		address:  address,
		contract: bind.NewBoundContract(address, FactoryABI, caller, nil, nil),
	}
}

// Address returns the factory address.
func (f *Factory) Address() common.Address {
	return f.address
}

// PoolCount returns the number of pools the factory has deployed.
func (f *Factory) PoolCount(opts *bind.CallOpts) (*big.Int, error) {
	var out []any
	if err := f.contract.Call(opts, &out, methodPoolCount); err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, errors.New("pool_count returned no value")
	}

	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// PoolAt returns the address of the i-th pool deployed by the factory.
func (f *Factory) PoolAt(opts *bind.CallOpts, i *big.Int) (common.Address, error) {
	return f.callAddress(opts, methodPoolList, i)
}

// PlainImplementation returns the plain pool implementation at index idx, or the zero address
// if the index is not set.
func (f *Factory) PlainImplementation(opts *bind.CallOpts, idx *big.Int) (common.Address, error) {
	return f.callAddress(opts, methodPoolImplementations, idx)
}

func (f *Factory) callAddress(opts *bind.CallOpts, method string, params ...any) (common.Address, error) {
	var out []any
	if err := f.contract.Call(opts, &out, method, params...); err != nil {
		return common.Address{}, err
	}
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("%s returned no value", method)
	}

	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// PlainPoolDeployed is the event emitted by the factory for every plain pool it creates.
type PlainPoolDeployed struct {
	Coins    []common.Address
	A        *big.Int
	Fee      *big.Int
	Deployer common.Address
}

// FindPlainPoolDeployed returns the first PlainPoolDeployed event emitted by factory in logs.
func FindPlainPoolDeployed(factory common.Address, logs []*types.Log) (PlainPoolDeployed, bool) {
	event := FactoryABI.Events["PlainPoolDeployed"]
	for _, l := range logs {
		if l == nil || l.Address != factory || len(l.Topics) == 0 || l.Topics[0] != event.ID {
			continue
		}

		var ev PlainPoolDeployed
		if err := FactoryABI.UnpackIntoInterface(&ev, event.Name, l.Data); err != nil {
			continue
		}

		return ev, true
	}

	return PlainPoolDeployed{}, false
}
