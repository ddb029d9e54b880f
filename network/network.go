// Package network maps network identifiers such as "ethereum:mainnet" to the stable-swap factory
// deployed there, and is the source of truth for whether a network is deployable.
package network

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	chainsel "github.com/smartcontractkit/chain-selectors"
)

var (
	// ErrUnknownNetwork is returned when a network id is not in the registry.
	ErrUnknownNetwork = errors.New("unknown network")
	// ErrFactoryUnavailable is returned when a network is known but has no factory yet.
	ErrFactoryUnavailable = errors.New("factory unavailable")
)

// Entry is one network of the registry.
type Entry struct {
	// ID is the "chain:tier" identifier, e.g. "ethereum:mainnet".
	ID string `yaml:"id"`
	// ChainID is the EIP-155 chain id.
	ChainID uint64 `yaml:"chain_id"`
	// Factory is the hex address of the factory, or empty when not yet rolled out.
	Factory string `yaml:"factory"`
	// RPCs are optional default endpoints. Credentials supplied at run time take precedence.
	RPCs []RPC `yaml:"rpcs,omitempty"`
	// Anvil configures the container used to fork this network.
	Anvil *AnvilConfig `yaml:"anvil,omitempty"`
}

// RPC is a named endpoint of a network.
type RPC struct {
	Name    string `yaml:"name"`
	HTTPURL string `yaml:"http_url"`
	WSURL   string `yaml:"ws_url,omitempty"`
}

// AnvilConfig configures the local Anvil fork of a network.
type AnvilConfig struct {
	Image string `yaml:"image"`
	// Port is the host port of the container, chosen automatically when zero.
	Port uint64 `yaml:"port,omitempty"`
}

// Validate checks that the entry is well formed. An empty factory is valid.
func (e Entry) Validate() error {
	if e.ID == "" {
		return errors.New("id is required")
	}
	if chainName, tier, ok := strings.Cut(e.ID, ":"); !ok || chainName == "" || tier == "" {
		return fmt.Errorf("id %q must be of the form chain:tier", e.ID)
	}
	if e.ChainID == 0 {
		return errors.New("chain id is required")
	}
	if e.Factory != "" && !common.IsHexAddress(e.Factory) {
		return fmt.Errorf("factory %q is not a hex address", e.Factory)
	}
	if e.Factory != "" && common.HexToAddress(e.Factory) == (common.Address{}) {
		return errors.New("factory must not be the zero address, leave it empty instead")
	}
	for i, rpc := range e.RPCs {
		if rpc.HTTPURL == "" && rpc.WSURL == "" {
			return fmt.Errorf("rpc %d (%s): an http or ws url is required", i, rpc.Name)
		}
	}

	return nil
}

// Deployable reports whether the entry has a factory.
func (e Entry) Deployable() bool {
	return e.factoryAddress() != (common.Address{})
}

func (e Entry) factoryAddress() common.Address {
	if !common.IsHexAddress(e.Factory) {
		return common.Address{}
	}

	return common.HexToAddress(e.Factory)
}

// ChainDetails resolves the chain selector and canonical chain name of the entry's EVM chain.
func (e Entry) ChainDetails() (chainsel.ChainDetails, error) {
	return chainsel.GetChainDetailsByChainIDAndFamily(strconv.FormatUint(e.ChainID, 10), chainsel.FamilyEVM)
}

// Selector returns the chain selector of the entry, or 0 when chain-selectors does not know
// the chain.
func (e Entry) Selector() uint64 {
	details, err := e.ChainDetails()
	if err != nil {
		return 0
	}

	return details.ChainSelector
}

// HTTPURLs returns the http endpoints of the entry in order.
func (e Entry) HTTPURLs() []string {
	urls := make([]string, 0, len(e.RPCs))
	for _, rpc := range e.RPCs {
		if rpc.HTTPURL != "" {
			urls = append(urls, rpc.HTTPURL)
		}
	}

	return urls
}
