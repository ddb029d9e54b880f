package provider

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DeployerKey is the private key production transactions are signed with.
type DeployerKey struct {
	key *ecdsa.PrivateKey
}

// ParseDeployerKey parses a hex encoded secp256k1 key. Surrounding whitespace and a 0x prefix
// are ignored.
func ParseDeployerKey(raw string) (*DeployerKey, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if raw == "" {
		return nil, errors.New("private key is empty")
	}

	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("private key is not a valid secp256k1 key: %w", err)
	}

	return &DeployerKey{key: key}, nil
}

func (k *DeployerKey) Address() common.Address {
	return crypto.PubkeyToAddress(k.key.PublicKey)
}

// Transactor returns transact options signing for chainID.
func (k *DeployerKey) Transactor(chainID *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(k.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to build transactor for chain %s: %w", chainID, err)
	}

	return opts, nil
}
