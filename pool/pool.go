// Package pool describes the parameters required to create one stable-swap pool instance and
// validates them against the limits the factory and pool contracts enforce.
//
// Operators author parameters as index-aligned arrays (coins, asset types, rate method ids and
// rate oracles), which is also the shape the factory's creation call expects. Internally the
// parameters are viewed as one [Coin] record per real coin, and flattened back to [CallArgs]
// only when the creation call is encoded.
package pool

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stableswap-ng/pool-deployer/selector"
)

const (
	// MaxCoins is the fixed number of coin slots in the factory's creation call.
	MaxCoins = 4
	// MinCoins is the minimum number of real (non-placeholder) coins in a pool.
	MinCoins = 2

	// FeeDenominator is the denominator of every fee value, 1e10 == 100%.
	FeeDenominator uint64 = 10_000_000_000
	// MaxFee is the largest swap fee the factory accepts (1%).
	MaxFee uint64 = 100_000_000
	// MaxDynamicFee bounds fee * offpeg_fee_multiplier / FeeDenominator (50%).
	MaxDynamicFee uint64 = 5_000_000_000
	// MaxA is the exclusive upper bound of the amplification coefficient.
	MaxA uint64 = 1_000_000

	// MaxNameBytes and MaxSymbolBytes are the String[N] bounds of the pool token.
	MaxNameBytes   = 32
	MaxSymbolBytes = 10
)

// Variant is the kind of pool to create.
type Variant string

const (
	// VariantPlain pools hold only directly deposited coins.
	VariantPlain Variant = "plain"
	// VariantMeta pools pair a coin with the LP token of an existing base pool.
	VariantMeta Variant = "meta"
)

// ErrUnknownVariant is returned by ParseVariant for anything other than plain or meta.
var ErrUnknownVariant = errors.New("unknown pool variant")

// ParseVariant parses a case-insensitive variant name.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case VariantPlain, VariantMeta:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownVariant, s)
	}
}

func (v Variant) String() string { return string(v) }

// AssetType tells the pool how to derive a coin's rate.
type AssetType uint8

const (
	// AssetStandard coins have a constant rate of 1.
	AssetStandard AssetType = iota
	// AssetOracle coins read their rate from an external contract through a method id.
	AssetOracle
	// AssetRebasing coins change balance over time; the pool tracks balances, not rates.
	AssetRebasing
	// AssetERC4626 coins read their rate from the vault's convertToAssets.
	AssetERC4626
)

// Valid reports whether t is an asset type the factory knows.
func (t AssetType) Valid() bool {
	return t <= AssetERC4626
}

func (t AssetType) String() string {
	switch t {
	case AssetStandard:
		return "standard"
	case AssetOracle:
		return "oracle"
	case AssetRebasing:
		return "rebasing"
	case AssetERC4626:
		return "erc4626"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t AssetType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts either the asset type name or its numeric value.
func (t *AssetType) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for c := AssetStandard; c <= AssetERC4626; c++ {
		if s == c.String() {
			*t = c
			return nil
		}
	}

	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return fmt.Errorf("unknown asset type %q", string(text))
	}
	*t = AssetType(n)

	return nil
}

// Parameters is the operator authored description of one pool. Coins may list up to MaxCoins
// addresses, with zero-address placeholders allowed only at the tail. AssetTypes, RateMethodIDs
// and RateOracles are fixed-width: they always hold MaxCoins slots, aligned index for index with
// Coins.
type Parameters struct {
	Name                  string           `json:"name" validate:"required,maxbytes=32"`
	Symbol                string           `json:"symbol" validate:"required,maxbytes=10"`
	Coins                 []common.Address `json:"coins"`
	A                     uint64           `json:"A" validate:"gt=0,lt=1000000"`
	Fee                   uint64           `json:"fee" validate:"gt=0,lte=100000000"`
	OffpegFeeMultiplier   uint64           `json:"offpeg_fee_multiplier"`
	MovingAverageHalfLife uint64           `json:"ma_exp_time" validate:"gt=0"`
	ImplementationIndex   uint64           `json:"implementation_index"`
	AssetTypes            []AssetType      `json:"asset_types"`
	RateMethodIDs         []selector.ID    `json:"rate_method_ids"`
	RateOracles           []common.Address `json:"rate_oracles"`
}

// Clone returns a deep copy of p so callers cannot mutate shared configuration.
func (p Parameters) Clone() Parameters {
	c := p
	c.Coins = append([]common.Address(nil), p.Coins...)
	c.AssetTypes = append([]AssetType(nil), p.AssetTypes...)
	c.RateMethodIDs = append([]selector.ID(nil), p.RateMethodIDs...)
	c.RateOracles = append([]common.Address(nil), p.RateOracles...)

	return c
}

// NumCoins returns the number of real coins, i.e. the length of Coins without trailing
// placeholders.
func (p Parameters) NumCoins() int {
	n := len(p.Coins)
	for n > 0 && p.Coins[n-1] == (common.Address{}) {
		n--
	}

	return n
}
