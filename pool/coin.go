package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stableswap-ng/pool-deployer/selector"
)

// Coin is the per-coin view of Parameters.
type Coin struct {
	Index      int
	Address    common.Address
	AssetType  AssetType
	RateMethod selector.ID
	// RateOracle is the contract the pool calls RateMethod on. The zero address means the coin
	// itself.
	RateOracle common.Address
}

// RateSource returns the contract that answers the coin's rate call.
func (c Coin) RateSource() common.Address {
	if c.RateOracle == (common.Address{}) {
		return c.Address
	}

	return c.RateOracle
}

// HasExternalRate reports whether the pool reads the coin's rate through an external call.
func (c Coin) HasExternalRate() bool {
	return c.AssetType == AssetOracle && !c.RateMethod.IsZero()
}

// CoinList returns one record per real coin, in pool index order. Slots missing from the
// aligned arrays are left empty, so CoinList is safe to call on unvalidated parameters.
func (p Parameters) CoinList() []Coin {
	n := p.NumCoins()
	coins := make([]Coin, 0, n)
	for i := range n {
		c := Coin{Index: i, Address: p.Coins[i]}
		if i < len(p.AssetTypes) {
			c.AssetType = p.AssetTypes[i]
		}
		if i < len(p.RateMethodIDs) {
			c.RateMethod = p.RateMethodIDs[i]
		}
		if i < len(p.RateOracles) {
			c.RateOracle = p.RateOracles[i]
		}
		coins = append(coins, c)
	}

	return coins
}

// CallArgs is the argument list of the factory's plain pool creation call. The coin arrays hold
// one entry per real coin; the factory takes them as dynamic arrays.
type CallArgs struct {
	Name                string
	Symbol              string
	Coins               []common.Address
	A                   *big.Int
	Fee                 *big.Int
	OffpegFeeMultiplier *big.Int
	MaExpTime           *big.Int
	ImplementationIdx   *big.Int
	AssetTypes          []uint8
	MethodIDs           [][selector.Size]byte
	Oracles             []common.Address
}

// CallArgs flattens validated parameters into the factory call shape, dropping the zero-address
// tail slots. An oracle-rate coin without an explicit oracle is pointed at the coin contract
// itself, which is where the pool would otherwise have nothing to call.
func (p Parameters) CallArgs() CallArgs {
	coins := p.CoinList()
	args := CallArgs{
		Name:                p.Name,
		Symbol:              p.Symbol,
		Coins:               make([]common.Address, len(coins)),
		A:                   new(big.Int).SetUint64(p.A),
		Fee:                 new(big.Int).SetUint64(p.Fee),
		OffpegFeeMultiplier: new(big.Int).SetUint64(p.OffpegFeeMultiplier),
		MaExpTime:           new(big.Int).SetUint64(p.MovingAverageHalfLife),
		ImplementationIdx:   new(big.Int).SetUint64(p.ImplementationIndex),
		AssetTypes:          make([]uint8, len(coins)),
		MethodIDs:           make([][selector.Size]byte, len(coins)),
		Oracles:             make([]common.Address, len(coins)),
	}

	for i, c := range coins {
		args.Coins[i] = c.Address
		args.AssetTypes[i] = uint8(c.AssetType)
		args.MethodIDs[i] = c.RateMethod
		args.Oracles[i] = c.RateOracle
		if c.AssetType == AssetOracle {
			args.Oracles[i] = c.RateSource()
		}
	}

	return args
}
