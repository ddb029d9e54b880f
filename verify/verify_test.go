package verify

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stableswap-ng/pool-deployer/contracts"
	"github.com/stableswap-ng/pool-deployer/pool"
	"github.com/stableswap-ng/pool-deployer/selector"
)

var (
	tokenA   = common.HexToAddress("0xf1C9acDc66974dFB6dEcB12aA385b9cD01190E38")
	tokenB   = common.HexToAddress("0xae78736Cd615f374D3085123A210448E74Fc6393")
	oracleA  = common.HexToAddress("0x8023518b2192FB5384DAdc596765B3dD1cdFe471")
	poolAddr = common.HexToAddress("0x00000000000000000000000000000000000c0ffe")
	oneEther = big.NewInt(1_000_000_000_000_000_000)
)

func testParams() pool.Parameters {
	return pool.Parameters{
		Name:                  "osETH/rETH",
		Symbol:                "oseth-reth",
		Coins:                 []common.Address{tokenA, tokenB},
		A:                     500,
		Fee:                   1000000,
		OffpegFeeMultiplier:   20000000000,
		MovingAverageHalfLife: 865,
		AssetTypes:            []pool.AssetType{pool.AssetOracle, pool.AssetOracle, pool.AssetStandard, pool.AssetStandard},
		RateMethodIDs:         []selector.ID{selector.MustFor("getRate()"), selector.MustFor("getExchangeRate()"), {}, {}},
		RateOracles:           []common.Address{oracleA, tokenB, {}, {}},
	}
}

// fakePool answers the pool getters from its fields. A function listed in reverts fails with
// a revert error instead.
type fakePool struct {
	nCoins      int64
	a           int64
	fee         int64
	offpeg      int64
	maExpTime   int64
	coins       []common.Address
	storedRates []*big.Int
	prices      []*big.Int
	reverts     map[string]bool
	err         error
}

func healthyPool() *fakePool {
	return &fakePool{
		nCoins:      2,
		a:           500,
		fee:         1000000,
		offpeg:      20000000000,
		maExpTime:   865,
		coins:       []common.Address{tokenA, tokenB},
		storedRates: []*big.Int{big.NewInt(1_060_000_000_000_000_000), big.NewInt(1_100_000_000_000_000_000)},
		prices:      []*big.Int{oneEther},
		reverts:     map[string]bool{},
	}
}

type revertError struct{}

func (revertError) Error() string  { return "execution reverted" }
func (revertError) ErrorCode() int { return 3 }
func (revertError) ErrorData() any { return "0x" }

func (f *fakePool) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	if call.To == nil || *call.To != poolAddr {
		return nil, errors.New("unexpected target")
	}

	var id selector.ID
	copy(id[:], call.Data)

	arg := func() int {
		return int(new(big.Int).SetBytes(call.Data[selector.Size:]).Int64())
	}
	pack := func(fn *w3.Func, v ...any) ([]byte, error) {
		if f.reverts[fn.Signature] {
			return nil, revertError{}
		}

		return fn.Returns.Pack(v...)
	}

	switch id {
	case selector.ID(contracts.FuncNCoins.Selector):
		return pack(contracts.FuncNCoins, big.NewInt(f.nCoins))
	case selector.ID(contracts.FuncA.Selector):
		return pack(contracts.FuncA, big.NewInt(f.a))
	case selector.ID(contracts.FuncInitialA.Selector):
		return pack(contracts.FuncInitialA, big.NewInt(f.a*APrecision))
	case selector.ID(contracts.FuncFee.Selector):
		return pack(contracts.FuncFee, big.NewInt(f.fee))
	case selector.ID(contracts.FuncAdminFee.Selector):
		return pack(contracts.FuncAdminFee, big.NewInt(5000000000))
	case selector.ID(contracts.FuncOffpegFeeMultiplier.Selector):
		return pack(contracts.FuncOffpegFeeMultiplier, big.NewInt(f.offpeg))
	case selector.ID(contracts.FuncMaExpTime.Selector):
		return pack(contracts.FuncMaExpTime, big.NewInt(f.maExpTime))
	case selector.ID(contracts.FuncCoins.Selector):
		return pack(contracts.FuncCoins, f.coins[arg()])
	case selector.ID(contracts.FuncStoredRates.Selector):
		return pack(contracts.FuncStoredRates, f.storedRates)
	case selector.ID(contracts.FuncPriceOracle.Selector):
		return pack(contracts.FuncPriceOracle, f.prices[arg()])
	default:
		return nil, errors.New("unknown selector " + id.String())
	}
}

func Test_Verify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		givePool     func(*fakePool)
		wantMatches  bool
		wantMismatch []string
		wantFailures []RateSourceFailure
	}{
		{
			name:        "healthy pool",
			givePool:    func(*fakePool) {},
			wantMatches: true,
		},
		{
			name: "amplification and fee differ",
			givePool: func(p *fakePool) {
				p.a = 400
				p.fee = 4000000
			},
			wantMismatch: []string{"A", "initial_A", "fee"},
		},
		{
			name: "coin order differs",
			givePool: func(p *fakePool) {
				p.coins = []common.Address{tokenB, tokenA}
			},
			wantMismatch: []string{"coins[0]", "coins[1]"},
		},
		{
			name: "zero stored rate",
			givePool: func(p *fakePool) {
				p.storedRates = []*big.Int{big.NewInt(0), oneEther}
			},
			wantMatches:  true,
			wantFailures: []RateSourceFailure{{Source: "stored_rates", Index: 0, Reason: "returned zero"}},
		},
		{
			name: "stored rates revert",
			givePool: func(p *fakePool) {
				p.reverts["stored_rates()"] = true
			},
			wantMatches: true,
			wantFailures: []RateSourceFailure{
				{Source: "stored_rates", Index: -1, Reason: "stored_rates() failed: execution reverted"},
			},
		},
		{
			name: "price oracle reverts",
			givePool: func(p *fakePool) {
				p.reverts["price_oracle(uint256)"] = true
			},
			wantMatches: true,
			wantFailures: []RateSourceFailure{
				{Source: "price_oracle", Index: 0, Reason: "price_oracle(uint256) failed: execution reverted"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fake := healthyPool()
			tt.givePool(fake)

			report, err := Verify(t.Context(), fake, poolAddr, testParams())
			require.NoError(t, err)

			assert.Equal(t, poolAddr, report.Pool)
			assert.Equal(t, tt.wantMatches, report.Matches())
			assert.Equal(t, tt.wantFailures, report.Failures)

			var mismatched []string
			for _, c := range report.Mismatches() {
				mismatched = append(mismatched, c.Field)
			}
			assert.Equal(t, tt.wantMismatch, mismatched)

			err = report.Err()
			switch {
			case len(tt.wantFailures) > 0:
				require.ErrorIs(t, err, ErrRateSourceFailure)
			case len(tt.wantMismatch) > 0:
				require.ErrorIs(t, err, ErrParameterMismatch)
				require.NotErrorIs(t, err, ErrRateSourceFailure)
			default:
				require.NoError(t, err)
			}
		})
	}
}

func Test_Verify_ChecksAndRates(t *testing.T) {
	t.Parallel()

	report, err := Verify(t.Context(), healthyPool(), poolAddr, testParams())
	require.NoError(t, err)

	a, ok := report.Check("A")
	require.True(t, ok)
	assert.Equal(t, Check{Field: "A", Expected: "500", Observed: "500", Matches: true}, a)

	fee, ok := report.Check("fee")
	require.True(t, ok)
	assert.True(t, fee.Matches)

	assert.Equal(t, int64(5000000000), report.AdminFee.Int64())
	require.Len(t, report.Rates, 3)
	assert.Equal(t, "stored_rates", report.Rates[0].Source)
	assert.Equal(t, "price_oracle", report.Rates[2].Source)
}

func Test_Verify_Unreadable(t *testing.T) {
	t.Parallel()

	fake := healthyPool()
	fake.err = errors.New("connection refused")

	_, err := Verify(t.Context(), fake, poolAddr, testParams())
	require.ErrorContains(t, err, "N_COINS() failed: connection refused")

	fake = healthyPool()
	fake.reverts["fee()"] = true
	_, err = Verify(t.Context(), fake, poolAddr, testParams())
	require.ErrorContains(t, err, "fee() failed")
}

func Test_RateSourceFailure_Error(t *testing.T) {
	t.Parallel()

	f := RateSourceFailure{Source: "price_oracle", Index: 1, Reason: "returned zero"}
	assert.Equal(t, "price_oracle(1): returned zero", f.Error())
	require.ErrorIs(t, f, ErrRateSourceFailure)
}
