// Package verify reads back the public state of a freshly deployed pool and cross-checks it
// against the parameters it was created with. It never sends a transaction.
package verify

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"

	"github.com/stableswap-ng/pool-deployer/chain/evm"
	"github.com/stableswap-ng/pool-deployer/contracts"
	"github.com/stableswap-ng/pool-deployer/pool"
)

// APrecision is the factor the pool stores its amplification coefficient with.
const APrecision = 100

var (
	// ErrRateSourceFailure means a rate read of the pool reverted or returned zero. The pool
	// exists but cannot price its coins.
	ErrRateSourceFailure = errors.New("rate source failure")
	// ErrParameterMismatch means the pool state differs from the submitted parameters.
	ErrParameterMismatch = errors.New("parameter mismatch")
)

// Caller executes read-only calls.
type Caller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Check compares one field of the pool with the value it was created with.
type Check struct {
	Field    string `json:"field"`
	Expected string `json:"expected"`
	Observed string `json:"observed"`
	Matches  bool   `json:"matches"`
}

// RateReading is a rate the pool returned.
type RateReading struct {
	Source string   `json:"source"`
	Index  int      `json:"index"`
	Value  *big.Int `json:"value"`
}

// RateSourceFailure describes a rate read that reverted or returned zero.
type RateSourceFailure struct {
	Source string `json:"source"`
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

func (f RateSourceFailure) Error() string {
	return fmt.Sprintf("%s(%d): %s", f.Source, f.Index, f.Reason)
}

// Unwrap lets errors.Is match ErrRateSourceFailure.
func (f RateSourceFailure) Unwrap() error {
	return ErrRateSourceFailure
}

// Report is the outcome of a verification.
type Report struct {
	Pool     common.Address      `json:"pool"`
	AdminFee *big.Int            `json:"admin_fee"`
	Checks   []Check             `json:"checks"`
	Rates    []RateReading       `json:"rates"`
	Failures []RateSourceFailure `json:"failures"`
}

// Matches reports whether every check matched.
func (r Report) Matches() bool {
	return len(r.Mismatches()) == 0
}

// Mismatches returns the checks that did not match.
func (r Report) Mismatches() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.Matches {
			out = append(out, c)
		}
	}

	return out
}

// Check returns the check of field.
func (r Report) Check(field string) (Check, bool) {
	for _, c := range r.Checks {
		if c.Field == field {
			return c, true
		}
	}

	return Check{}, false
}

// Err returns an error matching ErrRateSourceFailure when any rate read failed, joined with an
// error matching ErrParameterMismatch for every check that did not match. It is nil for a
// healthy pool.
func (r Report) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f)
	}
	for _, c := range r.Mismatches() {
		errs = append(errs, fmt.Errorf("%w: %s is %s, want %s", ErrParameterMismatch, c.Field, c.Observed, c.Expected))
	}

	return errors.Join(errs...)
}

type reader struct {
	caller Caller
	pool   common.Address
}

func (r reader) call(ctx context.Context, fn *w3.Func, out any, args ...any) error {
	input, err := fn.EncodeArgs(args...)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", fn.Signature, err)
	}

	ret, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.pool, Data: input}, nil)
	if err != nil {
		if reason, ok := evm.RevertReason(err); ok {
			return fmt.Errorf("%s reverted: %s", fn.Signature, reason)
		}

		return fmt.Errorf("%s failed: %w", fn.Signature, err)
	}
	if len(ret) == 0 {
		return fmt.Errorf("%s returned no data", fn.Signature)
	}
	if err = fn.DecodeReturns(ret, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", fn.Signature, err)
	}

	return nil
}

func (r reader) uint(ctx context.Context, fn *w3.Func, args ...any) (*big.Int, error) {
	var v *big.Int
	if err := r.call(ctx, fn, &v, args...); err != nil {
		return nil, err
	}

	return v, nil
}

// Verify reads the state of the pool at poolAddr and compares it with params. The returned
// error is set only when the pool cannot be read at all. Rate failures and mismatches are part
// of the report, see Report.Err.
func Verify(ctx context.Context, caller Caller, poolAddr common.Address, params pool.Parameters) (Report, error) {
	r := reader{caller: caller, pool: poolAddr}
	report := Report{Pool: poolAddr}

	nCoins, err := r.uint(ctx, contracts.FuncNCoins)
	if err != nil {
		return report, err
	}
	report.addUint("N_COINS", uint64(params.NumCoins()), nCoins)

	expectedA := new(big.Int).SetUint64(params.A)
	fields := []struct {
		name string
		fn   *w3.Func
		want *big.Int
	}{
		{name: "A", fn: contracts.FuncA, want: expectedA},
		{name: "initial_A", fn: contracts.FuncInitialA, want: new(big.Int).Mul(expectedA, big.NewInt(APrecision))},
		{name: "fee", fn: contracts.FuncFee, want: new(big.Int).SetUint64(params.Fee)},
		{name: "offpeg_fee_multiplier", fn: contracts.FuncOffpegFeeMultiplier, want: new(big.Int).SetUint64(params.OffpegFeeMultiplier)},
		{name: "ma_exp_time", fn: contracts.FuncMaExpTime, want: new(big.Int).SetUint64(params.MovingAverageHalfLife)},
	}
	for _, f := range fields {
		got, ferr := r.uint(ctx, f.fn)
		if ferr != nil {
			return report, ferr
		}
		report.add(f.name, f.want, got)
	}

	if report.AdminFee, err = r.uint(ctx, contracts.FuncAdminFee); err != nil {
		return report, err
	}

	for _, c := range params.CoinList() {
		var got common.Address
		if err = r.call(ctx, contracts.FuncCoins, &got, big.NewInt(int64(c.Index))); err != nil {
			return report, err
		}
		report.Checks = append(report.Checks, Check{
			Field:    "coins[" + strconv.Itoa(c.Index) + "]",
			Expected: c.Address.Hex(),
			Observed: got.Hex(),
			Matches:  got == c.Address,
		})
	}

	report.readRates(ctx, r, params.NumCoins())

	return report, nil
}

// readRates records stored_rates() and price_oracle(i) for every non-base coin index.
func (rep *Report) readRates(ctx context.Context, r reader, n int) {
	var stored []*big.Int
	if err := r.call(ctx, contracts.FuncStoredRates, &stored); err != nil {
		rep.fail("stored_rates", -1, err.Error())
	} else {
		for i, rate := range stored {
			rep.rate("stored_rates", i, rate)
		}
		if len(stored) < n {
			rep.fail("stored_rates", len(stored), fmt.Sprintf("returned %d rates for %d coins", len(stored), n))
		}
	}

	for i := range max(n-1, 0) {
		price, err := r.uint(ctx, contracts.FuncPriceOracle, big.NewInt(int64(i)))
		if err != nil {
			rep.fail("price_oracle", i, err.Error())
			continue
		}
		rep.rate("price_oracle", i, price)
	}
}

func (rep *Report) rate(source string, i int, v *big.Int) {
	if v == nil || v.Sign() == 0 {
		rep.fail(source, i, "returned zero")
		return
	}
	rep.Rates = append(rep.Rates, RateReading{Source: source, Index: i, Value: v})
}

func (rep *Report) fail(source string, i int, reason string) {
	rep.Failures = append(rep.Failures, RateSourceFailure{Source: source, Index: i, Reason: reason})
}

func (rep *Report) add(field string, want, got *big.Int) {
	rep.Checks = append(rep.Checks, Check{
		Field:    field,
		Expected: want.String(),
		Observed: got.String(),
		Matches:  want.Cmp(got) == 0,
	})
}

func (rep *Report) addUint(field string, want uint64, got *big.Int) {
	rep.add(field, new(big.Int).SetUint64(want), got)
}
