package pool

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidParameters is the category of every parameter validation failure.
var ErrInvalidParameters = errors.New("invalid parameters")

// ValidationError names the offending parameter field. It unwraps to ErrInvalidParameters.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidParameters, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidParameters
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report the configuration name of a field rather than the Go name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	// String[N] bounds are byte lengths, the builtin max counts runes.
	if err := v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}

		return len(fl.Field().String()) <= limit
	}); err != nil {
		panic(err)
	}

	return v
}

// Validate checks p in order: (a) the coin list, (b) the width of the aligned arrays, (c) the
// numeric ranges enforced by the contracts, and (d) that every rate-bearing coin has a way to
// fetch its rate. It fails on the first violation with a *ValidationError, and returns a copy of p
// otherwise.
func Validate(p Parameters) (Parameters, error) {
	if err := validateCoins(p); err != nil {
		return Parameters{}, err
	}
	if err := validateSlots(p); err != nil {
		return Parameters{}, err
	}
	if err := validateRanges(p); err != nil {
		return Parameters{}, err
	}
	if err := validateRateSources(p); err != nil {
		return Parameters{}, err
	}

	return p.Clone(), nil
}

func validateCoins(p Parameters) error {
	if len(p.Coins) > MaxCoins {
		return invalid("coins", "got %d entries, capacity is %d", len(p.Coins), MaxCoins)
	}

	n := p.NumCoins()
	if n < MinCoins {
		return invalid("coins", "need at least %d coins, got %d", MinCoins, n)
	}

	seen := make(map[common.Address]int, n)
	for i, c := range p.Coins[:n] {
		if c == (common.Address{}) {
			return invalid(fmt.Sprintf("coins[%d]", i), "placeholder must only follow the last coin")
		}
		if j, ok := seen[c]; ok {
			return invalid(fmt.Sprintf("coins[%d]", i), "duplicate of coins[%d] (%s)", j, c.Hex())
		}
		seen[c] = i
	}

	return nil
}

func validateSlots(p Parameters) error {
	slots := []struct {
		field string
		n     int
	}{
		{"asset_types", len(p.AssetTypes)},
		{"rate_method_ids", len(p.RateMethodIDs)},
		{"rate_oracles", len(p.RateOracles)},
	}
	for _, s := range slots {
		if s.n != MaxCoins {
			return invalid(s.field, "length mismatch: got %d slots, want %d", s.n, MaxCoins)
		}
	}

	return nil
}

func validateRanges(p Parameters) error {
	if err := structValidator.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) == 0 {
			return invalid("parameters", "%v", err)
		}

		return fieldError(verrs[0])
	}

	// fee * offpeg_fee_multiplier may exceed 64 bits.
	product := new(big.Int).Mul(new(big.Int).SetUint64(p.Fee), new(big.Int).SetUint64(p.OffpegFeeMultiplier))
	limit := new(big.Int).Mul(new(big.Int).SetUint64(MaxDynamicFee), new(big.Int).SetUint64(FeeDenominator))
	if product.Cmp(limit) > 0 {
		return invalid("offpeg_fee_multiplier", "fee * offpeg_fee_multiplier must be at most %s, got %s", limit, product)
	}

	return nil
}

func fieldError(fe validator.FieldError) error {
	switch fe.Tag() {
	case "required":
		return invalid(fe.Field(), "must not be empty")
	case "maxbytes":
		return invalid(fe.Field(), "must be at most %s bytes, got %d", fe.Param(), len(fmt.Sprint(fe.Value())))
	case "gt":
		return invalid(fe.Field(), "must be greater than %s, got %v", fe.Param(), fe.Value())
	case "lt":
		return invalid(fe.Field(), "must be less than %s, got %v", fe.Param(), fe.Value())
	case "lte":
		return invalid(fe.Field(), "must be at most %s, got %v", fe.Param(), fe.Value())
	default:
		return invalid(fe.Field(), "failed %q check", fe.Tag())
	}
}

func validateRateSources(p Parameters) error {
	n := p.NumCoins()
	for i := range MaxCoins {
		t := p.AssetTypes[i]
		method := p.RateMethodIDs[i]
		oracle := p.RateOracles[i]

		if !t.Valid() {
			return invalid(fmt.Sprintf("asset_types[%d]", i), "unknown asset type %d", uint8(t))
		}

		if i >= n {
			switch {
			case t != AssetStandard:
				return invalid(fmt.Sprintf("asset_types[%d]", i), "placeholder slot must be %s, got %s", AssetStandard, t)
			case !method.IsZero():
				return invalid(fmt.Sprintf("rate_method_ids[%d]", i), "placeholder slot must be empty, got %s", method)
			case oracle != (common.Address{}):
				return invalid(fmt.Sprintf("rate_oracles[%d]", i), "placeholder slot must be empty, got %s", oracle.Hex())
			}

			continue
		}

		switch t {
		case AssetOracle:
			// The oracle may be omitted (the coin itself answers), the method never can.
			if method.IsZero() {
				return invalid(fmt.Sprintf("rate_method_ids[%d]", i), "%s coin %s has no rate method id", t, p.Coins[i].Hex())
			}
		case AssetRebasing, AssetERC4626:
			if method.IsZero() && oracle == (common.Address{}) {
				return invalid(fmt.Sprintf("rate_method_ids[%d]", i), "%s coin %s has neither a rate method id nor a rate oracle", t, p.Coins[i].Hex())
			}
		case AssetStandard:
		}
	}

	return nil
}
