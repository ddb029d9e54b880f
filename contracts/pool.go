package contracts

import "github.com/lmittmann/w3"

// Read-only getters of a deployed stable-swap pool.
var (
	FuncInitialA            = w3.MustNewFunc("initial_A()", "uint256")
	FuncA                   = w3.MustNewFunc("A()", "uint256")
	FuncFee                 = w3.MustNewFunc("fee()", "uint256")
	FuncAdminFee            = w3.MustNewFunc("admin_fee()", "uint256")
	FuncOffpegFeeMultiplier = w3.MustNewFunc("offpeg_fee_multiplier()", "uint256")
	FuncMaExpTime           = w3.MustNewFunc("ma_exp_time()", "uint256")
	FuncNCoins              = w3.MustNewFunc("N_COINS()", "uint256")
	FuncCoins               = w3.MustNewFunc("coins(uint256)", "address")
	FuncStoredRates         = w3.MustNewFunc("stored_rates()", "uint256[]")
	FuncPriceOracle         = w3.MustNewFunc("price_oracle(uint256)", "uint256")
)
