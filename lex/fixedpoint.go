// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lex

import "github.com/holiman/uint256"

// Binary fixed-point bases. Sqrt prices are Q64.96, squared prices Q192,
// fee-growth style accumulators Q128.
var (
	Q96  = new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	Q128 = new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	Q192 = new(uint256.Int).Lsh(uint256.NewInt(1), 192)
)

// Decimal fixed-point bases.
var (
	// WAD = 1e18, the unit for token prices, rates and the debt notional.
	WAD = uint256.MustFromDecimal("1000000000000000000")
	// RAY = 1e27, used for intermediate rate precision.
	RAY = uint256.MustFromDecimal("1000000000000000000000000000")
)

// MaxUint256 is the saturation value for clamping arithmetic.
var MaxUint256 = new(uint256.Int).Sub(new(uint256.Int), uint256.NewInt(1))

// maxClaimSupply is the absolute per-token supply ceiling (2^242). Keeping
// claim supplies under this bound keeps every downstream product inside the
// 512-bit intermediates.
var maxClaimSupply = new(uint256.Int).Lsh(uint256.NewInt(1), 242)

// maxDexLiquidityBits bounds scaled liquidity (2^152) so the quadratic
// solver's beta^2 stays inside 512 bits with headroom.
const maxDexLiquidityBits = 152

var maxDexLiquidity = new(uint256.Int).Lsh(uint256.NewInt(1), maxDexLiquidityBits)

// pow10 returns 10^n for the decimal-scaling exponent between quote and
// claim-token decimals. n is capped at 77 (10^78 overflows 256 bits).
func pow10(n uint8) *uint256.Int {
	if n > 77 {
		return new(uint256.Int).Set(MaxUint256)
	}
	ten := uint256.NewInt(10)
	out := uint256.NewInt(1)
	for i := uint8(0); i < n; i++ {
		out.Mul(out, ten)
	}
	return out
}
