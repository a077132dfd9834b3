// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lex

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Sqrt-price primitives for the active range, in Q64.96. These mirror the
// concentrated-liquidity formulas: asset 0 is the yield (quote-notional)
// side, asset 1 the leverage side.
//
// Every function takes an explicit rounding direction from the caller; the
// functions themselves never clamp to the price edges, but they also never
// misround across a boundary the caller supplied.

func bigCeilDiv(n, d *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(n, d, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

func fromBigChecked(v *big.Int) (*uint256.Int, error) {
	out := new(uint256.Int)
	if overflow := out.SetFromBig(v); overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// nextSqrtPriceFromAmount0 returns the sqrt price after adding (add=true)
// or removing an amount of asset 0 at the given liquidity. Adding asset 0
// moves the price down. The result is rounded up, so the movement never
// overstates what the curve received:
//
//	next = L*Q96*sqrtP / (L*Q96 +- amount*sqrtP)
func nextSqrtPriceFromAmount0(sqrtP, liquidity, amount *uint256.Int, add bool) (*uint256.Int, error) {
	if amount.IsZero() {
		return new(uint256.Int).Set(sqrtP), nil
	}
	if liquidity.IsZero() || sqrtP.IsZero() {
		return nil, ErrZeroLiquidity
	}

	lq := new(big.Int).Lsh(liquidity.ToBig(), 96)
	product := new(big.Int).Mul(amount.ToBig(), sqrtP.ToBig())
	numerator := new(big.Int).Mul(lq, sqrtP.ToBig())

	denominator := new(big.Int)
	if add {
		denominator.Add(lq, product)
	} else {
		if product.Cmp(lq) >= 0 {
			return nil, ErrInsufficientLiquidity
		}
		denominator.Sub(lq, product)
	}
	return fromBigChecked(bigCeilDiv(numerator, denominator))
}

// nextSqrtPriceFromAmount1 returns the sqrt price after adding (add=true)
// or removing an amount of asset 1. Adding asset 1 moves the price up. The
// result is rounded down, the conservative direction for this side:
//
//	next = sqrtP +- amount*Q96/L
func nextSqrtPriceFromAmount1(sqrtP, liquidity, amount *uint256.Int, add bool) (*uint256.Int, error) {
	if amount.IsZero() {
		return new(uint256.Int).Set(sqrtP), nil
	}
	if liquidity.IsZero() {
		return nil, ErrZeroLiquidity
	}

	shifted := new(big.Int).Lsh(amount.ToBig(), 96)
	lb := liquidity.ToBig()
	if add {
		quotient := new(big.Int).Quo(shifted, lb)
		return fromBigChecked(quotient.Add(sqrtP.ToBig(), quotient))
	}
	// Removal rounds the step up so the price is not understated.
	quotient := bigCeilDiv(shifted, lb)
	next := new(big.Int).Sub(sqrtP.ToBig(), quotient)
	if next.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	return fromBigChecked(next)
}

// amount0Delta returns the asset-0 amount separating two sqrt prices at the
// given liquidity: L*Q96*(upper-lower)/(upper*lower).
func amount0Delta(sqrtA, sqrtB, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	if sqrtA.IsZero() {
		return nil, ErrInvalidSqrtPrice
	}
	numerator := new(big.Int).Lsh(liquidity.ToBig(), 96)
	numerator.Mul(numerator, new(big.Int).Sub(sqrtB.ToBig(), sqrtA.ToBig()))
	denominator := new(big.Int).Mul(sqrtB.ToBig(), sqrtA.ToBig())
	if roundUp {
		return fromBigChecked(bigCeilDiv(numerator, denominator))
	}
	return fromBigChecked(numerator.Quo(numerator, denominator))
}

// amount1Delta returns the asset-1 amount separating two sqrt prices at the
// given liquidity: L*(upper-lower)/Q96.
func amount1Delta(sqrtA, sqrtB, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	diff := new(uint256.Int).Sub(sqrtB, sqrtA)
	if roundUp {
		return mulDivUp(liquidity, diff, Q96)
	}
	return mulDiv(liquidity, diff, Q96)
}
