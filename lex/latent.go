// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lex

import (
	"math/big"

	"github.com/holiman/uint256"
)

// The governing invariant for a market with sqrt-price edges Sa < Q96 < Sb
// and current sqrt price S in [Sa, Sb]:
//
//	(L/sqrt(Pa) - Vy) * (L*sqrt(Pb) - Vl) = L^2
//
// which the balances
//
//	Vy(S) = L*Q96*(S-Sa)/(S*Sa)   (yield side, asset 0)
//	Vl(S) = L*(Sb-S)/Q96          (leverage side, asset 1)
//
// satisfy identically. Collateral value relates to liquidity by
//
//	L = Vc*Sa*Sb / (Q96*(Sb-Sa))
//
// so Vc equals the yield balance at the high edge: the full collateral is
// exactly the maximum debt the range can back.

// computeLiquidity solves the invariant for L given the two balances:
//
//	L = beta + sqrt(beta^2 - q)
//	beta = (Sa*Sb*Vy + Q96^2*Vl) / (2*Q96*(Sb-Sa))
//	q    = Vy*Vl*Sa / (Sb-Sa)
//
// beta^2 is a 512-bit quantity. Rounding at tiny balances can push q above
// beta^2; the correction term is then zero, never a root of a negative
// value. The comparison deciding that is the lexicographic 512-bit compare.
// roundUp biases the result up (used when solving for *remaining*
// liquidity, which must err toward protocol solvency).
func computeLiquidity(yieldBalance, leverageBalance, edgeLow, edgeHigh *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if edgeLow.IsZero() || edgeHigh.Cmp(edgeLow) <= 0 {
		return nil, ErrInvalidPriceEdges
	}
	width := new(uint256.Int).Sub(edgeHigh, edgeLow)

	// beta numerator: Sa*Sb*Vy + Q96^2*Vl
	n := new(big.Int).Mul(edgeLow.ToBig(), edgeHigh.ToBig())
	n.Mul(n, yieldBalance.ToBig())
	t := new(big.Int).Lsh(leverageBalance.ToBig(), 192)
	n.Add(n, t)

	den := new(big.Int).Lsh(width.ToBig(), 97)
	var beta *big.Int
	if roundUp {
		beta = bigCeilDiv(n, den)
	} else {
		beta = new(big.Int).Quo(n, den)
	}
	betaU, err := fromBigChecked(beta)
	if err != nil {
		return nil, err
	}

	// q = Vy*Vl*Sa/(Sb-Sa), kept at 512 bits.
	qb := new(big.Int).Mul(yieldBalance.ToBig(), leverageBalance.ToBig())
	qb.Mul(qb, edgeLow.ToBig())
	if roundUp {
		qb.Quo(qb, width.ToBig())
	} else {
		qb = bigCeilDiv(qb, width.ToBig())
	}
	q := uint512FromBig(qb)

	b2 := mul512(betaU, betaU)
	if cmp512(b2, q) <= 0 {
		return betaU, nil
	}
	root := sqrt512(sub512(b2, q))
	out, overflow := new(uint256.Int).AddOverflow(betaU, root)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// computeMint returns the yield and leverage balances backed by liquidity
// added at the current price, both rounded down (conservative to the
// protocol: a minter never receives more than the curve gained).
func computeMint(sqrtP, edgeLow, edgeHigh, liquidityIn *uint256.Int) (yieldOut, leverageOut *uint256.Int, err error) {
	yieldOut, err = amount0Delta(edgeLow, sqrtP, liquidityIn, false)
	if err != nil {
		return nil, nil, err
	}
	leverageOut, err = amount1Delta(sqrtP, edgeHigh, liquidityIn, false)
	if err != nil {
		return nil, nil, err
	}
	return yieldOut, leverageOut, nil
}

// computeRedeem estimates the liquidity removed when yieldIn and leverageIn
// balances are burned. Burning everything outstanding is a distinguished
// case: the caller receives all liquidity and the market resets to price 1.
// Otherwise the remaining balances are re-solved for the liquidity that
// still backs them, rounded up, and the difference is returned, clamped at
// zero.
func computeRedeem(liquidity, sqrtP, edgeLow, edgeHigh, yieldIn, leverageIn *uint256.Int) (removed *uint256.Int, fullBurn bool, err error) {
	yieldBalance, err := amount0Delta(edgeLow, sqrtP, liquidity, false)
	if err != nil {
		return nil, false, err
	}
	leverageBalance, err := amount1Delta(sqrtP, edgeHigh, liquidity, false)
	if err != nil {
		return nil, false, err
	}

	if yieldIn.Cmp(yieldBalance) >= 0 && leverageIn.Cmp(leverageBalance) >= 0 {
		return new(uint256.Int).Set(liquidity), true, nil
	}

	remainingYield := new(uint256.Int)
	if yieldIn.Cmp(yieldBalance) < 0 {
		remainingYield.Sub(yieldBalance, yieldIn)
	}
	remainingLeverage := new(uint256.Int)
	if leverageIn.Cmp(leverageBalance) < 0 {
		remainingLeverage.Sub(leverageBalance, leverageIn)
	}

	remaining, err := computeLiquidity(remainingYield, remainingLeverage, edgeLow, edgeHigh, true)
	if err != nil {
		return nil, false, err
	}
	if remaining.Cmp(liquidity) >= 0 {
		return new(uint256.Int), false, nil
	}
	return new(uint256.Int).Sub(liquidity, remaining), false, nil
}

// computeSwap moves the price along the curve for the fixed asset and
// returns the computed amount of the other, plus the post-swap sqrt price.
// fixedAsset identifies the asset whose amount is specified; isExactIn
// says whether that amount enters (is burned into) or leaves the curve.
// The price never crosses sqrtLimit; hitting it is an error, not a partial
// fill.
func computeSwap(liquidity, sqrtP, sqrtLimit *uint256.Int, fixedAsset Asset, amount *uint256.Int, isExactIn bool) (calculated, nextSqrtP *uint256.Int, err error) {
	if liquidity.IsZero() {
		return nil, nil, ErrZeroLiquidity
	}

	switch {
	case fixedAsset == AssetYield && isExactIn:
		// Yield burned: asset 0 enters, price moves down.
		nextSqrtP, err = nextSqrtPriceFromAmount0(sqrtP, liquidity, amount, true)
		if err != nil {
			return nil, nil, err
		}
		if nextSqrtP.Cmp(sqrtLimit) < 0 {
			return nil, nil, ErrPriceLimitReached
		}
		calculated, err = amount1Delta(nextSqrtP, sqrtP, liquidity, false)

	case fixedAsset == AssetLeverage && !isExactIn:
		// Exact leverage out: price moves down far enough to free it.
		nextSqrtP, err = nextSqrtPriceFromAmount1(sqrtP, liquidity, amount, false)
		if err != nil {
			return nil, nil, err
		}
		if nextSqrtP.Cmp(sqrtLimit) < 0 {
			return nil, nil, ErrPriceLimitReached
		}
		calculated, err = amount0Delta(nextSqrtP, sqrtP, liquidity, true)

	case fixedAsset == AssetLeverage && isExactIn:
		// Leverage burned: asset 1 enters, price moves up.
		nextSqrtP, err = nextSqrtPriceFromAmount1(sqrtP, liquidity, amount, true)
		if err != nil {
			return nil, nil, err
		}
		if nextSqrtP.Cmp(sqrtLimit) > 0 {
			return nil, nil, ErrPriceLimitReached
		}
		calculated, err = amount0Delta(sqrtP, nextSqrtP, liquidity, false)

	case fixedAsset == AssetYield && !isExactIn:
		// Exact yield out: price moves up far enough to mint it.
		nextSqrtP, err = nextSqrtPriceFromAmount0(sqrtP, liquidity, amount, false)
		if err != nil {
			return nil, nil, err
		}
		if nextSqrtP.Cmp(sqrtLimit) > 0 {
			return nil, nil, ErrPriceLimitReached
		}
		calculated, err = amount1Delta(sqrtP, nextSqrtP, liquidity, true)

	default:
		return nil, nil, ErrInvalidAsset
	}
	if err != nil {
		return nil, nil, err
	}
	return calculated, nextSqrtP, nil
}

// getXvsL is the quote value of one asset side per unit of liquidity at
// the current price, Q96-scaled so that value = L * XvsL / Q96. The yield
// form feeds the debt discount; the leverage form is the residual
// capacity above S.
func getXvsL(sqrtP, edgeLow, edgeHigh *uint256.Int, asset Asset) (*uint256.Int, error) {
	switch asset {
	case AssetYield:
		// Q96^2 * (S-Sa) / (S*Sa)
		if sqrtP.Cmp(edgeLow) <= 0 {
			return new(uint256.Int), nil
		}
		n := new(big.Int).Lsh(new(big.Int).Sub(sqrtP.ToBig(), edgeLow.ToBig()), 192)
		d := new(big.Int).Mul(sqrtP.ToBig(), edgeLow.ToBig())
		return fromBigChecked(n.Quo(n, d))
	case AssetLeverage:
		// Q96^2 * (Sb-S) / (S*Sb)
		if sqrtP.Cmp(edgeHigh) >= 0 {
			return new(uint256.Int), nil
		}
		n := new(big.Int).Lsh(new(big.Int).Sub(edgeHigh.ToBig(), sqrtP.ToBig()), 192)
		d := new(big.Int).Mul(sqrtP.ToBig(), edgeHigh.ToBig())
		return fromBigChecked(n.Quo(n, d))
	}
	return nil, ErrInvalidAsset
}

// computeLTV maps a sqrt price to a basis-points loan-to-value:
//
//	ltv = 10000 * Sb*(S-Sa) / (S*(Sb-Sa))
//
// 0 at the low edge, 10000 at the high edge, monotone in between. This is
// the yield balance over the collateral value, both per unit liquidity.
func computeLTV(edgeLow, edgeHigh, sqrtP *uint256.Int) uint64 {
	if sqrtP.Cmp(edgeLow) <= 0 {
		return 0
	}
	if sqrtP.Cmp(edgeHigh) >= 0 {
		return bpsDenominator
	}
	n := new(big.Int).Sub(sqrtP.ToBig(), edgeLow.ToBig())
	n.Mul(n, edgeHigh.ToBig())
	n.Mul(n, big.NewInt(int64(bpsDenominator)))
	d := new(big.Int).Sub(edgeHigh.ToBig(), edgeLow.ToBig())
	d.Mul(d, sqrtP.ToBig())
	return n.Quo(n, d).Uint64()
}

// computeMaxDebt is the largest yield-side notional the liquidity can back,
// reached at the high price edge. Rounded down.
func computeMaxDebt(edgeLow, edgeHigh, liquidity *uint256.Int) (*uint256.Int, error) {
	return amount0Delta(edgeLow, edgeHigh, liquidity, false)
}

// marketPoint is the solved per-touch market position on the curve.
type marketPoint struct {
	sqrtPrice           *uint256.Int // current price, ceil-rounded (toward higher debt valuation)
	leverageBalance     *uint256.Int // asset-1 balance at that price, floor
	residualValue       *uint256.Int // quote value left for the leverage side, floor
	underCollateralized bool
}

// marketStateFromLiquidityAndDebt solves the inverse problem: given the
// liquidity and the yield-side value, derive the price. The price rounds
// up, toward higher debt valuation. A debt the liquidity cannot back pins
// the price to the high edge and zeroes the leverage side.
func marketStateFromLiquidityAndDebt(edgeLow, edgeHigh, liquidity, debtValue *uint256.Int) (*marketPoint, error) {
	if liquidity.IsZero() {
		return nil, ErrZeroLiquidity
	}
	lq := new(big.Int).Lsh(liquidity.ToBig(), 96)
	ds := new(big.Int).Mul(debtValue.ToBig(), edgeLow.ToBig())

	pt := &marketPoint{}
	if ds.Cmp(lq) >= 0 {
		pt.underCollateralized = true
	} else {
		num := new(big.Int).Mul(lq, edgeLow.ToBig())
		s := bigCeilDiv(num, new(big.Int).Sub(lq, ds))
		sU, err := fromBigChecked(s)
		if err != nil {
			// Price beyond any representable value: the debt consumed the range.
			pt.underCollateralized = true
		} else if sU.Cmp(edgeHigh) > 0 {
			pt.underCollateralized = true
		} else {
			if sU.Cmp(edgeLow) < 0 {
				sU.Set(edgeLow)
			}
			pt.sqrtPrice = sU
		}
	}

	if pt.underCollateralized {
		pt.sqrtPrice = new(uint256.Int).Set(edgeHigh)
		pt.leverageBalance = new(uint256.Int)
		pt.residualValue = new(uint256.Int)
		return pt, nil
	}

	var err error
	pt.leverageBalance, err = amount1Delta(pt.sqrtPrice, edgeHigh, liquidity, false)
	if err != nil {
		return nil, err
	}
	pt.residualValue, err = amount0Delta(pt.sqrtPrice, edgeHigh, liquidity, false)
	if err != nil {
		return nil, err
	}
	return pt, nil
}

// liquidityFromCollateral converts a quote-denominated collateral value to
// liquidity: L = Vc*Sa*Sb/(Q96*(Sb-Sa)), rounded down.
func liquidityFromCollateral(collateralValue, edgeLow, edgeHigh *uint256.Int) (*uint256.Int, error) {
	n := new(big.Int).Mul(edgeLow.ToBig(), edgeHigh.ToBig())
	n.Mul(n, collateralValue.ToBig())
	d := new(big.Int).Lsh(new(big.Int).Sub(edgeHigh.ToBig(), edgeLow.ToBig()), 96)
	return fromBigChecked(n.Quo(n, d))
}

// collateralFromLiquidity is the inverse of liquidityFromCollateral,
// rounded down: Vc = L*Q96*(Sb-Sa)/(Sa*Sb).
func collateralFromLiquidity(liquidity, edgeLow, edgeHigh *uint256.Int) (*uint256.Int, error) {
	return amount0Delta(edgeLow, edgeHigh, liquidity, false)
}
