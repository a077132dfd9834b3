// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lex

import (
	"math/big"

	"github.com/holiman/uint256"
)

// ln(2) at WAD precision.
var ln2Wad = uint256.NewInt(693147180559945309)

// log2 fractional bits computed by the squaring loop. 59 rounds is below
// one WAD ulp of residual error.
const log2FracIters = 59

// log2Wad computes log2(x) at WAD precision for x >= WAD, rounded down.
// Integer part from the bit length, fractional part by iterated squaring:
// squaring doubles the logarithm, so each round extracts one bit.
func log2Wad(x *uint256.Int) *uint256.Int {
	one := WAD
	two := new(uint256.Int).Lsh(one, 1)

	// Normalize x into [WAD, 2*WAD).
	msb := 0
	y := new(uint256.Int).Set(x)
	for y.Cmp(two) >= 0 {
		y.Rsh(y, 1)
		msb++
	}

	result := new(uint256.Int).Mul(uint256.NewInt(uint64(msb)), one)
	delta := new(uint256.Int).Rsh(one, 1)
	sq := new(uint256.Int)
	for i := 0; i < log2FracIters; i++ {
		sq.Mul(y, y)
		y.Div(sq, one)
		if y.Cmp(two) >= 0 {
			result.Add(result, delta)
			y.Rsh(y, 1)
		}
		delta.Rsh(delta, 1)
	}
	return result
}

// lnWad computes the natural logarithm of a WAD-scaled positive value,
// returned as a signed WAD-scaled big.Int rounded toward zero. Inputs
// below one are inverted first; ln(x) = -ln(1/x), and the flooring
// reciprocal keeps the overall rounding toward zero.
func lnWad(x *uint256.Int) (*big.Int, error) {
	if x.IsZero() {
		return nil, ErrLogOfZero
	}
	neg := false
	v := new(uint256.Int).Set(x)
	if v.Cmp(WAD) < 0 {
		wad2 := new(uint256.Int).Mul(WAD, WAD)
		v.Div(wad2, v)
		neg = true
	}
	l2 := log2Wad(v)
	ln := new(uint256.Int).Mul(l2, ln2Wad)
	ln.Div(ln, WAD)
	out := ln.ToBig()
	if neg {
		out.Neg(out)
	}
	return out, nil
}

// expTaylorWad approximates e^(x/WAD) * WAD for x >= 0 with a third-order
// series:
//
//	f = WAD + x + x2/2 + x3/6
//	x2 = ceil(x*x/WAD), x3 = floor(x2*x/WAD)
//
// The mixed rounding is deliberate and load-bearing: accrual results
// depend on it bit for bit. All steps saturate, so a hostile elapsed time
// yields a huge factor rather than a wrapped one.
func expTaylorWad(x *uint256.Int) *uint256.Int {
	xb := x.ToBig()
	x2b := bigCeilDiv(new(big.Int).Mul(xb, xb), WAD.ToBig())
	x2, err := fromBigChecked(x2b)
	if err != nil {
		x2 = new(uint256.Int).Set(MaxUint256)
	}
	x3 := saturatingMulDiv(x2, x, WAD)

	f := saturatingAdd(WAD, x)
	f = saturatingAdd(f, new(uint256.Int).Rsh(x2, 1))
	f = saturatingAdd(f, new(uint256.Int).Div(x3, uint256.NewInt(6)))
	return f
}

// accrueInterestLnRate grows (or shrinks) amount by e^(lnRate*elapsed/duration).
// lnRate is a signed WAD-scaled log rate. Positive rates multiply by the
// series factor rounding down and saturating; negative rates divide by it,
// flooring but never below one for a positive amount, so dust debt cannot
// silently vanish.
func accrueInterestLnRate(amount *uint256.Int, lnRate *big.Int, elapsed, duration uint64) *uint256.Int {
	if amount.IsZero() || lnRate.Sign() == 0 || elapsed == 0 || duration == 0 {
		return new(uint256.Int).Set(amount)
	}

	mag := new(big.Int).Abs(lnRate)
	mag.Mul(mag, new(big.Int).SetUint64(elapsed))
	mag.Quo(mag, new(big.Int).SetUint64(duration))
	x, err := fromBigChecked(mag)
	if err != nil {
		x = new(uint256.Int).Set(MaxUint256)
	}
	f := expTaylorWad(x)

	if lnRate.Sign() > 0 {
		return saturatingMulDiv(amount, f, WAD)
	}
	out := saturatingMulDiv(amount, WAD, f)
	if out.IsZero() {
		return uint256.NewInt(1)
	}
	return out
}

// decayTowardZero shrinks a signed WAD quantity by the same exponential
// factor, preserving sign. Used for the adaptive rate bias, which relaxes
// toward zero between touches.
func decayTowardZero(value *big.Int, elapsed, duration uint64) *big.Int {
	if value.Sign() == 0 || elapsed == 0 || duration == 0 {
		return new(big.Int).Set(value)
	}
	mag, err := fromBigChecked(new(big.Int).Abs(value))
	if err != nil {
		mag = new(uint256.Int).Set(MaxUint256)
	}
	x := new(big.Int).Mul(new(big.Int).SetUint64(elapsed), ln2Wad.ToBig())
	x.Quo(x, new(big.Int).SetUint64(duration))
	xU, err := fromBigChecked(x)
	if err != nil {
		xU = new(uint256.Int).Set(MaxUint256)
	}
	f := expTaylorWad(xU)
	out := saturatingMulDiv(mag, WAD, f).ToBig()
	if value.Sign() < 0 {
		out.Neg(out)
	}
	return out
}

// halfLifeDecay moves current toward target with the given half-life: the
// gap halves every halfLife seconds. Whole half-lives are an exact right
// shift; only the fractional remainder goes through the series factor,
// whose argument then stays below ln2 where the three-term series is
// accurate. Feeding the series the full elapsed time instead would
// underestimate e^x badly for long gaps and the gap would never close.
func halfLifeDecay(current, target *uint256.Int, elapsed, halfLife uint64) *uint256.Int {
	if elapsed == 0 || halfLife == 0 || current.Cmp(target) == 0 {
		return new(uint256.Int).Set(current)
	}
	whole := elapsed / halfLife
	frac := elapsed % halfLife

	gap := new(uint256.Int)
	above := current.Cmp(target) > 0
	if above {
		gap.Sub(current, target)
	} else {
		gap.Sub(target, current)
	}
	if whole >= 256 {
		gap.Clear()
	} else {
		gap.Rsh(gap, uint(whole))
	}
	if frac > 0 && !gap.IsZero() {
		x := new(uint256.Int).Mul(ln2Wad, uint256.NewInt(frac))
		x.Div(x, uint256.NewInt(halfLife))
		gap = saturatingMulDiv(gap, WAD, expTaylorWad(x))
	}
	if above {
		return new(uint256.Int).Add(target, gap)
	}
	return new(uint256.Int).Sub(target, gap)
}

// linearFee is the simple-interest accrual amount*rate*elapsed over a year,
// rounded down: the truncated remainder is handled separately by the
// caller's probabilistic rounding.
func linearFee(amount, rateWad *uint256.Int, elapsed uint64) (fee, remainder *uint256.Int) {
	n := new(big.Int).Mul(amount.ToBig(), rateWad.ToBig())
	n.Mul(n, new(big.Int).SetUint64(elapsed))
	d := new(big.Int).Mul(WAD.ToBig(), big.NewInt(secondsPerYear))
	q, r := new(big.Int).QuoRem(n, d, new(big.Int))
	fu, err := fromBigChecked(q)
	if err != nil {
		fu = new(uint256.Int).Set(MaxUint256)
	}
	ru, err := fromBigChecked(r)
	if err != nil {
		ru = new(uint256.Int)
	}
	return fu, ru
}
