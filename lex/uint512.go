// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lex

import (
	"math/big"

	"github.com/holiman/uint256"
)

// uint512 is a 512-bit unsigned integer over two 256-bit limbs. It backs the
// quadratic liquidity solver, whose beta^2 term does not fit 256 bits.
type uint512 struct {
	hi uint256.Int
	lo uint256.Int
}

// mul512 sets z to the full 512-bit product x*y.
func mul512(x, y *uint256.Int) *uint512 {
	p := new(big.Int).Mul(x.ToBig(), y.ToBig())
	return uint512FromBig(p)
}

// uint512FromBig truncates v to 512 bits. v must be non-negative.
func uint512FromBig(v *big.Int) *uint512 {
	z := new(uint512)
	var buf [64]byte
	v.FillBytes(buf[:])
	z.hi.SetBytes(buf[:32])
	z.lo.SetBytes(buf[32:])
	return z
}

func (z *uint512) toBig() *big.Int {
	out := new(big.Int).SetBytes(z.hi.Bytes())
	out.Lsh(out, 256)
	return out.Add(out, new(big.Int).SetBytes(z.lo.Bytes()))
}

// cmp512 compares a and b lexicographically: high limbs first, low limbs
// only when the high limbs are equal. Collapsing this into a single OR of
// partial conditions is incorrect and has bitten a prior implementation.
func cmp512(a, b *uint512) int {
	if c := a.hi.Cmp(&b.hi); c != 0 {
		return c
	}
	return a.lo.Cmp(&b.lo)
}

// sub512 sets z = a - b with borrow between limbs. It wraps on underflow;
// callers establish a >= b with cmp512 first.
func sub512(a, b *uint512) *uint512 {
	z := new(uint512)
	_, borrow := z.lo.SubOverflow(&a.lo, &b.lo)
	z.hi.Sub(&a.hi, &b.hi)
	if borrow {
		z.hi.Sub(&z.hi, uint256.NewInt(1))
	}
	return z
}

// sqrt512 returns floor(sqrt(z)) as a 256-bit value. The refinement runs on
// a big.Int floor square root; the trailing correction pins the result to
// the exact floor even if the seed were off by an ulp.
func sqrt512(z *uint512) *uint256.Int {
	v := z.toBig()
	r := new(big.Int).Sqrt(v)

	one := big.NewInt(1)
	sq := new(big.Int)
	for {
		next := new(big.Int).Add(r, one)
		if sq.Mul(next, next).Cmp(v) > 0 {
			break
		}
		r.Set(next)
	}
	for sq.Mul(r, r).Cmp(v) > 0 {
		r.Sub(r, one)
	}

	out := new(uint256.Int)
	out.SetFromBig(r)
	return out
}

// isZero512 reports whether both limbs are zero.
func isZero512(z *uint512) bool {
	return z.hi.IsZero() && z.lo.IsZero()
}
