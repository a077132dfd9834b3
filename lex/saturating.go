// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lex

import (
	"math/big"

	"github.com/holiman/uint256"
)

// mulDiv computes floor(x*y/d) through a 512-bit intermediate product.
// Returns ErrDivisionByZero for d == 0 and ErrOverflow when the quotient
// does not fit 256 bits.
func mulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	p := new(big.Int).Mul(x.ToBig(), y.ToBig())
	p.Div(p, d.ToBig())
	out := new(uint256.Int)
	if overflow := out.SetFromBig(p); overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// mulDivUp computes ceil(x*y/d) with the same overflow contract as mulDiv.
func mulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	p := new(big.Int).Mul(x.ToBig(), y.ToBig())
	db := d.ToBig()
	var rem big.Int
	p.DivMod(p, db, &rem)
	if rem.Sign() != 0 {
		p.Add(p, big.NewInt(1))
	}
	out := new(uint256.Int)
	if overflow := out.SetFromBig(p); overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// saturatingMulDiv computes floor(x*y/d), clamping to MaxUint256 instead of
// erroring when the quotient overflows. A zero divisor also saturates
// rather than panicking; callers in the accrual path rely on that.
func saturatingMulDiv(x, y, d *uint256.Int) *uint256.Int {
	if d.IsZero() {
		return new(uint256.Int).Set(MaxUint256)
	}
	p := new(big.Int).Mul(x.ToBig(), y.ToBig())
	p.Div(p, d.ToBig())
	out := new(uint256.Int)
	if overflow := out.SetFromBig(p); overflow {
		return new(uint256.Int).Set(MaxUint256)
	}
	return out
}

// saturatingMulRsh computes floor(x*y >> shift), clamping to MaxUint256 on
// overflow. Used by the dex-unit rescaling where precision loss is the
// accepted trade-off for staying exitable.
func saturatingMulRsh(x, y *uint256.Int, shift uint) *uint256.Int {
	p := new(big.Int).Mul(x.ToBig(), y.ToBig())
	p.Rsh(p, shift)
	out := new(uint256.Int)
	if overflow := out.SetFromBig(p); overflow {
		return new(uint256.Int).Set(MaxUint256)
	}
	return out
}

// saturatingAdd clamps x+y to MaxUint256.
func saturatingAdd(x, y *uint256.Int) *uint256.Int {
	out, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return new(uint256.Int).Set(MaxUint256)
	}
	return out
}
