// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lex

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
)

func u(dec string) *uint256.Int { return uint256.MustFromDecimal(dec) }

func TestCmp512Lexicographic(t *testing.T) {
	one := uint256.NewInt(1)
	two := uint256.NewInt(2)

	tests := []struct {
		name string
		a, b *uint512
		want int
	}{
		{
			name: "equal",
			a:    &uint512{hi: *one, lo: *two},
			b:    &uint512{hi: *one, lo: *two},
			want: 0,
		},
		{
			name: "high limb decides",
			a:    &uint512{hi: *two, lo: *one},
			b:    &uint512{hi: *one, lo: *two},
			want: 1,
		},
		{
			name: "low limb breaks ties",
			a:    &uint512{hi: *one, lo: *one},
			b:    &uint512{hi: *one, lo: *two},
			want: -1,
		},
		{
			// The case an OR of partial comparisons gets wrong: a has the
			// smaller high limb but the larger low limb.
			name: "smaller high larger low",
			a:    &uint512{hi: *one, lo: *MaxUint256},
			b:    &uint512{hi: *two, lo: *new(uint256.Int)},
			want: -1,
		},
		{
			name: "larger high smaller low",
			a:    &uint512{hi: *two, lo: *new(uint256.Int)},
			b:    &uint512{hi: *one, lo: *MaxUint256},
			want: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cmp512(tt.a, tt.b); got != tt.want {
				t.Errorf("cmp512 = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMul512RoundTrip(t *testing.T) {
	xs := []*uint256.Int{
		uint256.NewInt(0),
		uint256.NewInt(1),
		u("340282366920938463463374607431768211455"), // 2^128-1
		new(uint256.Int).Set(MaxUint256),
	}
	for _, x := range xs {
		for _, y := range xs {
			p := mul512(x, y)
			want := new(big.Int).Mul(x.ToBig(), y.ToBig())
			if p.toBig().Cmp(want) != 0 {
				t.Errorf("mul512(%s, %s) = %s, want %s", x, y, p.toBig(), want)
			}
		}
	}
}

func TestSub512Borrow(t *testing.T) {
	// hi:1 lo:0 minus hi:0 lo:1 borrows across the limb boundary.
	a := &uint512{hi: *uint256.NewInt(1)}
	b := &uint512{lo: *uint256.NewInt(1)}
	d := sub512(a, b)
	if !d.hi.IsZero() || d.lo.Cmp(MaxUint256) != 0 {
		t.Errorf("sub512 borrow: hi=%s lo=%s", &d.hi, &d.lo)
	}

	want := new(big.Int).Sub(a.toBig(), b.toBig())
	if d.toBig().Cmp(want) != 0 {
		t.Errorf("sub512 = %s, want %s", d.toBig(), want)
	}
}

func TestSqrt512(t *testing.T) {
	tests := []struct {
		name string
		v    *big.Int
	}{
		{"zero", big.NewInt(0)},
		{"one", big.NewInt(1)},
		{"perfect square", new(big.Int).Lsh(big.NewInt(1), 300)},
		{"square minus one", new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 300), big.NewInt(1))},
		{"square plus one", new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 300), big.NewInt(1))},
		{"near 2^512", new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 512), big.NewInt(12345))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sqrt512(uint512FromBig(tt.v)).ToBig()
			r2 := new(big.Int).Mul(r, r)
			if r2.Cmp(tt.v) > 0 {
				t.Errorf("sqrt512 too large: %s^2 > %s", r, tt.v)
			}
			r1 := new(big.Int).Add(r, big.NewInt(1))
			if new(big.Int).Mul(r1, r1).Cmp(tt.v) <= 0 {
				t.Errorf("sqrt512 too small: (%s+1)^2 <= %s", r, tt.v)
			}
		})
	}
}
