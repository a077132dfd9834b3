// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lex

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// identityQuote prices the base asset 1:1 in quote terms.
func identityQuote(amount *uint256.Int) (*uint256.Int, error) {
	return new(uint256.Int).Set(amount), nil
}

func testParams() *Params {
	lo := new(uint256.Int).Rsh(Q96, 1)
	hi := new(uint256.Int).Lsh(Q96, 1)
	// r = S/Sa: 40/13 puts the LTV at 90%, 40/11.5 at ~95%
	highLtv := new(uint256.Int).Div(new(uint256.Int).Mul(lo, uint256.NewInt(40)), uint256.NewInt(13))
	maxLtv := new(uint256.Int).Div(new(uint256.Int).Mul(lo, uint256.NewInt(80)), uint256.NewInt(23))
	return &Params{
		SqrtEdgeLow:  lo,
		SqrtEdgeHigh: hi,
		SqrtHighLtv:  highLtv,
		SqrtMaxLtv:   maxLtv,
		RateDuration: defaultRateDuration,
	}
}

func testConfig() *Config {
	return &Config{
		Key: MarketKey{
			BaseToken: common.Address{0x01},
			Oracle:    common.Address{0x02},
			Engine:    common.Address{0x03},
		},
		LeverageToken: common.Address{0x04},
		YieldToken:    common.Address{0x05},
		FeeRateWad:    new(uint256.Int),
		NoCapLimit:    new(uint256.Int),
	}
}

func testID() common.Hash { return common.Hash{0xAA} }

func engineAt(t *testing.T, params *Params, config *Config, st *State, now uint64) *engineState {
	t.Helper()
	es, err := computeEngineState(testID(), params, config, st, identityQuote, now)
	if err != nil {
		t.Fatal(err)
	}
	return es
}

func TestEngineMintIssuesBothSides(t *testing.T) {
	params, config := testParams(), testConfig()
	st := NewState(100)

	es := engineAt(t, params, config, st, 100)
	res, err := es.mint(new(uint256.Int).Set(WAD))
	if err != nil {
		t.Fatal(err)
	}
	if res.YieldOut.IsZero() || res.LeverageOut.IsZero() {
		t.Fatalf("mint at parity must issue both sides: yield=%s leverage=%s", res.YieldOut, res.LeverageOut)
	}
	if es.state.BaseSupply.Cmp(WAD) != 0 {
		t.Errorf("base supply = %s, want %s", es.state.BaseSupply, WAD)
	}

	if _, err := es.mint(new(uint256.Int)); !errors.Is(err, ErrZeroAmount) {
		t.Errorf("zero mint err = %v, want ErrZeroAmount", err)
	}
}

func TestEngineMintRedeemRoundTrip(t *testing.T) {
	params, config := testParams(), testConfig()
	st := NewState(100)

	es := engineAt(t, params, config, st, 100)
	baseIn := new(uint256.Int).Set(WAD)
	minted, err := es.mint(baseIn)
	if err != nil {
		t.Fatal(err)
	}

	// Partial redemption of half of each claim side.
	es2 := engineAt(t, params, config, es.state, 100)
	halfLev := new(uint256.Int).Rsh(minted.LeverageOut, 1)
	halfYield := new(uint256.Int).Rsh(minted.YieldOut, 1)
	res, err := es2.redeem(halfLev, halfYield)
	if err != nil {
		t.Fatal(err)
	}
	if res.FullBurn {
		t.Fatal("half redeem flagged full burn")
	}
	halfBase := new(uint256.Int).Rsh(baseIn, 1)
	if res.BaseOut.Cmp(halfBase) > 0 {
		t.Errorf("redeeming half returned %s, more than half of %s", res.BaseOut, baseIn)
	}
	// within a few parts per billion of half
	floor := new(uint256.Int).Sub(halfBase, new(uint256.Int).Div(halfBase, uint256.NewInt(1_000_000)))
	if res.BaseOut.Cmp(floor) < 0 {
		t.Errorf("redeeming half returned %s, want ~%s", res.BaseOut, halfBase)
	}
}

func TestEngineFullBurnResets(t *testing.T) {
	params, config := testParams(), testConfig()
	// swap fee configured, but the full burn must bypass it
	config.SwapFeeBps = 100
	config.CapBps = 1
	config.NoCapLimit = uint256.NewInt(1)
	st := NewState(100)

	es := engineAt(t, params, config, st, 100)
	minted, err := es.mint(new(uint256.Int).Set(WAD))
	if err != nil {
		t.Fatal(err)
	}

	es2 := engineAt(t, params, config, es.state, 100)
	res, err := es2.redeem(minted.LeverageOut, minted.YieldOut)
	if err != nil {
		t.Fatal(err)
	}
	if !res.FullBurn {
		t.Fatal("burning the entire supply must be a full burn")
	}
	if res.BaseOut.Cmp(WAD) != 0 {
		t.Errorf("full burn returned %s, want the whole base supply %s", res.BaseOut, WAD)
	}
	if es2.state.LastSqrtPrice.Cmp(Q96) != 0 {
		t.Errorf("price after full burn = %s, want reset to %s", es2.state.LastSqrtPrice, Q96)
	}
	if !es2.state.BaseSupply.IsZero() || !es2.state.YieldSupply.IsZero() || !es2.state.LeverageSupply.IsZero() {
		t.Error("supplies must clear on full burn")
	}
	if es2.state.NotionalPrice.Cmp(WAD) != 0 {
		t.Errorf("notional price after full burn = %s, want %s", es2.state.NotionalPrice, WAD)
	}
}

func TestEngineCapOrSemantics(t *testing.T) {
	params, config := testParams(), testConfig()
	config.CapBps = 100 // 1% of the ETWAP per action
	config.NoCapLimit = new(uint256.Int).Set(WAD)

	bigMint := new(uint256.Int).Mul(WAD, uint256.NewInt(10))

	t.Run("both above limit enforces cap", func(t *testing.T) {
		st := NewState(100)
		st.BaseSupply = new(uint256.Int).Mul(WAD, uint256.NewInt(100))
		st.Etwap = new(uint256.Int).Mul(WAD, uint256.NewInt(100))
		es := engineAt(t, params, config, st, 100)
		if _, err := es.mint(bigMint); !errors.Is(err, ErrCapExceeded) {
			t.Errorf("err = %v, want ErrCapExceeded", err)
		}
	})

	t.Run("low etwap alone disables cap", func(t *testing.T) {
		st := NewState(100)
		st.BaseSupply = new(uint256.Int).Mul(WAD, uint256.NewInt(100))
		st.Etwap = new(uint256.Int).Rsh(WAD, 4) // below the limit
		es := engineAt(t, params, config, st, 100)
		if _, err := es.mint(bigMint); err != nil {
			t.Errorf("cap must be off below the no-cap limit, got %v", err)
		}
	})

	t.Run("low supply alone disables cap", func(t *testing.T) {
		st := NewState(100)
		st.BaseSupply = new(uint256.Int).Rsh(WAD, 4)
		st.Etwap = new(uint256.Int).Mul(WAD, uint256.NewInt(100))
		es := engineAt(t, params, config, st, 100)
		if _, err := es.mint(bigMint); err != nil {
			t.Errorf("cap must be off below the no-cap limit, got %v", err)
		}
	})
}

func TestEngineUndercollateralized(t *testing.T) {
	params, config := testParams(), testConfig()
	st := NewState(100)
	st.BaseSupply = new(uint256.Int).Set(WAD)
	// debt twice the collateral value
	st.YieldSupply = new(uint256.Int).Lsh(WAD, 1)

	es := engineAt(t, params, config, st, 100)
	if !es.under {
		t.Fatal("market must be undercollateralized")
	}
	if es.sqrtPrice.Cmp(params.SqrtEdgeHigh) != 0 {
		t.Errorf("price = %s, want pinned to high edge %s", es.sqrtPrice, params.SqrtEdgeHigh)
	}

	if _, err := es.mint(WAD); !errors.Is(err, ErrUnderCollateralized) {
		t.Errorf("mint err = %v, want ErrUnderCollateralized", err)
	}

	// the debt-reducing swap direction stays open
	es2 := engineAt(t, params, config, st, 100)
	res, err := es2.swap(AssetYield, new(uint256.Int).Div(WAD, uint256.NewInt(10)), true)
	if err != nil {
		t.Fatalf("yield-in unwind must be allowed: %v", err)
	}
	if res.AmountCalculated.IsZero() {
		t.Error("unwind produced no leverage")
	}
	if !res.FeeAmount.IsZero() {
		t.Error("unwind must be fee-free")
	}

	// the other direction stays closed
	es3 := engineAt(t, params, config, st, 100)
	if _, err := es3.swap(AssetLeverage, WAD, true); !errors.Is(err, ErrUnderCollateralized) {
		t.Errorf("leverage-in err = %v, want ErrUnderCollateralized", err)
	}

	// proportional yield redemption stays open too
	es4 := engineAt(t, params, config, st, 100)
	redeemed, err := es4.redeem(new(uint256.Int), new(uint256.Int).Set(WAD))
	if err != nil {
		t.Fatalf("undercollateralized redemption must work: %v", err)
	}
	if redeemed.BaseOut.Cmp(new(uint256.Int).Rsh(WAD, 1)) != 0 {
		t.Errorf("half the yield supply redeemed %s, want half the base", redeemed.BaseOut)
	}
}

func TestEngineLeveragePurchaseGuard(t *testing.T) {
	params, config := testParams(), testConfig()
	st := NewState(100)
	st.BaseSupply = new(uint256.Int).Set(WAD)
	// Debt close to the ceiling puts the price above the max-LTV rail
	// without tripping undercollateralization.
	st.YieldSupply = new(uint256.Int).Div(new(uint256.Int).Mul(WAD, uint256.NewInt(995)), uint256.NewInt(1000))

	es := engineAt(t, params, config, st, 100)
	if es.under {
		t.Fatal("setup is not supposed to be undercollateralized")
	}
	if es.sqrtPrice.Cmp(params.SqrtMaxLtv) < 0 {
		t.Fatalf("setup price %s below the max-LTV rail %s", es.sqrtPrice, params.SqrtMaxLtv)
	}

	if _, err := es.swap(AssetYield, uint256.NewInt(1000), true); !errors.Is(err, ErrLtvTooHigh) {
		t.Errorf("buying leverage above the rail: err = %v, want ErrLtvTooHigh", err)
	}
}

func TestEngineSwapFee(t *testing.T) {
	params, config := testParams(), testConfig()
	config.SwapFeeBps = 100 // 1%

	st := NewState(100)
	es := engineAt(t, params, config, st, 100)
	if _, err := es.mint(new(uint256.Int).Set(WAD)); err != nil {
		t.Fatal(err)
	}

	amountIn := new(uint256.Int).Div(WAD, uint256.NewInt(100))

	feeCfg := engineAt(t, params, config, es.state, 100)
	withFee, err := feeCfg.swap(AssetYield, amountIn, true)
	if err != nil {
		t.Fatal(err)
	}

	freeConfig := testConfig()
	free := engineAt(t, params, freeConfig, es.state, 100)
	noFee, err := free.swap(AssetYield, amountIn, true)
	if err != nil {
		t.Fatal(err)
	}

	if withFee.AmountCalculated.Cmp(noFee.AmountCalculated) >= 0 {
		t.Errorf("fee did not reduce output: %s vs %s", withFee.AmountCalculated, noFee.AmountCalculated)
	}
	if withFee.FeeAmount.IsZero() {
		t.Error("fee amount not reported")
	}
	sum := new(uint256.Int).Add(withFee.AmountCalculated, withFee.FeeAmount)
	if sum.Cmp(noFee.AmountCalculated) != 0 {
		t.Errorf("output %s + fee %s != gross %s", withFee.AmountCalculated, withFee.FeeAmount, noFee.AmountCalculated)
	}
}

func TestEngineInterestAccrual(t *testing.T) {
	params, config := testParams(), testConfig()
	st := NewState(100)
	st.BaseSupply = new(uint256.Int).Set(WAD)
	st.YieldSupply = new(uint256.Int).Rsh(WAD, 1)
	// Stored price above parity: the yield discount is above one there, so
	// the notional decays.
	st.LastSqrtPrice = new(uint256.Int).Div(new(uint256.Int).Mul(Q96, uint256.NewInt(3)), uint256.NewInt(2))

	later := engineAt(t, params, config, st, 100+86400)
	if later.state.NotionalPrice.Cmp(WAD) >= 0 {
		t.Errorf("notional price = %s, want decay below %s", later.state.NotionalPrice, WAD)
	}
	if later.state.NotionalPrice.IsZero() {
		t.Error("a day of decay must not zero the notional")
	}

	// At parity the discount is exactly one and nothing accrues.
	atPar := NewState(100)
	atPar.BaseSupply = new(uint256.Int).Set(WAD)
	atPar.YieldSupply = new(uint256.Int).Rsh(WAD, 1)
	flat := engineAt(t, params, config, atPar, 100+86400)
	if flat.state.NotionalPrice.Cmp(WAD) != 0 {
		t.Errorf("parity notional = %s, want unchanged %s", flat.state.NotionalPrice, WAD)
	}

	// No time, no accrual.
	same := engineAt(t, params, config, st, 100)
	if same.state.NotionalPrice.Cmp(WAD) != 0 {
		t.Error("notional price moved with zero elapsed time")
	}
}

func TestEngineProtocolFee(t *testing.T) {
	params, config := testParams(), testConfig()
	config.FeeRateWad = new(uint256.Int).Div(WAD, uint256.NewInt(100)) // 1%/year

	st := NewState(100)
	st.BaseSupply = new(uint256.Int).Mul(WAD, uint256.NewInt(1000))

	es := engineAt(t, params, config, st, 100+secondsPerYear)
	want := new(uint256.Int).Mul(WAD, uint256.NewInt(10))
	diff := new(uint256.Int)
	if es.protocolFee.Cmp(want) > 0 {
		diff.Sub(es.protocolFee, want)
	} else {
		diff.Sub(want, es.protocolFee)
	}
	if diff.Uint64() > 1 {
		t.Errorf("a year of 1%% on 1000 took %s, want ~%s", es.protocolFee, want)
	}
	wantSupply := new(uint256.Int).Sub(new(uint256.Int).Mul(WAD, uint256.NewInt(1000)), es.protocolFee)
	if es.state.BaseSupply.Cmp(wantSupply) != 0 {
		t.Errorf("base supply = %s, want %s", es.state.BaseSupply, wantSupply)
	}
}

func TestProbabilisticFeeDeterminism(t *testing.T) {
	config := testConfig()
	config.FeeRateWad = uint256.NewInt(1) // dust rate, pure remainder

	st := NewState(100)
	st.BaseSupply = uint256.NewInt(100)
	st.LastSqrtPrice = new(uint256.Int).Set(Q96)

	a := probabilisticFee(testID(), st, config, 1, 101)
	b := probabilisticFee(testID(), st, config, 1, 101)
	if a.Cmp(b) != 0 {
		t.Errorf("same context rolled different fees: %s vs %s", a, b)
	}
	if a.Uint64() > 1 {
		t.Errorf("dust fee = %s, want 0 or 1", a)
	}
}

func TestEngineEtwapTracksSupply(t *testing.T) {
	params, config := testParams(), testConfig()
	st := NewState(100)
	st.BaseSupply = new(uint256.Int).Mul(WAD, uint256.NewInt(100))
	st.Etwap = new(uint256.Int)

	// many half-lives later the ETWAP has converged onto the supply
	es := engineAt(t, params, config, st, 100+1000*etwapHalfLife)
	diff := new(uint256.Int).Sub(st.BaseSupply, es.state.Etwap)
	if diff.Cmp(uint256.NewInt(1)) > 0 {
		t.Errorf("etwap %s did not converge to supply %s", es.state.Etwap, st.BaseSupply)
	}

	// one half-life covers about half the gap
	es2 := engineAt(t, params, config, st, 100+etwapHalfLife)
	half := new(uint256.Int).Rsh(st.BaseSupply, 1)
	lo := new(uint256.Int).Sub(half, new(uint256.Int).Div(half, uint256.NewInt(10)))
	hi := new(uint256.Int).Add(half, new(uint256.Int).Div(half, uint256.NewInt(10)))
	if es2.state.Etwap.Cmp(lo) < 0 || es2.state.Etwap.Cmp(hi) > 0 {
		t.Errorf("one half-life etwap = %s, want ~%s", es2.state.Etwap, half)
	}
}

func TestEngineScaleShiftLargeMarket(t *testing.T) {
	params, config := testParams(), testConfig()
	st := NewState(100)
	// collateral value big enough that raw liquidity would exceed the
	// dex-unit bound
	st.BaseSupply = new(uint256.Int).Lsh(uint256.NewInt(1), 200)

	es := engineAt(t, params, config, st, 100)
	if es.scaleShift == 0 {
		t.Fatal("huge market must rescale")
	}
	if es.liquidity.Cmp(maxDexLiquidity) > 0 {
		t.Errorf("scaled liquidity %s exceeds the bound", es.liquidity)
	}
	if es.liquidity.IsZero() {
		t.Error("rescale collapsed the market")
	}
}
