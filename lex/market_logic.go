// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lex

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// quoteFunc converts a base-asset amount to quote value. Bound to either
// the oracle's mutating or preview read, so quotes and actions share every
// line of engine code below.
type quoteFunc func(baseAmount *uint256.Int) (*uint256.Int, error)

// engineState is the market, fully recomputed from primitives at a touch.
// All curve quantities (liquidity, balances, debt) live in overflow-safe
// scaled units, shifted down by scaleShift from quote value.
type engineState struct {
	id     common.Hash
	params *Params
	config *Config
	state  *State // post-accrual working copy
	now    uint64
	quote  quoteFunc

	quoteValue      *uint256.Int // oracle value of the full base supply
	scaleShift      uint
	liquidity       *uint256.Int
	debtValue       *uint256.Int // scaled yield-side value
	sqrtPrice       *uint256.Int
	leverageBalance *uint256.Int // scaled Vl at the solved price
	under           bool

	protocolFee *uint256.Int // base units taken this touch
}

// computeEngineState runs the full per-touch recomputation: interest on
// the notional price, rate-bias drift, the linear protocol fee with
// probabilistic remainder rounding, the supply ETWAP, the oracle read,
// rescaling into curve units, and the debt-implied price.
//
// Interest uses the discount at the price stored by the previous touch,
// so the rate lags spot by one interaction.
func computeEngineState(id common.Hash, params *Params, config *Config, st *State, quote quoteFunc, now uint64) (*engineState, error) {
	work := st.Copy()
	var elapsed uint64
	if now > work.LastTimestamp {
		elapsed = now - work.LastTimestamp
	}

	if elapsed > 0 {
		if !work.YieldSupply.IsZero() {
			rate, err := touchRate(params, work)
			if err != nil {
				return nil, err
			}
			work.NotionalPrice = accrueInterestLnRate(work.NotionalPrice, rate, elapsed, params.RateDuration)
		}
		if params.Adaptive {
			work.RateBias = decayTowardZero(work.RateBias, elapsed, params.RateDuration)
		}
	}

	fee := new(uint256.Int)
	if elapsed > 0 && !work.BaseSupply.IsZero() && !config.FeeRateWad.IsZero() {
		fee = probabilisticFee(id, work, config, elapsed, now)
		if fee.Cmp(work.BaseSupply) > 0 {
			fee.Set(work.BaseSupply)
		}
		work.BaseSupply.Sub(work.BaseSupply, fee)
	}

	if elapsed > 0 {
		work.Etwap = halfLifeDecay(work.Etwap, work.BaseSupply, elapsed, etwapHalfLife)
	}
	work.LastTimestamp = now

	quoteValue, err := quote(work.BaseSupply)
	if err != nil {
		return nil, err
	}
	if !work.BaseSupply.IsZero() && quoteValue.IsZero() {
		return nil, ErrInvalidOraclePrice
	}

	es := &engineState{
		id:          id,
		params:      params,
		config:      config,
		state:       work,
		now:         now,
		quote:       quote,
		quoteValue:  quoteValue,
		protocolFee: fee,
	}
	if err := es.solve(); err != nil {
		return nil, err
	}
	return es, nil
}

// touchRate is the signed log rate for this touch: bias minus the log of
// the debt discount, the discount being the yield marginal value at the
// stored price over its value at parity, clamped to nine decades either
// side before the log.
func touchRate(params *Params, st *State) (*big.Int, error) {
	x, err := getXvsL(st.LastSqrtPrice, params.SqrtEdgeLow, params.SqrtEdgeHigh, AssetYield)
	if err != nil {
		return nil, err
	}
	target, err := getXvsL(Q96, params.SqrtEdgeLow, params.SqrtEdgeHigh, AssetYield)
	if err != nil {
		return nil, err
	}
	if target.IsZero() {
		return nil, ErrInvalidPriceEdges
	}
	discount := saturatingMulDiv(x, WAD, target)

	giga := uint256.NewInt(1_000_000_000)
	lo := new(uint256.Int).Div(WAD, giga)
	hi := new(uint256.Int).Mul(WAD, giga)
	if discount.Cmp(lo) < 0 {
		discount.Set(lo)
	} else if discount.Cmp(hi) > 0 {
		discount.Set(hi)
	}

	ln, err := lnWad(discount)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Sub(st.RateBias, ln), nil
}

// probabilisticFee accrues the linear protocol fee and rounds the
// truncated remainder up with probability remainder/denominator, drawing
// from the touch-context hash. Deterministic per context, unbiased across
// touches, so dust-rate fees do not truncate to zero forever.
func probabilisticFee(id common.Hash, st *State, config *Config, elapsed, now uint64) *uint256.Int {
	fee, rem := linearFee(st.BaseSupply, config.FeeRateWad, elapsed)
	if rem.IsZero() {
		return fee
	}
	denom := new(uint256.Int).Mul(WAD, uint256.NewInt(secondsPerYear))
	roll := feeEntropy(id, now, st.LastSqrtPrice, st.BaseSupply, st.YieldSupply)
	roll.Mod(roll, denom)
	if roll.Cmp(rem) < 0 {
		fee = saturatingAdd(fee, uint256.NewInt(1))
	}
	return fee
}

// solve rescales to curve units and derives liquidity, debt and price.
func (es *engineState) solve() error {
	lEst, err := liquidityFromCollateral(es.quoteValue, es.params.SqrtEdgeLow, es.params.SqrtEdgeHigh)
	if err != nil {
		return err
	}
	es.scaleShift = 0
	if bl := lEst.BitLen(); bl > maxDexLiquidityBits {
		es.scaleShift = uint(bl - maxDexLiquidityBits)
	}

	scaledValue := new(uint256.Int).Rsh(es.quoteValue, es.scaleShift)
	es.liquidity, err = liquidityFromCollateral(scaledValue, es.params.SqrtEdgeLow, es.params.SqrtEdgeHigh)
	if err != nil {
		return err
	}

	debt, err := yieldTokensToValue(es.state.YieldSupply, es.state.NotionalPrice, es.config.DecimalsExp)
	if err != nil {
		return err
	}
	es.debtValue = scaleDownCeil(debt, es.scaleShift)

	if es.liquidity.IsZero() {
		// Dust or empty market. No curve; spot carries over and only
		// proportional redemption works.
		es.sqrtPrice = new(uint256.Int).Set(es.state.LastSqrtPrice)
		es.leverageBalance = new(uint256.Int)
		es.under = !es.debtValue.IsZero()
		return nil
	}

	pt, err := marketStateFromLiquidityAndDebt(es.params.SqrtEdgeLow, es.params.SqrtEdgeHigh, es.liquidity, es.debtValue)
	if err != nil {
		return err
	}
	es.sqrtPrice = pt.sqrtPrice
	es.leverageBalance = pt.leverageBalance
	es.under = pt.underCollateralized
	return nil
}

// ============================================================================
// Mint
// ============================================================================

// MintResult is the outcome of depositing base collateral.
type MintResult struct {
	LeverageOut *uint256.Int
	YieldOut    *uint256.Int
	ProtocolFee *uint256.Int // base units, includes the touch accrual
}

// mint deposits baseIn collateral and issues both claim sides against it
// at the current price. Minting never moves the price, so the guard rails
// do not apply; the per-action cap and the supply ceiling do.
func (es *engineState) mint(baseIn *uint256.Int) (*MintResult, error) {
	if baseIn.IsZero() {
		return nil, ErrZeroAmount
	}
	if es.under {
		return nil, ErrUnderCollateralized
	}
	if err := es.checkCap(baseIn); err != nil {
		return nil, err
	}

	valueIn, err := es.quote(baseIn)
	if err != nil {
		return nil, err
	}
	if valueIn.IsZero() {
		return nil, ErrInvalidOraclePrice
	}
	scaledIn := new(uint256.Int).Rsh(valueIn, es.scaleShift)

	liquidityIn, err := liquidityFromCollateral(scaledIn, es.params.SqrtEdgeLow, es.params.SqrtEdgeHigh)
	if err != nil {
		return nil, err
	}
	if liquidityIn.IsZero() {
		return nil, ErrZeroAmount
	}

	dYieldValue, dLeverage, err := computeMint(es.sqrtPrice, es.params.SqrtEdgeLow, es.params.SqrtEdgeHigh, liquidityIn)
	if err != nil {
		return nil, err
	}

	yieldOut, err := valueToYieldTokens(scaleUp(dYieldValue, es.scaleShift), es.state.NotionalPrice, es.config.DecimalsExp)
	if err != nil {
		return nil, err
	}

	var leverageOut *uint256.Int
	if es.state.LeverageSupply.IsZero() || es.leverageBalance.IsZero() {
		leverageOut = scaleUp(dLeverage, es.scaleShift)
	} else {
		leverageOut, err = mulDiv(es.state.LeverageSupply, dLeverage, es.leverageBalance)
		if err != nil {
			return nil, err
		}
	}

	newYield := saturatingAdd(es.state.YieldSupply, yieldOut)
	newLeverage := saturatingAdd(es.state.LeverageSupply, leverageOut)
	if newYield.Cmp(maxClaimSupply) > 0 || newLeverage.Cmp(maxClaimSupply) > 0 {
		return nil, ErrSupplyCeiling
	}

	es.state.BaseSupply.Add(es.state.BaseSupply, baseIn)
	es.state.YieldSupply = newYield
	es.state.LeverageSupply = newLeverage
	es.state.LastSqrtPrice.Set(es.sqrtPrice)

	return &MintResult{
		LeverageOut: leverageOut,
		YieldOut:    yieldOut,
		ProtocolFee: new(uint256.Int).Set(es.protocolFee),
	}, nil
}

// ============================================================================
// Redeem
// ============================================================================

// RedeemResult is the outcome of burning claim tokens for base collateral.
type RedeemResult struct {
	BaseOut     *uint256.Int
	FullBurn    bool
	ProtocolFee *uint256.Int
}

// redeem burns leverage and yield claims for base collateral. Burning the
// entire outstanding pair is a distinguished path: the whole base supply
// leaves, the market resets to parity, and neither caps nor guard rails
// apply. Undercollateralized markets redeem the yield side alone, pro
// rata; dust markets with no curve redeem pro rata over the claim sum.
func (es *engineState) redeem(leverageIn, yieldIn *uint256.Int) (*RedeemResult, error) {
	if leverageIn.IsZero() && yieldIn.IsZero() {
		return nil, ErrZeroAmount
	}
	if leverageIn.Cmp(es.state.LeverageSupply) > 0 || yieldIn.Cmp(es.state.YieldSupply) > 0 {
		return nil, ErrSlippage
	}
	if es.state.BaseSupply.IsZero() {
		return nil, ErrZeroAmount
	}

	fullBurn := leverageIn.Cmp(es.state.LeverageSupply) == 0 && yieldIn.Cmp(es.state.YieldSupply) == 0
	if fullBurn {
		baseOut := new(uint256.Int).Set(es.state.BaseSupply)
		es.state.BaseSupply.Clear()
		es.state.LeverageSupply.Clear()
		es.state.YieldSupply.Clear()
		es.state.NotionalPrice.Set(WAD)
		es.state.LastSqrtPrice.Set(Q96)
		return &RedeemResult{
			BaseOut:     baseOut,
			FullBurn:    true,
			ProtocolFee: new(uint256.Int).Set(es.protocolFee),
		}, nil
	}

	var baseOut *uint256.Int
	var err error
	switch {
	case es.under:
		// Leverage claims are worthless here; the yield side exits
		// proportionally and burned leverage just retires.
		baseOut, err = mulDiv(es.state.BaseSupply, yieldIn, es.state.YieldSupply)
		if err != nil {
			return nil, err
		}

	case es.liquidity.IsZero():
		claimSum := saturatingAdd(es.state.LeverageSupply, es.state.YieldSupply)
		burnSum := saturatingAdd(leverageIn, yieldIn)
		baseOut, err = mulDiv(es.state.BaseSupply, burnSum, claimSum)
		if err != nil {
			return nil, err
		}

	default:
		baseOut, err = es.curveRedeem(leverageIn, yieldIn)
		if err != nil {
			return nil, err
		}
	}

	if baseOut.Cmp(es.state.BaseSupply) > 0 {
		baseOut.Set(es.state.BaseSupply)
	}
	if err := es.checkCap(baseOut); err != nil {
		return nil, err
	}

	es.state.BaseSupply.Sub(es.state.BaseSupply, baseOut)
	es.state.LeverageSupply.Sub(es.state.LeverageSupply, leverageIn)
	es.state.YieldSupply.Sub(es.state.YieldSupply, yieldIn)

	return &RedeemResult{
		BaseOut:     baseOut,
		ProtocolFee: new(uint256.Int).Set(es.protocolFee),
	}, nil
}

// curveRedeem prices a partial redemption on the curve and re-checks the
// post-redemption price against the guard rail.
func (es *engineState) curveRedeem(leverageIn, yieldIn *uint256.Int) (*uint256.Int, error) {
	yieldValue, err := yieldTokensToValue(yieldIn, es.state.NotionalPrice, es.config.DecimalsExp)
	if err != nil {
		return nil, err
	}
	dYield := new(uint256.Int).Rsh(yieldValue, es.scaleShift)

	dLeverage := new(uint256.Int)
	if !es.state.LeverageSupply.IsZero() {
		dLeverage, err = mulDiv(es.leverageBalance, leverageIn, es.state.LeverageSupply)
		if err != nil {
			return nil, err
		}
	}

	removed, _, err := computeRedeem(es.liquidity, es.sqrtPrice, es.params.SqrtEdgeLow, es.params.SqrtEdgeHigh, dYield, dLeverage)
	if err != nil {
		return nil, err
	}
	removedValue, err := collateralFromLiquidity(removed, es.params.SqrtEdgeLow, es.params.SqrtEdgeHigh)
	if err != nil {
		return nil, err
	}

	// Post-redemption price: the remaining debt against the remaining
	// liquidity. A redemption that pushes the price up past the guard
	// rail from below is rejected.
	remainingLiquidity := new(uint256.Int).Sub(es.liquidity, removed)
	remainingYield := new(uint256.Int).Sub(es.state.YieldSupply, yieldIn)
	if !remainingLiquidity.IsZero() {
		remainingDebt, err := yieldTokensToValue(remainingYield, es.state.NotionalPrice, es.config.DecimalsExp)
		if err != nil {
			return nil, err
		}
		pt, err := marketStateFromLiquidityAndDebt(es.params.SqrtEdgeLow, es.params.SqrtEdgeHigh, remainingLiquidity, scaleDownCeil(remainingDebt, es.scaleShift))
		if err != nil {
			return nil, err
		}
		if pt.underCollateralized {
			return nil, ErrUnderCollateralized
		}
		if pt.sqrtPrice.Cmp(es.params.SqrtHighLtv) > 0 && pt.sqrtPrice.Cmp(es.sqrtPrice) > 0 {
			return nil, ErrLtvTooHigh
		}
		es.state.LastSqrtPrice.Set(pt.sqrtPrice)
	}

	// Scale back to quote value, then to base units at the oracle rate.
	return es.valueToBase(scaleUp(removedValue, es.scaleShift))
}

// ============================================================================
// Swap
// ============================================================================

// SwapResult is the outcome of trading one claim side against the other.
type SwapResult struct {
	AmountCalculated *uint256.Int // the non-fixed side, after fees
	FeeAmount        *uint256.Int // claim-token fee withheld
	ProtocolFee      *uint256.Int // base units
}

// swap trades one claim side for the other along the curve. fixedAsset
// and isExactIn follow computeSwap. The swap fee shaves the output on
// exact-in and pads the input on exact-out; the protocol's split of it is
// converted to base units and joins the touch fee. While the market is
// undercollateralized only the debt-reducing direction (yield in) is
// allowed, fee-free.
func (es *engineState) swap(fixedAsset Asset, amount *uint256.Int, isExactIn bool) (*SwapResult, error) {
	if amount.IsZero() {
		return nil, ErrZeroAmount
	}
	if es.liquidity.IsZero() {
		return nil, ErrZeroLiquidity
	}
	if es.under && !(fixedAsset == AssetYield && isExactIn) {
		return nil, ErrUnderCollateralized
	}

	// The receiving side determines the price direction and the guard.
	receivesLeverage := (fixedAsset == AssetYield && isExactIn) || (fixedAsset == AssetLeverage && !isExactIn)
	if receivesLeverage && es.sqrtPrice.Cmp(es.params.SqrtMaxLtv) >= 0 && !es.under {
		return nil, ErrLtvTooHigh
	}
	var limit *uint256.Int
	if receivesLeverage {
		limit = es.params.SqrtEdgeLow
	} else if es.sqrtPrice.Cmp(es.params.SqrtHighLtv) < 0 {
		limit = es.params.SqrtHighLtv
	} else {
		limit = es.sqrtPrice
	}

	fixedCurve, err := es.claimToCurve(fixedAsset, amount, isExactIn)
	if err != nil {
		return nil, err
	}
	if fixedCurve.IsZero() {
		return nil, ErrZeroAmount
	}

	calcCurve, nextSqrtP, err := computeSwap(es.liquidity, es.sqrtPrice, limit, fixedAsset, fixedCurve, isExactIn)
	if err != nil {
		return nil, err
	}

	otherAsset := AssetLeverage
	if fixedAsset == AssetLeverage {
		otherAsset = AssetYield
	}
	calculated, err := es.curveToClaim(otherAsset, calcCurve, !isExactIn)
	if err != nil {
		return nil, err
	}

	feeAmount := new(uint256.Int)
	applyFee := es.config.SwapFeeBps > 0 && !es.under
	if applyFee {
		if isExactIn {
			feeAmount = saturatingMulDiv(calculated, uint256.NewInt(es.config.SwapFeeBps), uint256.NewInt(bpsDenominator))
			calculated.Sub(calculated, feeAmount)
		} else {
			gross, err := mulDivUp(calculated, uint256.NewInt(bpsDenominator), uint256.NewInt(bpsDenominator-es.config.SwapFeeBps))
			if err != nil {
				return nil, err
			}
			feeAmount = new(uint256.Int).Sub(gross, calculated)
			calculated = gross
		}
	}

	if err := es.settleSwap(fixedAsset, amount, calculated, isExactIn); err != nil {
		return nil, err
	}
	es.state.LastSqrtPrice.Set(nextSqrtP)

	if applyFee && !feeAmount.IsZero() && es.config.ProtocolFeeSplitBps > 0 {
		// The fee is denominated in the calculated side either way:
		// shaved output on exact-in, padded input on exact-out.
		if err := es.takeProtocolFee(otherAsset, feeAmount); err != nil {
			return nil, err
		}
	}

	return &SwapResult{
		AmountCalculated: calculated,
		FeeAmount:        feeAmount,
		ProtocolFee:      new(uint256.Int).Set(es.protocolFee),
	}, nil
}

// settleSwap applies the two supply deltas. The fixed asset moves by
// amount, the other by calculated; which side shrinks depends on the
// trade direction.
func (es *engineState) settleSwap(fixedAsset Asset, amount, calculated *uint256.Int, isExactIn bool) error {
	var inAsset, outAsset Asset
	var inAmt, outAmt *uint256.Int
	if isExactIn {
		inAsset, inAmt = fixedAsset, amount
		outAsset, outAmt = otherOf(fixedAsset), calculated
	} else {
		outAsset, outAmt = fixedAsset, amount
		inAsset, inAmt = otherOf(fixedAsset), calculated
	}

	inSupply := es.supplyOf(inAsset)
	if inAmt.Cmp(inSupply) > 0 {
		return ErrSlippage
	}
	inSupply.Sub(inSupply, inAmt)

	outSupply := es.supplyOf(outAsset)
	grown := saturatingAdd(outSupply, outAmt)
	if grown.Cmp(maxClaimSupply) > 0 {
		return ErrSupplyCeiling
	}
	outSupply.Set(grown)
	return nil
}

// takeProtocolFee converts the protocol's split of a claim-token fee to
// base units and moves it from the base supply to the accrued fee bucket.
func (es *engineState) takeProtocolFee(asset Asset, feeAmount *uint256.Int) error {
	split := saturatingMulDiv(feeAmount, uint256.NewInt(es.config.ProtocolFeeSplitBps), uint256.NewInt(bpsDenominator))
	if split.IsZero() {
		return nil
	}
	var value *uint256.Int
	var err error
	if asset == AssetYield {
		value, err = yieldTokensToValue(split, es.state.NotionalPrice, es.config.DecimalsExp)
	} else {
		curve, cerr := es.claimToCurve(AssetLeverage, split, true)
		if cerr != nil {
			return cerr
		}
		// Leverage balance is already quote-denominated curve value.
		value = scaleUp(curve, es.scaleShift)
	}
	if err != nil {
		return err
	}
	base, err := es.valueToBase(value)
	if err != nil {
		return err
	}
	if base.Cmp(es.state.BaseSupply) > 0 {
		base.Set(es.state.BaseSupply)
	}
	es.state.BaseSupply.Sub(es.state.BaseSupply, base)
	es.protocolFee = saturatingAdd(es.protocolFee, base)
	return nil
}

// ============================================================================
// Update
// ============================================================================

// UpdateResult carries the fee taken by a bare state refresh.
type UpdateResult struct {
	ProtocolFee *uint256.Int
}

// update commits the accruals without trading: the stored price moves to
// the freshly solved one.
func (es *engineState) update() *UpdateResult {
	es.state.LastSqrtPrice.Set(es.sqrtPrice)
	return &UpdateResult{ProtocolFee: new(uint256.Int).Set(es.protocolFee)}
}

// ============================================================================
// Helpers
// ============================================================================

func otherOf(a Asset) Asset {
	if a == AssetYield {
		return AssetLeverage
	}
	return AssetYield
}

func (es *engineState) supplyOf(a Asset) *uint256.Int {
	if a == AssetYield {
		return es.state.YieldSupply
	}
	return es.state.LeverageSupply
}

// checkCap enforces the per-action cap against the supply ETWAP. Caps are
// off entirely while either the base supply or the ETWAP sits below the
// no-cap limit; either escape hatch alone disables them.
func (es *engineState) checkCap(baseAmount *uint256.Int) error {
	if es.config.CapBps == 0 {
		return nil
	}
	if es.state.BaseSupply.Cmp(es.config.NoCapLimit) < 0 || es.state.Etwap.Cmp(es.config.NoCapLimit) < 0 {
		return nil
	}
	cap := saturatingMulDiv(es.state.Etwap, uint256.NewInt(es.config.CapBps), uint256.NewInt(bpsDenominator))
	if baseAmount.Cmp(cap) > 0 {
		return ErrCapExceeded
	}
	return nil
}

// claimToCurve converts a claim-token amount to curve units: yield tokens
// through the notional price and the value scale, leverage tokens pro
// rata against the leverage balance. isInput picks the rounding that
// favors the market.
func (es *engineState) claimToCurve(asset Asset, tokens *uint256.Int, isInput bool) (*uint256.Int, error) {
	if asset == AssetYield {
		value, err := yieldTokensToValue(tokens, es.state.NotionalPrice, es.config.DecimalsExp)
		if err != nil {
			return nil, err
		}
		return new(uint256.Int).Rsh(value, es.scaleShift), nil
	}
	if tokens.Cmp(es.state.LeverageSupply) > 0 {
		return nil, ErrSlippage
	}
	if es.state.LeverageSupply.IsZero() {
		return new(uint256.Int), nil
	}
	if isInput {
		return mulDiv(es.leverageBalance, tokens, es.state.LeverageSupply)
	}
	return mulDivUp(es.leverageBalance, tokens, es.state.LeverageSupply)
}

// curveToClaim is the inverse conversion. isInput marks amounts the trader
// owes, which round up.
func (es *engineState) curveToClaim(asset Asset, curve *uint256.Int, isInput bool) (*uint256.Int, error) {
	if asset == AssetYield {
		value := scaleUp(curve, es.scaleShift)
		if isInput {
			return valueToYieldTokensUp(value, es.state.NotionalPrice, es.config.DecimalsExp)
		}
		return valueToYieldTokens(value, es.state.NotionalPrice, es.config.DecimalsExp)
	}
	if es.state.LeverageSupply.IsZero() || es.leverageBalance.IsZero() {
		return scaleUp(curve, es.scaleShift), nil
	}
	if isInput {
		return mulDivUp(es.state.LeverageSupply, curve, es.leverageBalance)
	}
	return mulDiv(es.state.LeverageSupply, curve, es.leverageBalance)
}

// valueToBase converts quote value back to base units at the oracle rate
// implied by the full supply, rounding down.
func (es *engineState) valueToBase(value *uint256.Int) (*uint256.Int, error) {
	if es.quoteValue.IsZero() {
		return nil, ErrInvalidOraclePrice
	}
	return mulDiv(es.state.BaseSupply, value, es.quoteValue)
}

// scaleDownCeil shifts right rounding up; debt scales against the market.
func scaleDownCeil(v *uint256.Int, shift uint) *uint256.Int {
	if shift == 0 {
		return new(uint256.Int).Set(v)
	}
	mask := new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), shift), 1)
	out := new(uint256.Int).Rsh(v, shift)
	if !new(uint256.Int).And(v, mask).IsZero() {
		out.AddUint64(out, 1)
	}
	return out
}

// scaleUp shifts left, saturating rather than wrapping.
func scaleUp(v *uint256.Int, shift uint) *uint256.Int {
	if shift == 0 {
		return new(uint256.Int).Set(v)
	}
	if v.BitLen()+int(shift) > 256 {
		return new(uint256.Int).Set(MaxUint256)
	}
	return new(uint256.Int).Lsh(v, shift)
}

// ============================================================================
// Decimal conversions
// ============================================================================

// yieldTokensToValue prices yield tokens in quote terms through the
// notional price and the configured decimal exponent, rounding down.
func yieldTokensToValue(tokens, notionalPrice *uint256.Int, exp int8) (*uint256.Int, error) {
	v, err := mulDiv(tokens, notionalPrice, WAD)
	if err != nil {
		return nil, err
	}
	return applyDecimals(v, exp, false)
}

// valueToYieldTokens inverts yieldTokensToValue, rounding down.
func valueToYieldTokens(value, notionalPrice *uint256.Int, exp int8) (*uint256.Int, error) {
	v, err := applyDecimals(value, -exp, false)
	if err != nil {
		return nil, err
	}
	return mulDiv(v, WAD, notionalPrice)
}

// valueToYieldTokensUp is the round-up variant for amounts a trader owes.
func valueToYieldTokensUp(value, notionalPrice *uint256.Int, exp int8) (*uint256.Int, error) {
	v, err := applyDecimals(value, -exp, true)
	if err != nil {
		return nil, err
	}
	return mulDivUp(v, WAD, notionalPrice)
}

func applyDecimals(v *uint256.Int, exp int8, roundUp bool) (*uint256.Int, error) {
	if exp == 0 {
		return new(uint256.Int).Set(v), nil
	}
	if exp > 0 {
		p := pow10(uint8(exp))
		out, overflow := new(uint256.Int).MulOverflow(v, p)
		if overflow {
			return nil, ErrOverflow
		}
		return out, nil
	}
	p := pow10(uint8(-exp))
	if roundUp {
		return mulDivUp(v, uint256.NewInt(1), p)
	}
	return new(uint256.Int).Div(v, p), nil
}
