// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package lex implements a two-sided credit and leverage market engine.
// Depositors hand over a base collateral asset and receive two claim
// tokens against it: a leverage token carrying the collateral's upside and
// a yield token representing interest-bearing debt. The two claims are
// priced against each other by a bounded concentrated-liquidity invariant
// over a fixed sqrt-price range, and the whole market state is recomputed
// from primitives on every touch.
package lex

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// Asset identifies one of the two claim sides of a market.
type Asset uint8

const (
	AssetYield    Asset = 0
	AssetLeverage Asset = 1
)

// ============================================================================
// Constants
// ============================================================================

const (
	// bpsDenominator is the basis-points scale for fees, caps and LTV.
	bpsDenominator = 10000

	// secondsPerYear is the accrual period for linear fee rates.
	secondsPerYear = 31536000

	// etwapHalfLife is the supply ETWAP half-life in seconds.
	etwapHalfLife = 1800

	// defaultRateDuration is the period the signed log rate is quoted over.
	defaultRateDuration = secondsPerYear
)

// Guard-rail and edge bounds checked at market creation.
var (
	minSqrtEdgeLow  = new(uint256.Int).Rsh(Q96, 4) // Q96/16
	maxSqrtEdgeHigh = new(uint256.Int).Lsh(Q96, 4) // 16*Q96
	minEdgeWidth    = new(uint256.Int).Rsh(Q96, 10)
)

const (
	minGuardLtvBps = 5000
	maxGuardLtvBps = 9999
)

// ============================================================================
// Market identity
// ============================================================================

// MarketKey is the creation tuple a market is addressed by. Engine is the
// pricing-parameter record the market prices against.
type MarketKey struct {
	BaseToken common.Address
	Oracle    common.Address
	Engine    common.Address
}

// ID derives the deterministic market identifier.
func (k MarketKey) ID() common.Hash {
	h := blake3.New()
	h.Write(k.BaseToken.Bytes())
	h.Write(k.Oracle.Bytes())
	h.Write(k.Engine.Bytes())

	var id common.Hash
	h.Digest().Read(id[:])
	return id
}

// ============================================================================
// Records
// ============================================================================

// Params is the immutable pricing-curve record, keyed by engine address.
// The sqrt-price edges and guard rails are X96 values satisfying
// SqrtEdgeLow < SqrtHighLtv <= SqrtMaxLtv < SqrtEdgeHigh with Q96 strictly
// inside the range.
type Params struct {
	SqrtEdgeLow  *uint256.Int
	SqrtEdgeHigh *uint256.Int
	SqrtHighLtv  *uint256.Int // actions may not push the price above this
	SqrtMaxLtv   *uint256.Int // leverage purchases blocked at or above this
	RateDuration uint64       // seconds the log rate is quoted over
	Adaptive     bool         // rate bias drifts toward zero between touches
}

// Validate checks the creation bounds on the curve record.
func (p *Params) Validate() error {
	if p.SqrtEdgeLow == nil || p.SqrtEdgeHigh == nil || p.SqrtHighLtv == nil || p.SqrtMaxLtv == nil {
		return ErrInvalidParameter
	}
	if p.SqrtEdgeLow.Cmp(minSqrtEdgeLow) < 0 || p.SqrtEdgeLow.Cmp(Q96) >= 0 {
		return ErrInvalidPriceEdges
	}
	if p.SqrtEdgeHigh.Cmp(Q96) <= 0 || p.SqrtEdgeHigh.Cmp(maxSqrtEdgeHigh) > 0 {
		return ErrInvalidPriceEdges
	}
	width := new(uint256.Int).Sub(p.SqrtEdgeHigh, p.SqrtEdgeLow)
	if width.Cmp(minEdgeWidth) < 0 {
		return ErrInvalidPriceEdges
	}
	highLtv := computeLTV(p.SqrtEdgeLow, p.SqrtEdgeHigh, p.SqrtHighLtv)
	maxLtv := computeLTV(p.SqrtEdgeLow, p.SqrtEdgeHigh, p.SqrtMaxLtv)
	if highLtv < minGuardLtvBps || maxLtv > maxGuardLtvBps {
		return ErrInvalidParameter
	}
	if p.SqrtHighLtv.Cmp(p.SqrtEdgeLow) <= 0 || p.SqrtMaxLtv.Cmp(p.SqrtHighLtv) < 0 ||
		p.SqrtEdgeHigh.Cmp(p.SqrtMaxLtv) < 0 {
		return ErrInvalidParameter
	}
	if p.RateDuration == 0 {
		return ErrInvalidParameter
	}
	return nil
}

// Config is the per-market wiring and fee schedule, keyed by market ID.
type Config struct {
	Key           MarketKey
	LeverageToken common.Address
	YieldToken    common.Address

	// DecimalsExp converts claim-token units to quote value:
	// value = tokens * 10^DecimalsExp for positive exponents, divided for
	// negative ones.
	DecimalsExp int8

	SwapFeeBps          uint64
	ProtocolFeeSplitBps uint64
	FeeRateWad          *uint256.Int // linear protocol fee on base supply, WAD/year
	CapBps              uint64       // per-action cap as bps of the supply ETWAP
	NoCapLimit          *uint256.Int // caps off below this supply or ETWAP
	Paused              bool
}

// Validate checks the fee schedule bounds.
func (c *Config) Validate() error {
	if c.SwapFeeBps >= bpsDenominator || c.ProtocolFeeSplitBps > bpsDenominator {
		return ErrInvalidFee
	}
	if c.CapBps > bpsDenominator {
		return ErrInvalidParameter
	}
	if c.FeeRateWad == nil || c.NoCapLimit == nil {
		return ErrInvalidParameter
	}
	if c.FeeRateWad.Cmp(WAD) > 0 {
		return ErrInvalidFee
	}
	return nil
}

// State is the persisted mutable market record. Everything else about the
// market is recomputed from these primitives on every touch.
type State struct {
	BaseSupply     *uint256.Int // collateral units held by the market
	LeverageSupply *uint256.Int // leverage claim tokens outstanding
	YieldSupply    *uint256.Int // yield claim tokens outstanding
	NotionalPrice  *uint256.Int // WAD value of one yield token, accrues interest
	LastSqrtPrice  *uint256.Int // X96, as of the last touch
	Etwap          *uint256.Int // exponential TWAP of the base supply
	RateBias       *big.Int     // signed WAD log-rate offset
	LastTimestamp  uint64
}

// NewState is the record for a freshly created market: empty supplies,
// notional price of one, spot pinned to parity.
func NewState(now uint64) *State {
	return &State{
		BaseSupply:     new(uint256.Int),
		LeverageSupply: new(uint256.Int),
		YieldSupply:    new(uint256.Int),
		NotionalPrice:  new(uint256.Int).Set(WAD),
		LastSqrtPrice:  new(uint256.Int).Set(Q96),
		Etwap:          new(uint256.Int),
		RateBias:       new(big.Int),
		LastTimestamp:  now,
	}
}

// Copy deep-copies the record so quote paths can work on a scratch state.
func (s *State) Copy() *State {
	return &State{
		BaseSupply:     new(uint256.Int).Set(s.BaseSupply),
		LeverageSupply: new(uint256.Int).Set(s.LeverageSupply),
		YieldSupply:    new(uint256.Int).Set(s.YieldSupply),
		NotionalPrice:  new(uint256.Int).Set(s.NotionalPrice),
		LastSqrtPrice:  new(uint256.Int).Set(s.LastSqrtPrice),
		Etwap:          new(uint256.Int).Set(s.Etwap),
		RateBias:       new(big.Int).Set(s.RateBias),
		LastTimestamp:  s.LastTimestamp,
	}
}

// ============================================================================
// External interfaces
// ============================================================================

// Oracle prices the base asset in quote terms. GetQuote may refresh
// internal feeds and is used on mutating paths; PreviewGetQuote must be
// read-only and is used for quotes.
type Oracle interface {
	GetQuote(baseAmount *uint256.Int) (*uint256.Int, error)
	PreviewGetQuote(baseAmount *uint256.Int) (*uint256.Int, error)
	UpdatePriceFeeds(updateData [][]byte) error
	GetUpdateFee(updateData [][]byte) (*uint256.Int, error)
}

// ClaimToken is the mint/burn surface of a leverage or yield token whose
// supply the market controls.
type ClaimToken interface {
	Mint(to common.Address, amount *uint256.Int) error
	Burn(from common.Address, amount *uint256.Int) error
	TotalSupply() (*uint256.Int, error)
}

// ============================================================================
// Errors - arithmetic
// ============================================================================

var (
	ErrOverflow       = errors.New("value overflows 256 bits")
	ErrDivisionByZero = errors.New("division by zero")
	ErrLogOfZero      = errors.New("logarithm of zero")
)

// Errors - curve
var (
	ErrZeroLiquidity         = errors.New("zero liquidity")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrPriceLimitReached     = errors.New("price limit reached")
	ErrInvalidPriceEdges     = errors.New("invalid sqrt price edges")
	ErrInvalidSqrtPrice      = errors.New("invalid sqrt price")
	ErrInvalidAsset          = errors.New("invalid asset")
)

// Errors - market
var (
	ErrMarketNotFound      = errors.New("market not found")
	ErrMarketExists        = errors.New("market already exists")
	ErrMarketPaused        = errors.New("market paused")
	ErrEngineNotFound      = errors.New("pricing engine not found")
	ErrEngineExists        = errors.New("pricing engine already exists")
	ErrReentrant           = errors.New("reentrancy detected")
	ErrUnderCollateralized = errors.New("market undercollateralized")
	ErrLtvTooHigh          = errors.New("loan-to-value above guard rail")
	ErrCapExceeded         = errors.New("per-action cap exceeded")
	ErrSupplyCeiling       = errors.New("claim supply ceiling exceeded")
	ErrZeroAmount          = errors.New("zero amount")
	ErrSlippage            = errors.New("output below minimum or input above maximum")
	ErrInvalidFee          = errors.New("invalid fee")
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrInvalidOraclePrice  = errors.New("invalid oracle price")
	ErrUnauthorized        = errors.New("unauthorized")
)

// feeEntropy hashes the touch context into the pseudo-random word used for
// probabilistic fee remainder rounding.
func feeEntropy(id common.Hash, timestamp uint64, sqrtPrice, baseSupply, yieldSupply *uint256.Int) *uint256.Int {
	h := blake3.New()
	h.Write(id[:])

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], timestamp)
	h.Write(ts[:])

	b := sqrtPrice.Bytes32()
	h.Write(b[:])
	b = baseSupply.Bytes32()
	h.Write(b[:])
	b = yieldSupply.Bytes32()
	h.Write(b[:])

	var out [32]byte
	h.Digest().Read(out[:])
	return new(uint256.Int).SetBytes(out[:])
}
