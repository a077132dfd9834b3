// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lex

import (
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
)

// Market is the stateful shell around the pure engine: it owns the
// persisted record for one market, serializes touches, and forwards
// mint/burn calls to the claim tokens. The oracle and both claim tokens
// are external code; every touch holds the reentrancy guard across those
// calls, so a malicious callback re-entering the same market fails while
// unrelated markets proceed.
type Market struct {
	mu sync.Mutex

	// entered prevents reentrancy through oracle or claim-token callbacks
	entered bool

	idHash   common.Hash
	params   *Params
	config   *Config
	state    *State
	oracle   Oracle
	leverage ClaimToken
	yield    ClaimToken
	store    *MarketStore
	log      log.Logger

	// now is the clock; injected so tests drive time explicitly
	now func() uint64
}

// NewMarket wires a market shell. state may be nil for a fresh market.
func NewMarket(config *Config, params *Params, state *State, oracle Oracle, leverage, yield ClaimToken, store *MarketStore, logger log.Logger) (*Market, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	now := func() uint64 { return uint64(time.Now().Unix()) }
	if state == nil {
		state = NewState(now())
	}
	return &Market{
		idHash:   config.Key.ID(),
		params:   params,
		config:   config,
		state:    state,
		oracle:   oracle,
		leverage: leverage,
		yield:    yield,
		store:    store,
		log:      logger,
		now:      now,
	}, nil
}

// SetClock overrides the market clock, for tests.
func (m *Market) SetClock(now func() uint64) { m.now = now }

// ID returns the deterministic market identifier.
func (m *Market) ID() common.Hash { return m.idHash }

// State returns a copy of the persisted record.
func (m *Market) State() *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Copy()
}

func (m *Market) enter() error {
	m.mu.Lock()
	if m.entered {
		m.mu.Unlock()
		return ErrReentrant
	}
	m.entered = true
	m.mu.Unlock()
	return nil
}

func (m *Market) exit() {
	m.mu.Lock()
	m.entered = false
	m.mu.Unlock()
}

// touch runs the full recomputation against the live oracle read.
func (m *Market) touch() (*engineState, error) {
	if m.config.Paused {
		return nil, ErrMarketPaused
	}
	return computeEngineState(m.idHash, m.params, m.config, m.state, m.oracle.GetQuote, m.now())
}

// preview runs the recomputation against the read-only oracle path.
// Quotes and actions share every line below the oracle read, so a quote
// followed by an action in the same second returns identical numbers.
func (m *Market) preview() (*engineState, error) {
	if m.config.Paused {
		return nil, ErrMarketPaused
	}
	return computeEngineState(m.idHash, m.params, m.config, m.state, m.oracle.PreviewGetQuote, m.now())
}

// commit persists the post-touch record and books the protocol fee.
func (m *Market) commit(es *engineState, fee *uint256.Int) error {
	if m.store != nil {
		if err := m.store.PutState(m.idHash, es.state); err != nil {
			return err
		}
		if !fee.IsZero() {
			if err := m.store.AddAccruedFees(m.idHash, fee); err != nil {
				return err
			}
		}
	}
	m.mu.Lock()
	m.state = es.state
	m.mu.Unlock()
	return nil
}

// Mint deposits base collateral for the claim-token pair. Reverts unless
// both sides clear their minimums.
func (m *Market) Mint(to common.Address, baseIn, minLeverageOut, minYieldOut *uint256.Int) (*MintResult, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	defer m.exit()

	es, err := m.touch()
	if err != nil {
		return nil, err
	}
	res, err := es.mint(baseIn)
	if err != nil {
		return nil, err
	}
	if res.LeverageOut.Cmp(minLeverageOut) < 0 || res.YieldOut.Cmp(minYieldOut) < 0 {
		return nil, ErrSlippage
	}

	if !res.LeverageOut.IsZero() {
		if err := m.leverage.Mint(to, res.LeverageOut); err != nil {
			return nil, err
		}
	}
	if !res.YieldOut.IsZero() {
		if err := m.yield.Mint(to, res.YieldOut); err != nil {
			return nil, err
		}
	}
	if err := m.commit(es, res.ProtocolFee); err != nil {
		return nil, err
	}

	m.log.Debug("mint", "market", m.idHash, "baseIn", baseIn, "leverageOut", res.LeverageOut, "yieldOut", res.YieldOut)
	return res, nil
}

// Redeem burns claim tokens for base collateral.
func (m *Market) Redeem(from common.Address, leverageIn, yieldIn, minBaseOut *uint256.Int) (*RedeemResult, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	defer m.exit()

	es, err := m.touch()
	if err != nil {
		return nil, err
	}
	res, err := es.redeem(leverageIn, yieldIn)
	if err != nil {
		return nil, err
	}
	if res.BaseOut.Cmp(minBaseOut) < 0 {
		return nil, ErrSlippage
	}

	if !leverageIn.IsZero() {
		if err := m.leverage.Burn(from, leverageIn); err != nil {
			return nil, err
		}
	}
	if !yieldIn.IsZero() {
		if err := m.yield.Burn(from, yieldIn); err != nil {
			return nil, err
		}
	}
	if err := m.commit(es, res.ProtocolFee); err != nil {
		return nil, err
	}

	m.log.Debug("redeem", "market", m.idHash, "leverageIn", leverageIn, "yieldIn", yieldIn, "baseOut", res.BaseOut)
	return res, nil
}

// Swap trades one claim side for the other. For exact-in, limit is the
// minimum acceptable output; for exact-out, the maximum input.
func (m *Market) Swap(trader common.Address, fixedAsset Asset, amount *uint256.Int, isExactIn bool, limit *uint256.Int) (*SwapResult, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	defer m.exit()

	es, err := m.touch()
	if err != nil {
		return nil, err
	}
	res, err := es.swap(fixedAsset, amount, isExactIn)
	if err != nil {
		return nil, err
	}
	if isExactIn {
		if res.AmountCalculated.Cmp(limit) < 0 {
			return nil, ErrSlippage
		}
	} else if res.AmountCalculated.Cmp(limit) > 0 {
		return nil, ErrSlippage
	}

	inAsset, inAmount := fixedAsset, amount
	outAsset, outAmount := otherOf(fixedAsset), res.AmountCalculated
	if !isExactIn {
		inAsset, inAmount = otherOf(fixedAsset), res.AmountCalculated
		outAsset, outAmount = fixedAsset, amount
	}
	if err := m.claimOf(inAsset).Burn(trader, inAmount); err != nil {
		return nil, err
	}
	if err := m.claimOf(outAsset).Mint(trader, outAmount); err != nil {
		return nil, err
	}
	if err := m.commit(es, res.ProtocolFee); err != nil {
		return nil, err
	}

	m.log.Debug("swap", "market", m.idHash, "fixedAsset", fixedAsset, "amount", amount, "calculated", res.AmountCalculated, "exactIn", isExactIn)
	return res, nil
}

// UpdateState refreshes oracle feeds when update data is supplied, then
// commits the accruals without trading.
func (m *Market) UpdateState(priceUpdateData [][]byte) (*UpdateResult, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	defer m.exit()

	if len(priceUpdateData) > 0 {
		if err := m.oracle.UpdatePriceFeeds(priceUpdateData); err != nil {
			return nil, err
		}
	}
	es, err := m.touch()
	if err != nil {
		return nil, err
	}
	res := es.update()
	if err := m.commit(es, res.ProtocolFee); err != nil {
		return nil, err
	}
	return res, nil
}

// QuoteMint previews a mint without mutating anything.
func (m *Market) QuoteMint(baseIn *uint256.Int) (*MintResult, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	defer m.exit()

	es, err := m.preview()
	if err != nil {
		return nil, err
	}
	return es.mint(baseIn)
}

// QuoteRedeem previews a redemption.
func (m *Market) QuoteRedeem(leverageIn, yieldIn *uint256.Int) (*RedeemResult, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	defer m.exit()

	es, err := m.preview()
	if err != nil {
		return nil, err
	}
	return es.redeem(leverageIn, yieldIn)
}

// QuoteSwap previews a swap.
func (m *Market) QuoteSwap(fixedAsset Asset, amount *uint256.Int, isExactIn bool) (*SwapResult, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	defer m.exit()

	es, err := m.preview()
	if err != nil {
		return nil, err
	}
	return es.swap(fixedAsset, amount, isExactIn)
}

// OracleUpdateFee forwards the oracle's fee quote for update data.
func (m *Market) OracleUpdateFee(priceUpdateData [][]byte) (*uint256.Int, error) {
	return m.oracle.GetUpdateFee(priceUpdateData)
}

func (m *Market) claimOf(a Asset) ClaimToken {
	if a == AssetYield {
		return m.yield
	}
	return m.leverage
}
