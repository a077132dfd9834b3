// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lex

import (
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
)

// Registry creates and tracks markets. Pricing-curve records register
// once under an engine address and any number of markets may price
// against one. Governance (pause, cap limits, fee collection) goes
// through here.
type Registry struct {
	mu      sync.RWMutex
	markets map[common.Hash]*Market

	store   *MarketStore
	log     log.Logger
	admin   common.Address
	feeSink common.Address
}

// NewRegistry wires a registry over a database.
func NewRegistry(db database.Database, admin, feeSink common.Address, logger log.Logger) *Registry {
	return &Registry{
		markets: make(map[common.Hash]*Market),
		store:   NewMarketStore(db),
		log:     logger,
		admin:   admin,
		feeSink: feeSink,
	}
}

// RegisterEngine persists a pricing-curve record under its address.
// Engines are immutable once registered.
func (r *Registry) RegisterEngine(engine common.Address, params *Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	exists, err := r.store.HasParams(engine)
	if err != nil {
		return err
	}
	if exists {
		return ErrEngineExists
	}
	if err := r.store.PutParams(engine, params); err != nil {
		return err
	}
	r.log.Info("engine registered", "engine", engine)
	return nil
}

// CreateMarket creates and persists a market for the config's key tuple.
// The market ID is deterministic in the tuple, so recreating an existing
// market fails.
func (r *Registry) CreateMarket(config *Config, oracle Oracle, leverage, yield ClaimToken) (*Market, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	params, err := r.store.GetParams(config.Key.Engine)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := config.Key.ID()
	if _, ok := r.markets[id]; ok {
		return nil, ErrMarketExists
	}
	exists, err := r.store.HasState(id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrMarketExists
	}

	m, err := NewMarket(config, params, nil, oracle, leverage, yield, r.store, r.log)
	if err != nil {
		return nil, err
	}
	if err := r.store.PutConfig(id, config); err != nil {
		return nil, err
	}
	if err := r.store.PutState(id, m.state); err != nil {
		return nil, err
	}

	r.markets[id] = m
	r.log.Info("market created", "id", id, "base", config.Key.BaseToken, "engine", config.Key.Engine)
	return m, nil
}

// OpenMarket rehydrates a persisted market after a restart, rebinding the
// external oracle and claim tokens.
func (r *Registry) OpenMarket(id common.Hash, oracle Oracle, leverage, yield ClaimToken) (*Market, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.markets[id]; ok {
		return m, nil
	}
	config, err := r.store.GetConfig(id)
	if err != nil {
		return nil, err
	}
	params, err := r.store.GetParams(config.Key.Engine)
	if err != nil {
		return nil, err
	}
	state, err := r.store.GetState(id)
	if err != nil {
		return nil, err
	}

	m, err := NewMarket(config, params, state, oracle, leverage, yield, r.store, r.log)
	if err != nil {
		return nil, err
	}
	r.markets[id] = m
	return m, nil
}

// Market looks up a live market.
func (r *Registry) Market(id common.Hash) (*Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[id]
	if !ok {
		return nil, ErrMarketNotFound
	}
	return m, nil
}

// SetPaused flips a market's pause flag. Admin only.
func (r *Registry) SetPaused(caller common.Address, id common.Hash, paused bool) error {
	if caller != r.admin {
		return ErrUnauthorized
	}
	m, err := r.Market(id)
	if err != nil {
		return err
	}
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()

	m.config.Paused = paused
	if err := r.store.PutConfig(id, m.config); err != nil {
		return err
	}
	r.log.Info("market pause flag set", "id", id, "paused", paused)
	return nil
}

// SetNoCapLimit retunes the supply level below which per-action caps are
// off. Admin only.
func (r *Registry) SetNoCapLimit(caller common.Address, id common.Hash, limit *uint256.Int) error {
	if caller != r.admin {
		return ErrUnauthorized
	}
	m, err := r.Market(id)
	if err != nil {
		return err
	}
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()

	m.config.NoCapLimit = new(uint256.Int).Set(limit)
	if err := r.store.PutConfig(id, m.config); err != nil {
		return err
	}
	r.log.Info("no-cap limit updated", "id", id, "limit", limit)
	return nil
}

// AccruedFees reads a market's uncollected protocol fees.
func (r *Registry) AccruedFees(id common.Hash) (*uint256.Int, error) {
	return r.store.AccruedFees(id)
}

// CollectFees drains a market's fee counter. Only the fee sink or the
// admin may collect.
func (r *Registry) CollectFees(caller common.Address, id common.Hash) (*uint256.Int, error) {
	if caller != r.feeSink && caller != r.admin {
		return nil, ErrUnauthorized
	}
	amount, err := r.store.CollectFees(id)
	if err != nil {
		return nil, err
	}
	if !amount.IsZero() {
		r.log.Info("fees collected", "id", id, "amount", amount)
	}
	return amount, nil
}
