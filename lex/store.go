// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lex

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
)

// Key prefixes for the persisted records.
var (
	statePrefix  = []byte("lex/state/")
	configPrefix = []byte("lex/config/")
	paramsPrefix = []byte("lex/params/")
	feesPrefix   = []byte("lex/fees/")
)

// Fixed record sizes, big-endian throughout.
const (
	stateRecordSize  = 6*32 + 1 + 32 + 8
	configRecordSize = 5*20 + 1 + 8 + 8 + 32 + 8 + 32 + 1
	paramsRecordSize = 4*32 + 8 + 1
)

var ErrCorruptRecord = errors.New("corrupt store record")

// MarketStore persists market records on a key-value database.
type MarketStore struct {
	db database.Database
}

// NewMarketStore wraps a database.
func NewMarketStore(db database.Database) *MarketStore {
	return &MarketStore{db: db}
}

func prefixed(prefix, key []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	out = append(out, prefix...)
	return append(out, key...)
}

// ============================================================================
// State
// ============================================================================

func encodeState(s *State) []byte {
	buf := make([]byte, 0, stateRecordSize)
	for _, v := range []*uint256.Int{
		s.BaseSupply, s.LeverageSupply, s.YieldSupply,
		s.NotionalPrice, s.LastSqrtPrice, s.Etwap,
	} {
		b := v.Bytes32()
		buf = append(buf, b[:]...)
	}

	sign := byte(0)
	if s.RateBias.Sign() < 0 {
		sign = 1
	}
	buf = append(buf, sign)
	mag, err := fromBigChecked(new(big.Int).Abs(s.RateBias))
	if err != nil {
		mag = new(uint256.Int).Set(MaxUint256)
	}
	mb := mag.Bytes32()
	buf = append(buf, mb[:]...)

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], s.LastTimestamp)
	return append(buf, ts[:]...)
}

func decodeState(buf []byte) (*State, error) {
	if len(buf) != stateRecordSize {
		return nil, ErrCorruptRecord
	}
	words := make([]*uint256.Int, 6)
	for i := range words {
		words[i] = new(uint256.Int).SetBytes(buf[i*32 : (i+1)*32])
	}
	off := 6 * 32
	sign := buf[off]
	bias := new(uint256.Int).SetBytes(buf[off+1 : off+33]).ToBig()
	if sign == 1 {
		bias.Neg(bias)
	}
	ts := binary.BigEndian.Uint64(buf[off+33:])

	return &State{
		BaseSupply:     words[0],
		LeverageSupply: words[1],
		YieldSupply:    words[2],
		NotionalPrice:  words[3],
		LastSqrtPrice:  words[4],
		Etwap:          words[5],
		RateBias:       bias,
		LastTimestamp:  ts,
	}, nil
}

// PutState writes a market's mutable record.
func (ms *MarketStore) PutState(id common.Hash, s *State) error {
	return ms.db.Put(prefixed(statePrefix, id[:]), encodeState(s))
}

// GetState reads a market's mutable record. Missing markets return
// ErrMarketNotFound.
func (ms *MarketStore) GetState(id common.Hash) (*State, error) {
	buf, err := ms.db.Get(prefixed(statePrefix, id[:]))
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrMarketNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeState(buf)
}

// HasState reports whether the market exists.
func (ms *MarketStore) HasState(id common.Hash) (bool, error) {
	return ms.db.Has(prefixed(statePrefix, id[:]))
}

// ============================================================================
// Config
// ============================================================================

func encodeConfig(c *Config) []byte {
	buf := make([]byte, 0, configRecordSize)
	buf = append(buf, c.Key.BaseToken.Bytes()...)
	buf = append(buf, c.Key.Oracle.Bytes()...)
	buf = append(buf, c.Key.Engine.Bytes()...)
	buf = append(buf, c.LeverageToken.Bytes()...)
	buf = append(buf, c.YieldToken.Bytes()...)
	buf = append(buf, byte(c.DecimalsExp))

	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], c.SwapFeeBps)
	buf = append(buf, u64[:]...)
	binary.BigEndian.PutUint64(u64[:], c.ProtocolFeeSplitBps)
	buf = append(buf, u64[:]...)

	fr := c.FeeRateWad.Bytes32()
	buf = append(buf, fr[:]...)
	binary.BigEndian.PutUint64(u64[:], c.CapBps)
	buf = append(buf, u64[:]...)
	nc := c.NoCapLimit.Bytes32()
	buf = append(buf, nc[:]...)

	paused := byte(0)
	if c.Paused {
		paused = 1
	}
	return append(buf, paused)
}

func decodeConfig(buf []byte) (*Config, error) {
	if len(buf) != configRecordSize {
		return nil, ErrCorruptRecord
	}
	c := &Config{}
	off := 0
	c.Key.BaseToken = common.BytesToAddress(buf[off : off+20])
	off += 20
	c.Key.Oracle = common.BytesToAddress(buf[off : off+20])
	off += 20
	c.Key.Engine = common.BytesToAddress(buf[off : off+20])
	off += 20
	c.LeverageToken = common.BytesToAddress(buf[off : off+20])
	off += 20
	c.YieldToken = common.BytesToAddress(buf[off : off+20])
	off += 20
	c.DecimalsExp = int8(buf[off])
	off++
	c.SwapFeeBps = binary.BigEndian.Uint64(buf[off : off+8])
	off += 8
	c.ProtocolFeeSplitBps = binary.BigEndian.Uint64(buf[off : off+8])
	off += 8
	c.FeeRateWad = new(uint256.Int).SetBytes(buf[off : off+32])
	off += 32
	c.CapBps = binary.BigEndian.Uint64(buf[off : off+8])
	off += 8
	c.NoCapLimit = new(uint256.Int).SetBytes(buf[off : off+32])
	off += 32
	c.Paused = buf[off] == 1
	return c, nil
}

// PutConfig writes a market's wiring record.
func (ms *MarketStore) PutConfig(id common.Hash, c *Config) error {
	return ms.db.Put(prefixed(configPrefix, id[:]), encodeConfig(c))
}

// GetConfig reads a market's wiring record.
func (ms *MarketStore) GetConfig(id common.Hash) (*Config, error) {
	buf, err := ms.db.Get(prefixed(configPrefix, id[:]))
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrMarketNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeConfig(buf)
}

// ============================================================================
// Params
// ============================================================================

func encodeParams(p *Params) []byte {
	buf := make([]byte, 0, paramsRecordSize)
	for _, v := range []*uint256.Int{p.SqrtEdgeLow, p.SqrtEdgeHigh, p.SqrtHighLtv, p.SqrtMaxLtv} {
		b := v.Bytes32()
		buf = append(buf, b[:]...)
	}
	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], p.RateDuration)
	buf = append(buf, u64[:]...)
	adaptive := byte(0)
	if p.Adaptive {
		adaptive = 1
	}
	return append(buf, adaptive)
}

func decodeParams(buf []byte) (*Params, error) {
	if len(buf) != paramsRecordSize {
		return nil, ErrCorruptRecord
	}
	words := make([]*uint256.Int, 4)
	for i := range words {
		words[i] = new(uint256.Int).SetBytes(buf[i*32 : (i+1)*32])
	}
	off := 4 * 32
	return &Params{
		SqrtEdgeLow:  words[0],
		SqrtEdgeHigh: words[1],
		SqrtHighLtv:  words[2],
		SqrtMaxLtv:   words[3],
		RateDuration: binary.BigEndian.Uint64(buf[off : off+8]),
		Adaptive:     buf[off+8] == 1,
	}, nil
}

// PutParams writes a pricing-curve record, keyed by engine address.
func (ms *MarketStore) PutParams(engine common.Address, p *Params) error {
	return ms.db.Put(prefixed(paramsPrefix, engine.Bytes()), encodeParams(p))
}

// GetParams reads a pricing-curve record.
func (ms *MarketStore) GetParams(engine common.Address) (*Params, error) {
	buf, err := ms.db.Get(prefixed(paramsPrefix, engine.Bytes()))
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrEngineNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeParams(buf)
}

// HasParams reports whether the engine record exists.
func (ms *MarketStore) HasParams(engine common.Address) (bool, error) {
	return ms.db.Has(prefixed(paramsPrefix, engine.Bytes()))
}

// ============================================================================
// Fees
// ============================================================================

// AccruedFees reads the uncollected protocol fee counter for a market.
func (ms *MarketStore) AccruedFees(id common.Hash) (*uint256.Int, error) {
	buf, err := ms.db.Get(prefixed(feesPrefix, id[:]))
	if errors.Is(err, database.ErrNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	if len(buf) != 32 {
		return nil, ErrCorruptRecord
	}
	return new(uint256.Int).SetBytes(buf), nil
}

// AddAccruedFees bumps the fee counter, saturating.
func (ms *MarketStore) AddAccruedFees(id common.Hash, amount *uint256.Int) error {
	cur, err := ms.AccruedFees(id)
	if err != nil {
		return err
	}
	next := saturatingAdd(cur, amount).Bytes32()
	return ms.db.Put(prefixed(feesPrefix, id[:]), next[:])
}

// CollectFees zeroes the counter and returns what it held.
func (ms *MarketStore) CollectFees(id common.Hash) (*uint256.Int, error) {
	cur, err := ms.AccruedFees(id)
	if err != nil {
		return nil, err
	}
	if cur.IsZero() {
		return cur, nil
	}
	var zero [32]byte
	if err := ms.db.Put(prefixed(feesPrefix, id[:]), zero[:]); err != nil {
		return nil, err
	}
	return cur, nil
}
