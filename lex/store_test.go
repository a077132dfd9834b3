// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lex

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

func TestStateRoundTrip(t *testing.T) {
	require := require.New(t)
	store := NewMarketStore(memdb.New())
	id := common.Hash{0x01}

	s := &State{
		BaseSupply:     uint256.NewInt(12345),
		LeverageSupply: new(uint256.Int).Set(WAD),
		YieldSupply:    new(uint256.Int).Lsh(WAD, 10),
		NotionalPrice:  new(uint256.Int).Add(WAD, uint256.NewInt(777)),
		LastSqrtPrice:  new(uint256.Int).Set(Q96),
		Etwap:          uint256.NewInt(999),
		RateBias:       big.NewInt(-42_000_000_000),
		LastTimestamp:  1_700_000_000,
	}
	require.NoError(store.PutState(id, s))

	got, err := store.GetState(id)
	require.NoError(err)
	require.Equal(s, got)

	ok, err := store.HasState(id)
	require.NoError(err)
	require.True(ok)

	ok, err = store.HasState(common.Hash{0x02})
	require.NoError(err)
	require.False(ok)

	_, err = store.GetState(common.Hash{0x02})
	require.ErrorIs(err, ErrMarketNotFound)
}

func TestStateNegativeBias(t *testing.T) {
	require := require.New(t)
	store := NewMarketStore(memdb.New())
	id := common.Hash{0x03}

	for _, bias := range []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		big.NewInt(-1),
		new(big.Int).Neg(WAD.ToBig()),
	} {
		s := NewState(100)
		s.RateBias = bias
		require.NoError(store.PutState(id, s))
		got, err := store.GetState(id)
		require.NoError(err)
		require.Zero(bias.Cmp(got.RateBias), "bias %s", bias)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	require := require.New(t)
	store := NewMarketStore(memdb.New())

	c := testConfig()
	c.DecimalsExp = -6
	c.SwapFeeBps = 30
	c.ProtocolFeeSplitBps = 5000
	c.FeeRateWad = new(uint256.Int).Div(WAD, uint256.NewInt(200))
	c.CapBps = 250
	c.NoCapLimit = new(uint256.Int).Set(WAD)
	c.Paused = true

	id := c.Key.ID()
	require.NoError(store.PutConfig(id, c))
	got, err := store.GetConfig(id)
	require.NoError(err)
	require.Equal(c, got)

	_, err = store.GetConfig(common.Hash{0x04})
	require.ErrorIs(err, ErrMarketNotFound)
}

func TestParamsRoundTrip(t *testing.T) {
	require := require.New(t)
	store := NewMarketStore(memdb.New())
	engine := common.Address{0x05}

	p := testParams()
	p.Adaptive = true
	require.NoError(store.PutParams(engine, p))
	got, err := store.GetParams(engine)
	require.NoError(err)
	require.Equal(p, got)

	_, err = store.GetParams(common.Address{0x06})
	require.ErrorIs(err, ErrEngineNotFound)

	ok, err := store.HasParams(engine)
	require.NoError(err)
	require.True(ok)
}

func TestCorruptRecords(t *testing.T) {
	require := require.New(t)
	db := memdb.New()
	store := NewMarketStore(db)
	id := common.Hash{0x07}

	require.NoError(db.Put(prefixed(statePrefix, id[:]), []byte{0x01, 0x02}))
	_, err := store.GetState(id)
	require.ErrorIs(err, ErrCorruptRecord)

	require.NoError(db.Put(prefixed(configPrefix, id[:]), make([]byte, 3)))
	_, err = store.GetConfig(id)
	require.ErrorIs(err, ErrCorruptRecord)

	engine := common.Address{0x08}
	require.NoError(db.Put(prefixed(paramsPrefix, engine.Bytes()), make([]byte, paramsRecordSize-1)))
	_, err = store.GetParams(engine)
	require.ErrorIs(err, ErrCorruptRecord)

	require.NoError(db.Put(prefixed(feesPrefix, id[:]), []byte{0x01}))
	_, err = store.AccruedFees(id)
	require.ErrorIs(err, ErrCorruptRecord)
}

func TestFeeAccrual(t *testing.T) {
	require := require.New(t)
	store := NewMarketStore(memdb.New())
	id := common.Hash{0x09}

	// empty counter reads zero, collecting it is a no-op
	fees, err := store.AccruedFees(id)
	require.NoError(err)
	require.True(fees.IsZero())
	got, err := store.CollectFees(id)
	require.NoError(err)
	require.True(got.IsZero())

	require.NoError(store.AddAccruedFees(id, uint256.NewInt(100)))
	require.NoError(store.AddAccruedFees(id, uint256.NewInt(250)))
	fees, err = store.AccruedFees(id)
	require.NoError(err)
	require.Equal(uint256.NewInt(350), fees)

	got, err = store.CollectFees(id)
	require.NoError(err)
	require.Equal(uint256.NewInt(350), got)
	fees, err = store.AccruedFees(id)
	require.NoError(err)
	require.True(fees.IsZero())

	// counter saturates instead of wrapping
	require.NoError(store.AddAccruedFees(id, MaxUint256))
	require.NoError(store.AddAccruedFees(id, uint256.NewInt(1)))
	fees, err = store.AccruedFees(id)
	require.NoError(err)
	require.Equal(MaxUint256, fees)
}
