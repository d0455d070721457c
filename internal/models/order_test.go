package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientOrderIDRoundTrip(t *testing.T) {
	id, err := NewClientOrderID("smacross", 1700000000000)
	require.NoError(t, err)

	encoded := id.Encode()
	require.NotEmpty(t, encoded)
	assert.LessOrEqual(t, len(encoded), 36)

	decoded := DecodeClientOrderID(encoded)
	require.NotNil(t, decoded)
	assert.Equal(t, "smacross", decoded.Strategy)
	assert.Equal(t, int64(1700000000000), decoded.Timestamp)
	assert.Equal(t, id.Suffix, decoded.Suffix)
}

func TestClientOrderIDEmptyStrategyEncodesAsNone(t *testing.T) {
	id, err := NewClientOrderID("", 1700000000000)
	require.NoError(t, err)

	encoded := id.Encode()
	assert.True(t, strings.HasPrefix(encoded, "None_"))

	decoded := DecodeClientOrderID(encoded)
	require.NotNil(t, decoded)
	assert.Empty(t, decoded.Strategy)
}

func TestClientOrderIDRejectsUnderscores(t *testing.T) {
	_, err := NewClientOrderID("sma_cross", 1700000000000)
	assert.Error(t, err)
}

func TestDecodeClientOrderIDMalformed(t *testing.T) {
	assert.Nil(t, DecodeClientOrderID("garbage"))
	assert.Nil(t, DecodeClientOrderID("a_b_c_d"))
	assert.Nil(t, DecodeClientOrderID("sma_notanumber_xyz"))
}

func TestClientOrderIDWithTimestamp(t *testing.T) {
	id, err := NewClientOrderID("smacross", 1)
	require.NoError(t, err)

	derived := id.WithTimestamp(2)
	assert.Equal(t, "smacross", derived.Strategy)
	assert.Equal(t, int64(2), derived.Timestamp)
	assert.NotEmpty(t, derived.Suffix)
}

func TestOrderActionMapping(t *testing.T) {
	assert.Equal(t, ActionOpenLong, ActionFor(SideBuy, PositionLong))
	assert.Equal(t, ActionCloseLong, ActionFor(SideSell, PositionLong))
	assert.Equal(t, ActionOpenShort, ActionFor(SideSell, PositionShort))
	assert.Equal(t, ActionCloseShort, ActionFor(SideBuy, PositionShort))

	assert.True(t, ActionOpenLong.IsOpening())
	assert.True(t, ActionOpenShort.IsOpening())
	assert.True(t, ActionCloseLong.IsClosing())
	assert.True(t, ActionCloseShort.IsClosing())
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.False(t, OrderStatusOpen.IsTerminal())
	assert.True(t, OrderStatusClosed.IsTerminal())
	assert.True(t, OrderStatusCanceled.IsTerminal())
	assert.True(t, OrderStatusRejected.IsTerminal())
	assert.True(t, OrderStatusExpired.IsTerminal())
}

func TestMarketValidateOrderAppliesPrecisionAndLimits(t *testing.T) {
	m := DefaultMarket("BTC/USDT")
	m.Precision = MarketPrecision{Price: 2, Amount: 3}
	m.Limits.Amount.Min = Float(0.01)
	m.Limits.Cost.Min = Float(10)

	o := &Order{
		Symbol:       "BTC/USDT",
		Side:         SideBuy,
		PositionSide: PositionLong,
		Type:         OrderTypeLimit,
		Price:        Float(100.123456),
		Amount:       0.5004999,
	}
	require.NoError(t, m.ValidateOrder(o))
	assert.InDelta(t, 100.12, *o.Price, 1e-9)
	assert.InDelta(t, 0.5, o.Amount, 1e-9)

	o.Amount = 0.001
	assert.Error(t, m.ValidateOrder(o))

	o.Amount = 0.05
	o.Price = Float(100)
	assert.Error(t, m.ValidateOrder(o))
}

func TestMarketLimitsSkipClosingOrders(t *testing.T) {
	m := DefaultMarket("BTC/USDT")
	m.Limits.Cost.Min = Float(1_000_000)

	o := &Order{
		Symbol:       "BTC/USDT",
		Side:         SideSell,
		PositionSide: PositionLong,
		Type:         OrderTypeLimit,
		Price:        Float(100),
		Amount:       1,
	}
	assert.NoError(t, m.ValidateOrder(o))
}

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe("1h")
	require.NoError(t, err)
	assert.Equal(t, int64(60), tf.Minutes())
	assert.Equal(t, int64(3_600_000), tf.Milliseconds())

	_, err = ParseTimeframe("7m")
	assert.Error(t, err)
}
