package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLong(entry, contracts, isolatedWallet float64, leverage int) *Position {
	return &Position{
		Symbol:           "BTC/USDT",
		Hedged:           true,
		Side:             PositionLong,
		Contracts:        contracts,
		OpenedAmount:     contracts,
		EntryPrice:       entry,
		AverageOpenPrice: entry,
		MarkPrice:        entry,
		Leverage:         leverage,
		MarginMode:       MarginIsolated,
		IsolatedWallet:   isolatedWallet,
	}
}

func TestApplyOpenAveragesEntry(t *testing.T) {
	p := newLong(100, 1, 100, 1)
	p.ApplyOpen(103, 2, 206)

	// (100*1 + 103*2) / 3
	assert.InDelta(t, 102.0, p.EntryPrice, 1e-9)
	assert.InDelta(t, 102.0, p.AverageOpenPrice, 1e-9)
	assert.InDelta(t, 3.0, p.Contracts, 1e-9)
	assert.InDelta(t, 3.0, p.OpenedAmount, 1e-9)
	assert.InDelta(t, 306.0, p.IsolatedWallet, 1e-9)
}

func TestApplyCloseReleasesWalletProRata(t *testing.T) {
	p := newLong(100, 4, 400, 1)

	realized := p.ApplyClose(110, 1)
	assert.InDelta(t, 10.0, realized, 1e-9)
	assert.InDelta(t, 3.0, p.Contracts, 1e-9)
	assert.InDelta(t, 300.0, p.IsolatedWallet, 1e-9)

	realized = p.ApplyClose(90, 3)
	assert.InDelta(t, -30.0, realized, 1e-9)
	assert.True(t, p.Flat())
	// The wallet reaches exactly zero on full close, not merely near zero.
	assert.Zero(t, p.IsolatedWallet)
}

func TestShortPnlSignsFlip(t *testing.T) {
	p := newLong(100, 1, 100, 1)
	p.Side = PositionShort
	p.MarkPrice = 90

	assert.InDelta(t, 10.0, p.UnrealizedPnl(), 1e-9)
	realized := p.ApplyClose(95, 1)
	assert.InDelta(t, 5.0, realized, 1e-9)
}

func TestRealizedPnlRequiresFullClose(t *testing.T) {
	p := newLong(100, 2, 200, 1)

	_, err := p.RealizedPnl()
	assert.Error(t, err)

	p.ApplyClose(110, 2)
	pnl, err := p.RealizedPnl()
	require.NoError(t, err)
	assert.InDelta(t, 20.0, pnl, 1e-9)
}

func TestLiquidationPrice(t *testing.T) {
	// 1 contract long at 10000 with a tenth of the notional as margin.
	p := newLong(10_000, 1, 1_000, 10)

	liq, err := p.LiquidationPrice()
	require.NoError(t, err)
	// (1000 + 0 - 10000) / (0.004 - 1)
	assert.InDelta(t, 9036.1446, liq, 1e-3)

	p.MarginMode = MarginCross
	_, err = p.LiquidationPrice()
	assert.Error(t, err)
}

func TestLiquidationPriceShortAboveEntry(t *testing.T) {
	p := newLong(10_000, 1, 1_000, 10)
	p.Side = PositionShort

	liq, err := p.LiquidationPrice()
	require.NoError(t, err)
	assert.Greater(t, liq, p.EntryPrice)
}

func TestBracketFor(t *testing.T) {
	b, err := BracketFor(10_000)
	require.NoError(t, err)
	assert.InDelta(t, 0.004, b.MaintMarginPct, 1e-12)
	assert.Zero(t, b.MaintAmount)

	b, err = BracketFor(100_000)
	require.NoError(t, err)
	assert.InDelta(t, 0.005, b.MaintMarginPct, 1e-12)
	assert.InDelta(t, 50.0, b.MaintAmount, 1e-12)

	_, err = BracketFor(600_000_000)
	assert.Error(t, err)
}

func TestIsolatedMarginMarksToMarket(t *testing.T) {
	p := newLong(100, 2, 200, 1)
	p.MarkPrice = 110

	assert.InDelta(t, 20.0, p.UnrealizedPnl(), 1e-9)
	assert.InDelta(t, 220.0, p.IsolatedMargin(), 1e-9)

	p.MarginMode = MarginCross
	assert.Zero(t, p.IsolatedMargin())
	assert.InDelta(t, 220.0, p.InitialMargin(), 1e-9)
}
