package models

import (
	"fmt"
	"math"
)

// Round8 rounds to 8 decimal places, the contract-size precision used when
// comparing amounts against zero.
func Round8(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}

// Position is one side of a hedge-mode position, keyed by (symbol, side).
// Contracts is the open amount in absolute value; the cumulative open/close
// fields exist so realized P&L can be reported once the position has fully
// closed.
type Position struct {
	Symbol     string
	Timestamp  int64
	Hedged     bool
	Side       PositionSide
	Contracts  float64
	EntryPrice float64
	// MarkPrice tracks the last price of each candle during a backtest.
	MarkPrice  float64
	Leverage   int
	MarginMode MarginMode
	// IsolatedWallet is the margin locked for the lifetime of the position
	// in isolated mode: entry margin plus the entry fee, released pro-rata
	// as the position is reduced. Always zero in cross mode.
	IsolatedWallet float64

	ClosedTimestamp   int64
	OpenedAmount      float64
	AverageOpenPrice  float64
	ClosedAmount      float64
	AverageClosePrice float64
	hasClosePrice     bool
}

// Notional is the position's current value at the mark price.
func (p *Position) Notional() float64 { return p.Contracts * p.MarkPrice }

// InitialMargin is the notional divided by leverage.
func (p *Position) InitialMargin() float64 { return p.Notional() / float64(p.Leverage) }

// UnrealizedPnl marks the open contracts against the entry price.
func (p *Position) UnrealizedPnl() float64 {
	return (p.MarkPrice - p.EntryPrice) * p.Contracts * p.Side.Direction()
}

// Percentage is the unrealized P&L relative to the entry cost.
func (p *Position) Percentage() float64 {
	entryCost := p.EntryPrice * p.Contracts / float64(p.Leverage)
	return p.UnrealizedPnl() / entryCost * 100
}

// IsolatedMargin is the isolated wallet marked to market; zero in cross mode.
func (p *Position) IsolatedMargin() float64 {
	if p.MarginMode == MarginCross {
		return 0
	}
	return p.IsolatedWallet + p.UnrealizedPnl()
}

// MaintMarginRate looks up the tiered bracket for the current size.
func (p *Position) MaintMarginRate() float64 {
	b, err := BracketFor(p.Contracts)
	if err != nil {
		return marginBrackets[len(marginBrackets)-1].MaintMarginPct
	}
	return b.MaintMarginPct
}

// MaintAmount looks up the tiered bracket's maintenance amount.
func (p *Position) MaintAmount() float64 {
	b, err := BracketFor(p.Contracts)
	if err != nil {
		return marginBrackets[len(marginBrackets)-1].MaintAmount
	}
	return b.MaintAmount
}

// MaintMargin is the maintenance requirement at the current mark price.
func (p *Position) MaintMargin() float64 {
	return p.Notional()*p.MaintMarginRate() - p.MaintAmount()
}

// LiquidationPrice is the mark price at which the isolated wallet is fully
// consumed by maintenance requirements. Cross-mode liquidation is not
// modeled.
func (p *Position) LiquidationPrice() (float64, error) {
	if p.MarginMode == MarginCross {
		return 0, fmt.Errorf("liquidation price in cross mode is not supported")
	}
	sign := -p.Side.Direction()
	num := p.IsolatedWallet + p.MaintAmount() + sign*p.Contracts*p.EntryPrice
	den := p.Contracts*p.MaintMarginRate() + sign*p.Contracts
	return num / den, nil
}

// RealizedPnl is the final P&L over the whole position lifetime. Valid only
// once the position has fully closed.
func (p *Position) RealizedPnl() (float64, error) {
	if Round8(p.ClosedAmount-p.OpenedAmount) != 0 {
		return 0, fmt.Errorf("position %s %s not fully closed: opened %v closed %v",
			p.Symbol, p.Side, p.OpenedAmount, p.ClosedAmount)
	}
	if !p.hasClosePrice {
		return 0, nil
	}
	return (p.AverageClosePrice - p.AverageOpenPrice) * p.ClosedAmount * p.Side.Direction(), nil
}

// ApplyOpen folds an opening trade into the position: contracts grow and the
// entry price becomes the weighted average over all opens.
func (p *Position) ApplyOpen(price, amount, isolatedMargin float64) {
	newOpened := p.OpenedAmount + amount
	newContracts := Round8(p.Contracts + amount)

	p.EntryPrice = (p.EntryPrice*p.Contracts + price*amount) / newContracts
	p.AverageOpenPrice = (p.AverageOpenPrice*p.OpenedAmount + price*amount) / newOpened
	p.OpenedAmount = newOpened
	p.Contracts = newContracts
	if p.MarginMode.IsIsolated() {
		p.IsolatedWallet += isolatedMargin
	}
}

// ApplyClose folds a closing trade into the position and returns the realized
// P&L for the closed portion. The isolated wallet shrinks proportionally to
// the fraction of contracts closed, so it reaches exactly zero on full close.
func (p *Position) ApplyClose(price, amount float64) float64 {
	newClosed := p.ClosedAmount + amount
	if !p.hasClosePrice {
		p.AverageClosePrice = price
		p.hasClosePrice = true
	} else {
		p.AverageClosePrice = (p.AverageClosePrice*p.ClosedAmount + price*amount) / newClosed
	}

	realized := (price - p.EntryPrice) * amount * p.Side.Direction()
	p.ClosedAmount = newClosed
	if p.MarginMode.IsIsolated() {
		p.IsolatedWallet -= amount / p.Contracts * p.IsolatedWallet
	}
	p.Contracts = Round8(p.Contracts - amount)
	return realized
}

// Flat reports whether contracts have rounded to zero.
func (p *Position) Flat() bool { return p.Contracts == 0 }
