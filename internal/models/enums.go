package models

import "fmt"

// MarginMode selects how margin backs a position.
type MarginMode string

const (
	MarginCross    MarginMode = "cross"
	MarginIsolated MarginMode = "isolated"
)

func (m MarginMode) IsIsolated() bool { return m == MarginIsolated }

// OrderStatus is the lifecycle state of an order. Orders only ever move
// forward: open, then closed or canceled.
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusClosed   OrderStatus = "closed"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusRejected OrderStatus = "rejected"
	OrderStatusExpired  OrderStatus = "expired"
)

// IsTerminal reports whether the order can no longer change state.
func (s OrderStatus) IsTerminal() bool {
	return s != OrderStatusOpen && s != ""
}

// OrderType is the exchange order flavor, derived from which of price and
// stop price the caller supplied.
type OrderType string

const (
	OrderTypeLimit            OrderType = "limit"
	OrderTypeMarket           OrderType = "market"
	OrderTypeStop             OrderType = "stop"
	OrderTypeStopMarket       OrderType = "stop_market"
	OrderTypeTakeProfit       OrderType = "take_profit"
	OrderTypeTakeProfitMarket OrderType = "take_profit_market"
	OrderTypeLiquidation      OrderType = "liquidation"
)

// IsStopFlavored reports whether the order waits for a trigger price.
func (t OrderType) IsStopFlavored() bool {
	switch t {
	case OrderTypeStop, OrderTypeStopMarket, OrderTypeTakeProfit, OrderTypeTakeProfitMarket:
		return true
	}
	return false
}

// IsTakeProfit reports whether the trigger fires on favorable movement.
func (t OrderType) IsTakeProfit() bool {
	return t == OrderTypeTakeProfit || t == OrderTypeTakeProfitMarket
}

// OrderSide is the direction of the order itself.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// PositionSide is the hedge-mode side a position or order belongs to.
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// Direction is +1 for long, -1 for short.
func (s PositionSide) Direction() float64 {
	if s == PositionLong {
		return 1
	}
	return -1
}

// OrderAction is the (side, position side) pair an order carries in hedge
// mode. Buying long or selling short opens; the other two close.
type OrderAction string

const (
	ActionOpenLong   OrderAction = "open_long"
	ActionCloseLong  OrderAction = "close_long"
	ActionOpenShort  OrderAction = "open_short"
	ActionCloseShort OrderAction = "close_short"
)

// ActionFor maps a side and position side to the action.
func ActionFor(side OrderSide, positionSide PositionSide) OrderAction {
	switch {
	case side == SideBuy && positionSide == PositionLong:
		return ActionOpenLong
	case side == SideSell && positionSide == PositionLong:
		return ActionCloseLong
	case side == SideSell && positionSide == PositionShort:
		return ActionOpenShort
	default:
		return ActionCloseShort
	}
}

func (a OrderAction) OrderSide() OrderSide {
	if a == ActionOpenLong || a == ActionCloseShort {
		return SideBuy
	}
	return SideSell
}

func (a OrderAction) PositionSide() PositionSide {
	if a == ActionOpenLong || a == ActionCloseLong {
		return PositionLong
	}
	return PositionShort
}

func (a OrderAction) IsOpening() bool {
	return a == ActionOpenLong || a == ActionOpenShort
}

func (a OrderAction) IsClosing() bool { return !a.IsOpening() }

// TimeInForce is how long an order stays live.
type TimeInForce string

const (
	GTC    TimeInForce = "GTC"
	GTEGTC TimeInForce = "GTE_GTC"
	IOC    TimeInForce = "IOC"
	FOK    TimeInForce = "FOK"
	PO     TimeInForce = "PO"
)

// TakerOrMaker records which side of the book a fill consumed.
type TakerOrMaker string

const (
	Taker TakerOrMaker = "taker"
	Maker TakerOrMaker = "maker"
)

// Timeframe is a candle interval.
type Timeframe string

const (
	TimeframeM1  Timeframe = "1m"
	TimeframeM5  Timeframe = "5m"
	TimeframeM15 Timeframe = "15m"
	TimeframeM30 Timeframe = "30m"
	TimeframeH1  Timeframe = "1h"
	TimeframeH4  Timeframe = "4h"
	TimeframeD1  Timeframe = "1d"
	TimeframeW1  Timeframe = "1w"
)

func (t Timeframe) String() string { return string(t) }

// Minutes returns the interval length in minutes. Unknown timeframes are
// rejected at parse time, so the zero return only occurs on misuse.
func (t Timeframe) Minutes() int64 {
	switch t {
	case TimeframeM1:
		return 1
	case TimeframeM5:
		return 5
	case TimeframeM15:
		return 15
	case TimeframeM30:
		return 30
	case TimeframeH1:
		return 60
	case TimeframeH4:
		return 240
	case TimeframeD1:
		return 1440
	case TimeframeW1:
		return 10080
	}
	return 0
}

// Milliseconds returns the interval length in epoch milliseconds.
func (t Timeframe) Milliseconds() int64 {
	return t.Minutes() * 60 * 1000
}

// ParseTimeframe validates a timeframe string from config or the CLI.
func ParseTimeframe(s string) (Timeframe, error) {
	t := Timeframe(s)
	if t.Minutes() == 0 {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return t, nil
}
