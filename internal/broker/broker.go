// Package broker implements the simulated exchange: order book, position
// book, account ledger and the per-tick matching engine.
package broker

import (
	"perp-trader/internal/models"
)

// CreateOrderParams carries everything a strategy supplies when placing an
// order. Price nil means market-priced; StopPrice nil means no trigger.
// ContingentSL/ContingentTP may only accompany opening orders.
type CreateOrderParams struct {
	Symbol        string
	Action        models.OrderAction
	Amount        float64
	Price         *float64
	StopPrice     *float64
	ContingentSL  *models.ContingentOrder
	ContingentTP  *models.ContingentOrder
	TimeInForce   models.TimeInForce
	ClientOrderID *models.ClientOrderID
}

// Broker is the surface strategies trade through. CreateOrder returns
// (nil, nil) for exchange-side rejections such as insufficient balance or a
// missing position to close; a non-nil error always indicates caller error
// or a simulation defect.
type Broker interface {
	CreateOrder(params CreateOrderParams) (*models.Order, error)
	CancelOrder(order *models.Order) *models.Order
	CancelAllOrders(symbol string, sides ...models.PositionSide)
	FetchBalance() *models.Balance
	FetchOpenOrders(symbol string, sides ...models.PositionSide) []*models.Order
	FetchPositions(symbols []string) []*models.Position
	FetchTrades(symbol string) []*models.Trade
	LastPrice(symbol string) (float64, error)
	SetLeverage(symbol string, leverage int) error
	SetMarginMode(symbol string, mode models.MarginMode) error
	Leverage(symbol string) int
}

// OrderTypeFor derives the order type from which prices the caller supplied.
// A stop price alone makes a stop-market or take-profit-market order, a limit
// price alone a limit order, both together a stop or take-profit order. The
// stop acts as a take-profit when it already sits on the profitable side of
// the last price for the order's direction.
func OrderTypeFor(action models.OrderAction, price, stopPrice *float64, lastPrice float64) models.OrderType {
	var isTakeProfit bool
	if stopPrice != nil {
		if action.OrderSide() == models.SideSell {
			isTakeProfit = lastPrice < *stopPrice
		} else {
			isTakeProfit = lastPrice > *stopPrice
		}
	}

	switch {
	case price == nil && stopPrice == nil:
		return models.OrderTypeMarket
	case price != nil && stopPrice == nil:
		return models.OrderTypeLimit
	case price == nil:
		if isTakeProfit {
			return models.OrderTypeTakeProfitMarket
		}
		return models.OrderTypeStopMarket
	default:
		if isTakeProfit {
			return models.OrderTypeTakeProfit
		}
		return models.OrderTypeStop
	}
}

// Fee schedule. Fixed for the simulation, matching the exchange's VIP-0 tier.
const (
	TakerFeeRate = 0.0006
	MakerFeeRate = 0.0003
)

// FeeRate returns the rate for the given fill kind.
func FeeRate(tom models.TakerOrMaker) float64 {
	if tom == models.Taker {
		return TakerFeeRate
	}
	return MakerFeeRate
}
