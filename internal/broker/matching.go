package broker

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"perp-trader/internal/candle"
	"perp-trader/internal/errors"
	"perp-trader/internal/models"
)

// Engine matches open orders against candles, one tick at a time. Ticks are
// strictly sequential: one symbol's orders fully resolve before the next, and
// liquidation and contingent triggers run after all matching so the economics
// stay linearizable.
type Engine struct {
	logger  zerolog.Logger
	account *Account
	data    *candle.MultiSeries
	equity  []float64
}

// NewEngine creates a matching engine over the account's candle data.
func NewEngine(account *Account, data *candle.MultiSeries, logger zerolog.Logger) *Engine {
	equity := make([]float64, data.FullLen())
	for i := range equity {
		equity[i] = math.NaN()
	}
	return &Engine{
		logger:  logger.With().Str("component", "matching").Logger(),
		account: account,
		data:    data,
		equity:  equity,
	}
}

// Account returns the engine's account.
func (e *Engine) Account() *Account { return e.account }

// EquityHistory is the per-tick margin balance, NaN before the first
// processed tick.
func (e *Engine) EquityHistory() []float64 { return e.equity }

// Next processes the current candle for every symbol, then runs liquidation
// checks, refreshes mark prices, and evaluates pending contingent triggers.
func (e *Engine) Next() error {
	for _, symbol := range e.data.Symbols() {
		if err := e.processOrders(symbol); err != nil {
			return err
		}
	}

	for _, position := range e.account.FetchPositions(e.data.Symbols()) {
		if err := e.liquidateIfNeeded(position); err != nil {
			return err
		}
		last, err := e.data.LastClose(position.Symbol)
		if err != nil {
			return err
		}
		position.MarkPrice = last
	}
	e.account.recomputeBalance()

	for _, info := range e.account.Contingents().Pending() {
		if err := e.triggerContingentIfNeeded(info); err != nil {
			return err
		}
	}

	e.equity[e.data.Len()-1] = e.account.FetchBalance().MarginBalance()
	return nil
}

func (e *Engine) processOrders(symbol string) error {
	tick, err := e.data.Last(symbol)
	if err != nil {
		return err
	}
	open, high, low := tick.Open, tick.High, tick.Low

	for _, order := range e.account.FetchOpenOrders(symbol) {
		// The order may have been canceled earlier this tick, e.g. by the
		// auto-cancel that follows a full position close.
		if order.Status != models.OrderStatusOpen {
			continue
		}

		stopHit := false
		if order.StopPrice != nil {
			switch order.Type {
			case models.OrderTypeStop, models.OrderTypeStopMarket:
				if order.Side == models.SideBuy {
					stopHit = high >= *order.StopPrice
				} else {
					stopHit = low <= *order.StopPrice
				}
			case models.OrderTypeTakeProfit, models.OrderTypeTakeProfitMarket:
				if order.Side == models.SideBuy {
					stopHit = low <= *order.StopPrice
				} else {
					stopHit = high >= *order.StopPrice
				}
			}
			if !stopHit {
				continue
			}
		}

		executable, price, tom := e.checkExecutable(order, open, high, low)

		if stopHit {
			// Once triggered, a stop becomes a plain market or limit order
			// and the trigger is never evaluated again.
			switch order.Type {
			case models.OrderTypeStopMarket, models.OrderTypeTakeProfitMarket:
				order.Type = models.OrderTypeMarket
			case models.OrderTypeStop, models.OrderTypeTakeProfit:
				order.Type = models.OrderTypeLimit
			}
			order.StopPrice = nil
		}

		if executable {
			if _, err := e.account.OpenTrade(price, tick.Timestamp, order, tom); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkExecutable resolves whether the order fills on this candle and at what
// price and fee tier. The stop trigger, if any, has already been hit.
func (e *Engine) checkExecutable(order *models.Order, open, high, low float64) (bool, float64, models.TakerOrMaker) {
	isBuy := order.Side == models.SideBuy

	if order.Price == nil {
		// Market-priced orders always fill at the open. A stop-market fill
		// cannot be better than the stop price, so clamp toward it.
		price := open
		if order.StopPrice != nil {
			if order.Type == models.OrderTypeStopMarket {
				if isBuy {
					price = math.Max(open, *order.StopPrice)
				} else {
					price = math.Min(open, *order.StopPrice)
				}
			} else {
				if isBuy {
					price = math.Min(open, *order.StopPrice)
				} else {
					price = math.Max(open, *order.StopPrice)
				}
			}
		}
		return true, price, models.Taker
	}

	crossed := false
	if isBuy {
		crossed = low < *order.Price
	} else {
		crossed = high > *order.Price
	}
	if !crossed {
		return false, 0, ""
	}

	if order.StopPrice == nil {
		var price float64
		var taker bool
		if isBuy {
			price = math.Min(open, *order.Price)
			taker = open <= *order.Price
		} else {
			price = math.Max(open, *order.Price)
			taker = open >= *order.Price
		}
		if taker {
			return true, price, models.Taker
		}
		return true, price, models.Maker
	}

	// Both the stop and the limit price were hit within this one candle. No
	// sub-candle path is available, so resolve by assuming the stop
	// triggered first. This is an approximation that alters fills versus a
	// real exchange; it is logged so affected runs can be audited.
	e.logger.Warn().
		Str("order", order.ID).
		Str("symbol", order.Symbol).
		Msg("stop and limit hit within the same candle, assuming stop triggered first")

	if (isBuy && *order.StopPrice > *order.Price) || (!isBuy && *order.StopPrice < *order.Price) {
		return true, *order.Price, models.Maker
	}
	var price float64
	if order.Type == models.OrderTypeStop {
		if isBuy {
			price = math.Max(open, *order.StopPrice)
		} else {
			price = math.Min(open, *order.StopPrice)
		}
	} else {
		if isBuy {
			price = math.Min(open, *order.StopPrice)
		} else {
			price = math.Max(open, *order.StopPrice)
		}
	}
	return true, price, models.Taker
}

// liquidateIfNeeded force-closes an isolated position whose candle range
// crossed its liquidation price. Cross-mode liquidation is not modeled, and
// leverage-1 longs can never be liquidated.
func (e *Engine) liquidateIfNeeded(position *models.Position) error {
	if !position.MarginMode.IsIsolated() {
		return nil
	}
	if position.Side == models.PositionLong && position.Leverage == 1 {
		return nil
	}
	low, high, err := e.data.LastLowHigh(position.Symbol)
	if err != nil {
		return err
	}
	liqPrice, err := position.LiquidationPrice()
	if err != nil {
		return errors.NewInvariantError("liquidation", err)
	}

	if position.Side == models.PositionLong && low <= liqPrice {
		return e.liquidate(position, liqPrice)
	}
	if position.Side == models.PositionShort && high >= liqPrice {
		return e.liquidate(position, liqPrice)
	}
	return nil
}

func (e *Engine) liquidate(position *models.Position, liqPrice float64) error {
	last, err := e.data.LastClose(position.Symbol)
	if err != nil {
		return err
	}
	e.logger.Warn().
		Str("symbol", position.Symbol).
		Str("side", string(position.Side)).
		Float64("price", last).
		Float64("liquidation_price", liqPrice).
		Msg("liquidating position")

	action := models.ActionCloseLong
	if position.Side == models.PositionShort {
		action = models.ActionCloseShort
	}
	clientID, err := models.NewClientOrderID("", e.data.NextTimestamp())
	if err != nil {
		return err
	}
	order, err := e.account.CreateOrder(CreateOrderParams{
		Symbol:        position.Symbol,
		Action:        action,
		Amount:        position.Contracts,
		ClientOrderID: clientID,
	})
	if err != nil {
		return err
	}
	if order == nil {
		return errors.NewInvariantError("liquidation",
			fmt.Errorf("force liquidation of %s %s produced no order", position.Symbol, position.Side))
	}
	e.account.Contingents().DeletePending(position.Symbol, position.Side)
	return nil
}

// triggerContingentIfNeeded fires a contingent stop-loss or take-profit once
// the candle range crosses its trigger, synthesizing a closing order at the
// configured execute price (market when nil). Only contingents whose parent
// order has filled are eligible.
func (e *Engine) triggerContingentIfNeeded(info *ContingentInfo) error {
	low, high, err := e.data.LastLowHigh(info.Symbol)
	if err != nil {
		return err
	}

	var triggered bool
	var executePrice *float64
	isLong := info.Side == models.PositionLong

	switch {
	case info.SLTriggerPrice != nil && (isLong && low <= *info.SLTriggerPrice || !isLong && *info.SLTriggerPrice <= high):
		triggered = true
		executePrice = info.SLExecutePrice
	case info.TPTriggerPrice != nil && (isLong && *info.TPTriggerPrice <= high || !isLong && low <= *info.TPTriggerPrice):
		triggered = true
		executePrice = info.TPExecutePrice
	}
	if !triggered {
		return nil
	}

	parent := e.account.FetchOrder(info.OrderID, info.Symbol)
	if parent == nil {
		// Defensive: the parent may have vanished through liquidation
		// cleanup. Purge the entry rather than crashing the tick loop.
		e.logger.Warn().
			Str("order", info.OrderID).
			Str("symbol", info.Symbol).
			Msg("contingent trigger found no parent order, purging")
		e.account.Contingents().Delete(info.OrderID, info.Symbol)
		return nil
	}
	if parent.Status != models.OrderStatusClosed {
		// The parent has not filled yet; the contingent stays pending.
		return nil
	}

	action := models.ActionCloseLong
	if parent.PositionSide == models.PositionShort {
		action = models.ActionCloseShort
	}
	var clientID *models.ClientOrderID
	if parent.ClientOrderID != nil {
		clientID = parent.ClientOrderID.WithTimestamp(e.data.NextTimestamp())
	}
	if _, err := e.account.CreateOrder(CreateOrderParams{
		Symbol:        info.Symbol,
		Action:        action,
		Amount:        parent.Amount,
		Price:         executePrice,
		ClientOrderID: clientID,
	}); err != nil {
		return err
	}

	e.logger.Info().
		Str("order", parent.ID).
		Str("symbol", info.Symbol).
		Msg("contingent order triggered")
	e.account.Contingents().MarkTriggered(info.OrderID, info.Symbol)
	return nil
}
