package broker

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"perp-trader/internal/candle"
	"perp-trader/internal/errors"
	"perp-trader/internal/models"
)

type posKey struct {
	symbol string
	side   models.PositionSide
}

// Account is the simulated exchange account: order book, position book and
// balance ledger. All state is mutated synchronously from the tick loop; the
// balance is recomputed wholesale after every mutation rather than patched
// incrementally, so derived fields can never drift.
type Account struct {
	logger zerolog.Logger
	data   *candle.MultiSeries

	balance *models.Balance
	// orders indexes every order by status, then by (symbol, position side).
	orders          map[models.OrderStatus]map[posKey][]*models.Order
	trades          []*models.Trade
	leverage        map[string]int
	marginMode      models.MarginMode
	openPositions   map[posKey]*models.Position
	closedPositions map[posKey][]*models.Position
	markets         map[string]*models.Market
	contingents     Tracker
}

// NewAccount creates an account with the given starting wallet balance.
func NewAccount(initialBalance float64, data *candle.MultiSeries, contingents Tracker, logger zerolog.Logger) *Account {
	return &Account{
		logger:          logger.With().Str("component", "account").Logger(),
		data:            data,
		balance:         &models.Balance{WalletBalance: initialBalance},
		orders:          make(map[models.OrderStatus]map[posKey][]*models.Order),
		leverage:        make(map[string]int),
		marginMode:      models.MarginIsolated,
		openPositions:   make(map[posKey]*models.Position),
		closedPositions: make(map[posKey][]*models.Position),
		markets:         make(map[string]*models.Market),
		contingents:     contingents,
	}
}

// SetMarket overrides the instrument metadata for a symbol.
func (a *Account) SetMarket(m *models.Market) { a.markets[m.Symbol] = m }

func (a *Account) market(symbol string) *models.Market {
	if m, ok := a.markets[symbol]; ok {
		return m
	}
	m := models.DefaultMarket(symbol)
	a.markets[symbol] = m
	return m
}

// SetLeverage changes the leverage for a symbol. Only allowed while the
// symbol has no open position on either side.
func (a *Account) SetLeverage(symbol string, leverage int) error {
	if leverage < 1 {
		return fmt.Errorf("leverage must be >= 1, got %d", leverage)
	}
	if a.hasOpenPosition(symbol) {
		return fmt.Errorf("cannot change leverage for %s with an open position", symbol)
	}
	a.leverage[symbol] = leverage
	return nil
}

// Leverage returns the symbol's leverage, defaulting to 1.
func (a *Account) Leverage(symbol string) int {
	if lev, ok := a.leverage[symbol]; ok {
		return lev
	}
	return 1
}

// SetMarginMode switches the account margin mode. Only allowed while the
// symbol has no open position on either side.
func (a *Account) SetMarginMode(symbol string, mode models.MarginMode) error {
	if a.hasOpenPosition(symbol) {
		return fmt.Errorf("cannot change margin mode for %s with an open position", symbol)
	}
	a.marginMode = mode
	return nil
}

func (a *Account) hasOpenPosition(symbol string) bool {
	_, long := a.openPositions[posKey{symbol, models.PositionLong}]
	_, short := a.openPositions[posKey{symbol, models.PositionShort}]
	return long || short
}

// FetchBalance returns the live balance snapshot.
func (a *Account) FetchBalance() *models.Balance { return a.balance }

// LastPrice is the newest visible close for the symbol.
func (a *Account) LastPrice(symbol string) (float64, error) {
	return a.data.LastClose(symbol)
}

// FetchOrder finds an order by id across all statuses for a symbol.
func (a *Account) FetchOrder(id, symbol string) *models.Order {
	for _, order := range a.FetchOrders(symbol) {
		if order.ID == id {
			return order
		}
	}
	return nil
}

// FetchOrders returns all orders for a symbol in any status.
func (a *Account) FetchOrders(symbol string, sides ...models.PositionSide) []*models.Order {
	if len(sides) == 0 {
		sides = []models.PositionSide{models.PositionLong, models.PositionShort}
	}
	var out []*models.Order
	for _, byKey := range a.orders {
		for _, side := range sides {
			out = append(out, byKey[posKey{symbol, side}]...)
		}
	}
	return out
}

// FetchOpenOrders returns open orders for a symbol, or every open order when
// symbol is empty.
func (a *Account) FetchOpenOrders(symbol string, sides ...models.PositionSide) []*models.Order {
	if len(sides) == 0 {
		sides = []models.PositionSide{models.PositionLong, models.PositionShort}
	}
	byKey := a.orders[models.OrderStatusOpen]
	var out []*models.Order
	if symbol != "" {
		for _, side := range sides {
			out = append(out, byKey[posKey{symbol, side}]...)
		}
		return out
	}
	for key, orders := range byKey {
		for _, side := range sides {
			if key.side == side {
				out = append(out, orders...)
			}
		}
	}
	return out
}

// FetchClosedOrders returns filled orders for a symbol.
func (a *Account) FetchClosedOrders(symbol string, sides ...models.PositionSide) []*models.Order {
	if len(sides) == 0 {
		sides = []models.PositionSide{models.PositionLong, models.PositionShort}
	}
	var out []*models.Order
	for _, side := range sides {
		out = append(out, a.orders[models.OrderStatusClosed][posKey{symbol, side}]...)
	}
	return out
}

// FetchTrades returns the trade ledger, filtered by symbol unless empty.
func (a *Account) FetchTrades(symbol string) []*models.Trade {
	if symbol == "" {
		return a.trades
	}
	var out []*models.Trade
	for _, t := range a.trades {
		if t.Symbol == symbol {
			out = append(out, t)
		}
	}
	return out
}

// FetchPositions returns open positions for the symbols, oldest first.
func (a *Account) FetchPositions(symbols []string) []*models.Position {
	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[s] = true
	}
	var out []*models.Position
	for _, p := range a.openPositions {
		if want[p.Symbol] {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// OpenPosition returns the open position for (symbol, side), or nil.
func (a *Account) OpenPosition(symbol string, side models.PositionSide) *models.Position {
	return a.openPositions[posKey{symbol, side}]
}

// ClosedPositions returns every archived position, oldest first.
func (a *Account) ClosedPositions() []*models.Position {
	var out []*models.Position
	for _, list := range a.closedPositions {
		out = append(out, list...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// Contingents exposes the tracker to the matching engine.
func (a *Account) Contingents() Tracker { return a.contingents }

// CreateOrder validates and registers a new order. Price inconsistencies
// supplied by the caller return an error; exchange-side rejections (limits,
// balance, missing position) log a warning and return (nil, nil).
func (a *Account) CreateOrder(params CreateOrderParams) (*models.Order, error) {
	lastPrice, err := a.data.LastClose(params.Symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrSymbolNotFound, params.Symbol)
	}
	timestamp := a.data.NextTimestamp()

	if params.TimeInForce == "" {
		params.TimeInForce = models.GTC
	}
	order := &models.Order{
		ID:            uuid.NewString(),
		ClientOrderID: params.ClientOrderID,
		Timestamp:     timestamp,
		Symbol:        params.Symbol,
		Side:          params.Action.OrderSide(),
		PositionSide:  params.Action.PositionSide(),
		Type:          OrderTypeFor(params.Action, params.Price, params.StopPrice, lastPrice),
		Price:         params.Price,
		StopPrice:     params.StopPrice,
		Amount:        params.Amount,
		Status:        models.OrderStatusOpen,
		TimeInForce:   params.TimeInForce,
	}

	// Prices are caller-controlled, so inconsistencies are returned rather
	// than swallowed.
	if err := a.validatePrice(order, params.ContingentSL, params.ContingentTP, lastPrice); err != nil {
		return nil, err
	}

	if err := a.market(order.Symbol).ValidateOrder(order); err != nil {
		a.logger.Warn().Err(err).Str("symbol", order.Symbol).Msg("order rejected by market limits")
		a.rejectOrder(order)
		return nil, nil
	}

	action := order.Action()
	if action.IsOpening() {
		entry := lastPrice
		if order.Price != nil {
			entry = *order.Price
		}
		estimatedCost := entry / float64(a.Leverage(order.Symbol)) * order.Amount * (1 + TakerFeeRate)
		if estimatedCost > a.balance.Available() {
			a.logger.Warn().
				Str("symbol", order.Symbol).
				Float64("cost", estimatedCost).
				Float64("available", a.balance.Available()).
				Msg("not enough money to open an order")
			a.rejectOrder(order)
			return nil, nil
		}
	} else {
		position := a.openPositions[posKey{order.Symbol, order.PositionSide}]
		if position == nil {
			a.logger.Warn().Str("symbol", order.Symbol).Msg("no open position to close")
			a.rejectOrder(order)
			return nil, nil
		}
		if order.Amount > position.Contracts {
			a.logger.Warn().
				Float64("amount", order.Amount).
				Float64("contracts", position.Contracts).
				Msg("order amount exceeds position size, clamping")
			order.Amount = position.Contracts
		}
	}

	if action.IsOpening() && (params.ContingentSL != nil || params.ContingentTP != nil) {
		if err := a.contingents.Create(order.ID, order.Symbol, order.PositionSide,
			params.ContingentSL, params.ContingentTP); err != nil {
			return nil, err
		}
	}

	if err := a.setOrderStatus(order, models.OrderStatusOpen); err != nil {
		return nil, err
	}
	return order, nil
}

// CancelOrder cancels an open order, deleting any attached contingent entry.
// Canceling an order that is not open is a no-op returning nil.
func (a *Account) CancelOrder(order *models.Order) *models.Order {
	if order.Status != models.OrderStatusOpen {
		a.logger.Warn().Str("order", order.ID).Str("status", string(order.Status)).
			Msg("order is not open, nothing to cancel")
		return nil
	}
	if err := a.setOrderStatus(order, models.OrderStatusCanceled); err != nil {
		a.logger.Error().Err(err).Str("order", order.ID).Msg("cancel failed")
		return nil
	}
	return order
}

// CancelAllOrders cancels every open order on a symbol.
func (a *Account) CancelAllOrders(symbol string, sides ...models.PositionSide) {
	for _, order := range a.FetchOpenOrders(symbol, sides...) {
		a.CancelOrder(order)
	}
}

// OpenTrade executes one fill of an order at the resolved price and fee tier.
// Called by the matching engine only. A closing order whose position has
// disappeared (already liquidated) is canceled and returns (nil, nil).
func (a *Account) OpenTrade(price float64, timestamp int64, order *models.Order, tom models.TakerOrMaker) (*models.Trade, error) {
	market := a.market(order.Symbol)
	price = market.PriceToPrecision(price)
	amount := market.AmountToPrecision(order.Amount)
	rate := FeeRate(tom)
	trade := &models.Trade{
		ID:           uuid.NewString(),
		Timestamp:    timestamp,
		Symbol:       order.Symbol,
		OrderID:      order.ID,
		Side:         order.Side,
		TakerOrMaker: tom,
		Price:        price,
		Amount:       amount,
		Fee: models.Fee{
			Currency: market.Settle,
			Cost:     price * amount * rate,
			Rate:     rate,
		},
	}

	action := order.Action()
	if action.IsOpening() {
		if err := a.setOrderStatus(order, models.OrderStatusClosed); err != nil {
			return nil, err
		}
		totalCost := trade.Notional()/float64(a.Leverage(order.Symbol)) + trade.Fee.Cost
		if totalCost > a.balance.Available() {
			return nil, errors.NewInvariantError("open trade",
				fmt.Errorf("%w: cost %v exceeds available %v", errors.ErrOutOfMoney, totalCost, a.balance.Available()))
		}
	} else {
		position := a.openPositions[posKey{order.Symbol, order.PositionSide}]
		if position == nil {
			// The position may already have been liquidated by the engine.
			if err := a.setOrderStatus(order, models.OrderStatusCanceled); err != nil {
				return nil, err
			}
			return nil, nil
		}
		if err := a.setOrderStatus(order, models.OrderStatusClosed); err != nil {
			return nil, err
		}
		if trade.Amount > position.Contracts {
			return nil, errors.NewInvariantError("open trade",
				fmt.Errorf("close amount %v exceeds contracts %v", trade.Amount, position.Contracts))
		}
	}

	order.Trades = append(order.Trades, trade)
	a.trades = append(a.trades, trade)
	if err := a.updatePosition(trade, action); err != nil {
		return nil, err
	}
	a.balance.WalletBalance -= trade.Fee.Cost
	a.recomputeBalance()
	return trade, nil
}

// rejectOrder marks an order the exchange refused. Rejected orders were
// never indexed as open; they are recorded for post-run inspection only.
func (a *Account) rejectOrder(order *models.Order) {
	order.Status = models.OrderStatusRejected
	a.appendToIndex(models.OrderStatusRejected, posKey{order.Symbol, order.PositionSide}, order)
}

// setOrderStatus transitions an open order and reindexes it by status.
func (a *Account) setOrderStatus(order *models.Order, status models.OrderStatus) error {
	if order.Status != models.OrderStatusOpen {
		return errors.NewInvariantError("order status",
			fmt.Errorf("only open orders can transition, order %s is %s", order.ID, order.Status))
	}
	key := posKey{order.Symbol, order.PositionSide}

	if status != models.OrderStatusOpen {
		if !a.removeFromIndex(models.OrderStatusOpen, key, order) {
			return errors.NewInvariantError("order status",
				fmt.Errorf("order %s missing from open index", order.ID))
		}
		order.Status = status
		if status == models.OrderStatusCanceled {
			a.contingents.Delete(order.ID, order.Symbol)
		}
		if status == models.OrderStatusClosed {
			order.Filled = order.Amount
		}
	}

	a.appendToIndex(status, key, order)
	a.recomputeBalance()
	return nil
}

func (a *Account) appendToIndex(status models.OrderStatus, key posKey, order *models.Order) {
	if a.orders[status] == nil {
		a.orders[status] = make(map[posKey][]*models.Order)
	}
	a.orders[status][key] = append(a.orders[status][key], order)
}

func (a *Account) removeFromIndex(status models.OrderStatus, key posKey, order *models.Order) bool {
	list := a.orders[status][key]
	for i, o := range list {
		if o == order {
			a.orders[status][key] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// updatePosition folds a trade into the position book. Realized P&L on a
// close is credited to the wallet immediately; a position whose contracts
// round to zero is archived, its remaining closing orders auto-canceled and
// its pending contingents purged.
func (a *Account) updatePosition(trade *models.Trade, action models.OrderAction) error {
	key := posKey{trade.Symbol, action.PositionSide()}
	lastPrice, err := a.data.LastClose(trade.Symbol)
	if err != nil {
		return err
	}
	leverage := a.Leverage(trade.Symbol)

	var isolatedMargin float64
	if a.marginMode.IsIsolated() {
		isolatedMargin = trade.Notional() / float64(leverage)
	}

	position := a.openPositions[key]
	if position == nil {
		a.openPositions[key] = &models.Position{
			Symbol:           trade.Symbol,
			Timestamp:        trade.Timestamp,
			Hedged:           true,
			Side:             action.PositionSide(),
			Contracts:        trade.Amount,
			OpenedAmount:     trade.Amount,
			EntryPrice:       trade.Price,
			AverageOpenPrice: trade.Price,
			MarkPrice:        lastPrice,
			Leverage:         leverage,
			MarginMode:       a.marginMode,
			IsolatedWallet:   isolatedMargin,
		}
		return nil
	}

	if action.IsOpening() {
		position.ApplyOpen(trade.Price, trade.Amount, isolatedMargin)
		return nil
	}

	realized := position.ApplyClose(trade.Price, trade.Amount)
	trade.RealizedPnl = realized
	trade.RealizedPnlPercent = realized / (position.EntryPrice * trade.Amount) * 100
	a.balance.WalletBalance += realized

	if position.Flat() {
		if position.IsolatedWallet != 0 {
			return errors.NewInvariantError("close position",
				fmt.Errorf("isolated wallet %v nonzero on flat position %s %s",
					position.IsolatedWallet, position.Symbol, position.Side))
		}
		position.ClosedTimestamp = trade.Timestamp
		delete(a.openPositions, key)
		a.closedPositions[key] = append(a.closedPositions[key], position)
		a.cancelClosingOrders(position)
		a.contingents.DeletePending(position.Symbol, position.Side)
	}
	return nil
}

// When a position fully closes, the exchange auto-cancels every remaining
// order that was trying to close it.
func (a *Account) cancelClosingOrders(position *models.Position) {
	for _, order := range a.FetchOpenOrders(position.Symbol, position.Side) {
		if order.Action().IsClosing() {
			a.CancelOrder(order)
		}
	}
}

// recomputeBalance rebuilds every derived balance field from the open
// positions and open orders.
func (a *Account) recomputeBalance() {
	a.balance.ResetDerived()

	for _, position := range a.openPositions {
		a.balance.MaintMargin += position.MaintMargin()
		a.balance.UnrealizedProfit += position.UnrealizedPnl()
		if position.MarginMode.IsIsolated() {
			a.balance.PositionIsolatedMargin += position.IsolatedMargin()
		} else {
			a.balance.PositionInitialMargin += position.InitialMargin()
		}
	}

	for _, order := range a.FetchOpenOrders("") {
		if order.Action().IsClosing() {
			continue
		}
		entry := a.openOrderEntryEstimate(order)
		leverage := float64(a.Leverage(order.Symbol))
		a.balance.OpenOrderInitialMargin += entry * order.Amount * (1 + TakerFeeRate) / leverage
	}
}

// openOrderEntryEstimate is the price used to reserve margin for a resting
// opening order: its limit price when it has one, otherwise the last price
// with a small buffer against adverse movement before the fill.
func (a *Account) openOrderEntryEstimate(order *models.Order) float64 {
	if order.Price != nil {
		return *order.Price
	}
	last, err := a.data.LastClose(order.Symbol)
	if err != nil {
		return 0
	}
	if order.PositionSide == models.PositionLong {
		return last * 1.0005
	}
	return last
}

// validatePrice checks price/stop/contingent consistency against the order's
// direction. Violations indicate a bug in the calling strategy.
func (a *Account) validatePrice(order *models.Order, sl, tp *models.ContingentOrder, lastPrice float64) error {
	var entryPrice float64
	switch order.Type {
	case models.OrderTypeMarket:
		entryPrice = lastPrice
	case models.OrderTypeLimit, models.OrderTypeStop, models.OrderTypeTakeProfit:
		if order.Price == nil {
			return errors.NewOrderValidationError(order.Symbol, "%s order requires a price", order.Type)
		}
		entryPrice = *order.Price
	case models.OrderTypeStopMarket, models.OrderTypeTakeProfitMarket:
		if order.StopPrice == nil {
			return errors.NewOrderValidationError(order.Symbol, "%s order requires a stop price", order.Type)
		}
		entryPrice = *order.StopPrice
	default:
		return errors.NewOrderValidationError(order.Symbol, "invalid order type %s", order.Type)
	}

	if sl != nil {
		if order.PositionSide == models.PositionLong && sl.TriggerPrice >= entryPrice {
			return errors.NewOrderValidationError(order.Symbol,
				"stop-loss trigger %v must be below entry %v on a long", sl.TriggerPrice, entryPrice)
		}
		if order.PositionSide == models.PositionShort && sl.TriggerPrice <= entryPrice {
			return errors.NewOrderValidationError(order.Symbol,
				"stop-loss trigger %v must be above entry %v on a short", sl.TriggerPrice, entryPrice)
		}
	}
	if tp != nil {
		if order.PositionSide == models.PositionLong && tp.TriggerPrice <= entryPrice {
			return errors.NewOrderValidationError(order.Symbol,
				"take-profit trigger %v must be above entry %v on a long", tp.TriggerPrice, entryPrice)
		}
		if order.PositionSide == models.PositionShort && tp.TriggerPrice >= entryPrice {
			return errors.NewOrderValidationError(order.Symbol,
				"take-profit trigger %v must be below entry %v on a short", tp.TriggerPrice, entryPrice)
		}
	}

	if order.Type == models.OrderTypeStop || order.Type == models.OrderTypeStopMarket {
		if order.StopPrice == nil {
			return errors.NewOrderValidationError(order.Symbol, "stop order requires a stop price")
		}
		if order.Side == models.SideBuy && *order.StopPrice <= lastPrice {
			return errors.NewOrderValidationError(order.Symbol,
				"buy stop %v must be above last price %v", *order.StopPrice, lastPrice)
		}
		if order.Side == models.SideSell && *order.StopPrice >= lastPrice {
			return errors.NewOrderValidationError(order.Symbol,
				"sell stop %v must be below last price %v", *order.StopPrice, lastPrice)
		}
	}
	if order.Type == models.OrderTypeTakeProfit || order.Type == models.OrderTypeTakeProfitMarket {
		if order.StopPrice == nil {
			return errors.NewOrderValidationError(order.Symbol, "take-profit order requires a stop price")
		}
		if order.Side == models.SideBuy && *order.StopPrice >= lastPrice {
			return errors.NewOrderValidationError(order.Symbol,
				"buy take-profit %v must be below last price %v", *order.StopPrice, lastPrice)
		}
		if order.Side == models.SideSell && *order.StopPrice <= lastPrice {
			return errors.NewOrderValidationError(order.Symbol,
				"sell take-profit %v must be above last price %v", *order.StopPrice, lastPrice)
		}
	}
	return nil
}
