package models

// Fee is the commission charged on a single trade.
type Fee struct {
	Currency string
	Cost     float64
	Rate     float64
}

// Trade is one fill of an order. Trades are immutable once created and are
// appended both to the owning order and to the account's global trade ledger.
type Trade struct {
	ID           string
	Timestamp    int64
	Symbol       string
	OrderID      string
	Side         OrderSide
	TakerOrMaker TakerOrMaker
	Price        float64
	Amount       float64
	Fee          Fee
	// RealizedPnl and RealizedPnlPercent are computed at creation for
	// closing trades; zero for opening trades.
	RealizedPnl        float64
	RealizedPnlPercent float64
}

// Notional is the trade's value in the quote currency.
func (t *Trade) Notional() float64 { return t.Price * t.Amount }
