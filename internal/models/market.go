package models

import (
	"fmt"
	"math"
)

// MarketPrecision holds decimal-place precision for a market.
type MarketPrecision struct {
	Price  int
	Amount int
}

// MarketLimit is an optional min/max pair; nil means unbounded.
type MarketLimit struct {
	Min *float64
	Max *float64
}

// MarketLimits groups the instrument's order constraints.
type MarketLimits struct {
	Amount   MarketLimit
	Price    MarketLimit
	Cost     MarketLimit
	Leverage MarketLimit
}

// Market is the exchange metadata for one perpetual-futures instrument.
type Market struct {
	ID        string
	Symbol    string
	Base      string
	Quote     string
	Settle    string
	Active    bool
	Precision MarketPrecision
	Limits    MarketLimits
	Taker     float64
	Maker     float64
}

// AmountToPrecision truncates an amount to the market's amount precision.
func (m *Market) AmountToPrecision(amount float64) float64 {
	return roundToPlaces(amount, m.Precision.Amount)
}

// PriceToPrecision truncates a price to the market's price precision.
func (m *Market) PriceToPrecision(price float64) float64 {
	return roundToPlaces(price, m.Precision.Price)
}

func roundToPlaces(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}

// ValidateOrder applies precision to the order in place and checks it against
// the instrument's limits. Amount limits apply to every order; price and
// notional limits only constrain opening limit orders, matching exchange
// behavior.
func (m *Market) ValidateOrder(o *Order) error {
	o.Amount = m.AmountToPrecision(o.Amount)
	if o.Price != nil {
		p := m.PriceToPrecision(*o.Price)
		o.Price = &p
	}

	if min := m.Limits.Amount.Min; min != nil && o.Amount < *min {
		return fmt.Errorf("amount %v below market minimum %v", o.Amount, *min)
	}
	if max := m.Limits.Amount.Max; max != nil && o.Amount > *max {
		return fmt.Errorf("amount %v above market maximum %v", o.Amount, *max)
	}

	if o.Action().IsClosing() || o.Price == nil {
		return nil
	}

	if min := m.Limits.Price.Min; min != nil && *o.Price < *min {
		return fmt.Errorf("price %v below market minimum %v", *o.Price, *min)
	}
	if max := m.Limits.Price.Max; max != nil && *o.Price > *max {
		return fmt.Errorf("price %v above market maximum %v", *o.Price, *max)
	}
	cost := o.Amount * *o.Price
	if min := m.Limits.Cost.Min; min != nil && cost < *min {
		return fmt.Errorf("notional %v below market minimum %v", cost, *min)
	}
	if max := m.Limits.Cost.Max; max != nil && cost > *max {
		return fmt.Errorf("notional %v above market maximum %v", cost, *max)
	}
	return nil
}

// Float returns a pointer to v, a convenience for optional prices and limits.
func Float(v float64) *float64 { return &v }

// DefaultMarket returns permissive perpetual-futures metadata for symbols the
// caller has not configured explicitly.
func DefaultMarket(symbol string) *Market {
	return &Market{
		ID:     symbol,
		Symbol: symbol,
		Quote:  "USDT",
		Settle: "USDT",
		Active: true,
		Precision: MarketPrecision{
			Price:  8,
			Amount: 8,
		},
		Limits: MarketLimits{
			Amount: MarketLimit{Min: Float(1e-8)},
			Price:  MarketLimit{Min: Float(1e-8)},
		},
		Taker: 0.0006,
		Maker: 0.0003,
	}
}
