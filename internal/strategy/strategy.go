// Package strategy defines the strategy contract the backtest runner drives
// and a small library of indicator helpers.
package strategy

import (
	"perp-trader/internal/broker"
	"perp-trader/internal/candle"
)

// Kind tags how the runner drives a strategy. Event-driven strategies react
// to every candle; rebalancing strategies are liquidated to flat at the end
// of a run rather than left holding.
type Kind string

const (
	KindEventDriven Kind = "event_driven"
	KindRebalancing Kind = "rebalancing"
)

// Strategy is the decision-logic contract. The runner calls Setup once,
// then UpdateIndicators and Next once per tick after the engine has matched
// the current candle. Strategies trade only through the broker handle given
// to Setup.
type Strategy interface {
	Name() string
	Kind() Kind
	Symbols() []string
	// CandlesNeeded is the warmup history required before Next may run.
	CandlesNeeded() int
	Setup(b broker.Broker, data *candle.MultiSeries) error
	UpdateIndicators() error
	Next() error
	// Indicators lists the named indicators registered during Setup, used
	// by the runner to advance their visible windows and by reporting.
	Indicators() []*Indicator
}

// Base carries the plumbing shared by strategies: the broker handle, candle
// data and the indicator registry. Embed it and register indicators during
// Setup.
type Base struct {
	Broker broker.Broker
	Data   *candle.MultiSeries

	indicators []*Indicator
}

// Bind stores the broker and data handles. Call first from Setup.
func (b *Base) Bind(br broker.Broker, data *candle.MultiSeries) {
	b.Broker = br
	b.Data = data
	b.indicators = nil
}

// Register adds an indicator to the registry and returns it.
func (b *Base) Register(ind *Indicator) *Indicator {
	b.indicators = append(b.indicators, ind)
	return ind
}

// Indicators returns the registered indicators.
func (b *Base) Indicators() []*Indicator { return b.indicators }

// SetIndicatorLength advances every registered indicator's visible window.
func (b *Base) SetIndicatorLength(n int) error {
	for _, ind := range b.indicators {
		if err := ind.SetLength(n); err != nil {
			return err
		}
	}
	return nil
}
