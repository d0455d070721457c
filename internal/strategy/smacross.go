package strategy

import (
	"fmt"

	"perp-trader/internal/broker"
	"perp-trader/internal/candle"
	"perp-trader/internal/models"
)

// SMACross goes long when the fast moving average crosses above the slow one
// and closes on the opposite cross. Each entry carries a contingent
// stop-loss and take-profit sized as fractions of the entry price.
type SMACross struct {
	Base

	Symbol        string
	FastPeriod    int
	SlowPeriod    int
	StakePercent  float64 // fraction of available balance per entry
	StopLossPct   float64 // e.g. 0.05 puts the stop 5% below entry
	TakeProfitPct float64

	fast *Indicator
	slow *Indicator
}

// NewSMACross creates the strategy with sane defaults for unset fields.
func NewSMACross(symbol string, fastPeriod, slowPeriod int) *SMACross {
	return &SMACross{
		Symbol:        symbol,
		FastPeriod:    fastPeriod,
		SlowPeriod:    slowPeriod,
		StakePercent:  0.2,
		StopLossPct:   0.05,
		TakeProfitPct: 0.10,
	}
}

func (s *SMACross) Name() string {
	return fmt.Sprintf("smacross-%d-%d", s.FastPeriod, s.SlowPeriod)
}

func (s *SMACross) Kind() Kind { return KindEventDriven }

func (s *SMACross) Symbols() []string { return []string{s.Symbol} }

func (s *SMACross) CandlesNeeded() int { return s.SlowPeriod + 1 }

func (s *SMACross) Setup(b broker.Broker, data *candle.MultiSeries) error {
	if s.FastPeriod >= s.SlowPeriod {
		return fmt.Errorf("fast period %d must be below slow period %d", s.FastPeriod, s.SlowPeriod)
	}
	s.Bind(b, data)

	closes, err := data.Closes(s.Symbol)
	if err != nil {
		return err
	}
	s.fast = s.Register(NewIndicator(fmt.Sprintf("sma%d", s.FastPeriod), s.Symbol, SMA(closes, s.FastPeriod)))
	s.slow = s.Register(NewIndicator(fmt.Sprintf("sma%d", s.SlowPeriod), s.Symbol, SMA(closes, s.SlowPeriod)))
	return nil
}

func (s *SMACross) UpdateIndicators() error {
	return s.SetIndicatorLength(s.Data.Len())
}

func (s *SMACross) Next() error {
	if !s.fast.Valid() || !s.slow.Valid() {
		return nil
	}

	position := s.openLong()

	if CrossedAbove(s.fast, s.slow) && position == nil {
		return s.enter()
	}
	if CrossedBelow(s.fast, s.slow) && position != nil {
		_, err := s.Broker.CreateOrder(broker.CreateOrderParams{
			Symbol: s.Symbol,
			Action: models.ActionCloseLong,
			Amount: position.Contracts,
		})
		return err
	}
	return nil
}

func (s *SMACross) enter() error {
	last, err := s.Broker.LastPrice(s.Symbol)
	if err != nil {
		return err
	}
	stake := s.Broker.FetchBalance().Available() * s.StakePercent
	amount := stake / last * float64(s.Broker.Leverage(s.Symbol))
	if amount <= 0 {
		return nil
	}

	clientID, err := models.NewClientOrderID("smacross", s.Data.NextTimestamp())
	if err != nil {
		return err
	}
	_, err = s.Broker.CreateOrder(broker.CreateOrderParams{
		Symbol: s.Symbol,
		Action: models.ActionOpenLong,
		Amount: amount,
		ContingentSL: &models.ContingentOrder{
			TriggerPrice: last * (1 - s.StopLossPct),
		},
		ContingentTP: &models.ContingentOrder{
			TriggerPrice: last * (1 + s.TakeProfitPct),
		},
		ClientOrderID: clientID,
	})
	return err
}

func (s *SMACross) openLong() *models.Position {
	for _, p := range s.Broker.FetchPositions([]string{s.Symbol}) {
		if p.Side == models.PositionLong {
			return p
		}
	}
	return nil
}
