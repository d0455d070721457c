// Package candle provides OHLCV candle types, the aligned multi-symbol series
// the backtest engine iterates over, and candle persistence.
package candle

import (
	"fmt"
	"sort"

	"perp-trader/internal/models"
)

// Candle is one OHLCV aggregate. Timestamp is the bucket start in epoch
// milliseconds.
type Candle struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Series holds one symbol's candles as column arrays.
type Series struct {
	Timestamps []int64
	Open       []float64
	High       []float64
	Low        []float64
	Close      []float64
	Volume     []float64
}

// Len returns the number of candles in the series.
func (s *Series) Len() int { return len(s.Timestamps) }

func newSeries(candles []Candle) *Series {
	s := &Series{
		Timestamps: make([]int64, len(candles)),
		Open:       make([]float64, len(candles)),
		High:       make([]float64, len(candles)),
		Low:        make([]float64, len(candles)),
		Close:      make([]float64, len(candles)),
		Volume:     make([]float64, len(candles)),
	}
	for i, c := range candles {
		s.Timestamps[i] = c.Timestamp
		s.Open[i] = c.Open
		s.High[i] = c.High
		s.Low[i] = c.Low
		s.Close[i] = c.Close
		s.Volume[i] = c.Volume
	}
	return s
}

// MultiSeries is a time-aligned view over several symbols' series with a
// bounded visible length. During a backtest the runner advances the visible
// length one candle at a time so strategies and the matching engine only see
// history up to the current tick.
type MultiSeries struct {
	timeframe  models.Timeframe
	timestamps []int64
	series     map[string]*Series
	length     int
}

// NewMultiSeries creates an empty multi-symbol series for one timeframe.
func NewMultiSeries(timeframe models.Timeframe) *MultiSeries {
	return &MultiSeries{
		timeframe: timeframe,
		series:    make(map[string]*Series),
	}
}

// Add registers a symbol's candles. The series must be gap-free on the
// timeframe grid, and every symbol added after the first must share the same
// timestamp index; the upstream repository is responsible for backfilling
// holes before the data reaches the engine.
func (m *MultiSeries) Add(symbol string, candles []Candle) error {
	if len(candles) == 0 {
		return fmt.Errorf("no candles for %s", symbol)
	}
	step := m.timeframe.Milliseconds()
	for i := 1; i < len(candles); i++ {
		if candles[i].Timestamp-candles[i-1].Timestamp != step {
			return fmt.Errorf("gap in %s candles at index %d: %d -> %d",
				symbol, i, candles[i-1].Timestamp, candles[i].Timestamp)
		}
	}
	if candles[0].Timestamp%step != 0 {
		return fmt.Errorf("%s candles not aligned to %s grid", symbol, m.timeframe)
	}

	s := newSeries(candles)
	if len(m.timestamps) == 0 {
		m.timestamps = s.Timestamps
		m.length = s.Len()
	} else if len(m.timestamps) != s.Len() || m.timestamps[0] != s.Timestamps[0] {
		return fmt.Errorf("%s candles misaligned with existing index (%d vs %d rows, start %d vs %d)",
			symbol, s.Len(), len(m.timestamps), s.Timestamps[0], m.timestamps[0])
	}
	m.series[symbol] = s
	return nil
}

// Symbols returns the registered symbols in sorted order.
func (m *MultiSeries) Symbols() []string {
	syms := make([]string, 0, len(m.series))
	for s := range m.series {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	return syms
}

// Len is the visible length, FullLen the total loaded length.
func (m *MultiSeries) Len() int     { return m.length }
func (m *MultiSeries) FullLen() int { return len(m.timestamps) }

// SetLength bounds the visible window to the first n candles.
func (m *MultiSeries) SetLength(n int) error {
	if n < 1 || n > len(m.timestamps) {
		return fmt.Errorf("length %d out of range [1, %d]", n, len(m.timestamps))
	}
	m.length = n
	return nil
}

// Timeframe returns the series' bucket size.
func (m *MultiSeries) Timeframe() models.Timeframe { return m.timeframe }

func (m *MultiSeries) get(symbol string) (*Series, error) {
	s, ok := m.series[symbol]
	if !ok {
		return nil, fmt.Errorf("no candle data for %s", symbol)
	}
	return s, nil
}

// Last returns the newest visible candle for a symbol.
func (m *MultiSeries) Last(symbol string) (Candle, error) {
	s, err := m.get(symbol)
	if err != nil {
		return Candle{}, err
	}
	i := m.length - 1
	return Candle{
		Timestamp: s.Timestamps[i],
		Open:      s.Open[i],
		High:      s.High[i],
		Low:       s.Low[i],
		Close:     s.Close[i],
		Volume:    s.Volume[i],
	}, nil
}

// LastClose returns the newest visible close, the engine's "last price".
func (m *MultiSeries) LastClose(symbol string) (float64, error) {
	s, err := m.get(symbol)
	if err != nil {
		return 0, err
	}
	return s.Close[m.length-1], nil
}

// LastLowHigh returns the newest visible candle's low and high.
func (m *MultiSeries) LastLowHigh(symbol string) (low, high float64, err error) {
	s, err := m.get(symbol)
	if err != nil {
		return 0, 0, err
	}
	return s.Low[m.length-1], s.High[m.length-1], nil
}

// NextTimestamp is the bucket start following the visible window, used as the
// creation time for orders placed during the current tick.
func (m *MultiSeries) NextTimestamp() int64 {
	if m.length < len(m.timestamps) {
		return m.timestamps[m.length]
	}
	return m.timestamps[len(m.timestamps)-1] + m.timeframe.Milliseconds()
}

// Timestamps returns the visible timestamp index.
func (m *MultiSeries) Timestamps() []int64 { return m.timestamps[:m.length] }

// Closes returns the visible close column for a symbol.
func (m *MultiSeries) Closes(symbol string) ([]float64, error) {
	s, err := m.get(symbol)
	if err != nil {
		return nil, err
	}
	return s.Close[:m.length], nil
}

// Highs returns the visible high column for a symbol.
func (m *MultiSeries) Highs(symbol string) ([]float64, error) {
	s, err := m.get(symbol)
	if err != nil {
		return nil, err
	}
	return s.High[:m.length], nil
}

// Lows returns the visible low column for a symbol.
func (m *MultiSeries) Lows(symbol string) ([]float64, error) {
	s, err := m.get(symbol)
	if err != nil {
		return nil, err
	}
	return s.Low[:m.length], nil
}
