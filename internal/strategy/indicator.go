package strategy

import (
	"fmt"
	"math"
)

// Indicator is a named per-symbol series computed over the full candle
// history once at setup, then revealed tick by tick through SetLength so a
// strategy can never read ahead of the engine.
type Indicator struct {
	Name   string
	Symbol string
	values []float64
	length int
}

// NewIndicator wraps a precomputed series. Values before the warmup period
// should be NaN.
func NewIndicator(name, symbol string, values []float64) *Indicator {
	return &Indicator{Name: name, Symbol: symbol, values: values, length: len(values)}
}

// SetLength bounds the visible window to the first n values.
func (i *Indicator) SetLength(n int) error {
	if n < 1 || n > len(i.values) {
		return fmt.Errorf("indicator %s: length %d out of range [1, %d]", i.Name, n, len(i.values))
	}
	i.length = n
	return nil
}

// Len is the visible length.
func (i *Indicator) Len() int { return i.length }

// Last is the newest visible value.
func (i *Indicator) Last() float64 { return i.values[i.length-1] }

// At returns the value offset candles back from the newest visible one.
func (i *Indicator) At(offset int) float64 {
	idx := i.length - 1 - offset
	if idx < 0 {
		return math.NaN()
	}
	return i.values[idx]
}

// Valid reports whether the newest visible value is past warmup.
func (i *Indicator) Valid() bool { return !math.IsNaN(i.Last()) }

// Values returns the visible window.
func (i *Indicator) Values() []float64 { return i.values[:i.length] }

// SMA computes a simple moving average; the first period-1 values are NaN.
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i < period-1 {
			out[i] = math.NaN()
		} else {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes an exponential moving average seeded with the SMA of the
// first period values; values before the seed are NaN.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	alpha := 2.0 / float64(period+1)
	var seed float64
	for i, v := range values {
		if i < period-1 {
			seed += v
			out[i] = math.NaN()
			continue
		}
		if i == period-1 {
			out[i] = (seed + v) / float64(period)
			continue
		}
		out[i] = alpha*v + (1-alpha)*out[i-1]
	}
	return out
}

// CrossedAbove reports whether a crossed above b on the newest visible tick.
func CrossedAbove(a, b *Indicator) bool {
	if a.Len() < 2 || math.IsNaN(a.At(1)) || math.IsNaN(b.At(1)) {
		return false
	}
	return a.At(1) <= b.At(1) && a.Last() > b.Last()
}

// CrossedBelow reports whether a crossed below b on the newest visible tick.
func CrossedBelow(a, b *Indicator) bool {
	if a.Len() < 2 || math.IsNaN(a.At(1)) || math.IsNaN(b.At(1)) {
		return false
	}
	return a.At(1) >= b.At(1) && a.Last() < b.Last()
}
