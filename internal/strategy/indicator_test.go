package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	out := SMA(values, 3)
	require.Len(t, out, 5)

	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 2.0, out[2], 1e-9)
	assert.InDelta(t, 3.0, out[3], 1e-9)
	assert.InDelta(t, 4.0, out[4], 1e-9)
}

func TestSMAConstantSeries(t *testing.T) {
	values := []float64{7, 7, 7, 7, 7, 7}
	out := SMA(values, 4)
	for i := 3; i < len(out); i++ {
		assert.InDelta(t, 7.0, out[i], 1e-9)
	}
}

func TestEMASeededWithSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	out := EMA(values, 3)

	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	// Seed is the SMA of the first three values.
	assert.InDelta(t, 2.0, out[2], 1e-9)
	alpha := 2.0 / 4.0
	assert.InDelta(t, alpha*4+(1-alpha)*2.0, out[3], 1e-9)
}

func TestIndicatorWindow(t *testing.T) {
	ind := NewIndicator("sma", "BTC/USDT", []float64{math.NaN(), 2, 3, 4})

	require.NoError(t, ind.SetLength(2))
	assert.Equal(t, 2, ind.Len())
	assert.InDelta(t, 2.0, ind.Last(), 1e-9)
	assert.True(t, math.IsNaN(ind.At(1)))
	assert.True(t, math.IsNaN(ind.At(5)))

	require.NoError(t, ind.SetLength(4))
	assert.InDelta(t, 4.0, ind.Last(), 1e-9)
	assert.InDelta(t, 3.0, ind.At(1), 1e-9)
	assert.Len(t, ind.Values(), 4)

	assert.Error(t, ind.SetLength(0))
	assert.Error(t, ind.SetLength(5))
}

func TestCrossedAboveAndBelow(t *testing.T) {
	fast := NewIndicator("fast", "BTC/USDT", []float64{1, 3, 2})
	slow := NewIndicator("slow", "BTC/USDT", []float64{2, 2, 2.5})

	require.NoError(t, fast.SetLength(2))
	require.NoError(t, slow.SetLength(2))
	assert.True(t, CrossedAbove(fast, slow))
	assert.False(t, CrossedBelow(fast, slow))

	require.NoError(t, fast.SetLength(3))
	require.NoError(t, slow.SetLength(3))
	assert.True(t, CrossedBelow(fast, slow))
	assert.False(t, CrossedAbove(fast, slow))
}

func TestCrossIgnoresWarmupNaN(t *testing.T) {
	fast := NewIndicator("fast", "BTC/USDT", []float64{math.NaN(), 3})
	slow := NewIndicator("slow", "BTC/USDT", []float64{2, 2})

	require.NoError(t, fast.SetLength(2))
	require.NoError(t, slow.SetLength(2))
	assert.False(t, CrossedAbove(fast, slow))
	assert.False(t, CrossedBelow(fast, slow))
}
