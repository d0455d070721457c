package candle

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-trader/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "candles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreSaveAndFetch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	candles := minuteCandles(0, []float64{100, 101, 102, 103})

	require.NoError(t, store.SaveCandles(ctx, "BTC/USDT", models.TimeframeM1, candles))

	got, err := store.Fetch(ctx, "BTC/USDT", models.TimeframeM1,
		time.UnixMilli(0), time.UnixMilli(4*60_000))
	require.NoError(t, err)
	assert.Equal(t, candles, got)

	// The upper bound is exclusive.
	got, err = store.Fetch(ctx, "BTC/USDT", models.TimeframeM1,
		time.UnixMilli(60_000), time.UnixMilli(3*60_000))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(60_000), got[0].Timestamp)
}

func TestSQLiteStoreUpsertOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCandles(ctx, "BTC/USDT", models.TimeframeM1,
		minuteCandles(0, []float64{100})))
	require.NoError(t, store.SaveCandles(ctx, "BTC/USDT", models.TimeframeM1,
		minuteCandles(0, []float64{200})))

	got, err := store.Fetch(ctx, "BTC/USDT", models.TimeframeM1,
		time.UnixMilli(0), time.UnixMilli(60_000))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 200.0, got[0].Close, 1e-9)
}

func TestSQLiteStoreSeparatesTimeframes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCandles(ctx, "BTC/USDT", models.TimeframeM1,
		minuteCandles(0, []float64{100})))

	got, err := store.Fetch(ctx, "BTC/USDT", models.TimeframeH1,
		time.UnixMilli(0), time.UnixMilli(60_000))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadBuildsAlignedMultiSeries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCandles(ctx, "BTC/USDT", models.TimeframeM1,
		minuteCandles(0, []float64{100, 101, 102})))
	require.NoError(t, store.SaveCandles(ctx, "ETH/USDT", models.TimeframeM1,
		minuteCandles(0, []float64{10, 11, 12})))

	ms, err := Load(ctx, store, []string{"BTC/USDT", "ETH/USDT"}, models.TimeframeM1,
		time.UnixMilli(0), time.UnixMilli(3*60_000))
	require.NoError(t, err)
	assert.Equal(t, 3, ms.FullLen())
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, ms.Symbols())

	// A symbol with no stored candles fails the load rather than producing
	// a misaligned series.
	_, err = Load(ctx, store, []string{"BTC/USDT", "SOL/USDT"}, models.TimeframeM1,
		time.UnixMilli(0), time.UnixMilli(3*60_000))
	assert.Error(t, err)
}

func TestCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.csv")
	candles := minuteCandles(0, []float64{100, 101.5, 99.25})

	require.NoError(t, WriteCSV(path, candles))
	got, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, candles, got)
}
