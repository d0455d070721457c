package candle

import (
	"context"
	"time"

	"perp-trader/internal/models"
)

// Store is the candle persistence seam. Implementations must return complete
// time-ordered, gap-free series aligned to the timeframe grid; backfilling
// holes is the repository's responsibility, not the engine's.
type Store interface {
	SaveCandles(ctx context.Context, symbol string, timeframe models.Timeframe, candles []Candle) error
	Fetch(ctx context.Context, symbol string, timeframe models.Timeframe, from, to time.Time) ([]Candle, error)
	// FetchBulk fetches several symbols; implementations may parallelize the
	// per-symbol reads since they are independent.
	FetchBulk(ctx context.Context, symbols []string, timeframe models.Timeframe, from, to time.Time) (map[string][]Candle, error)
	Close() error
}

// Load fetches all symbols from the store into one aligned MultiSeries.
func Load(ctx context.Context, store Store, symbols []string, timeframe models.Timeframe, from, to time.Time) (*MultiSeries, error) {
	data, err := store.FetchBulk(ctx, symbols, timeframe, from, to)
	if err != nil {
		return nil, err
	}
	ms := NewMultiSeries(timeframe)
	for _, sym := range symbols {
		if err := ms.Add(sym, data[sym]); err != nil {
			return nil, err
		}
	}
	return ms, nil
}
