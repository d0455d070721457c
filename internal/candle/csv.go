package candle

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
)

type csvCandle struct {
	Timestamp int64   `csv:"timestamp"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	Volume    float64 `csv:"volume"`
}

// ReadCSV loads candles from a CSV file with a header row of
// timestamp,open,high,low,close,volume. Timestamps are epoch milliseconds.
func ReadCSV(path string) ([]Candle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening candle file: %w", err)
	}
	defer file.Close()

	var rows []csvCandle
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("parsing candle file %s: %w", path, err)
	}

	candles := make([]Candle, len(rows))
	for i, r := range rows {
		candles[i] = Candle{
			Timestamp: r.Timestamp,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		}
	}
	return candles, nil
}

// WriteCSV writes candles to a CSV file, overwriting any existing file.
func WriteCSV(path string, candles []Candle) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating candle file: %w", err)
	}
	defer file.Close()

	rows := make([]csvCandle, len(candles))
	for i, c := range candles {
		rows[i] = csvCandle{
			Timestamp: c.Timestamp,
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		}
	}
	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return fmt.Errorf("writing candle file %s: %w", path, err)
	}
	return nil
}
