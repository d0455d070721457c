package candle

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"perp-trader/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based candle store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, timeframe, timestamp)
	);
	CREATE INDEX IF NOT EXISTS idx_candles_lookup ON candles(symbol, timeframe, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveCandles upserts candles in a single transaction.
func (s *SQLiteStore) SaveCandles(ctx context.Context, symbol string, timeframe models.Timeframe, candles []Candle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (symbol, timeframe, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, timeframe, timestamp) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low,
			close=excluded.close, volume=excluded.volume`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, timeframe.String(), c.Timestamp,
			c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("inserting candle %d: %w", c.Timestamp, err)
		}
	}
	return tx.Commit()
}

// Fetch returns the symbol's candles within [from, to), oldest first.
func (s *SQLiteStore) Fetch(ctx context.Context, symbol string, timeframe models.Timeframe, from, to time.Time) ([]Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND timeframe = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC`,
		symbol, timeframe.String(), from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("querying candles for %s: %w", symbol, err)
	}
	defer rows.Close()

	var candles []Candle
	for rows.Next() {
		var c Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scanning candle: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// FetchBulk fetches each symbol concurrently; the reads are independent and
// read-only, and results are merged before any matching happens.
func (s *SQLiteStore) FetchBulk(ctx context.Context, symbols []string, timeframe models.Timeframe, from, to time.Time) (map[string][]Candle, error) {
	type result struct {
		symbol  string
		candles []Candle
		err     error
	}

	results := make(chan result, len(symbols))
	var wg sync.WaitGroup
	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			candles, err := s.Fetch(ctx, sym, timeframe, from, to)
			results <- result{symbol: sym, candles: candles, err: err}
		}(sym)
	}
	wg.Wait()
	close(results)

	out := make(map[string][]Candle, len(symbols))
	for r := range results {
		if r.err != nil {
			return nil, r.err
		}
		out[r.symbol] = r.candles
	}
	return out, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
