package broker

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"perp-trader/internal/errors"
	"perp-trader/internal/models"
)

// ContingentInfo is the stop-loss/take-profit pair attached to a parent
// order. At most one entry exists per (order id, symbol).
type ContingentInfo struct {
	OrderID        string
	Symbol         string
	Side           models.PositionSide
	SLTriggerPrice *float64
	SLExecutePrice *float64
	TPTriggerPrice *float64
	TPExecutePrice *float64
	Triggered      bool
}

// Tracker stores contingent entries. Delete, DeletePending and MarkTriggered
// are idempotent no-ops on missing keys; only Create can fail.
type Tracker interface {
	Create(orderID, symbol string, side models.PositionSide, sl, tp *models.ContingentOrder) error
	Get(orderID, symbol string) *ContingentInfo
	Delete(orderID, symbol string)
	// DeletePending removes every untriggered entry for a (symbol, side),
	// used when a position fully closes.
	DeletePending(symbol string, side models.PositionSide)
	// Pending returns all untriggered entries, scanned once per tick.
	Pending() []*ContingentInfo
	MarkTriggered(orderID, symbol string)
	IsTriggered(orderID, symbol string) bool
	All() []*ContingentInfo
}

type contingentKey struct {
	orderID string
	symbol  string
}

// MemoryTracker is the in-process Tracker used by backtests.
type MemoryTracker struct {
	entries map[contingentKey]*ContingentInfo
}

// NewMemoryTracker creates an empty in-memory tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{entries: make(map[contingentKey]*ContingentInfo)}
}

func newContingentInfo(orderID, symbol string, side models.PositionSide, sl, tp *models.ContingentOrder) *ContingentInfo {
	info := &ContingentInfo{OrderID: orderID, Symbol: symbol, Side: side}
	if sl != nil {
		info.SLTriggerPrice = models.Float(sl.TriggerPrice)
		info.SLExecutePrice = sl.Price
	}
	if tp != nil {
		info.TPTriggerPrice = models.Float(tp.TriggerPrice)
		info.TPExecutePrice = tp.Price
	}
	return info
}

func (t *MemoryTracker) Create(orderID, symbol string, side models.PositionSide, sl, tp *models.ContingentOrder) error {
	key := contingentKey{orderID, symbol}
	if _, ok := t.entries[key]; ok {
		return fmt.Errorf("%w: order %s symbol %s", errors.ErrContingentExists, orderID, symbol)
	}
	t.entries[key] = newContingentInfo(orderID, symbol, side, sl, tp)
	return nil
}

func (t *MemoryTracker) Get(orderID, symbol string) *ContingentInfo {
	return t.entries[contingentKey{orderID, symbol}]
}

func (t *MemoryTracker) Delete(orderID, symbol string) {
	delete(t.entries, contingentKey{orderID, symbol})
}

func (t *MemoryTracker) DeletePending(symbol string, side models.PositionSide) {
	for key, info := range t.entries {
		if info.Symbol == symbol && info.Side == side && !info.Triggered {
			delete(t.entries, key)
		}
	}
}

func (t *MemoryTracker) Pending() []*ContingentInfo {
	var pending []*ContingentInfo
	for _, info := range t.entries {
		if !info.Triggered {
			pending = append(pending, info)
		}
	}
	return pending
}

func (t *MemoryTracker) MarkTriggered(orderID, symbol string) {
	if info := t.entries[contingentKey{orderID, symbol}]; info != nil {
		info.Triggered = true
	}
}

func (t *MemoryTracker) IsTriggered(orderID, symbol string) bool {
	info := t.entries[contingentKey{orderID, symbol}]
	return info != nil && info.Triggered
}

func (t *MemoryTracker) All() []*ContingentInfo {
	all := make([]*ContingentInfo, 0, len(t.entries))
	for _, info := range t.entries {
		all = append(all, info)
	}
	return all
}

// SQLiteTracker persists contingent entries, used by long-running sessions
// where triggers must survive a restart.
type SQLiteTracker struct {
	db *sql.DB
}

// NewSQLiteTracker opens (or creates) the tracker database.
func NewSQLiteTracker(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(time.Hour)

	schema := `
	CREATE TABLE IF NOT EXISTS contingent_infos (
		order_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		sl_trigger_price REAL,
		sl_execute_price REAL,
		tp_trigger_price REAL,
		tp_execute_price REAL,
		is_triggered INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (order_id, symbol)
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteTracker{db: db}, nil
}

func (t *SQLiteTracker) Create(orderID, symbol string, side models.PositionSide, sl, tp *models.ContingentOrder) error {
	info := newContingentInfo(orderID, symbol, side, sl, tp)
	_, err := t.db.Exec(`
		INSERT INTO contingent_infos
			(order_id, symbol, side, sl_trigger_price, sl_execute_price, tp_trigger_price, tp_execute_price)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		orderID, symbol, string(side),
		info.SLTriggerPrice, info.SLExecutePrice, info.TPTriggerPrice, info.TPExecutePrice)
	if err != nil {
		return fmt.Errorf("%w: order %s symbol %s: %v", errors.ErrContingentExists, orderID, symbol, err)
	}
	return nil
}

func (t *SQLiteTracker) Get(orderID, symbol string) *ContingentInfo {
	row := t.db.QueryRow(`
		SELECT order_id, symbol, side, sl_trigger_price, sl_execute_price,
		       tp_trigger_price, tp_execute_price, is_triggered
		FROM contingent_infos WHERE order_id = ? AND symbol = ?`, orderID, symbol)
	info, err := scanContingent(row)
	if err != nil {
		return nil
	}
	return info
}

func (t *SQLiteTracker) Delete(orderID, symbol string) {
	t.db.Exec(`DELETE FROM contingent_infos WHERE order_id = ? AND symbol = ?`, orderID, symbol)
}

func (t *SQLiteTracker) DeletePending(symbol string, side models.PositionSide) {
	t.db.Exec(`DELETE FROM contingent_infos WHERE symbol = ? AND side = ? AND is_triggered = 0`,
		symbol, string(side))
}

func (t *SQLiteTracker) Pending() []*ContingentInfo {
	return t.query(`SELECT order_id, symbol, side, sl_trigger_price, sl_execute_price,
		tp_trigger_price, tp_execute_price, is_triggered
		FROM contingent_infos WHERE is_triggered = 0`)
}

func (t *SQLiteTracker) MarkTriggered(orderID, symbol string) {
	t.db.Exec(`UPDATE contingent_infos SET is_triggered = 1 WHERE order_id = ? AND symbol = ?`,
		orderID, symbol)
}

func (t *SQLiteTracker) IsTriggered(orderID, symbol string) bool {
	info := t.Get(orderID, symbol)
	return info != nil && info.Triggered
}

func (t *SQLiteTracker) All() []*ContingentInfo {
	return t.query(`SELECT order_id, symbol, side, sl_trigger_price, sl_execute_price,
		tp_trigger_price, tp_execute_price, is_triggered
		FROM contingent_infos`)
}

// Close closes the underlying database.
func (t *SQLiteTracker) Close() error { return t.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContingent(row rowScanner) (*ContingentInfo, error) {
	var info ContingentInfo
	var side string
	var triggered int
	if err := row.Scan(&info.OrderID, &info.Symbol, &side,
		&info.SLTriggerPrice, &info.SLExecutePrice,
		&info.TPTriggerPrice, &info.TPExecutePrice, &triggered); err != nil {
		return nil, err
	}
	info.Side = models.PositionSide(side)
	info.Triggered = triggered != 0
	return &info, nil
}

func (t *SQLiteTracker) query(q string, args ...any) []*ContingentInfo {
	rows, err := t.db.Query(q, args...)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var infos []*ContingentInfo
	for rows.Next() {
		info, err := scanContingent(rows)
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos
}
