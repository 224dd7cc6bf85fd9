// Package sqlite persists the trade journal and the candle cache in a
// single local database file. One Store serves both concerns on a
// single-writer connection.
package sqlite

import (
	"database/sql"
	"fmt"
	"log"

	"cryptobot/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite-backed trade journal and candle cache.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens (or creates) the database at path, enables WAL mode and
// applies the schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer connection pool
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", path)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			pair       TEXT    NOT NULL,
			trade_id   INTEGER NOT NULL,
			side       TEXT    NOT NULL,
			price      REAL    NOT NULL,
			amount     REAL    NOT NULL,
			ts         INTEGER NOT NULL,
			reason     TEXT    NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades (ts DESC);

		CREATE TABLE IF NOT EXISTS candles (
			pair        TEXT    NOT NULL,
			granularity INTEGER NOT NULL,
			ts          INTEGER NOT NULL,
			open        REAL    NOT NULL,
			high        REAL    NOT NULL,
			low         REAL    NOT NULL,
			close       REAL    NOT NULL,
			volume      REAL,
			PRIMARY KEY (pair, granularity, ts)
		);
	`)
	return err
}

// RecordTrade appends an executed trade to the journal.
func (s *Store) RecordTrade(pair string, t model.Trade) error {
	_, err := s.db.Exec(`
		INSERT INTO trades (pair, trade_id, side, price, amount, ts, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, pair, t.ID, string(t.Type), t.Price, t.Amount, t.Time, t.Reason)
	if err != nil {
		return fmt.Errorf("sqlite insert trade: %w", err)
	}
	return nil
}

// RecentTrades returns the most recent trades across all pairs, newest
// first.
func (s *Store) RecentTrades(limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT trade_id, side, price, amount, ts, reason
		FROM trades
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var side string
		if err := rows.Scan(&t.ID, &side, &t.Price, &t.Amount, &t.Time, &t.Reason); err != nil {
			return nil, fmt.Errorf("sqlite scan trade: %w", err)
		}
		t.Type = model.Side(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SaveCandles upserts a batch of candles in a single transaction.
func (s *Store) SaveCandles(pair string, granularity int, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (pair, granularity, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.Exec(pair, granularity, c.Time, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Candles returns cached candles in [start, end], ordered ascending.
func (s *Store) Candles(pair string, granularity int, start, end int64) ([]model.Candle, error) {
	rows, err := s.db.Query(`
		SELECT ts, open, high, low, close, volume
		FROM candles
		WHERE pair = ? AND granularity = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, pair, granularity, start, end)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var volume sql.NullFloat64
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candle: %w", err)
		}
		c.Volume = volume.Float64
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// LastCandleTime returns the newest cached candle timestamp for the pair
// and granularity, or 0 when the cache is empty.
func (s *Store) LastCandleTime(pair string, granularity int) (int64, error) {
	return s.candleBound(pair, granularity, "MAX")
}

// FirstCandleTime returns the oldest cached candle timestamp for the
// pair and granularity, or 0 when the cache is empty.
func (s *Store) FirstCandleTime(pair string, granularity int) (int64, error) {
	return s.candleBound(pair, granularity, "MIN")
}

func (s *Store) candleBound(pair string, granularity int, agg string) (int64, error) {
	var ts sql.NullInt64
	err := s.db.QueryRow(
		`SELECT `+agg+`(ts) FROM candles WHERE pair = ? AND granularity = ?`,
		pair, granularity,
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
