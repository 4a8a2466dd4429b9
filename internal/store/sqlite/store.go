// Package sqlite is the persistent store for symbols, candles and alerts.
// A single database file holds all three tables; candle upserts are keyed by
// (symbol, timeframe, ts) so replays and duplicate feed events are no-ops.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = errors.New("sqlite: not found")

// Config configures the store.
type Config struct {
	Path string // database file path, e.g. "data/tracker.db"
}

// Store wraps the SQLite database. Safe for concurrent use; SQLite's WAL
// mode and the single connection serialize writers.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Open opens (or creates) the database, enables WAL mode and applies the
// schema.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer connection; readers share it through database/sql.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.Path)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS symbols (
			symbol            TEXT PRIMARY KEY,
			base_asset        TEXT NOT NULL,
			quote_asset       TEXT NOT NULL,
			volume24          REAL NOT NULL DEFAULT 0,
			last_trend        TEXT,
			last_volume_alert INTEGER,
			last_fetched      INTEGER
		);

		CREATE TABLE IF NOT EXISTS candles (
			symbol       TEXT    NOT NULL,
			timeframe    TEXT    NOT NULL,
			ts           INTEGER NOT NULL,
			open         REAL    NOT NULL,
			high         REAL    NOT NULL,
			low          REAL    NOT NULL,
			close        REAL    NOT NULL,
			volume       REAL    NOT NULL,
			latest_price REAL    NOT NULL,
			price_change REAL    NOT NULL,
			metrics      TEXT    NOT NULL,
			PRIMARY KEY (symbol, timeframe, ts)
		);

		CREATE TABLE IF NOT EXISTS alerts (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol         TEXT    NOT NULL,
			trend          TEXT    NOT NULL,
			previous_trend TEXT,
			entry          REAL    NOT NULL,
			stop_loss      REAL    NOT NULL,
			tp1            REAL    NOT NULL,
			tp2            REAL    NOT NULL,
			tp3            REAL    NOT NULL,
			highest_price  REAL,
			lowest_price   REAL,
			result         INTEGER,
			status         TEXT    NOT NULL DEFAULT 'open',
			created_at     INTEGER NOT NULL,
			updated_at     INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
		CREATE INDEX IF NOT EXISTS idx_candles_tf_ts ON candles(timeframe, ts);
	`)
	return err
}
