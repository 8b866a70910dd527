// Package sqlite persists price history, live ticks, the position journal
// and evaluation snapshots in a single SQLite database.
package sqlite

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/xrp.db"
}

// Store is the SQLite-backed implementation of model.SeriesCache and
// model.PositionJournal. It uses a single connection, so writes are serialized.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Open creates the store, initializing the database with WAL mode and schema.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS price_points (
			series_key TEXT    NOT NULL,
			idx        INTEGER NOT NULL,
			ts         INTEGER NOT NULL,
			close      REAL    NOT NULL,
			PRIMARY KEY (series_key, idx)
		);

		CREATE TABLE IF NOT EXISTS ticks (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol  TEXT    NOT NULL,
			ts      INTEGER NOT NULL,
			price   REAL    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_ticks_ts ON ticks(ts);

		CREATE TABLE IF NOT EXISTS position_entries (
			position_id TEXT PRIMARY KEY,
			side        TEXT NOT NULL,
			entry       REAL NOT NULL,
			stop_loss   REAL,
			take_profit REAL,
			opened_at   INTEGER NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS position_exits (
			id          TEXT PRIMARY KEY,
			position_id TEXT NOT NULL,
			kind        TEXT NOT NULL,
			side        TEXT NOT NULL,
			entry       REAL NOT NULL,
			price       REAL NOT NULL,
			exited_at   INTEGER NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_exits_exited_at ON position_exits(exited_at);

		CREATE TABLE IF NOT EXISTS evaluation_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
