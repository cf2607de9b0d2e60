package database

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"authhooks/internal/platform/config"
)

// Open connects to the delivery store. A single sqlite file holds the
// webhook registry, the append-only delivery log and the stats rollups.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.Path
	if dsn == "" {
		dsn = "authhooks.db"
	}

	db, err := sql.Open("sqlite3", dsn+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}
