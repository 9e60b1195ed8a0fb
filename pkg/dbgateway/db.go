// Package dbgateway is the persistence boundary named in spec §9's DESIGN
// NOTE replacing per-handler composition-by-copy: one DatabaseGateway
// interface, grouped by entity the way the teacher's pkg/db groups queries
// by *Queries struct, backed by modernc.org/sqlite.
package dbgateway

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Database wraps the SQL handle and the method-group accessors.
type Database struct {
	db *sql.DB

	users       *UserQueries
	sessions    *SessionQueries
	simulators  *SimulatorQueries
	orders      *OrderQueries
	ledger      *LedgerQueries
	marketdata  *MarketDataQueries
	idempotency *IdempotencyQueries
	feedback    *FeedbackQueries
	funds       *FundQueries
}

// Open creates (if needed) and opens the SQLite database at path, sizing the
// pool from cfg's DB_MIN_CONNECTIONS/DB_MAX_CONNECTIONS.
func Open(path string, maxOpen, maxIdle int) (*Database, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if maxOpen <= 0 {
		maxOpen = 1 // SQLite prefers a single writer absent WAL tuning.
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if _, err := sqlDB.Exec(schemaDDL); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	d := &Database{db: sqlDB}
	d.users = &UserQueries{db: sqlDB}
	d.sessions = &SessionQueries{db: sqlDB}
	d.simulators = &SimulatorQueries{db: sqlDB}
	d.orders = &OrderQueries{db: sqlDB}
	d.ledger = &LedgerQueries{db: sqlDB}
	d.marketdata = &MarketDataQueries{db: sqlDB}
	d.idempotency = &IdempotencyQueries{db: sqlDB}
	d.feedback = &FeedbackQueries{db: sqlDB}
	d.funds = &FundQueries{db: sqlDB}
	return d, nil
}

// Close releases the underlying handle.
func (d *Database) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *Database) Users() *UserQueries             { return d.users }
func (d *Database) Sessions() *SessionQueries       { return d.sessions }
func (d *Database) Simulators() *SimulatorQueries   { return d.simulators }
func (d *Database) Orders() *OrderQueries           { return d.orders }
func (d *Database) Ledger() *LedgerQueries          { return d.ledger }
func (d *Database) MarketData() *MarketDataQueries  { return d.marketdata }
func (d *Database) Idempotency() *IdempotencyQueries { return d.idempotency }
func (d *Database) Feedback() *FeedbackQueries       { return d.feedback }
func (d *Database) Funds() *FundQueries             { return d.funds }

var ErrNotFound = errors.New("record not found")
