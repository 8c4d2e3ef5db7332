package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Database wraps the SQLite connection
type Database struct {
	conn *sql.DB
}

// New creates a new database connection
func New(dbPath string) (*Database, error) {
	// Enable WAL mode and other optimizations via connection string.
	// All timestamps are handled in UTC.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_loc=UTC", dbPath)

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	db := &Database{conn: conn}

	if err := db.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return db, nil
}

// initialize creates tables and indexes
func (db *Database) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS defects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		defect_type VARCHAR(50) NOT NULL,
		severity VARCHAR(20) NOT NULL CHECK (severity IN ('low', 'medium', 'high', 'critical')),
		notes TEXT,
		vehicle_id VARCHAR(50),
		timestamp DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS analytics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		metric_name VARCHAR(100) NOT NULL,
		metric_value TEXT NOT NULL,
		calculated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS vehicles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		vehicle_id VARCHAR(50) UNIQUE NOT NULL,
		last_report_timestamp DATETIME,
		total_reports INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Indexes for aggregation and dashboard queries
	CREATE INDEX IF NOT EXISTS idx_defects_location ON defects(latitude, longitude);
	CREATE INDEX IF NOT EXISTS idx_defects_timestamp ON defects(timestamp);
	CREATE INDEX IF NOT EXISTS idx_defects_severity ON defects(severity);
	CREATE INDEX IF NOT EXISTS idx_defects_vehicle ON defects(vehicle_id) WHERE vehicle_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_analytics_name ON analytics(metric_name, calculated_at);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.conn.Close()
}

// Ping verifies the store is reachable
func (db *Database) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// withTx runs fn inside a transaction, committing on success and rolling back
// on error.
func (db *Database) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Stats holds database row counts
type Stats struct {
	TotalDefects  int64 `json:"total_defects"`
	TotalVehicles int64 `json:"total_vehicles"`
	MetricEntries int64 `json:"metric_entries"`
}

// GetStats returns database statistics
func (db *Database) GetStats(ctx context.Context) (*Stats, error) {
	var s Stats
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM defects").Scan(&s.TotalDefects); err != nil {
		return nil, err
	}
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM vehicles").Scan(&s.TotalVehicles); err != nil {
		return nil, err
	}
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM analytics").Scan(&s.MetricEntries); err != nil {
		return nil, err
	}
	return &s, nil
}
