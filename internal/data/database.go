package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"opsdesk/internal/logger"
)

// =============================================================================
// CONSTANTS AND GLOBAL VARIABLES
// =============================================================================

// Global database instance with better management
var (
	db   *sql.DB
	dbMu sync.RWMutex
)

// Database connection pool configuration
const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = time.Hour
	connMaxIdleTime = time.Minute * 15
	queryTimeout    = time.Second * 30
)

const TimeFormat = time.RFC3339

// =============================================================================
// STRUCT DEFINITIONS (ALL TYPES)
// =============================================================================

// Client is a customer an offer can be addressed to.
type Client struct {
	ID      string
	Name    string
	Email   string
	Company string
}

// Resource is a trackable piece of equipment ("item") or pre-built kit
// ("kit"). Resources sharing a non-empty AlternativeGroup can stand in
// for each other.
type Resource struct {
	Kind             string
	ID               string
	Name             string
	TotalQty         int
	AlternativeGroup string
}

// Reservation blocks a quantity of one resource for a time window.
type Reservation struct {
	ID           int64
	ResourceKind string
	ResourceID   string
	Qty          int
	WindowStart  time.Time
	WindowEnd    time.Time
	EventName    string
}

// OfferRecord is the persisted snapshot of a submitted offer.
type OfferRecord struct {
	OfferID           string
	ClientID          string
	EventID           string
	EventName         string
	WindowStart       time.Time
	WindowEnd         time.Time
	ItemsJSON         string
	SubstitutionsJSON string
	TotalAmount       float64
	OverrideUsed      bool
	SubmittedAt       time.Time
}

// =============================================================================
// DATABASE CONNECTION AND SETUP
// =============================================================================

// InitDB initializes the database with connection pooling and resilience
func InitDB(dataSourceName string) error {
	dbMu.Lock()
	defer dbMu.Unlock()

	// Close existing connection if any
	if db != nil {
		db.Close()
	}

	if err := os.MkdirAll(filepath.Dir(dataSourceName), 0775); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	return initDBWithRetry(dataSourceName, 3)
}

func initDBWithRetry(dataSourceName string, maxRetries int) error {
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err = sql.Open("sqlite", dataSourceName)
		if err != nil {
			logger.LogWarn("Database connection attempt %d failed: %v", attempt, err)
			if attempt < maxRetries {
				time.Sleep(time.Duration(attempt) * time.Second)
				continue
			}
			return fmt.Errorf("failed to open database after %d attempts: %w", maxRetries, err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxIdleConns)
		db.SetConnMaxLifetime(connMaxLifetime)
		db.SetConnMaxIdleTime(connMaxIdleTime)

		// Test the connection
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		err = db.PingContext(ctx)
		cancel()

		if err != nil {
			logger.LogWarn("Database ping attempt %d failed: %v", attempt, err)
			db.Close()
			if attempt < maxRetries {
				time.Sleep(time.Duration(attempt) * time.Second)
				continue
			}
			return fmt.Errorf("failed to ping database after %d attempts: %w", maxRetries, err)
		}

		// Enable optimizations with error handling
		if err := enablePragmas(db); err != nil {
			logger.LogWarn("Failed to enable some database optimizations: %v", err)
			// Don't fail initialization for pragma errors
		}

		logger.LogInfo("Database connection established successfully (attempt %d)", attempt)
		return nil
	}

	return fmt.Errorf("failed to initialize database after %d attempts", maxRetries)
}

func enablePragmas(conn *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
	}

	var lastErr error
	for _, pragma := range pragmas {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		_, err := conn.ExecContext(ctx, pragma)
		cancel()

		if err != nil {
			logger.LogWarn("Failed to execute %s: %v", pragma, err)
			lastErr = err
		}
	}
	return lastErr
}

// GetDB returns the database connection with health check
func GetDB() (*sql.DB, error) {
	dbMu.RLock()
	defer dbMu.RUnlock()

	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	// Quick health check
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*2)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.LogError("Database health check failed: %v", err)
		return nil, fmt.Errorf("database connection unhealthy: %w", err)
	}

	return db, nil
}

// CloseDB closes the database connection gracefully
func CloseDB() error {
	dbMu.Lock()
	defer dbMu.Unlock()

	if db != nil {
		err := db.Close()
		db = nil
		return err
	}
	return nil
}

// =============================================================================
// SCHEMA DEFINITIONS
// =============================================================================

const clientTableSchema = `
	CREATE TABLE IF NOT EXISTS clients (
		client_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		company TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_clients_name ON clients(name);`

const resourceTableSchema = `
	CREATE TABLE IF NOT EXISTS resources (
		kind TEXT NOT NULL CHECK (kind IN ('item', 'kit')),
		resource_id TEXT NOT NULL,
		name TEXT NOT NULL,
		total_qty INTEGER NOT NULL DEFAULT 0,
		alternative_group TEXT DEFAULT '',
		PRIMARY KEY (kind, resource_id)
	);
	CREATE INDEX IF NOT EXISTS idx_resources_group ON resources(alternative_group);`

const reservationTableSchema = `
	CREATE TABLE IF NOT EXISTS reservations (
		reservation_id INTEGER PRIMARY KEY AUTOINCREMENT,
		resource_kind TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		qty INTEGER NOT NULL,
		window_start TEXT NOT NULL,
		window_end TEXT NOT NULL,
		event_name TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_reservations_resource ON reservations(resource_kind, resource_id);
	CREATE INDEX IF NOT EXISTS idx_reservations_window ON reservations(window_start, window_end);`

const offerTableSchema = `
	CREATE TABLE IF NOT EXISTS offers (
		offer_id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		event_name TEXT,
		window_start TEXT NOT NULL,
		window_end TEXT NOT NULL,
		items_json TEXT NOT NULL DEFAULT '[]',
		substitutions_json TEXT NOT NULL DEFAULT '[]',
		total_amount REAL DEFAULT 0,
		override_used BOOLEAN DEFAULT 0,
		submitted_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_offers_client ON offers(client_id);
	CREATE INDEX IF NOT EXISTS idx_offers_submitted_at ON offers(submitted_at);`

// =============================================================================
// TABLE CREATION
// =============================================================================

func CreateTables() error {
	tables := []struct {
		name   string
		schema string
	}{
		{"clients", clientTableSchema},
		{"resources", resourceTableSchema},
		{"reservations", reservationTableSchema},
		{"offers", offerTableSchema},
	}

	for _, table := range tables {
		if _, err := db.Exec(table.schema); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}

	return nil
}

// =============================================================================
// UTILITY FUNCTIONS (JSON AND TIME HANDLING)
// =============================================================================

// JSON utilities

func marshalJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func unmarshalJSON(data string, v interface{}) error {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return nil
}

// Time utilities

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

func parseTime(timeStr string) (time.Time, error) {
	return time.Parse(TimeFormat, timeStr)
}

// =============================================================================
// GENERIC DATABASE OPERATIONS
// =============================================================================

// ExecDB executes a query with better error handling and timeouts
func ExecDB(query string, args ...interface{}) (sql.Result, error) {
	dbConn, err := GetDB()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	result, err := dbConn.ExecContext(ctx, query, args...)
	if err != nil {
		logger.LogError("Database exec failed: query=%s, error=%v", query, err)
		return nil, fmt.Errorf("database execution failed: %w", err)
	}

	return result, nil
}

// QueryDB executes a query with timeout and returns rows
func QueryDB(query string, args ...interface{}) (*sql.Rows, error) {
	dbConn, err := GetDB()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	rows, err := dbConn.QueryContext(ctx, query, args...)
	if err != nil {
		logger.LogError("Database query failed: query=%s, error=%v", query, err)
		return nil, fmt.Errorf("database query failed: %w", err)
	}

	return rows, nil
}

// QueryRowDB executes a query that returns a single row
func QueryRowDB(query string, args ...interface{}) *sql.Row {
	dbConn, _ := GetDB() // We'll let the query fail if DB is unavailable

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	return dbConn.QueryRowContext(ctx, query, args...)
}
