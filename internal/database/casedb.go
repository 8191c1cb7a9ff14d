package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// FileName is the name of the database file inside the database directory.
const FileName = "torcorrelate.db"

// CaseDB provides SQLite-based storage for snapshots, observations and
// analysis runs.
//
// Design decision: one database file holds every case. Analysts compare runs
// across cases that share a snapshot, and a single file keeps those queries
// simple. Case separation is done by the case_number column.
type CaseDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CaseDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so readers do not block the writer.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CaseDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CaseDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		// Case data is sensitive; keep the directory private to the user.
		if err := os.MkdirAll(dbDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CaseDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Close closes the database connection.
func (cdb *CaseDB) Close() error {
	return cdb.db.Close()
}

// Path returns the database file path.
func (cdb *CaseDB) Path() string {
	return cdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CaseDB) createTables() error {
	schema := `
	-- Topology snapshots; identical consensus views share one row
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		digest TEXT NOT NULL UNIQUE,
		captured_at TEXT NOT NULL,
		total_relays INTEGER NOT NULL,
		guard_relays INTEGER NOT NULL,
		exit_relays INTEGER NOT NULL,
		snapshot_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_captured ON snapshots(captured_at);

	-- Observations are keyed by id; re-importing the same id replaces it
	CREATE TABLE IF NOT EXISTS observations (
		id TEXT PRIMARY KEY,
		case_number TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		observed_at TEXT NOT NULL,
		relay_fingerprint TEXT,
		observation_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_obs_case ON observations(case_number, observed_at);
	CREATE INDEX IF NOT EXISTS idx_obs_relay ON observations(relay_fingerprint);

	-- Analysis runs store the complete report as JSON
	CREATE TABLE IF NOT EXISTS analyses (
		run_id TEXT PRIMARY KEY,
		case_number TEXT NOT NULL DEFAULT '',
		profile_id TEXT NOT NULL,
		snapshot_id TEXT,
		started_at TEXT NOT NULL,
		total_pairs INTEGER NOT NULL,
		total_clusters INTEGER NOT NULL,
		high_confidence INTEGER NOT NULL,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_analyses_case ON analyses(case_number);
	CREATE INDEX IF NOT EXISTS idx_analyses_started ON analyses(started_at);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// storedTimeLayout is fixed width so that stored timestamps sort as text.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTimestamp formats t in UTC with storedTimeLayout.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

// timestampFormats contains the timestamp formats that may be found in the
// database. The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05", // SQLite default datetime format
	"2006-01-02T15:04:05",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, it returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// notFound converts sql.ErrNoRows into ErrNotFound.
func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %q", ErrNotFound, what, id)
	}
	return fmt.Errorf("failed to get %s %q: %w", what, id, err)
}
