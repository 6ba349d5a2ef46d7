package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Database configuration constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying database connectivity.
	connectionTimeout = 5 * time.Second

	// connMaxIdleTime is how long idle connections are kept open.
	connMaxIdleTime = 30 * time.Minute

	// defaultMaxReadConns is used when Config.MaxReadConns is zero.
	defaultMaxReadConns = 4

	// synchronousNormal is the value PRAGMA synchronous reports for NORMAL.
	synchronousNormal = 1
)

// ErrSettingsMismatch is returned by VerifySettings when the storage engine
// is not running with the expected durability settings.
var ErrSettingsMismatch = errors.New("database: storage settings mismatch")

// DB wraps the SQLite connection pools used by the inventory server.
//
// The embedded *sql.DB is the writer pool. It holds at most one connection,
// so writers serialise in-process, and its DSN makes every transaction
// BEGIN IMMEDIATE so writers in other processes serialise through the
// busy timeout rather than failing on lock upgrade.
//
// The reader pool is separate and query-only. In WAL mode readers see the
// last committed snapshot and never wait on the writer.
type DB struct {
	*sql.DB
	reader *sql.DB
	path   string
}

// Config contains database configuration options.
// These map to the database section of config.yaml.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// The directory will be created if it doesn't exist.
	Path string

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	// When it elapses the operation fails with SQLITE_BUSY.
	BusyTimeout int

	// MaxReadConns bounds the reader pool. Zero selects a default of 4.
	MaxReadConns int
}

// Open creates the writer and reader pools for the database at cfg.Path.
//
// It performs the following setup:
//  1. Creates the database directory if it doesn't exist
//  2. Opens the writer pool with WAL, synchronous=NORMAL, foreign keys and busy timeout
//  3. Verifies the writer with a ping, which creates the file and applies the pragmas
//  4. Opens the query-only reader pool
//  5. Sets file permissions (0600)
//
// Parameters:
//   - cfg: Database configuration
//
// Returns:
//   - *DB: Connected database wrapper
//   - error: If connection or configuration fails
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if strings.Contains(cfg.Path, ":memory:") {
		return nil, fmt.Errorf("in-memory databases are not supported: reader and writer pools need a shared file")
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	busyMS := cfg.BusyTimeout * msPerSecond

	// See: https://github.com/mattn/go-sqlite3#connection-string
	writerDSN := fmt.Sprintf(
		"file:%s?_busy_timeout=%d&_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL&_txlock=immediate",
		cfg.Path, busyMS,
	)

	writer, err := sql.Open("sqlite3", writerDSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)
	writer.SetConnMaxLifetime(time.Hour)
	writer.SetConnMaxIdleTime(connMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := writer.PingContext(ctx); err != nil {
		writer.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	readerDSN := fmt.Sprintf(
		"file:%s?_busy_timeout=%d&_foreign_keys=on&_query_only=1",
		cfg.Path, busyMS,
	)

	reader, err := sql.Open("sqlite3", readerDSN)
	if err != nil {
		writer.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("opening reader pool: %w", err)
	}

	maxReaders := cfg.MaxReadConns
	if maxReaders <= 0 {
		maxReaders = defaultMaxReadConns
	}
	reader.SetMaxOpenConns(maxReaders)
	reader.SetMaxIdleConns(maxReaders)
	reader.SetConnMaxLifetime(time.Hour)
	reader.SetConnMaxIdleTime(connMaxIdleTime)

	if err := reader.PingContext(ctx); err != nil {
		reader.Close() //nolint:errcheck // Best effort cleanup on error path
		writer.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying reader connection: %w", err)
	}

	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // Permissions are advisory

	return &DB{
		DB:     writer,
		reader: reader,
		path:   cfg.Path,
	}, nil
}

// Close closes both pools.
// It should be called when the application shuts down.
func (db *DB) Close() error {
	var errs []error
	if db.reader != nil {
		if err := db.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing reader pool: %w", err))
		}
	}
	if db.DB != nil {
		if err := db.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Path returns the filesystem path to the database file.
func (db *DB) Path() string {
	return db.path
}

// Writer returns the single-connection writer pool.
func (db *DB) Writer() *sql.DB {
	return db.DB
}

// Reader returns the query-only reader pool.
func (db *DB) Reader() *sql.DB {
	return db.reader
}

// Initialize brings the schema up to date and checks the storage settings.
// It is idempotent and intended to run once per process start.
func (db *DB) Initialize(ctx context.Context) error {
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	if err := db.VerifySettings(ctx); err != nil {
		return err
	}
	return nil
}

// Settings reports the storage-engine settings in effect on the writer.
type Settings struct {
	JournalMode string
	Synchronous int
	ForeignKeys bool
}

// CurrentSettings reads the journal mode, sync level and foreign key
// enforcement from the writer connection.
func (db *DB) CurrentSettings(ctx context.Context) (Settings, error) {
	var s Settings
	var fk int

	if err := db.DB.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&s.JournalMode); err != nil {
		return s, fmt.Errorf("reading journal_mode: %w", err)
	}
	if err := db.DB.QueryRowContext(ctx, "PRAGMA synchronous").Scan(&s.Synchronous); err != nil {
		return s, fmt.Errorf("reading synchronous: %w", err)
	}
	if err := db.DB.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
		return s, fmt.Errorf("reading foreign_keys: %w", err)
	}
	s.ForeignKeys = fk == 1

	return s, nil
}

// VerifySettings checks that WAL journaling, synchronous=NORMAL and foreign
// key enforcement are active. It returns ErrSettingsMismatch otherwise.
func (db *DB) VerifySettings(ctx context.Context) error {
	s, err := db.CurrentSettings(ctx)
	if err != nil {
		return err
	}

	var problems []string
	if !strings.EqualFold(s.JournalMode, "wal") {
		problems = append(problems, fmt.Sprintf("journal_mode=%s, want wal", s.JournalMode))
	}
	if s.Synchronous != synchronousNormal {
		problems = append(problems, fmt.Sprintf("synchronous=%d, want %d", s.Synchronous, synchronousNormal))
	}
	if !s.ForeignKeys {
		problems = append(problems, "foreign_keys disabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrSettingsMismatch, strings.Join(problems, "; "))
	}
	return nil
}

// HealthCheck verifies both pools are accessible and functioning.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (db *DB) HealthCheck(ctx context.Context) error {
	var result int
	if err := db.DB.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if err := db.reader.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database reader health check failed: %w", err)
	}
	return nil
}

// ExecContext executes a statement on the writer that doesn't return rows.
// This is a convenience wrapper that provides consistent error handling.
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	result, err := db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return result, nil
}

// BeginTx starts a new write transaction with the given options.
// Always use transactions for operations that modify multiple rows/tables.
//
// Example:
//
//	tx, err := db.BeginTx(ctx, nil)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback() // No-op if committed
//
//	// ... execute queries on tx ...
//
//	return tx.Commit()
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return tx, nil
}
