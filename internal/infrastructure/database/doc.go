// Package database provides SQLite connectivity for the inventory server.
//
// This package manages:
//   - A single-connection writer pool with WAL journaling, synchronous=NORMAL,
//     foreign keys and a busy timeout, where every transaction is BEGIN IMMEDIATE
//   - A query-only reader pool that reads committed snapshots without waiting
//     on the writer
//   - Forward-only, idempotent schema migrations
//   - Verification of the storage settings at start-up
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Initialize(ctx); err != nil {
//	    return err
//	}
//
// Migration Strategy:
//
// Migrations are forward-only .up.sql files named
// YYYYMMDD_HHMMSS_description.up.sql. Statements use IF NOT EXISTS so that
// running Initialize from several processes against one file is harmless.
package database
