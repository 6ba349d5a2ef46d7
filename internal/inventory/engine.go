package inventory

import (
	"context"
	"database/sql"
	"time"
)

const insertHistorySQL = `
	INSERT INTO checkins (
		laptop_serial, hostname, ip_address, logged_in_user, timestamp_utc, drives_json, received_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)`

const upsertStateSQL = `
	INSERT INTO laptops (
		laptop_serial, hostname, ip_address, logged_in_user, last_seen_utc, drives_json
	) VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(laptop_serial) DO UPDATE SET
		hostname       = excluded.hostname,
		ip_address     = excluded.ip_address,
		logged_in_user = excluded.logged_in_user,
		last_seen_utc  = excluded.last_seen_utc,
		drives_json    = excluded.drives_json`

// Engine performs the transactional dual write of a check-in.
//
// The pool passed to NewEngine must be the single-connection writer pool,
// whose DSN makes every transaction BEGIN IMMEDIATE. An Engine is safe for
// concurrent use.
type Engine struct {
	db  *sql.DB
	now func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock replaces the clock used to stamp received_at.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an Engine writing through db.
func NewEngine(db *sql.DB, opts ...EngineOption) *Engine {
	e := &Engine{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Persist appends a history row for c and upserts its current-state row in
// one transaction. c must already have passed Validate.
//
// received_at is stamped after the write lock is held, so arrival order
// equals commit order. Any failure rolls the whole unit back and returns a
// *PersistenceError naming the failing step. Persist makes exactly one
// attempt; lock contention beyond the busy timeout is returned, not retried.
func (e *Engine) Persist(ctx context.Context, c CheckIn) (Receipt, error) {
	drivesJSON, err := EncodeDrives(c.Drives)
	if err != nil {
		return Receipt{}, e.fail(c, OpEncodeDrives, err)
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return Receipt{}, e.fail(c, OpAcquireConn, err)
	}
	defer conn.Close() //nolint:errcheck // Returns the connection to the pool

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return Receipt{}, e.fail(c, OpBegin, err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	receivedAt := e.now().UTC().Truncate(time.Microsecond)
	user := nullString(c.LoggedInUser)

	res, err := tx.ExecContext(ctx, insertHistorySQL,
		c.LaptopSerial,
		c.Hostname,
		c.IPAddress,
		user,
		c.TimestampUTC,
		drivesJSON,
		FormatTimestamp(receivedAt),
	)
	if err != nil {
		return Receipt{}, e.fail(c, OpInsertHistory, err)
	}
	historyID, err := res.LastInsertId()
	if err != nil {
		return Receipt{}, e.fail(c, OpInsertHistory, err)
	}

	if _, err := tx.ExecContext(ctx, upsertStateSQL,
		c.LaptopSerial,
		c.Hostname,
		c.IPAddress,
		user,
		c.TimestampUTC,
		drivesJSON,
	); err != nil {
		return Receipt{}, e.fail(c, OpUpsertState, err)
	}

	if err := tx.Commit(); err != nil {
		return Receipt{}, e.fail(c, OpCommit, err)
	}

	return Receipt{HistoryID: historyID, ReceivedAt: receivedAt}, nil
}

func (e *Engine) fail(c CheckIn, op string, err error) error {
	return &PersistenceError{Serial: c.LaptopSerial, Op: op, Err: err}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
