package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nerrad567/inventory-core/internal/infrastructure/logging"
)

const deviceColumns = `laptop_serial, hostname, ip_address, logged_in_user, last_seen_utc, drives_json`

const historyColumns = `id, laptop_serial, hostname, ip_address, logged_in_user, timestamp_utc, drives_json, received_at`

// Reader serves the recorded inventory. It only issues SELECTs and is
// meant to run on the query-only reader pool.
type Reader struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewReader creates a Reader over db.
// A nil logger discards the warnings about unreadable drive lists.
func NewReader(db *sql.DB, logger *logging.Logger) *Reader {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Reader{db: db, logger: logger}
}

// ListDevices returns every current-state row, most recently seen first,
// with ties broken by serial. The result is empty, not nil, when no device
// has checked in.
func (r *Reader) ListDevices(ctx context.Context) ([]DeviceState, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM laptops ORDER BY last_seen_utc DESC, laptop_serial ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := []DeviceState{}
	for rows.Next() {
		d, err := r.scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// GetDevice returns the current-state row for serial, or ErrNotFound.
func (r *Reader) GetDevice(ctx context.Context, serial string) (*DeviceState, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM laptops WHERE laptop_serial = ?`, serial,
	)
	d, err := r.scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// History returns every check-in recorded for serial, latest arrival first.
// An unknown serial yields an empty list.
func (r *Reader) History(ctx context.Context, serial string) ([]HistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM checkins WHERE laptop_serial = ? ORDER BY id DESC`,
		serial,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	records := []HistoryRecord{}
	for rows.Next() {
		var (
			h                         HistoryRecord
			user                      sql.NullString
			timestamp, drives, recvAt string
		)
		if err := rows.Scan(&h.ID, &h.LaptopSerial, &h.Hostname, &h.IPAddress, &user, &timestamp, &drives, &recvAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		h.LoggedInUser = stringPtr(user)
		if h.TimestampUTC, err = parseStoredTimestamp(timestamp); err != nil {
			return nil, fmt.Errorf("parsing timestamp_utc of check-in %d: %w", h.ID, err)
		}
		if h.ReceivedAt, err = parseStoredTimestamp(recvAt); err != nil {
			return nil, fmt.Errorf("parsing received_at of check-in %d: %w", h.ID, err)
		}
		h.Drives = r.decodeDrives(h.LaptopSerial, drives)
		records = append(records, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return records, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (r *Reader) scanDevice(s scanner) (DeviceState, error) {
	var (
		d                DeviceState
		user             sql.NullString
		lastSeen, drives string
	)
	if err := s.Scan(&d.LaptopSerial, &d.Hostname, &d.IPAddress, &user, &lastSeen, &drives); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return d, err
		}
		return d, fmt.Errorf("scanning device row: %w", err)
	}
	d.LoggedInUser = stringPtr(user)

	var err error
	if d.LastSeenUTC, err = parseStoredTimestamp(lastSeen); err != nil {
		return d, fmt.Errorf("parsing last_seen_utc of %q: %w", d.LaptopSerial, err)
	}
	d.Drives = r.decodeDrives(d.LaptopSerial, drives)
	return d, nil
}

// decodeDrives tolerates a corrupt drive list so one bad row cannot hide
// the rest of the inventory.
func (r *Reader) decodeDrives(serial, s string) []Drive {
	drives, err := DecodeDrives(s)
	if err != nil {
		r.logger.Warn("unreadable drive list", "laptop_serial", serial, "error", err)
	}
	return drives
}
