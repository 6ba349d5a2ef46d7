// Package inventory ingests laptop check-in reports and serves the
// recorded device inventory.
//
// A check-in passes through three stages:
//
//  1. Validate checks every field and normalises the timestamp and IP address.
//  2. Engine.Persist appends a history row and upserts the current-state row
//     in one BEGIN IMMEDIATE transaction on the single-connection writer pool.
//  3. Service notifies registered sinks (MQTT events, InfluxDB mirror).
//
// Reader serves the device list, single-device lookups and per-device
// history from the query-only reader pool.
//
// Errors come in three kinds, each testable with errors.Is:
//
//	ErrValidationFailed  *ValidationError, carries every field violation
//	ErrPersistenceFailed *PersistenceError, carries serial, step and cause
//	ErrNotFound          unknown serial on a single-device lookup
//
// Field-level and storage detail is for logs only. Transports expose
// generic text to remote callers.
package inventory
