package inventory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// Error kinds for the inventory package.
//
// Check them with errors.Is:
//
//	if errors.Is(err, inventory.ErrValidationFailed) {
//	    // reject with a generic message
//	}
var (
	// ErrValidationFailed matches every *ValidationError.
	ErrValidationFailed = errors.New("inventory: validation failed")

	// ErrPersistenceFailed matches every *PersistenceError.
	ErrPersistenceFailed = errors.New("inventory: persistence failed")

	// ErrNotFound is returned when a laptop serial has no current-state row.
	ErrNotFound = errors.New("inventory: device not found")
)

// Persistence steps recorded in PersistenceError.Op.
const (
	OpEncodeDrives  = "encode_drives"
	OpAcquireConn   = "acquire_conn"
	OpBegin         = "begin"
	OpInsertHistory = "insert_history"
	OpUpsertState   = "upsert_state"
	OpCommit        = "commit"
)

// Validation rule names recorded in Violation.Rule.
const (
	RuleRequired  = "required"
	RuleLength    = "length"
	RuleCharset   = "charset"
	RuleEdge      = "edge"
	RulePrintable = "printable"
	RuleFormat    = "format"
	RuleCount     = "count"
)

// Violation describes one failing field.
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return v.Field + ": " + v.Message
}

// ValidationError lists every rule a check-in broke.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%s: %s", ErrValidationFailed, strings.Join(parts, "; "))
}

// Is reports whether target is ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// Fields returns the failing field paths in report order.
func (e *ValidationError) Fields() []string {
	fields := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		fields[i] = v.Field
	}
	return fields
}

// PersistenceError reports a failed write. The transaction has been rolled
// back and neither table holds any trace of the attempt.
type PersistenceError struct {
	Serial string
	Op     string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: serial %q: %s: %v", ErrPersistenceFailed, e.Serial, e.Op, e.Err)
}

// Is reports whether target is ErrPersistenceFailed.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistenceFailed
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsBusy reports whether err was caused by SQLite lock contention
// (SQLITE_BUSY or SQLITE_LOCKED), including an expired busy timeout.
func IsBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
