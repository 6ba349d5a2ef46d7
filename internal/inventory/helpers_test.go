package inventory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/inventory-core/internal/infrastructure/database"
	_ "github.com/nerrad567/inventory-core/migrations" // registers the schema
)

// openStore creates a migrated database in a temporary directory.
func openStore(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "inventory.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() {
		db.Close() //nolint:errcheck // Test cleanup
	})

	if err := db.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return db
}

// validCheckIn returns a check-in that passes Validate.
func validCheckIn(serial string) CheckIn {
	return CheckIn{
		Hostname:     "LAPTOP01",
		IPAddress:    "192.168.1.10",
		LoggedInUser: strPtr(`CORP\alice`),
		LaptopSerial: serial,
		Drives: []Drive{
			{Model: "Samsung SSD 980", SerialNumber: strPtr("S64DNF0R123456"), DeviceID: `\\.\PHYSICALDRIVE0`},
		},
		TimestampUTC: "2025-12-26T10:30:00Z",
	}
}

func strPtr(s string) *string {
	return &s
}

// countRows returns the number of rows in table for serial.
func countRows(t *testing.T, db *database.DB, table, serial string) int {
	t.Helper()

	var n int
	err := db.Reader().QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM "+table+" WHERE laptop_serial = ?", serial,
	).Scan(&n)
	if err != nil {
		t.Fatalf("counting %s rows: %v", table, err)
	}
	return n
}
