// Package migrations embeds the inventory schema into the binary.
//
// Importing this package registers the migrations with the database
// package, so database.Initialize works without SQL files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/inventory-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Files are at root of embedded FS
}
