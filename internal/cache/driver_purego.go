//go:build !sqlite_cgo

package cache

// Pure Go SQLite (modernc.org/sqlite). No C compiler required.
//
// Build command:
//   CGO_ENABLED=0 go build ./...

import (
	"database/sql"

	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver for the sqlite backend.
	DriverName = "sqlite"

	// BuildMode describes the current build configuration.
	BuildMode = "purego"

	migrateDriverName = "sqlite"
)

func newMigrateDriver(db *sql.DB) (database.Driver, error) {
	return sqlite.WithInstance(db, &sqlite.Config{})
}
