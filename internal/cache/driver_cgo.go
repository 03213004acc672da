//go:build sqlite_cgo

package cache

// CGO SQLite (github.com/mattn/go-sqlite3).
//
// Build command:
//   CGO_ENABLED=1 go build -tags sqlite_cgo ./...

import (
	"database/sql"

	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql driver for the sqlite backend.
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration.
	BuildMode = "cgo"

	migrateDriverName = "sqlite3"
)

func newMigrateDriver(db *sql.DB) (database.Driver, error) {
	return sqlite3.WithInstance(db, &sqlite3.Config{})
}
