// Package db carries the SQL migrations for the hosted database backend.
package db

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var Migrations embed.FS

// FS returns the migration files at the root of the returned file system.
func FS() (fs.FS, error) {
	return fs.Sub(Migrations, "migrations")
}
