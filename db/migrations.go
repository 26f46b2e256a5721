// Package db carries the Postgres schema migrations.
package db

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the embedded goose migrations rooted at their directory.
func Migrations() fs.FS {
	fsys, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return fsys
}
