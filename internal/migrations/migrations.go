// Package migrations registers the bun migration set applied by `iamctl db`.
package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the registry every migration file's init() appends to.
var Migrations = migrate.NewMigrations()
