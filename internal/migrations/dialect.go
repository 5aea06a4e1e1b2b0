package migrations

import "github.com/uptrace/bun"

// GetDialectName reports bun's own name for db's dialect ("pg", "sqlite"),
// the string every migration's dialect branch switches on.
func GetDialectName(db *bun.DB) string {
	return db.Dialect().Name()
}

// IsSQLite reports whether db is the modernc.org/sqlite dialect.
func IsSQLite(db *bun.DB) bool {
	return GetDialectName(db) == "sqlite"
}

// IsPostgreSQL reports whether db is the pgdialect dialect. Migrations use
// this to gate PostgreSQL-only DDL (CASCADE, SERIAL) that SQLite rejects.
func IsPostgreSQL(db *bun.DB) bool {
	return GetDialectName(db) == "pg"
}
