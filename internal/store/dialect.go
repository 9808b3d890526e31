package store

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver, registered as "pgx"
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
)

// dialect holds the per-engine SQL that differs between the supported databases.
type dialect struct {
	driverName        string
	schema            []string
	upsertInstruction string
}

var dialects = map[string]dialect{
	"sqlite3": {
		driverName: "sqlite3",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS users (
				username TEXT PRIMARY KEY,
				password_hash TEXT NOT NULL,
				role TEXT NOT NULL,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS instructions (
				id INTEGER PRIMARY KEY,
				text TEXT NOT NULL,
				temperature REAL NOT NULL
			)`,
		},
		upsertInstruction: "INSERT OR REPLACE INTO instructions (id, text, temperature) VALUES (1, ?, ?)",
	},
	"mysql": {
		driverName: "mysql",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS users (
				username VARCHAR(255) PRIMARY KEY,
				password_hash VARCHAR(255) NOT NULL,
				role VARCHAR(32) NOT NULL,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS instructions (
				id INT PRIMARY KEY,
				text TEXT NOT NULL,
				temperature DOUBLE NOT NULL
			)`,
		},
		upsertInstruction: "REPLACE INTO instructions (id, text, temperature) VALUES (1, ?, ?)",
	},
	"postgres": {
		driverName: "pgx",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS users (
				username TEXT PRIMARY KEY,
				password_hash TEXT NOT NULL,
				role TEXT NOT NULL,
				created_at TIMESTAMPTZ DEFAULT now()
			)`,
			`CREATE TABLE IF NOT EXISTS instructions (
				id INTEGER PRIMARY KEY,
				text TEXT NOT NULL,
				temperature DOUBLE PRECISION NOT NULL
			)`,
		},
		upsertInstruction: `INSERT INTO instructions (id, text, temperature) VALUES (1, ?, ?)
			ON CONFLICT (id) DO UPDATE SET text = EXCLUDED.text, temperature = EXCLUDED.temperature`,
	},
}

func lookupDialect(driver string) (dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
	return d, nil
}
