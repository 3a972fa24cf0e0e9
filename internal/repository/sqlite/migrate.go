package sqlite

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the latest schema version supported by the migrator.
const SchemaVersion = 1

// Migrate ensures the SQLite schema exists and is upgraded to SchemaVersion.
func Migrate(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("migrate: db is nil")
	}

	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`)
	if err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	err = db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current)
	if err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}
	if current >= SchemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	statements := []struct {
		name string
		sql  string
	}{
		{"ships", `
			CREATE TABLE IF NOT EXISTS ships (
				ship_id TEXT PRIMARY KEY,
				ship_name TEXT NOT NULL,
				ship_type TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			);`},
		{"missions", `
			CREATE TABLE IF NOT EXISTS missions (
				mission_id TEXT PRIMARY KEY,
				ship_id TEXT NOT NULL,
				mission_type TEXT NOT NULL,
				created_at TEXT NOT NULL,
				FOREIGN KEY(ship_id) REFERENCES ships(ship_id) ON DELETE CASCADE
			);`},
		{"crews", `
			CREATE TABLE IF NOT EXISTS crews (
				crew_id TEXT PRIMARY KEY,
				ship_id TEXT NOT NULL,
				crew_size INTEGER NOT NULL,
				commander_name TEXT NOT NULL,
				commander_rank TEXT NOT NULL,
				created_at TEXT NOT NULL,
				FOREIGN KEY(ship_id) REFERENCES ships(ship_id) ON DELETE CASCADE
			);`},
		{"ports", `
			CREATE TABLE IF NOT EXISTS ports (
				port_id TEXT PRIMARY KEY,
				ship_id TEXT NOT NULL,
				home_port TEXT NOT NULL,
				created_at TEXT NOT NULL,
				FOREIGN KEY(ship_id) REFERENCES ships(ship_id) ON DELETE CASCADE
			);`},
		{"conversations", `
			CREATE TABLE IF NOT EXISTS conversations (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id TEXT NOT NULL,
				data TEXT NOT NULL,
				created_at TEXT NOT NULL
			);`},
		{"conversations index", `CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, created_at);`},
	}
	for _, stmt := range statements {
		if _, err = tx.Exec(stmt.sql); err != nil {
			return fmt.Errorf("migrate: create %s: %w", stmt.name, err)
		}
	}

	_, err = tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?);`, SchemaVersion)
	if err != nil {
		return fmt.Errorf("migrate: record version: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit: %w", err)
	}
	return nil
}
