package storage

import (
	"database/sql"
	"fmt"
)

const currentSchemaVersion = 1

// migrate creates or upgrades the schema to the current version
func (db *DB) migrate() error {
	version, err := db.schemaVersion()
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		db.logger.Debug("database schema is up to date", "version", version)
		return nil
	}

	if version == 0 {
		return db.WithTx(func(tx *sql.Tx) error {
			if err := createTables(tx); err != nil {
				return err
			}
			if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
				return err
			}
			db.logger.Info("database schema initialized", "version", currentSchemaVersion)
			return nil
		})
	}

	// Sequential migrations go here as the schema evolves.
	return fmt.Errorf("unsupported schema version %d", version)
}

func createTables(tx *sql.Tx) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS concepts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			confidence REAL NOT NULL,
			file_path TEXT NOT NULL,
			line_start INTEGER NOT NULL DEFAULT 0,
			line_end INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_concepts_file ON concepts(file_path)`,
		`CREATE INDEX IF NOT EXISTS idx_concepts_type ON concepts(type)`,
		`CREATE TABLE IF NOT EXISTS patterns (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			confidence REAL NOT NULL,
			frequency INTEGER NOT NULL DEFAULT 0,
			examples TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_patterns_type ON patterns(type)`,
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// schemaVersion returns the stored schema version, or 0 for a new database
func (db *DB) schemaVersion() (int, error) {
	var tableName string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

func setSchemaVersion(tx *sql.Tx, version int) error {
	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}
