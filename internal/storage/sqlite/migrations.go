package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
)

// currentSchemaVersion is written to PRAGMA user_version after migrations.
const currentSchemaVersion = 2

type migration struct {
	version int
	name    string
	fn      func(*sql.DB) error
}

// migrations are applied in order to databases whose user_version is below
// the migration's version. Each must be idempotent.
var migrations = []migration{
	{1, "workflow_config_version", migrateWorkflowConfigVersion},
	{2, "history_created_index", migrateHistoryCreatedIndex},
}

// RunMigrations applies incremental schema migrations based on user_version.
func RunMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	for _, m := range migrations {
		if version >= m.version {
			continue
		}
		if err := m.fn(db); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.name, err)
		}
		version = m.version
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateWorkflowConfigVersion adds the version counter to workflow_configs.
func migrateWorkflowConfigVersion(db *sql.DB) error {
	exists, err := columnExists(db, "workflow_configs", "version")
	if err != nil {
		return err
	}
	if !exists {
		if _, err := db.Exec(`ALTER TABLE workflow_configs ADD COLUMN version INTEGER NOT NULL DEFAULT 1`); err != nil {
			return fmt.Errorf("failed to add version column: %w", err)
		}
	}
	return nil
}

// migrateHistoryCreatedIndex speeds up --since filters on history listings.
func migrateHistoryCreatedIndex(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_history_created ON status_history(entity_type, entity_id, created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create history index: %w", err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (exists bool, retErr error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to check schema: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			retErr = errors.Join(retErr, fmt.Errorf("failed to close schema rows: %w", closeErr))
		}
	}()

	for rows.Next() {
		var cid int
		var name, typ string
		var notnull, pk int
		var dflt *string
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return false, fmt.Errorf("failed to scan column info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
