package db

import (
	"database/sql"
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1-4: history tables are append-only.
	`CREATE TRIGGER IF NOT EXISTS property_history_no_update
	     BEFORE UPDATE ON property_history
	     BEGIN SELECT RAISE(ABORT, 'property history is append-only'); END`,
	`CREATE TRIGGER IF NOT EXISTS property_history_no_delete
	     BEFORE DELETE ON property_history
	     BEGIN SELECT RAISE(ABORT, 'property history is append-only'); END`,
	`CREATE TRIGGER IF NOT EXISTS verification_history_no_update
	     BEFORE UPDATE ON verification_history
	     BEGIN SELECT RAISE(ABORT, 'verification history is append-only'); END`,
	`CREATE TRIGGER IF NOT EXISTS verification_history_no_delete
	     BEFORE DELETE ON verification_history
	     BEGIN SELECT RAISE(ABORT, 'verification history is append-only'); END`,

	// Migration 5: revocation cleanup scans by expiry.
	`CREATE INDEX IF NOT EXISTS idx_revoked_tokens_expires ON revoked_tokens(expires_at)`,

	// Migration 6: at most one pending verification per property.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_verifications_one_pending
	     ON verifications(property_id) WHERE status = 'pending'`,
}

// Migrate creates the schema and runs the migrations.
func Migrate(db *sql.DB) error {
	if err := EnsureSchema(db); err != nil {
		return err
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
