package store

import (
	"database/sql"
	"strings"

	"go.uber.org/zap"
)

// runMigrations adds columns that post-date early database layouts. Each
// step is idempotent: an ALTER that fails because the column already
// exists is ignored.
func runMigrations(db *sql.DB, logger *zap.Logger) error {
	migrations := []string{
		// v2: notes gained a language hint for code-kind content.
		"ALTER TABLE notes ADD COLUMN language TEXT NOT NULL DEFAULT ''",
		// v2: notes gained attachments.
		"ALTER TABLE notes ADD COLUMN attachments TEXT NOT NULL DEFAULT '[]'",
		// v3: patch proposals record the originating model.
		"ALTER TABLE patch_proposals ADD COLUMN model TEXT NOT NULL DEFAULT ''",
		// v3: folders gained a description.
		"ALTER TABLE folders ADD COLUMN description TEXT NOT NULL DEFAULT ''",
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			// Fresh databases already carry these columns from the CREATE
			// TABLE statements; SQLite reports that the same way.
			logger.Debug("migration skipped", zap.String("stmt", m), zap.Error(err))
		}
	}
	return nil
}
