package migrate

import (
	"database/sql"

	"hotspot-map/internal/logger"
)

// EnsureSchema creates the dataset tables on first run. Statements use IF NOT EXISTS so
// re-running against an existing database is a no-op.
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _map_datasets (
            kind TEXT NOT NULL,
            seq INT NOT NULL,
            doc JSONB NOT NULL,
            PRIMARY KEY (kind, seq)
        )`,
		`CREATE TABLE IF NOT EXISTS _map_dataset_imports (
            kind TEXT PRIMARY KEY,
            rows INT NOT NULL DEFAULT 0,
            imported_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_map_datasets_year ON _map_datasets ((left(doc->>'accident_id', 4)))
            WHERE kind = 'hotspots'`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
