// Package migrate: schema bootstrap for the postgres dataset source.
package migrate

import (
	"context"
	"database/sql"

	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/logger"
)

// EnsureSchema creates the watershed tables on first run.
// Background: the service and the seed command both call it, whichever starts first.
// Constraint: every statement is IF NOT EXISTS so repeated runs are no-ops; column
// changes need a new statement, never an edit of an existing one.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS watersheds (
            dataset TEXT NOT NULL,
            id TEXT NOT NULL,
            name TEXT NOT NULL DEFAULT '',
            properties JSONB NOT NULL DEFAULT '{}'::jsonb,
            geometry JSONB NOT NULL,
            ordinal INT NOT NULL DEFAULT 0,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (dataset, id)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_watersheds_dataset_ordinal ON watersheds(dataset, ordinal)`,
		`CREATE TABLE IF NOT EXISTS watershed_datasets (
            dataset TEXT PRIMARY KEY,
            features INT NOT NULL DEFAULT 0,
            loaded_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
