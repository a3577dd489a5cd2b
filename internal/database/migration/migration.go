// Package migration applies the schema at startup. Steps are ordered and
// idempotent; each runs in its own implicit transaction.
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

type migrationStep struct {
	name string
	stmt string
}

var steps = []migrationStep{
	{
		name: "create_documents",
		stmt: `
			CREATE TABLE IF NOT EXISTS documents (
				id               UUID PRIMARY KEY,
				filename         TEXT NOT NULL,
				storage_path     TEXT NOT NULL,
				public_url       TEXT NOT NULL DEFAULT '',
				status           TEXT NOT NULL DEFAULT 'queued',
				processing_stage TEXT NOT NULL DEFAULT 'queued',
				progress         INTEGER NOT NULL DEFAULT 0,
				raw_text         TEXT,
				error_message    TEXT NOT NULL DEFAULT '',
				uploaded_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
				processed_at     TIMESTAMPTZ
			)`,
	},
	{
		name: "create_analysis_results",
		stmt: `
			CREATE TABLE IF NOT EXISTS analysis_results (
				id              UUID PRIMARY KEY,
				document_id     UUID NOT NULL UNIQUE REFERENCES documents(id) ON DELETE CASCADE,
				structured_data JSONB NOT NULL,
				insights        JSONB,
				insight_text    TEXT NOT NULL DEFAULT '',
				created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
	},
	{
		name: "create_health_markers",
		stmt: `
			CREATE TABLE IF NOT EXISTS health_markers (
				id              UUID PRIMARY KEY,
				analysis_id     UUID NOT NULL REFERENCES analysis_results(id) ON DELETE CASCADE,
				marker          TEXT NOT NULL,
				value           TEXT NOT NULL,
				unit            TEXT NOT NULL DEFAULT '',
				reference_range TEXT NOT NULL DEFAULT '',
				severity        TEXT NOT NULL DEFAULT 'unknown'
			)`,
	},
	{
		name: "index_documents_uploaded_at",
		stmt: `CREATE INDEX IF NOT EXISTS idx_documents_uploaded_at ON documents (uploaded_at DESC)`,
	},
	{
		name: "index_documents_status",
		stmt: `CREATE INDEX IF NOT EXISTS idx_documents_status ON documents (status)`,
	},
	{
		name: "index_health_markers_analysis",
		stmt: `CREATE INDEX IF NOT EXISTS idx_health_markers_analysis ON health_markers (analysis_id)`,
	},
}

// Run applies all migration steps in order.
func Run(ctx context.Context, db *sql.DB, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	for _, step := range steps {
		if _, err := db.ExecContext(ctx, step.stmt); err != nil {
			return fmt.Errorf("migration %q: %w", step.name, err)
		}
		log.Debug("migration.applied", "step", step.name)
	}
	log.Info("migration.done", "steps", len(steps))
	return nil
}
