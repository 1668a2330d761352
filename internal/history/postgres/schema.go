// Package postgres is a PostgreSQL history store built on a pgx connection
// pool. Suggestions are stored as JSONB.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlReports = `
CREATE TABLE IF NOT EXISTS laudos (
    id                TEXT         PRIMARY KEY,
    texto             TEXT         NOT NULL,
    laudo             TEXT,
    sugestoes         JSONB        NOT NULL DEFAULT '[]',
    erro              TEXT,
    modo_ps           BOOLEAN      NOT NULL DEFAULT false,
    modo_comparativo  BOOLEAN      NOT NULL DEFAULT false,
    usar_pesquisa     BOOLEAN      NOT NULL DEFAULT false,
    model             TEXT         NOT NULL DEFAULT '',
    input_tokens      INTEGER      NOT NULL DEFAULT 0,
    output_tokens     INTEGER      NOT NULL DEFAULT 0,
    created_at        TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_laudos_created_at
    ON laudos (created_at DESC);
`

// Migrate creates the laudos table and its index. It is idempotent and safe to
// call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlReports); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
