package utils

import (
	"context"
	"database/sql"
	"fmt"
)

// ApplySchema runs idempotent DDL statements in one transaction.
// Statements must be safe to re-run (CREATE ... IF NOT EXISTS).
func ApplySchema(ctx context.Context, db *sql.DB, statements ...string) error {
	return WithTx(ctx, db, nil, func(ctx context.Context, tx *sql.Tx) error {
		for i, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("schema statement %d: %w", i, err)
			}
		}
		return nil
	})
}
