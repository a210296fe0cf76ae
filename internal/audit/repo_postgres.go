package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const insertEventSQL = `
INSERT INTO dispatch_audit_events
	(id, type, call_id, counselor_id, actor_role, risk_level, message, metadata, created_at)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7, NULLIF($8, '')::jsonb, $9)`

// PostgresRepo appends events to Postgres. It never updates or deletes rows.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	if r.db == nil {
		return errors.New("audit: db is nil")
	}
	_, err := r.db.ExecContext(ctx, insertEventSQL,
		e.ID, string(e.Type), e.CallID, e.CounselorID, e.ActorRole, e.RiskLevel, e.Message, e.Metadata, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}
