package reports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"triage-platform/internal/queue"
	"triage-platform/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const reportColumns = `id, call_id, counselor_id, phone, client_name, client_age, client_gender, memo,
	risk_level_recorded, call_received_at, created_at`

// PostgresRepo stores reports in consultation_reports, unique per
// (call_id, call_received_at). With a cipher, phone, client_name and memo are
// sealed before insert and opened on read; searches on them then run after
// decryption instead of in SQL.
type PostgresRepo struct {
	db     *sql.DB
	cipher *FieldCipher
}

// NewPostgresRepo stores fields in plaintext when cipher is nil.
func NewPostgresRepo(db *sql.DB, cipher *FieldCipher) *PostgresRepo {
	return &PostgresRepo{db: db, cipher: cipher}
}

func (r *PostgresRepo) Create(ctx context.Context, rep Report) error {
	if r.cipher != nil {
		var err error
		if rep, err = r.cipher.sealReport(rep); err != nil {
			return fmt.Errorf("reports: seal: %w", err)
		}
	}
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO consultation_reports (`+reportColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			rep.ID, rep.CallID, rep.CounselorID, rep.Phone, rep.ClientName, rep.ClientAge, rep.ClientGender,
			rep.Memo, int(rep.RiskLevelRecorded), rep.CallReceivedAt, rep.CreatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return ErrAlreadyFiled
			}
			return fmt.Errorf("reports: insert: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Report, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM consultation_reports WHERE id = $1`, id)
	return r.one(row)
}

func (r *PostgresRepo) FindByCall(ctx context.Context, callID string, receivedAt time.Time) (Report, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM consultation_reports
WHERE call_id = $1 AND call_received_at = $2`, callID, receivedAt)
	return r.one(row)
}

func (r *PostgresRepo) one(row *sql.Row) (Report, error) {
	rep, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	if err != nil {
		return Report{}, err
	}
	return r.open(rep)
}

func (r *PostgresRepo) ListByCounselor(ctx context.Context, counselorID string, q Search) ([]Report, error) {
	if q.Term != "" && r.cipher != nil {
		return r.searchSealed(ctx, counselorID, q)
	}

	query := `SELECT ` + reportColumns + ` FROM consultation_reports WHERE counselor_id = $1`
	args := []any{counselorID}
	if q.Term != "" {
		col := "client_name"
		if q.By == SearchByPhone {
			col = "phone"
		}
		query += ` AND ` + col + ` ILIKE '%' || $2 || '%'`
		args = append(args, q.Term)
	}
	query += ` ORDER BY created_at DESC`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}
	return r.list(ctx, query, args...)
}

// searchSealed filters the counselor's reports after opening them, newest
// first, stopping at q.Limit matches.
func (r *PostgresRepo) searchSealed(ctx context.Context, counselorID string, q Search) ([]Report, error) {
	all, err := r.list(ctx, `SELECT `+reportColumns+` FROM consultation_reports
WHERE counselor_id = $1 ORDER BY created_at DESC`, counselorID)
	if err != nil {
		return nil, err
	}
	out := make([]Report, 0)
	for _, rep := range all {
		if matches(rep, q) {
			out = append(out, rep)
			if q.Limit > 0 && len(out) == q.Limit {
				break
			}
		}
	}
	return out, nil
}

func (r *PostgresRepo) ListInRange(ctx context.Context, counselorID string, from, to time.Time) ([]Report, error) {
	return r.list(ctx, `SELECT `+reportColumns+` FROM consultation_reports
WHERE counselor_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at DESC`, counselorID, from, to)
}

func (r *PostgresRepo) list(ctx context.Context, query string, args ...any) ([]Report, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reports: query: %w", err)
	}
	defer rows.Close()

	out := make([]Report, 0)
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		if rep, err = r.open(rep); err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) open(rep Report) (Report, error) {
	if r.cipher == nil {
		return rep, nil
	}
	return r.cipher.openReport(rep)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(s scanner) (Report, error) {
	var (
		rep  Report
		age  sql.NullInt64
		risk int
	)
	err := s.Scan(&rep.ID, &rep.CallID, &rep.CounselorID, &rep.Phone, &rep.ClientName, &age, &rep.ClientGender,
		&rep.Memo, &risk, &rep.CallReceivedAt, &rep.CreatedAt)
	if err != nil {
		return Report{}, err
	}
	if age.Valid {
		n := int(age.Int64)
		rep.ClientAge = &n
	}
	rep.RiskLevelRecorded = queue.RiskLevel(risk)
	return rep, nil
}
