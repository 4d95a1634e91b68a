package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrInvalidArgument = errors.New("calls: invalid argument")
	ErrDuplicate       = errors.New("calls: attempt already logged")
)

// Repository is insert-only for log entries. No Update/Delete methods exist.
type Repository interface {
	Insert(ctx context.Context, e LogEntry) error
	ListByAgent(ctx context.Context, agentID string, from, to time.Time) ([]LogEntry, error)
}

// PostgresRepo assumes:
//
//	call_logs (id, attempt_id UNIQUE, agent_id, lead_id NULL, phone, country_prefix,
//	           duration, direction, status, provider_call_id NULL, created_at)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Insert(ctx context.Context, e LogEntry) error {
	if err := validate(e); err != nil {
		return err
	}
	const q = `
INSERT INTO call_logs (
  id, attempt_id, agent_id, lead_id, phone, country_prefix,
  duration, direction, status, provider_call_id, created_at
) VALUES (
  $1,$2,$3,NULLIF($4, ''),$5,$6,$7,$8,$9,NULLIF($10, ''),$11
)
ON CONFLICT (attempt_id) DO NOTHING
`
	res, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.AttemptID,
		e.AgentID,
		e.LeadID,
		e.Phone,
		e.CountryPrefix,
		e.DurationSeconds,
		e.Direction,
		e.Status,
		e.ProviderCallID,
		e.CreatedAt,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (r *PostgresRepo) ListByAgent(ctx context.Context, agentID string, from, to time.Time) ([]LogEntry, error) {
	if agentID == "" {
		return nil, ErrInvalidArgument
	}
	const q = `
SELECT id, attempt_id, agent_id, COALESCE(lead_id, ''), phone, COALESCE(country_prefix, ''),
       duration, direction, status, COALESCE(provider_call_id, ''), created_at
FROM call_logs
WHERE agent_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, agentID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]LogEntry, 0)
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(
			&e.ID,
			&e.AttemptID,
			&e.AgentID,
			&e.LeadID,
			&e.Phone,
			&e.CountryPrefix,
			&e.DurationSeconds,
			&e.Direction,
			&e.Status,
			&e.ProviderCallID,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func validate(e LogEntry) error {
	if e.ID == "" || e.AttemptID == "" || e.AgentID == "" {
		return ErrInvalidArgument
	}
	if e.DurationSeconds < 0 {
		return ErrInvalidArgument
	}
	if e.Direction == "" || e.Status == "" {
		return ErrInvalidArgument
	}
	return nil
}
