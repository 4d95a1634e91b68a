package audit

import (
	"context"
	"database/sql"
	"time"

	"sales-dialer/pkg/utils"
)

// PostgresRepo assumes:
//
//	audit_events (id PRIMARY KEY, type, agent_id, actor_role NULL, ip_address NULL,
//	              campaign_id NULL, lead_id NULL, attempt_id NULL, message, metadata NULL, created_at)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, type, agent_id, actor_role, ip_address,
  campaign_id, lead_id, attempt_id, message, metadata, created_at
) VALUES (
  $1,$2,$3,NULLIF($4, ''),NULLIF($5, ''),
  NULLIF($6, ''),NULLIF($7, ''),NULLIF($8, ''),$9,NULLIF($10, ''),$11
)`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.Type, e.AgentID, e.ActorRole, e.IPAddress,
		e.CampaignID, e.LeadID, e.AttemptID, e.Message, e.Metadata, e.CreatedAt,
	)
	if utils.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *PostgresRepo) ListByAgent(ctx context.Context, agentID string, from, to time.Time) ([]Event, error) {
	const q = `
SELECT id, type, agent_id, COALESCE(actor_role, ''), COALESCE(ip_address, ''),
       COALESCE(campaign_id, ''), COALESCE(lead_id, ''), COALESCE(attempt_id, ''),
       message, COALESCE(metadata, ''), created_at
FROM audit_events
WHERE agent_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, agentID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var e Event
		if err := rows.Scan(
			&e.ID, &e.Type, &e.AgentID, &e.ActorRole, &e.IPAddress,
			&e.CampaignID, &e.LeadID, &e.AttemptID,
			&e.Message, &e.Metadata, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
