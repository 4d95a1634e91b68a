package leads

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"sales-dialer/pkg/utils"
)

var (
	ErrNotFound        = errors.New("leads: not found")
	ErrInvalidArgument = errors.New("leads: invalid argument")
)

// Repository is the persistence contract the calling core depends on.
// Campaign CRUD lives elsewhere; this side only reads campaigns.
type Repository interface {
	GetCampaign(ctx context.Context, campaignID string) (Campaign, error)
	// ListActionable returns leads of a campaign in an actionable status,
	// oldest first, at most limit rows.
	ListActionable(ctx context.Context, campaignID string, limit int) ([]Lead, error)
	// ListCallbacks returns status=callback leads assigned to agentID, oldest first.
	ListCallbacks(ctx context.Context, agentID string, offset, limit int) ([]Lead, error)
	ApplyUpdate(ctx context.Context, u Update) (Lead, error)
}

// PostgresRepo assumes the following tables exist:
// - campaigns (id, name, kind, script, purpose)
// - leads (id, campaign_id, name, company, phone, status, assigned_agent_id, notes, created_at, updated_at)
//
// Suggested index: leads (campaign_id, status, created_at).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) GetCampaign(ctx context.Context, campaignID string) (Campaign, error) {
	if campaignID == "" {
		return Campaign{}, ErrInvalidArgument
	}
	const q = `
SELECT id, name, kind, COALESCE(script, ''), COALESCE(purpose, '')
FROM campaigns
WHERE id = $1
`
	var c Campaign
	if err := r.db.QueryRowContext(ctx, q, campaignID).Scan(&c.ID, &c.Name, &c.Kind, &c.Script, &c.Purpose); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		return Campaign{}, err
	}
	return c, nil
}

func (r *PostgresRepo) ListActionable(ctx context.Context, campaignID string, limit int) ([]Lead, error) {
	if campaignID == "" || limit <= 0 {
		return nil, ErrInvalidArgument
	}
	const q = `
SELECT id, campaign_id, name, COALESCE(company, ''), COALESCE(phone, ''), status,
       COALESCE(assigned_agent_id, ''), COALESCE(notes, ''), created_at, updated_at
FROM leads
WHERE campaign_id = $1 AND status = ANY(string_to_array($2, ','))
ORDER BY created_at ASC, id ASC
LIMIT $3
`
	rows, err := r.db.QueryContext(ctx, q, campaignID, statusList(ActionableStatuses), limit)
	if err != nil {
		return nil, err
	}
	return scanLeads(rows)
}

func (r *PostgresRepo) ListCallbacks(ctx context.Context, agentID string, offset, limit int) ([]Lead, error) {
	if agentID == "" || limit <= 0 || offset < 0 {
		return nil, ErrInvalidArgument
	}
	const q = `
SELECT id, campaign_id, name, COALESCE(company, ''), COALESCE(phone, ''), status,
       COALESCE(assigned_agent_id, ''), COALESCE(notes, ''), created_at, updated_at
FROM leads
WHERE status = $1 AND assigned_agent_id = $2
ORDER BY created_at ASC, id ASC
OFFSET $3
LIMIT $4
`
	rows, err := r.db.QueryContext(ctx, q, StatusCallback, agentID, offset, limit)
	if err != nil {
		return nil, err
	}
	return scanLeads(rows)
}

// ApplyUpdate locks the lead row so concurrent note appends never lose text.
func (r *PostgresRepo) ApplyUpdate(ctx context.Context, u Update) (Lead, error) {
	if u.LeadID == "" {
		return Lead{}, ErrInvalidArgument
	}

	var out Lead
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const sel = `
SELECT id, campaign_id, name, COALESCE(company, ''), COALESCE(phone, ''), status,
       COALESCE(assigned_agent_id, ''), COALESCE(notes, ''), created_at, updated_at
FROM leads
WHERE id = $1
FOR UPDATE
`
		var l Lead
		if err := tx.QueryRowContext(ctx, sel, u.LeadID).Scan(
			&l.ID,
			&l.CampaignID,
			&l.Name,
			&l.Company,
			&l.Phone,
			&l.Status,
			&l.AssignedAgentID,
			&l.Notes,
			&l.CreatedAt,
			&l.UpdatedAt,
		); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		l = u.Apply(l)

		const upd = `
UPDATE leads
SET status = $2, assigned_agent_id = NULLIF($3, ''), notes = $4, updated_at = $5
WHERE id = $1
`
		if _, err := tx.ExecContext(ctx, upd, l.ID, l.Status, l.AssignedAgentID, l.Notes, l.UpdatedAt); err != nil {
			return err
		}
		out = l
		return nil
	})
	return out, err
}

func scanLeads(rows *sql.Rows) ([]Lead, error) {
	defer rows.Close()
	out := make([]Lead, 0)
	for rows.Next() {
		var l Lead
		if err := rows.Scan(
			&l.ID,
			&l.CampaignID,
			&l.Name,
			&l.Company,
			&l.Phone,
			&l.Status,
			&l.AssignedAgentID,
			&l.Notes,
			&l.CreatedAt,
			&l.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func statusList(ss []Status) string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}
