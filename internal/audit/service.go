package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// Audit is internal-only; callers treat it as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var (
	ErrInvalidEvent = errors.New("audit: invalid event")
	ErrDuplicate    = errors.New("audit: duplicate event id")
)

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.AgentID == "" || e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

type outcomeMeta struct {
	Outcome string `json:"outcome"`
	Status  string `json:"status"`
	Notes   string `json:"notes,omitempty"`
}

// LogOutcomeSaved records a saved call outcome and the status it produced.
func (s *Service) LogOutcomeSaved(ctx context.Context, agentID, campaignID, leadID, outcome, status, notes string) error {
	meta, _ := json.Marshal(outcomeMeta{Outcome: outcome, Status: status, Notes: notes})
	return s.Append(ctx, Event{
		Type:       EventTypeOutcomeSaved,
		AgentID:    agentID,
		CampaignID: campaignID,
		LeadID:     leadID,
		Message:    "outcome " + outcome + " saved",
		Metadata:   string(meta),
	})
}

type callMeta struct {
	DurationSeconds int    `json:"duration_seconds"`
	Status          string `json:"status"`
	ProviderCallID  string `json:"provider_call_id,omitempty"`
	EndReason       string `json:"end_reason,omitempty"`
}

// LogCallLogged records that a call attempt reached the call log.
func (s *Service) LogCallLogged(ctx context.Context, agentID, leadID, attemptID string, durationSeconds int, status, providerCallID, endReason string) error {
	meta, _ := json.Marshal(callMeta{
		DurationSeconds: durationSeconds,
		Status:          status,
		ProviderCallID:  providerCallID,
		EndReason:       endReason,
	})
	return s.Append(ctx, Event{
		Type:      EventTypeCallLogged,
		AgentID:   agentID,
		LeadID:    leadID,
		AttemptID: attemptID,
		Message:   "call logged",
		Metadata:  string(meta),
	})
}

// LogCampaignSelected records an agent switching campaigns.
func (s *Service) LogCampaignSelected(ctx context.Context, agentID, campaignID string) error {
	return s.Append(ctx, Event{
		Type:       EventTypeCampaignSelected,
		AgentID:    agentID,
		CampaignID: campaignID,
		Message:    "campaign selected",
	})
}
