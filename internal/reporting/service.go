package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"sales-dialer/internal/audit"
	"sales-dialer/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// CallSource reads the call log. *calls.PostgresRepo and *calls.MemoryRepo satisfy it.
//
// Reports only read immutable sources (call log, audit trail); they never
// touch live session state.
type CallSource interface {
	ListByAgent(ctx context.Context, agentID string, from, to time.Time) ([]calls.LogEntry, error)
}

// EventSource reads the audit trail. *audit.PostgresRepo and *audit.MemoryRepo satisfy it.
type EventSource interface {
	ListByAgent(ctx context.Context, agentID string, from, to time.Time) ([]audit.Event, error)
}

type Service struct {
	calls  CallSource
	events EventSource
}

func NewService(callSrc CallSource, events EventSource) *Service {
	return &Service{calls: callSrc, events: events}
}

func validRange(r TimeRange) bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.AgentID == "" || !validRange(req.Range) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.calls == nil {
		return CallsSummary{}, errors.New("reporting: call source not configured")
	}

	rows, err := s.calls.ListByAgent(ctx, req.AgentID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{AgentID: req.AgentID}
	for _, e := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += e.DurationSeconds
		switch e.Status {
		case calls.CallStatusCompleted:
			out.CompletedCalls++
		case calls.CallStatusNoAnswer:
			out.NoAnswerCalls++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
		out.ConnectionRate = float64(out.CompletedCalls) / float64(out.TotalCalls)
	}
	return out, nil
}

func (s *Service) OutcomeSummary(ctx context.Context, req OutcomeSummaryRequest) (OutcomeSummary, error) {
	if req.AgentID == "" || !validRange(req.Range) {
		return OutcomeSummary{}, ErrInvalidRequest
	}
	if s.events == nil {
		return OutcomeSummary{}, errors.New("reporting: event source not configured")
	}

	events, err := s.events.ListByAgent(ctx, req.AgentID, req.Range.From, req.Range.To)
	if err != nil {
		return OutcomeSummary{}, err
	}

	out := OutcomeSummary{AgentID: req.AgentID, CampaignID: req.CampaignID, ByOutcome: map[string]int{}}
	for _, ev := range events {
		if ev.Type != audit.EventTypeOutcomeSaved {
			continue
		}
		if req.CampaignID != "" && ev.CampaignID != req.CampaignID {
			continue
		}
		var meta struct {
			Outcome string `json:"outcome"`
		}
		if err := json.Unmarshal([]byte(ev.Metadata), &meta); err != nil || meta.Outcome == "" {
			continue
		}
		out.Saved++
		out.ByOutcome[meta.Outcome]++
	}
	out.Sales = out.ByOutcome["sale"]
	if out.Saved > 0 {
		out.ConversionRate = float64(out.Sales) / float64(out.Saved)
	}
	return out, nil
}
