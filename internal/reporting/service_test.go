package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"sales-dialer/internal/audit"
	"sales-dialer/internal/calls"
)

func logEntry(id, agent string, secs int, at time.Time) calls.LogEntry {
	return calls.LogEntry{
		ID:              id,
		AttemptID:       "a-" + id,
		AgentID:         agent,
		Phone:           "+46701234567",
		DurationSeconds: secs,
		Direction:       calls.DirectionOutbound,
		Status:          calls.Classify(secs),
		CreatedAt:       at,
	}
}

func TestReporting_CallsSummaryPerAgent(t *testing.T) {
	repo := calls.NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	for _, e := range []calls.LogEntry{
		logEntry("1", "agent-1", 30, now),
		logEntry("2", "agent-1", 0, now),
		logEntry("3", "agent-1", 60, now),
		logEntry("4", "agent-2", 50, now),
		logEntry("5", "agent-1", 90, now.Add(-2*time.Hour)),
	} {
		if err := repo.Insert(context.Background(), e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	svc := NewService(repo, nil)

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{AgentID: "agent-1", Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 3 || out.CompletedCalls != 2 || out.NoAnswerCalls != 1 {
		t.Fatalf("unexpected counts %+v", out)
	}
	if out.TotalDurationSeconds != 90 || out.AverageDurationSeconds != 30 {
		t.Fatalf("unexpected durations %+v", out)
	}
}

func TestReporting_OutcomeSummary(t *testing.T) {
	repo := audit.NewMemoryRepo()
	svc := audit.NewService(repo)
	ctx := context.Background()
	_ = svc.LogOutcomeSaved(ctx, "agent-1", "c1", "L1", "sale", "qualification_call_booked", "")
	_ = svc.LogOutcomeSaved(ctx, "agent-1", "c1", "L2", "voicemail", "contacted", "")
	_ = svc.LogOutcomeSaved(ctx, "agent-1", "c1", "L3", "voicemail", "contacted", "")
	_ = svc.LogOutcomeSaved(ctx, "agent-1", "c2", "L4", "sale", "qualification_call_booked", "")
	_ = svc.LogCallLogged(ctx, "agent-1", "L1", "a1", 12, "completed", "", "disconnected")
	_ = svc.LogOutcomeSaved(ctx, "agent-2", "c1", "L5", "sale", "qualification_call_booked", "")

	now := time.Now()
	out, err := NewService(nil, repo).OutcomeSummary(ctx, OutcomeSummaryRequest{
		AgentID:    "agent-1",
		CampaignID: "c1",
		Range:      TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Saved != 3 || out.Sales != 1 || out.ByOutcome["voicemail"] != 2 {
		t.Fatalf("unexpected summary %+v", out)
	}
	if out.ConversionRate < 0.33 || out.ConversionRate > 0.34 {
		t.Fatalf("unexpected conversion rate %f", out.ConversionRate)
	}
}

func TestReporting_InvalidRequests(t *testing.T) {
	svc := NewService(calls.NewMemoryRepo(), audit.NewMemoryRepo())
	now := time.Now()
	if _, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{Range: TimeRange{From: now, To: now.Add(time.Hour)}}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest without agent, got %v", err)
	}
	if _, err := svc.OutcomeSummary(context.Background(), OutcomeSummaryRequest{AgentID: "a", Range: TimeRange{From: now, To: now}}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for empty range, got %v", err)
	}
}
