package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"sales-dialer/internal/audit"
	"sales-dialer/internal/calls"
	"sales-dialer/internal/leads"
)

func testStore(t *testing.T) Store {
	t.Helper()
	lr := leads.NewMemoryRepo()
	lr.PutCampaign(leads.Campaign{ID: "c1", Name: "Spring outreach", Kind: leads.CampaignKindCold})
	now := time.Now().UTC()
	lr.PutLead(leads.Lead{ID: "L1", CampaignID: "c1", Name: "Anna", Phone: "070-123 45 61", Status: leads.StatusNew, CreatedAt: now.Add(-time.Hour)})
	lr.PutLead(leads.Lead{ID: "L2", CampaignID: "c1", Name: "Bo", Phone: "n/a", Status: leads.StatusContacted, CreatedAt: now.Add(-30 * time.Minute)})
	lr.PutLead(leads.Lead{ID: "L3", CampaignID: "c1", Name: "Cy", Phone: "0701", Status: leads.StatusQualificationCallBooked, CreatedAt: now})
	lr.PutLead(leads.Lead{ID: "LC", CampaignID: "c1", Name: "Dee", Phone: "+46 8 555 010 10", Status: leads.StatusCallback, AssignedAgentID: "agent-1", CreatedAt: now})

	cr := calls.NewMemoryRepo()
	for i, d := range []int{42, 0} {
		if err := cr.Insert(context.Background(), calls.LogEntry{
			ID: "log-" + string(rune('a'+i)), AttemptID: "att-" + string(rune('a'+i)), AgentID: "agent-1",
			LeadID: "L1", Phone: "+46701234561", DurationSeconds: d, Direction: calls.DirectionOutbound,
			Status: calls.Classify(d), CreatedAt: now.Add(-time.Duration(i+1) * time.Minute),
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	return Store{Leads: lr, Calls: cr, Events: audit.NewMemoryRepo()}
}

func run(t *testing.T, s Store, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(func(ctx context.Context) (Store, func(), error) {
		return s, func() {}, nil
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestQueueCommand(t *testing.T) {
	out, err := run(t, testStore(t), "queue", "c1")
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	for _, want := range []string{"Spring outreach", "L1", "+46701234561", "L2", "not dialable", "LC"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "L3") {
		t.Fatalf("booked lead must not be queued:\n%s", out)
	}
}

func TestQueueCommandUnknownCampaign(t *testing.T) {
	_, err := run(t, testStore(t), "queue", "nope")
	if !errors.Is(err, leads.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCallbacksCommand(t *testing.T) {
	s := testStore(t)
	out, err := run(t, s, "callbacks", "--agent", "agent-1")
	if err != nil {
		t.Fatalf("callbacks: %v", err)
	}
	if !strings.Contains(out, "LC") || strings.Contains(out, "L1 ") {
		t.Fatalf("unexpected callbacks output:\n%s", out)
	}

	out, err = run(t, s, "callbacks", "--agent", "agent-2")
	if err != nil || !strings.Contains(out, "No callbacks for agent-2") {
		t.Fatalf("expected empty callbacks, got %v:\n%s", err, out)
	}

	if _, err := run(t, s, "callbacks"); err == nil {
		t.Fatalf("expected missing --agent error")
	}
}

func TestCallsCommand(t *testing.T) {
	out, err := run(t, testStore(t), "calls", "--agent", "agent-1", "--since", "1h")
	if err != nil {
		t.Fatalf("calls: %v", err)
	}
	if !strings.Contains(out, "Calls: 2  Completed: 1  No answer: 1") || !strings.Contains(out, "42s") {
		t.Fatalf("unexpected calls output:\n%s", out)
	}
}

func TestNormalizeCommand(t *testing.T) {
	opened := false
	cmd := NewRootCmd(func(ctx context.Context) (Store, func(), error) {
		opened = true
		return Store{}, func() {}, nil
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"normalize", "070-123 45 61", "+1 (555) 010-2000"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if opened {
		t.Fatalf("normalize must not open the store")
	}
	if !strings.Contains(out.String(), "+46701234561") || !strings.Contains(out.String(), "+15550102000") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}

	cmd.SetArgs([]string{"normalize", "   "})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for empty number")
	}
}
