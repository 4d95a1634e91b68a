package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestService_AppendRequiresAgentAndType(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{Type: EventTypeCallLogged}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if err := svc.Append(context.Background(), Event{AgentID: "a1"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestService_LogOutcomeSaved(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogOutcomeSaved(context.Background(), "a1", "c1", "L1", "sale", "qualification_call_booked", "demo booked"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	e := evs[0]
	if e.Type != EventTypeOutcomeSaved || e.LeadID != "L1" || e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("unexpected event %+v", e)
	}
	var meta outcomeMeta
	if err := json.Unmarshal([]byte(e.Metadata), &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.Status != "qualification_call_booked" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
}

func TestService_LogCallLogged(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	if err := svc.LogCallLogged(context.Background(), "a1", "L1", "att-1", 42, "completed", "CA1", "disconnected"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	evs := repo.Events()
	if len(evs) != 1 || evs[0].AttemptID != "att-1" || evs[0].Type != EventTypeCallLogged {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestMemoryRepo_RejectsDuplicateIDs(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	e := Event{ID: "fixed", AgentID: "a1", Type: EventTypeCampaignSelected}
	if err := svc.Append(context.Background(), e); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := svc.Append(context.Background(), e); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}
