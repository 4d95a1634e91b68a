package calls

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	if Classify(0) != CallStatusNoAnswer {
		t.Fatalf("expected no_answer for zero duration")
	}
	if Classify(1) != CallStatusCompleted {
		t.Fatalf("expected completed for positive duration")
	}
}

func at(t time.Time) *time.Time { return &t }

func TestAttemptDuration(t *testing.T) {
	start := time.Unix(1700000000, 0).UTC()
	a := Attempt{DialedAt: start, EndedAt: at(start.Add(10 * time.Second))}
	if a.DurationSeconds() != 0 {
		t.Fatalf("expected zero duration when never connected")
	}
	a.ConnectedAt = at(start.Add(3 * time.Second))
	if got := a.DurationSeconds(); got != 7 {
		t.Fatalf("expected 7s, got %d", got)
	}
}

func TestAttemptJSONOmitsMissingTimestamps(t *testing.T) {
	start := time.Unix(1700000000, 0).UTC()
	b, err := json.Marshal(Attempt{ID: "a1", DialedAt: start})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), "connected_at") || strings.Contains(string(b), "ended_at") {
		t.Fatalf("expected no connected_at or ended_at before they happen, got %s", b)
	}

	b, err = json.Marshal(Attempt{ID: "a1", DialedAt: start, ConnectedAt: at(start.Add(time.Second))})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"connected_at":"2023-11-14T22:13:21Z"`) || strings.Contains(string(b), "ended_at") {
		t.Fatalf("unexpected json %s", b)
	}
}

func TestMemoryRepo_RejectsDuplicateAttempt(t *testing.T) {
	repo := NewMemoryRepo()
	e := LogEntry{ID: "e1", AttemptID: "a1", AgentID: "u", Direction: DirectionOutbound, Status: CallStatusNoAnswer}
	if err := repo.Insert(context.Background(), e); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	e.ID = "e2"
	if err := repo.Insert(context.Background(), e); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if len(repo.Entries()) != 1 {
		t.Fatalf("expected one entry")
	}
}

func TestMemoryRepo_RejectsNegativeDuration(t *testing.T) {
	repo := NewMemoryRepo()
	err := repo.Insert(context.Background(), LogEntry{ID: "e", AttemptID: "a", AgentID: "u", DurationSeconds: -1, Direction: DirectionOutbound, Status: CallStatusNoAnswer})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
