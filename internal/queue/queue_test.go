package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"sales-dialer/internal/leads"
)

var base = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func seed(repo *leads.MemoryRepo, campaignID string, ids ...string) {
	for i, id := range ids {
		repo.PutLead(leads.Lead{
			ID:         id,
			CampaignID: campaignID,
			Name:       "Lead " + id,
			Phone:      "070-000 00 0" + fmt.Sprint(i),
			Status:     leads.StatusNew,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
	}
}

func ids(q *Queue) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.leads))
	for _, l := range q.leads {
		out = append(out, l.ID)
	}
	return out
}

func currentID(t *testing.T, q *Queue) string {
	t.Helper()
	l, ok := q.Current()
	if !ok {
		t.Fatalf("expected a current lead")
	}
	return l.ID
}

func loaded(t *testing.T, leadIDs ...string) *Queue {
	t.Helper()
	repo := leads.NewMemoryRepo()
	seed(repo, "c1", leadIDs...)
	q := New(repo, 200)
	if err := q.Load(context.Background(), "c1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	return q
}

func TestLoadFiltersAndOrders(t *testing.T) {
	repo := leads.NewMemoryRepo()
	seed(repo, "c1", "L1", "L2", "L3")
	seed(repo, "c2", "X1")
	repo.PutLead(leads.Lead{ID: "L0", CampaignID: "c1", Status: leads.StatusLeadLost, CreatedAt: base.Add(-time.Hour)})
	repo.PutLead(leads.Lead{ID: "L9", CampaignID: "c1", Status: leads.StatusCallback, CreatedAt: base.Add(time.Hour)})

	q := New(repo, 200)
	if err := q.Load(context.Background(), "c1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	got := ids(q)
	want := []string{"L1", "L2", "L3", "L9"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("want %v got %v", want, got)
	}
	if currentID(t, q) != "L1" {
		t.Fatalf("expected cursor at first lead")
	}
}

func TestLoadRespectsPageSize(t *testing.T) {
	repo := leads.NewMemoryRepo()
	seed(repo, "c1", "L1", "L2", "L3")
	q := New(repo, 2)
	if err := q.Load(context.Background(), "c1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 leads, got %d", q.Len())
	}
}

type failingSource struct{}

func (failingSource) ListActionable(context.Context, string, int) ([]leads.Lead, error) {
	return nil, errors.New("db down")
}

func TestLoadFailureKeepsQueue(t *testing.T) {
	q := loaded(t, "L1", "L2")
	q.Advance()
	q.src = failingSource{}
	if err := q.Load(context.Background(), "c2"); err == nil {
		t.Fatalf("expected error")
	}
	if q.CampaignID() != "c1" || currentID(t, q) != "L2" {
		t.Fatalf("expected queue untouched after failed load")
	}
	if err := q.Load(context.Background(), ""); !errors.Is(err, ErrNoCampaign) {
		t.Fatalf("expected ErrNoCampaign, got %v", err)
	}
}

func TestAdvanceToExhaustion(t *testing.T) {
	q := loaded(t, "L1", "L2", "L3")
	if !q.Advance() || currentID(t, q) != "L2" {
		t.Fatalf("expected L2")
	}
	if !q.Skip() || currentID(t, q) != "L3" {
		t.Fatalf("expected L3")
	}
	if q.Skip() {
		t.Fatalf("expected exhaustion")
	}
	if !q.Exhausted() {
		t.Fatalf("expected exhausted flag")
	}
	if _, ok := q.Current(); ok {
		t.Fatalf("expected no current lead when exhausted")
	}
	if q.Advance() {
		t.Fatalf("advance past exhaustion must stay false")
	}

	snap := q.Snapshot(5)
	if snap.Position < 0 || snap.Position >= snap.Length {
		t.Fatalf("cursor out of range: %+v", snap)
	}
	if !snap.Exhausted || snap.Current != nil {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestEmptyQueue(t *testing.T) {
	q := New(leads.NewMemoryRepo(), 10)
	if _, ok := q.Current(); ok {
		t.Fatalf("expected no current lead")
	}
	if q.Advance() || q.Exhausted() {
		t.Fatalf("empty queue must not advance or report exhaustion")
	}
}

func TestAdvanceFromOnlyMovesForCurrentLead(t *testing.T) {
	q := loaded(t, "L1", "L2", "L3")
	if !q.AdvanceFrom("L1") {
		t.Fatalf("expected advance from L1")
	}
	if q.AdvanceFrom("L1") {
		t.Fatalf("a late second save for L1 must not advance again")
	}
	if currentID(t, q) != "L2" {
		t.Fatalf("expected L2, got %s", currentID(t, q))
	}
}

func TestSpliceInsertsAtCursor(t *testing.T) {
	q := loaded(t, "L1", "L2", "L3")
	q.Advance()

	q.Splice(leads.Lead{ID: "CB1", Status: leads.StatusCallback})
	if currentID(t, q) != "CB1" {
		t.Fatalf("expected spliced lead current")
	}
	if got := fmt.Sprint(ids(q)); got != "[L1 CB1 L2 L3]" {
		t.Fatalf("unexpected order %s", got)
	}
	q.Advance()
	if currentID(t, q) != "L2" {
		t.Fatalf("expected to continue with L2")
	}
}

func TestSpliceExistingMovesCursor(t *testing.T) {
	q := loaded(t, "L1", "L2", "L3")
	q.Splice(leads.Lead{ID: "L3", Status: leads.StatusCallback})
	if currentID(t, q) != "L3" || q.Len() != 3 {
		t.Fatalf("expected cursor on existing L3 without duplication")
	}
}

func TestSpliceIntoExhaustedOrEmptyQueue(t *testing.T) {
	q := loaded(t, "L1")
	q.Advance()
	q.Splice(leads.Lead{ID: "CB1"})
	if q.Exhausted() || currentID(t, q) != "CB1" {
		t.Fatalf("expected splice to revive exhausted queue")
	}
	if got := fmt.Sprint(ids(q)); got != "[L1 CB1]" {
		t.Fatalf("unexpected order %s", got)
	}

	empty := New(leads.NewMemoryRepo(), 10)
	empty.Splice(leads.Lead{ID: "CB2"})
	if currentID(t, empty) != "CB2" {
		t.Fatalf("expected spliced lead in empty queue")
	}
}

func TestSnapshotUpcoming(t *testing.T) {
	q := loaded(t, "L1", "L2", "L3", "L4")
	snap := q.Snapshot(2)
	if snap.Current.ID != "L1" || len(snap.Upcoming) != 2 || snap.Upcoming[1].ID != "L3" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
