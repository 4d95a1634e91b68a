package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"sales-dialer/internal/leads"
)

var ErrNoCampaign = errors.New("queue: campaign id required")

// Source lists the actionable leads of a campaign in creation order.
type Source interface {
	ListActionable(ctx context.Context, campaignID string, limit int) ([]leads.Lead, error)
}

// Queue is an ordered, mutable traversal over a campaign's leads.
//
// Invariants:
// - 0 <= cursor < len(leads) whenever leads is non-empty.
// - Running past the end sets exhausted; the cursor never leaves range.
type Queue struct {
	src      Source
	pageSize int

	mu         sync.Mutex
	campaignID string
	leads      []leads.Lead
	cursor     int
	exhausted  bool
}

func New(src Source, pageSize int) *Queue {
	if pageSize <= 0 {
		pageSize = 200
	}
	return &Queue{src: src, pageSize: pageSize}
}

// Load fetches the campaign's actionable leads and replaces the queue.
// On error the current queue is left as it was.
func (q *Queue) Load(ctx context.Context, campaignID string) error {
	if campaignID == "" {
		return ErrNoCampaign
	}
	ls, err := q.src.ListActionable(ctx, campaignID, q.pageSize)
	if err != nil {
		return fmt.Errorf("queue: load campaign %s: %w", campaignID, err)
	}
	q.Replace(campaignID, ls)
	return nil
}

// Replace swaps in a new lead list and resets the cursor.
func (q *Queue) Replace(campaignID string, ls []leads.Lead) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.campaignID = campaignID
	q.leads = append([]leads.Lead(nil), ls...)
	q.cursor = 0
	q.exhausted = false
}

// Reset empties the queue, e.g. when the session ends.
func (q *Queue) Reset() {
	q.Replace("", nil)
}

func (q *Queue) CampaignID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.campaignID
}

// Current returns the lead at the cursor. ok is false when the queue is
// empty or exhausted.
func (q *Queue) Current() (leads.Lead, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.leads) == 0 || q.exhausted {
		return leads.Lead{}, false
	}
	return q.leads[q.cursor], true
}

// Advance moves to the next lead. It returns false once the queue is
// exhausted; further calls are no-ops.
func (q *Queue) Advance() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.advanceLocked()
}

// Skip moves on without recording anything for the current lead.
func (q *Queue) Skip() bool {
	return q.Advance()
}

// AdvanceFrom advances only if leadID is still current. A save that
// completes after the agent already moved on must not move the cursor again.
func (q *Queue) AdvanceFrom(leadID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.leads) == 0 || q.exhausted || q.leads[q.cursor].ID != leadID {
		return false
	}
	q.advanceLocked()
	return true
}

func (q *Queue) advanceLocked() bool {
	if len(q.leads) == 0 || q.exhausted {
		return false
	}
	if q.cursor+1 >= len(q.leads) {
		q.exhausted = true
		return false
	}
	q.cursor++
	return true
}

// Splice makes l current. A lead already queued is jumped to; otherwise it
// is inserted at the cursor, keeping the relative order of the rest.
func (q *Queue) Splice(l leads.Lead) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.leads {
		if q.leads[i].ID == l.ID {
			q.leads[i] = l
			q.cursor = i
			q.exhausted = false
			return
		}
	}
	at := q.cursor
	if q.exhausted || len(q.leads) == 0 {
		at = len(q.leads)
	}
	q.leads = append(q.leads, leads.Lead{})
	copy(q.leads[at+1:], q.leads[at:])
	q.leads[at] = l
	q.cursor = at
	q.exhausted = false
}

// Refresh replaces the stored copy of a queued lead after it was updated.
func (q *Queue) Refresh(l leads.Lead) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.leads {
		if q.leads[i].ID == l.ID {
			q.leads[i] = l
			return
		}
	}
}

func (q *Queue) Exhausted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.exhausted
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.leads)
}

type Snapshot struct {
	CampaignID string       `json:"campaign_id,omitempty"`
	Position   int          `json:"position"`
	Length     int          `json:"length"`
	Exhausted  bool         `json:"exhausted"`
	Current    *leads.Lead  `json:"current,omitempty"`
	Upcoming   []leads.Lead `json:"upcoming,omitempty"`
}

// Snapshot returns the cursor state plus up to n leads after the current one.
func (q *Queue) Snapshot(n int) Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Snapshot{
		CampaignID: q.campaignID,
		Position:   q.cursor,
		Length:     len(q.leads),
		Exhausted:  q.exhausted,
	}
	if len(q.leads) == 0 || q.exhausted {
		return s
	}
	cur := q.leads[q.cursor]
	s.Current = &cur
	end := q.cursor + 1 + n
	if end > len(q.leads) {
		end = len(q.leads)
	}
	if n > 0 && q.cursor+1 < end {
		s.Upcoming = append([]leads.Lead(nil), q.leads[q.cursor+1:end]...)
	}
	return s
}
