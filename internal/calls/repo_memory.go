package calls

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an append-only in-memory call log for tests and local runs.
type MemoryRepo struct {
	mu       sync.Mutex
	entries  []LogEntry
	attempts map[string]struct{}

	// FailInserts makes Insert return this error when set.
	FailInserts error
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{attempts: map[string]struct{}{}} }

func (r *MemoryRepo) Insert(ctx context.Context, e LogEntry) error {
	if err := validate(e); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailInserts != nil {
		return r.FailInserts
	}
	if _, ok := r.attempts[e.AttemptID]; ok {
		return ErrDuplicate
	}
	r.attempts[e.AttemptID] = struct{}{}
	r.entries = append(r.entries, e)
	return nil
}

// SetFailInserts makes subsequent inserts fail with err; nil restores them.
func (r *MemoryRepo) SetFailInserts(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FailInserts = err
}

func (r *MemoryRepo) ListByAgent(ctx context.Context, agentID string, from, to time.Time) ([]LogEntry, error) {
	if agentID == "" {
		return nil, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogEntry, 0)
	for _, e := range r.entries {
		if e.AgentID != agentID {
			continue
		}
		if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *MemoryRepo) Entries() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}
