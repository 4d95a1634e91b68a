package leads

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory repository for tests and the local simulator.
type MemoryRepo struct {
	mu        sync.Mutex
	campaigns map[string]Campaign
	leads     map[string]Lead

	// FailUpdates makes ApplyUpdate return this error when set.
	FailUpdates error
	updates     int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{campaigns: map[string]Campaign{}, leads: map[string]Lead{}}
}

func (r *MemoryRepo) PutCampaign(c Campaign) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[c.ID] = c
}

func (r *MemoryRepo) PutLead(l Lead) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leads[l.ID] = l
}

func (r *MemoryRepo) Lead(id string) (Lead, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	return l, ok
}

// Updates reports how many updates were applied successfully.
func (r *MemoryRepo) Updates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

// SetFailUpdates makes subsequent updates fail with err; nil restores them.
func (r *MemoryRepo) SetFailUpdates(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FailUpdates = err
}

func (r *MemoryRepo) GetCampaign(ctx context.Context, campaignID string) (Campaign, error) {
	if campaignID == "" {
		return Campaign{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[campaignID]
	if !ok {
		return Campaign{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) ListActionable(ctx context.Context, campaignID string, limit int) ([]Lead, error) {
	if campaignID == "" || limit <= 0 {
		return nil, ErrInvalidArgument
	}
	return r.list(func(l Lead) bool {
		return l.CampaignID == campaignID && l.Status.Actionable()
	}, 0, limit), nil
}

func (r *MemoryRepo) ListCallbacks(ctx context.Context, agentID string, offset, limit int) ([]Lead, error) {
	if agentID == "" || limit <= 0 || offset < 0 {
		return nil, ErrInvalidArgument
	}
	return r.list(func(l Lead) bool {
		return l.Status == StatusCallback && l.AssignedAgentID == agentID
	}, offset, limit), nil
}

func (r *MemoryRepo) ApplyUpdate(ctx context.Context, u Update) (Lead, error) {
	if u.LeadID == "" {
		return Lead{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailUpdates != nil {
		return Lead{}, r.FailUpdates
	}
	l, ok := r.leads[u.LeadID]
	if !ok {
		return Lead{}, ErrNotFound
	}
	l = u.Apply(l)
	r.leads[l.ID] = l
	r.updates++
	return l, nil
}

func (r *MemoryRepo) list(keep func(Lead) bool, offset, limit int) []Lead {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Lead, 0)
	for _, l := range r.leads {
		if keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if offset >= len(out) {
		return []Lead{}
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
