package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"sales-dialer/internal/callsession"
	"sales-dialer/internal/phone"
	"sales-dialer/internal/results"
	"sales-dialer/internal/telephony"
	"sales-dialer/internal/timer"
)

var ErrNoAgent = errors.New("session: agent id required")

// Env is shared by every session the registry creates.
type Env struct {
	Provider telephony.Provider
	Tokens   telephony.TokenSource
	Leads    LeadStore
	Calls    results.CallLog
	Audit    Auditor
	Guard    callsession.Guard

	Normalizer       phone.Normalizer
	Clock            timer.Clock
	SettleDelay      time.Duration
	TokenRefreshLead time.Duration
	QueuePageSize    int
	CallbackPageSize int
	Log              *slog.Logger
}

// Registry holds one Controller per agent. Each controller owns its own
// device, so an agent never shares a signaling client with another.
type Registry struct {
	env Env

	mu       sync.Mutex
	sessions map[string]*Controller
}

func NewRegistry(env Env) *Registry {
	if env.Clock == nil {
		env.Clock = timer.RealClock{}
	}
	if env.Log == nil {
		env.Log = slog.Default()
	}
	return &Registry{env: env, sessions: make(map[string]*Controller)}
}

// Get returns the agent's session, creating it on first use.
func (r *Registry) Get(agentID string) (*Controller, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, ErrNoAgent
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.sessions[agentID]; ok {
		return c, nil
	}

	adapter := telephony.NewAdapter(agentID, r.env.Tokens, r.env.Provider.NewDevice(agentID), telephony.AdapterOptions{
		Clock:       r.env.Clock,
		RefreshLead: r.env.TokenRefreshLead,
		Log:         r.env.Log,
	})
	c := New(Config{
		AgentID:          agentID,
		Normalizer:       r.env.Normalizer,
		Clock:            r.env.Clock,
		SettleDelay:      r.env.SettleDelay,
		QueuePageSize:    r.env.QueuePageSize,
		CallbackPageSize: r.env.CallbackPageSize,
		Log:              r.env.Log,
	}, Deps{
		Dialer: adapter,
		Leads:  r.env.Leads,
		Calls:  r.env.Calls,
		Audit:  r.env.Audit,
		Guard:  r.env.Guard,
	})
	r.sessions[agentID] = c
	r.env.Log.Info("session created", "agent_id", agentID, "provider", r.env.Provider.Name())
	return c, nil
}

// Lookup returns an existing session without creating one.
func (r *Registry) Lookup(agentID string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.sessions[agentID]
	return c, ok
}

// Close ends and forgets the agent's session.
func (r *Registry) Close(ctx context.Context, agentID string) error {
	r.mu.Lock()
	c, ok := r.sessions[agentID]
	delete(r.sessions, agentID)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return c.Close(ctx)
}

// CloseAll ends every session, e.g. on shutdown.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	all := make([]*Controller, 0, len(r.sessions))
	for id, c := range r.sessions {
		all = append(all, c)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	var errs []error
	for _, c := range all {
		if err := c.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
