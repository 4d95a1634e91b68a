package results

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"sales-dialer/internal/calls"
	"sales-dialer/internal/leads"
	"sales-dialer/internal/timer"
)

var (
	ErrPersistence  = errors.New("results: persistence failed")
	ErrSaveInFlight = errors.New("results: save already in flight for lead")
	ErrNoLead       = errors.New("results: lead required")
)

// LeadStore applies partial lead updates.
type LeadStore interface {
	ApplyUpdate(ctx context.Context, u leads.Update) (leads.Lead, error)
}

// CallLog is the insert-only call log.
type CallLog interface {
	Insert(ctx context.Context, e calls.LogEntry) error
}

// Advancer moves the queue past a lead once its outcome is saved.
type Advancer interface {
	AdvanceFrom(leadID string) bool
}

// Auditor receives best-effort audit records. *audit.Service satisfies it.
type Auditor interface {
	LogOutcomeSaved(ctx context.Context, agentID, campaignID, leadID, outcome, status, notes string) error
	LogCallLogged(ctx context.Context, agentID, leadID, attemptID string, durationSeconds int, status, providerCallID, endReason string) error
}

type Options struct {
	Clock timer.Clock
	Audit Auditor
	Log   *slog.Logger
	NewID func() string
}

// SaveResult reports what a successful save did.
type SaveResult struct {
	Lead     leads.Lead `json:"lead"`
	Outcome  Outcome    `json:"outcome"`
	Advanced bool       `json:"advanced"`
}

// Recorder turns call ends and agent outcomes into persisted records.
//
// Rules:
// - A call attempt is logged at most once, whatever reports its end.
// - A lead has at most one save in flight; stats and the queue only move
//   after the lead update is acknowledged.
type Recorder struct {
	agentID string
	leads   LeadStore
	calls   CallLog
	queue   Advancer
	audit   Auditor
	clock   timer.Clock
	log     *slog.Logger
	newID   func() string

	mu sync.Mutex
	// epoch counts ResetStats calls. Writes that started under an older
	// epoch persist normally but are not counted.
	epoch    uint64
	stats    Stats
	logged   map[string]struct{}
	unlogged map[string]calls.Attempt
	pending  map[string]Outcome
}

func NewRecorder(agentID string, leadStore LeadStore, callLog CallLog, queue Advancer, opts Options) *Recorder {
	if opts.Clock == nil {
		opts.Clock = timer.RealClock{}
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Recorder{
		agentID:  agentID,
		leads:    leadStore,
		calls:    callLog,
		queue:    queue,
		audit:    opts.Audit,
		clock:    opts.Clock,
		log:      opts.Log.With("agent_id", agentID),
		newID:    opts.NewID,
		logged:   make(map[string]struct{}),
		unlogged: make(map[string]calls.Attempt),
		pending:  make(map[string]Outcome),
	}
}

// OnCallEnded writes the call log entry for an ended attempt. Repeated
// calls for the same attempt are no-ops. A failed write is kept for an
// explicit RetryUnlogged.
func (r *Recorder) OnCallEnded(ctx context.Context, a calls.Attempt) error {
	r.mu.Lock()
	if _, done := r.logged[a.ID]; done {
		r.mu.Unlock()
		return nil
	}
	r.logged[a.ID] = struct{}{}
	r.mu.Unlock()

	entry := r.entryFor(a)
	err := r.calls.Insert(ctx, entry)
	if errors.Is(err, calls.ErrDuplicate) {
		err = nil
	}

	r.mu.Lock()
	if err != nil {
		delete(r.logged, a.ID)
		r.unlogged[a.ID] = a
		r.mu.Unlock()
		r.log.Error("call log write failed", "attempt_id", a.ID, "lead_id", a.LeadID, "err", err)
		return fmt.Errorf("%w: call log: %v", ErrPersistence, err)
	}
	delete(r.unlogged, a.ID)
	if a.StatsEpoch == r.epoch {
		r.stats.TotalCalls++
	}
	r.mu.Unlock()

	r.log.Info("call logged",
		"attempt_id", a.ID,
		"lead_id", a.LeadID,
		"duration_seconds", entry.DurationSeconds,
		"status", string(entry.Status),
	)
	if r.audit != nil {
		if err := r.audit.LogCallLogged(ctx, r.agentID, a.LeadID, a.ID, entry.DurationSeconds, string(entry.Status), entry.ProviderCallID, a.EndReason); err != nil {
			r.log.Warn("audit call_logged failed", "attempt_id", a.ID, "err", err)
		}
	}
	return nil
}

func (r *Recorder) entryFor(a calls.Attempt) calls.LogEntry {
	secs := a.DurationSeconds()
	created := r.clock.Now()
	if a.Ended() {
		created = *a.EndedAt
	}
	return calls.LogEntry{
		ID:              r.newID(),
		AttemptID:       a.ID,
		AgentID:         a.AgentID,
		LeadID:          a.LeadID,
		Phone:           a.Dialable,
		CountryPrefix:   a.CountryPrefix,
		DurationSeconds: secs,
		Direction:       calls.DirectionOutbound,
		Status:          calls.Classify(secs),
		ProviderCallID:  a.ProviderCallID,
		CreatedAt:       created.UTC(),
	}
}

// RetryUnlogged retries call log writes that failed earlier. It returns
// how many are still unsaved.
func (r *Recorder) RetryUnlogged(ctx context.Context) (int, error) {
	r.mu.Lock()
	todo := make([]calls.Attempt, 0, len(r.unlogged))
	for _, a := range r.unlogged {
		todo = append(todo, a)
	}
	r.mu.Unlock()

	var firstErr error
	for _, a := range todo {
		if err := r.OnCallEnded(ctx, a); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return r.Unlogged(), firstErr
}

func (r *Recorder) Unlogged() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.unlogged)
}

// SaveOutcome applies the outcome's status, appends a timestamped note and
// takes ownership of the lead for the agent. Stats and the queue move only
// after the update is persisted; on failure nothing moves and the save can
// be retried.
func (r *Recorder) SaveOutcome(ctx context.Context, lead leads.Lead, outcome Outcome, notes string) (SaveResult, error) {
	if lead.ID == "" {
		return SaveResult{}, ErrNoLead
	}
	if outcome == "" {
		return SaveResult{}, ErrNoOutcome
	}
	status, ok := outcome.LeadStatus()
	if !ok {
		return SaveResult{}, ErrUnknownOutcome
	}

	r.mu.Lock()
	if _, busy := r.pending[lead.ID]; busy {
		r.mu.Unlock()
		return SaveResult{}, ErrSaveInFlight
	}
	r.pending[lead.ID] = outcome
	epoch := r.epoch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, lead.ID)
		r.mu.Unlock()
	}()

	now := r.clock.Now()
	updated, err := r.leads.ApplyUpdate(ctx, leads.Update{
		LeadID:          lead.ID,
		Status:          status,
		AppendNote:      leads.NoteEntry(now, string(outcome), notes),
		AssignedAgentID: r.agentID,
		UpdatedAt:       now.UTC(),
	})
	if err != nil {
		r.log.Error("save outcome failed", "lead_id", lead.ID, "outcome", string(outcome), "err", err)
		return SaveResult{}, fmt.Errorf("%w: lead update: %v", ErrPersistence, err)
	}

	r.mu.Lock()
	if epoch == r.epoch {
		r.stats.countOutcome(outcome)
	}
	r.mu.Unlock()

	if r.audit != nil {
		if err := r.audit.LogOutcomeSaved(ctx, r.agentID, lead.CampaignID, lead.ID, string(outcome), string(status), notes); err != nil {
			r.log.Warn("audit outcome_saved failed", "lead_id", lead.ID, "err", err)
		}
	}

	advanced := false
	if r.queue != nil {
		advanced = r.queue.AdvanceFrom(lead.ID)
	}
	r.log.Info("outcome saved", "lead_id", lead.ID, "outcome", string(outcome), "status", string(status), "advanced", advanced)
	return SaveResult{Lead: updated, Outcome: outcome, Advanced: advanced}, nil
}

// Pending reports whether a save for leadID is in flight.
func (r *Recorder) Pending(leadID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[leadID]
	return ok
}

func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// ResetStats zeroes the counters for a new campaign and starts a new epoch.
func (r *Recorder) ResetStats() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch++
	r.stats = Stats{}
}

// Epoch is stamped on attempts at dial time; see calls.Attempt.StatsEpoch.
func (r *Recorder) Epoch() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}
