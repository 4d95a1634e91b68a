package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"sales-dialer/internal/calls"
	"sales-dialer/internal/callsession"
	"sales-dialer/internal/leads"
	"sales-dialer/internal/phone"
	"sales-dialer/internal/queue"
	"sales-dialer/internal/results"
	"sales-dialer/internal/timer"
	"sales-dialer/pkg/logger"
)

var (
	ErrNoLead     = errors.New("session: no current lead")
	ErrNoPhone    = errors.New("session: lead has no phone number")
	ErrNoCampaign = errors.New("session: no campaign selected")
	ErrCallActive = callsession.ErrCallActive
	ErrClosed     = errors.New("session: closed")
	ErrDraftLead  = errors.New("session: draft belongs to another lead")
	errSlowReader = errors.New("session: subscriber too slow")
)

// NoticePersistenceError is raised when a call log or lead update could
// not be written. It is transient; the write stays retryable.
const NoticePersistenceError callsession.NoticeKind = "persistence_error"

// LeadStore is everything the session reads and writes on leads.
// *leads.PostgresRepo and *leads.MemoryRepo satisfy it.
type LeadStore interface {
	GetCampaign(ctx context.Context, campaignID string) (leads.Campaign, error)
	queue.Source
	queue.CallbackSource
	results.LeadStore
}

// Auditor records session-level audit events. *audit.Service satisfies it.
type Auditor interface {
	results.Auditor
	LogCampaignSelected(ctx context.Context, agentID, campaignID string) error
}

type Config struct {
	AgentID          string
	Normalizer       phone.Normalizer
	Clock            timer.Clock
	SettleDelay      time.Duration
	QueuePageSize    int
	CallbackPageSize int
	// UpcomingInSnapshot is how many leads after the current one a snapshot carries.
	UpcomingInSnapshot int
	Log                *slog.Logger
}

type Deps struct {
	Dialer callsession.Dialer
	Leads  LeadStore
	Calls  results.CallLog
	Audit  Auditor
	Guard  callsession.Guard
}

// Draft is the outcome and notes the agent has picked for the current lead
// but not saved yet.
type Draft struct {
	LeadID  string          `json:"lead_id,omitempty"`
	Outcome results.Outcome `json:"outcome,omitempty"`
	Notes   string          `json:"notes,omitempty"`
}

type Snapshot struct {
	AgentID      string               `json:"agent_id"`
	Campaign     *leads.Campaign      `json:"campaign,omitempty"`
	Call         callsession.Snapshot `json:"call"`
	Queue        queue.Snapshot       `json:"queue"`
	Stats        results.Stats        `json:"stats"`
	Draft        Draft                `json:"draft"`
	CanStartCall bool                 `json:"can_start_call"`
	SavePending  bool                 `json:"save_pending"`
	Unlogged     int                  `json:"unlogged"`
	// Banner is the last persistent notice, cleared by a successful start.
	Banner *callsession.Notice `json:"banner,omitempty"`
}

// Update is one message on a subscription: either a fresh snapshot or a notice.
type Update struct {
	Snapshot *Snapshot           `json:"snapshot,omitempty"`
	Notice   *callsession.Notice `json:"notice,omitempty"`
}

// Controller is one agent's calling session. It exclusively owns the call
// machine, the queues and the recorder; callers only reach them through
// its methods.
type Controller struct {
	agentID    string
	normalizer phone.Normalizer
	leads      LeadStore
	audit      Auditor
	upcoming   int
	clock      timer.Clock
	log        *slog.Logger

	machine   *callsession.Machine
	queue     *queue.Queue
	callbacks *queue.CallbackQueue
	recorder  *results.Recorder

	mu       sync.Mutex
	campaign *leads.Campaign
	draft    Draft
	banner   *callsession.Notice
	closed   bool

	subMu  sync.Mutex
	subs   map[int]chan Update
	nextID int
}

func New(cfg Config, deps Deps) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = timer.RealClock{}
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.UpcomingInSnapshot <= 0 {
		cfg.UpcomingInSnapshot = 5
	}
	c := &Controller{
		agentID:    cfg.AgentID,
		normalizer: cfg.Normalizer,
		leads:      deps.Leads,
		audit:      deps.Audit,
		upcoming:   cfg.UpcomingInSnapshot,
		clock:      cfg.Clock,
		log:        logger.ForAgent(cfg.Log, cfg.AgentID),
		subs:       make(map[int]chan Update),
	}
	c.queue = queue.New(deps.Leads, cfg.QueuePageSize)
	c.callbacks = queue.NewCallbackQueue(deps.Leads, cfg.AgentID, cfg.CallbackPageSize)

	var auditor results.Auditor
	if deps.Audit != nil {
		auditor = deps.Audit
	}
	c.recorder = results.NewRecorder(cfg.AgentID, deps.Leads, deps.Calls, c.queue, results.Options{
		Clock: cfg.Clock,
		Audit: auditor,
		Log:   cfg.Log,
	})
	c.machine = callsession.New(cfg.AgentID, deps.Dialer, callsession.Options{
		Clock:       cfg.Clock,
		SettleDelay: cfg.SettleDelay,
		Guard:       deps.Guard,
		Log:         cfg.Log,
		OnCallEnded: c.onCallEnded,
		OnChange:    func(callsession.Snapshot) { c.publishSnapshot() },
		OnNotice:    c.onNotice,
	})
	return c
}

func (c *Controller) AgentID() string { return c.agentID }

// Start registers the agent's device. From error it retries registration.
func (c *Controller) Start(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	err := c.machine.Initialize(ctx)
	if err == nil {
		c.mu.Lock()
		c.banner = nil
		c.mu.Unlock()
	}
	return err
}

// Retry re-enters initialization after a registration error.
func (c *Controller) Retry(ctx context.Context) error {
	return c.Start(ctx)
}

// SelectCampaign loads the campaign's queue and starts fresh counters.
// It is refused while a call is live; on a load failure the previous
// campaign stays selected. Call logs and saves still in flight from the
// previous campaign are persisted but not counted.
func (c *Controller) SelectCampaign(ctx context.Context, campaignID string) (Snapshot, error) {
	if c.isClosed() {
		return Snapshot{}, ErrClosed
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return Snapshot{}, ErrNoCampaign
	}
	if c.machine.Phase().InCall() {
		return Snapshot{}, ErrCallActive
	}
	camp, err := c.leads.GetCampaign(ctx, campaignID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("session: campaign %s: %w", campaignID, err)
	}
	if err := c.queue.Load(ctx, campaignID); err != nil {
		return Snapshot{}, err
	}
	c.recorder.ResetStats()

	c.mu.Lock()
	c.campaign = &camp
	c.draft = Draft{}
	c.mu.Unlock()

	c.log.Info("campaign selected", "campaign_id", campaignID, "leads", c.queue.Len())
	if c.audit != nil {
		if err := c.audit.LogCampaignSelected(ctx, c.agentID, campaignID); err != nil {
			c.log.Warn("audit campaign_selected failed", "campaign_id", campaignID, "err", err)
		}
	}
	return c.publishSnapshot(), nil
}

// StartCall dials the current lead.
func (c *Controller) StartCall(ctx context.Context) (calls.Attempt, error) {
	if c.isClosed() {
		return calls.Attempt{}, ErrClosed
	}
	lead, ok := c.queue.Current()
	if !ok {
		return calls.Attempt{}, ErrNoLead
	}
	if strings.TrimSpace(lead.Phone) == "" {
		return calls.Attempt{}, ErrNoPhone
	}
	dialable, err := c.normalizer.Normalize(lead.Phone)
	if err != nil {
		if errors.Is(err, phone.ErrEmpty) {
			return calls.Attempt{}, ErrNoPhone
		}
		return calls.Attempt{}, fmt.Errorf("session: lead %s: %w", lead.ID, err)
	}
	prefix, _ := c.normalizer.CountryPrefix(dialable)
	return c.machine.Dial(ctx, callsession.DialRequest{
		LeadID:        lead.ID,
		Phone:         lead.Phone,
		Dialable:      dialable,
		CountryPrefix: prefix,
		StatsEpoch:    c.recorder.Epoch(),
	})
}

func (c *Controller) Hangup(ctx context.Context) error {
	return c.machine.Hangup(ctx)
}

func (c *Controller) SetMuted(ctx context.Context, muted bool) error {
	return c.machine.SetMuted(ctx, muted)
}

// Skip moves past the current lead without recording anything. It
// reports whether a next lead exists.
func (c *Controller) Skip() (bool, error) {
	if c.isClosed() {
		return false, ErrClosed
	}
	if c.machine.Phase().InCall() {
		return false, ErrCallActive
	}
	if _, ok := c.queue.Current(); !ok {
		return false, ErrNoLead
	}
	more := c.queue.Skip()
	c.mu.Lock()
	c.draft = Draft{}
	c.mu.Unlock()
	c.publishSnapshot()
	return more, nil
}

// SetDraft stores the agent's outcome choice and notes for the current lead.
// An empty outcome keeps notes without a selection.
func (c *Controller) SetDraft(outcome, notes string) (Draft, error) {
	lead, ok := c.queue.Current()
	if !ok {
		return Draft{}, ErrNoLead
	}
	d := Draft{LeadID: lead.ID, Notes: notes}
	if strings.TrimSpace(outcome) != "" {
		o, err := results.ParseOutcome(outcome)
		if err != nil {
			return Draft{}, err
		}
		d.Outcome = o
	}
	c.mu.Lock()
	c.draft = d
	c.mu.Unlock()
	c.publishSnapshot()
	return d, nil
}

// SaveOutcome persists the draft for the current lead and advances the
// queue. Validation failures change nothing.
func (c *Controller) SaveOutcome(ctx context.Context) (results.SaveResult, error) {
	if c.isClosed() {
		return results.SaveResult{}, ErrClosed
	}
	if c.machine.Phase().InCall() {
		return results.SaveResult{}, ErrCallActive
	}
	lead, ok := c.queue.Current()
	if !ok {
		return results.SaveResult{}, ErrNoLead
	}
	c.mu.Lock()
	d := c.draft
	c.mu.Unlock()
	if d.LeadID != "" && d.LeadID != lead.ID {
		return results.SaveResult{}, ErrDraftLead
	}
	if d.Outcome == "" {
		return results.SaveResult{}, results.ErrNoOutcome
	}

	res, err := c.recorder.SaveOutcome(ctx, lead, d.Outcome, d.Notes)
	if err != nil {
		if errors.Is(err, results.ErrPersistence) {
			c.onNotice(callsession.Notice{Kind: NoticePersistenceError, Message: err.Error(), At: c.clock.Now()})
		}
		return results.SaveResult{}, err
	}

	if res.Lead.Status != leads.StatusCallback {
		c.callbacks.Drop(lead.ID)
	}
	if !res.Advanced {
		c.queue.Refresh(res.Lead)
	}
	c.mu.Lock()
	if c.draft.LeadID == lead.ID || c.draft.LeadID == "" {
		c.draft = Draft{}
	}
	c.mu.Unlock()
	c.publishSnapshot()
	return res, nil
}

// Callbacks loads a page of the agent's callback leads.
func (c *Controller) Callbacks(ctx context.Context, page int) (queue.CallbackPage, error) {
	return c.callbacks.LoadPage(ctx, page)
}

// SelectCallback makes a lead from the loaded callback page current,
// splicing it into the main queue when it is not already there.
func (c *Controller) SelectCallback(ctx context.Context, leadID string) (leads.Lead, error) {
	if c.isClosed() {
		return leads.Lead{}, ErrClosed
	}
	if c.machine.Phase().InCall() {
		return leads.Lead{}, ErrCallActive
	}
	l, err := c.callbacks.Find(leadID)
	if err != nil {
		return leads.Lead{}, err
	}
	c.queue.Splice(l)
	c.mu.Lock()
	c.draft = Draft{}
	c.mu.Unlock()
	c.log.Info("callback lead selected", "lead_id", l.ID)
	c.publishSnapshot()
	return l, nil
}

// RetryUnlogged retries call log writes that failed earlier.
func (c *Controller) RetryUnlogged(ctx context.Context) (int, error) {
	left, err := c.recorder.RetryUnlogged(ctx)
	c.publishSnapshot()
	return left, err
}

func (c *Controller) Snapshot() Snapshot {
	call := c.machine.Snapshot()
	q := c.queue.Snapshot(c.upcoming)

	c.mu.Lock()
	s := Snapshot{
		AgentID: c.agentID,
		Call:    call,
		Queue:   q,
		Draft:   c.draft,
	}
	if c.campaign != nil {
		camp := *c.campaign
		s.Campaign = &camp
	}
	if c.banner != nil {
		b := *c.banner
		s.Banner = &b
	}
	closed := c.closed
	c.mu.Unlock()

	s.Stats = c.recorder.Stats()
	s.Unlogged = c.recorder.Unlogged()
	if q.Current != nil {
		s.SavePending = c.recorder.Pending(q.Current.ID)
		s.CanStartCall = call.CanDial && !closed && strings.TrimSpace(q.Current.Phone) != ""
	}
	return s
}

// Subscribe returns a channel of updates. A subscriber that falls behind
// by more than buffer messages is dropped and its channel closed.
func (c *Controller) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Update, buffer)
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	if c.subs == nil {
		close(ch)
		c.subMu.Unlock()
		return ch, func() {}
	}
	c.subs[id] = ch
	c.subMu.Unlock()

	return ch, func() { c.unsubscribe(id) }
}

// Close ends any live call (it is still logged), tears the device down
// and closes every subscription.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.machine.Close(ctx)
	c.queue.Reset()

	c.subMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subs = nil
	c.subMu.Unlock()

	c.log.Info("session closed")
	return err
}

func (c *Controller) onCallEnded(a calls.Attempt) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.recorder.OnCallEnded(ctx, a); err != nil {
		c.onNotice(callsession.Notice{Kind: NoticePersistenceError, Message: err.Error(), At: c.clock.Now()})
	}
	c.publishSnapshot()
}

func (c *Controller) onNotice(n callsession.Notice) {
	if n.Persistent {
		c.mu.Lock()
		b := n
		c.banner = &b
		c.mu.Unlock()
	}
	c.broadcast(Update{Notice: &n})
}

func (c *Controller) publishSnapshot() Snapshot {
	s := c.Snapshot()
	c.broadcast(Update{Snapshot: &s})
	return s
}

func (c *Controller) broadcast(u Update) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for id, ch := range c.subs {
		select {
		case ch <- u:
		default:
			c.log.Warn("dropping session subscriber", "subscriber", id, "err", errSlowReader)
			close(ch)
			delete(c.subs, id)
		}
	}
}

func (c *Controller) unsubscribe(id int) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if ch, ok := c.subs[id]; ok {
		close(ch)
		delete(c.subs, id)
	}
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
