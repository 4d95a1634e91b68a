package callsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sales-dialer/internal/calls"
	"sales-dialer/internal/telephony"
	"sales-dialer/internal/timer"
)

var (
	ErrNotReady   = errors.New("callsession: device not ready")
	ErrCallActive = errors.New("callsession: a call is already active")
	ErrNoCall     = errors.New("callsession: no active call")
	ErrNoNumber   = errors.New("callsession: dialable number required")
	ErrCallFailed = errors.New("callsession: call failed")
	ErrClosed     = errors.New("callsession: session closed")
)

// Dialer is the adapter surface the machine drives. *telephony.Adapter
// satisfies it.
type Dialer interface {
	Initialize(ctx context.Context) error
	Connect(ctx context.Context, dialable string, metadata map[string]string) (telephony.CallHandle, error)
	Teardown(ctx context.Context) error
	OnEvent(fn func(telephony.AdapterEvent))
}

type NoticeKind string

const (
	NoticeRegistrationError NoticeKind = "registration_error"
	NoticeCallRejected      NoticeKind = "call_rejected"
	NoticeCallError         NoticeKind = "call_error"
	NoticeTokenWarning      NoticeKind = "token_warning"
)

// Notice is a user-facing message. Persistent notices stay until the
// condition clears (retry); the rest are transient.
type Notice struct {
	Kind       NoticeKind `json:"kind"`
	Message    string     `json:"message"`
	Persistent bool       `json:"persistent"`
	At         time.Time  `json:"at"`
}

type DialRequest struct {
	LeadID string
	// Phone is the stored, unnormalized value; it is only carried into the log.
	Phone         string
	Dialable      string
	CountryPrefix string
	// StatsEpoch is copied onto the attempt untouched.
	StatsEpoch uint64
}

type Snapshot struct {
	Phase          Phase          `json:"phase"`
	InCall         bool           `json:"in_call"`
	CanDial        bool           `json:"can_dial"`
	Attempt        *calls.Attempt `json:"attempt,omitempty"`
	ElapsedSeconds int            `json:"elapsed_seconds"`
	LastError      string         `json:"last_error,omitempty"`
}

type Options struct {
	Clock timer.Clock
	// SettleDelay is how long ended is shown before returning to ready.
	SettleDelay time.Duration
	Guard       Guard
	Log         *slog.Logger
	NewID       func() string

	// OnCallEnded runs exactly once per attempt, outside the machine lock,
	// on the goroutine that observed the end.
	OnCallEnded func(calls.Attempt)
	OnChange    func(Snapshot)
	OnNotice    func(Notice)
}

// Machine owns at most one CallAttempt for one agent. All phase changes go
// through Transition; provider events for anything but the current attempt
// are dropped.
type Machine struct {
	agentID string
	dialer  Dialer
	clock   timer.Clock
	settle  time.Duration
	guard   Guard
	log     *slog.Logger
	newID   func() string

	onEnded  func(calls.Attempt)
	onChange func(Snapshot)
	onNotice func(Notice)

	timer *timer.CallTimer

	mu            sync.Mutex
	phase         Phase
	attempt       *calls.Attempt
	handle        telephony.CallHandle
	hangupPending bool
	settleTimer   timer.Stopper
	lastErr       string
	closed        bool
}

func New(agentID string, dialer Dialer, opts Options) *Machine {
	if opts.Clock == nil {
		opts.Clock = timer.RealClock{}
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	if opts.Guard == nil {
		opts.Guard = NopGuard{}
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	m := &Machine{
		agentID:  agentID,
		dialer:   dialer,
		clock:    opts.Clock,
		settle:   opts.SettleDelay,
		guard:    opts.Guard,
		log:      opts.Log.With("agent_id", agentID),
		newID:    opts.NewID,
		onEnded:  opts.OnCallEnded,
		onChange: opts.OnChange,
		onNotice: opts.OnNotice,
		phase:    PhaseIdle,
	}
	m.timer = timer.NewCallTimer(m.clock, func(time.Duration) { m.changed() })
	dialer.OnEvent(m.onAdapterEvent)
	return m
}

func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		Phase:     m.phase,
		InCall:    m.phase.InCall(),
		CanDial:   m.phase == PhaseReady && m.attempt == nil && !m.closed,
		LastError: m.lastErr,
	}
	if m.attempt != nil {
		a := *m.attempt
		s.Attempt = &a
		if m.phase == PhaseConnected {
			s.ElapsedSeconds = int(m.timer.Elapsed() / time.Second)
		} else {
			s.ElapsedSeconds = a.DurationSeconds()
		}
	}
	return s
}

// Initialize starts registration from idle, or retries it from error.
// In any other phase it is a no-op.
func (m *Machine) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	next, ok := Transition(m.phase, EventInitialize)
	if !ok {
		m.mu.Unlock()
		return nil
	}
	m.phase = next
	m.lastErr = ""
	m.mu.Unlock()
	m.changed()

	if err := m.dialer.Initialize(ctx); err != nil {
		m.mu.Lock()
		if next, ok := Transition(m.phase, EventRegistrationFailed); ok && m.phase == PhaseInitializing {
			m.phase = next
			m.lastErr = err.Error()
		}
		m.mu.Unlock()
		m.log.Warn("call session initialize failed", "err", err)
		m.notice(Notice{Kind: NoticeRegistrationError, Message: err.Error(), Persistent: true})
		m.changed()
		return err
	}
	return nil
}

// Dial places a call for the given lead. It refuses while another attempt
// exists; that check and the phase change happen under one lock. Once the
// attempt is visible it is ended and logged on every failure path.
func (m *Machine) Dial(ctx context.Context, req DialRequest) (calls.Attempt, error) {
	if strings.TrimSpace(req.Dialable) == "" {
		return calls.Attempt{}, ErrNoNumber
	}

	m.mu.Lock()
	if err := m.dialableLocked(); err != nil {
		m.mu.Unlock()
		return calls.Attempt{}, err
	}
	id := m.newID()
	m.mu.Unlock()

	// The lease is taken before the attempt becomes visible, so a refused
	// dial never shows up as connecting.
	acquired, err := m.guard.Acquire(ctx, m.agentID, id)
	if err != nil {
		return calls.Attempt{}, fmt.Errorf("callsession: acquire call guard: %w", err)
	}
	if !acquired {
		return calls.Attempt{}, ErrCallActive
	}

	m.mu.Lock()
	if err := m.dialableLocked(); err != nil {
		m.mu.Unlock()
		m.releaseGuard(id)
		return calls.Attempt{}, err
	}
	next, _ := Transition(m.phase, EventDial)
	a := &calls.Attempt{
		ID:            id,
		AgentID:       m.agentID,
		LeadID:        req.LeadID,
		Dialable:      req.Dialable,
		Phone:         req.Phone,
		CountryPrefix: req.CountryPrefix,
		DialedAt:      m.clock.Now(),
		StatsEpoch:    req.StatsEpoch,
	}
	m.attempt = a
	m.phase = next
	started := *a
	m.mu.Unlock()
	m.changed()

	meta := map[string]string{
		"agent_id":   m.agentID,
		"attempt_id": started.ID,
		"lead_id":    started.LeadID,
	}
	h, err := m.dialer.Connect(ctx, started.Dialable, meta)
	if errors.Is(err, telephony.ErrNotRegistered) {
		m.end(started.ID, string(telephony.CallFailed), "", err)
		return started, fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	if err != nil {
		m.end(started.ID, string(telephony.CallFailed), "", err)
		return started, fmt.Errorf("%w: %v", ErrCallFailed, err)
	}

	m.mu.Lock()
	live := m.attempt != nil && m.attempt.ID == started.ID && m.phase.InCall()
	pending := m.hangupPending
	closed := m.closed
	if live {
		m.handle = h
		m.hangupPending = false
	}
	m.mu.Unlock()

	if !live {
		// Ended while connecting (registration lost or session closed).
		_ = h.Hangup(context.WithoutCancel(ctx))
		if closed {
			return started, ErrClosed
		}
		return started, ErrCallFailed
	}

	m.log.Info("call attempt started", "attempt_id", started.ID, "lead_id", started.LeadID)
	go m.pump(started.ID, h)
	if pending {
		_ = m.Hangup(ctx)
	}
	return started, nil
}

// Hangup ends the active attempt from any in-call phase. The attempt is
// ended locally right away; the provider's own terminal event is then a no-op.
func (m *Machine) Hangup(ctx context.Context) error {
	m.mu.Lock()
	if m.attempt == nil || !m.phase.InCall() {
		m.mu.Unlock()
		return ErrNoCall
	}
	id := m.attempt.ID
	h := m.handle
	reason := telephony.CallCancelled
	if m.phase == PhaseConnected {
		reason = telephony.CallDisconnected
	}
	if h == nil {
		m.hangupPending = true
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := h.Hangup(ctx); err != nil {
		m.log.Warn("provider hangup failed", "attempt_id", id, "err", err)
		m.notice(Notice{Kind: NoticeCallError, Message: err.Error()})
	}
	m.end(id, string(reason), "", nil)
	return nil
}

// SetMuted toggles the agent's outbound audio on a connected call.
func (m *Machine) SetMuted(ctx context.Context, muted bool) error {
	m.mu.Lock()
	if m.attempt == nil || m.phase != PhaseConnected || m.handle == nil {
		m.mu.Unlock()
		return ErrNoCall
	}
	id := m.attempt.ID
	h := m.handle
	m.mu.Unlock()

	if err := h.SetMuted(ctx, muted); err != nil {
		return err
	}

	m.mu.Lock()
	if m.attempt != nil && m.attempt.ID == id {
		m.attempt.Muted = muted
	}
	m.mu.Unlock()
	m.changed()
	return nil
}

// Close ends any live attempt (logging it), stops every timer and tears the
// adapter down. It is safe to call more than once.
func (m *Machine) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true

	var (
		ended *calls.Attempt
		h     telephony.CallHandle
	)
	if m.attempt != nil && m.phase.InCall() {
		reason := telephony.CallCancelled
		if m.phase == PhaseConnected {
			reason = telephony.CallDisconnected
		}
		a, handle := m.endLocked(string(reason))
		ended, h = &a, handle
	}
	if m.settleTimer != nil {
		m.settleTimer.Stop()
		m.settleTimer = nil
	}
	m.timer.Stop()
	m.attempt = nil
	m.phase = PhaseIdle
	m.mu.Unlock()

	if h != nil {
		if err := h.Hangup(ctx); err != nil {
			m.log.Warn("provider hangup on close failed", "err", err)
		}
	}
	if ended != nil {
		m.finish(*ended)
	}
	err := m.dialer.Teardown(ctx)
	m.changed()
	return err
}

func (m *Machine) pump(id string, h telephony.CallHandle) {
	for ev := range h.Events() {
		m.handleCallEvent(id, ev)
	}
	// A handle that closes without a terminal event still ends the attempt.
	m.end(id, string(telephony.CallDisconnected), "", nil)
}

func (m *Machine) handleCallEvent(id string, ev telephony.CallEvent) {
	if ev.Type.Terminal() {
		m.end(id, string(ev.Type), ev.ProviderCallID, ev.Err)
		return
	}

	var input EventType
	switch ev.Type {
	case telephony.CallRinging:
		input = EventRinging
	case telephony.CallAccepted:
		input = EventAccepted
	default:
		return
	}

	m.mu.Lock()
	if m.attempt == nil || m.attempt.ID != id || !m.phase.InCall() {
		m.mu.Unlock()
		return
	}
	next, ok := Transition(m.phase, input)
	if !ok {
		m.mu.Unlock()
		m.log.Debug("call event ignored", "attempt_id", id, "phase", string(m.Phase()), "event", string(ev.Type))
		return
	}
	m.phase = next
	if input == EventAccepted {
		if ev.ProviderCallID != "" {
			m.attempt.ProviderCallID = ev.ProviderCallID
		}
		connected := m.timer.Start()
		m.attempt.ConnectedAt = &connected
	}
	m.mu.Unlock()

	m.log.Debug("call phase changed", "attempt_id", id, "phase", string(next))
	m.changed()
}

// end finishes attempt id if it is still live. It returns false when the
// attempt already ended, which makes every end path idempotent.
func (m *Machine) end(id, reason, providerCallID string, cause error) bool {
	m.mu.Lock()
	if m.attempt == nil || m.attempt.ID != id || !m.phase.InCall() {
		m.mu.Unlock()
		return false
	}
	if m.attempt.ProviderCallID == "" {
		m.attempt.ProviderCallID = providerCallID
	}
	a, _ := m.endLocked(reason)
	m.settleTimer = m.clock.AfterFunc(m.settle, func() { m.settled(id) })
	m.mu.Unlock()

	switch telephony.CallEventType(reason) {
	case telephony.CallRejected:
		m.notice(Notice{Kind: NoticeCallRejected, Message: "call was rejected"})
	case telephony.CallFailed:
		msg := "call failed"
		if cause != nil {
			msg = cause.Error()
		}
		m.notice(Notice{Kind: NoticeCallError, Message: msg})
	}
	m.finish(a)
	m.changed()
	return true
}

// endLocked moves the live attempt to ended. The attempt stays visible
// until the settle delay passes.
func (m *Machine) endLocked(reason string) (calls.Attempt, telephony.CallHandle) {
	m.timer.Stop()
	ended := m.clock.Now()
	m.attempt.EndedAt = &ended
	m.attempt.EndReason = reason
	if next, ok := Transition(m.phase, EventCallEnded); ok {
		m.phase = next
	}
	h := m.handle
	m.handle = nil
	m.hangupPending = false
	return *m.attempt, h
}

func (m *Machine) settled(id string) {
	m.mu.Lock()
	if m.attempt == nil || m.attempt.ID != id {
		m.mu.Unlock()
		return
	}
	m.attempt = nil
	m.settleTimer = nil
	if next, ok := Transition(m.phase, EventSettled); ok {
		m.phase = next
	}
	m.mu.Unlock()
	m.changed()
}

// dialableLocked reports why a new attempt cannot start right now.
func (m *Machine) dialableLocked() error {
	if m.closed {
		return ErrClosed
	}
	if m.phase.InCall() {
		return ErrCallActive
	}
	if _, ok := Transition(m.phase, EventDial); !ok || m.attempt != nil {
		return ErrNotReady
	}
	return nil
}

func (m *Machine) finish(a calls.Attempt) {
	m.releaseGuard(a.ID)
	m.log.Info("call attempt ended",
		"attempt_id", a.ID,
		"lead_id", a.LeadID,
		"reason", a.EndReason,
		"duration_seconds", a.DurationSeconds(),
	)
	if m.onEnded != nil {
		m.onEnded(a)
	}
}

func (m *Machine) releaseGuard(attemptID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.guard.Release(ctx, m.agentID, attemptID); err != nil {
		m.log.Warn("release call guard failed", "attempt_id", attemptID, "err", err)
	}
}

func (m *Machine) onAdapterEvent(ev telephony.AdapterEvent) {
	switch ev.Type {
	case telephony.RegistrationSucceeded:
		m.mu.Lock()
		next, ok := Transition(m.phase, EventRegistered)
		if ok && !m.closed {
			m.phase = next
			m.lastErr = ""
		}
		m.mu.Unlock()
		if ok {
			m.changed()
		}
	case telephony.RegistrationFailed:
		m.registrationLost(ev.Err)
	case telephony.TokenRefreshFailed:
		msg := "voice token refresh failed"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		m.notice(Notice{Kind: NoticeTokenWarning, Message: msg})
	case telephony.TokenRefreshed:
		m.log.Debug("voice token refreshed")
	}
}

// registrationLost ends and logs any live attempt before entering error.
func (m *Machine) registrationLost(cause error) {
	msg := "registration failed"
	if cause != nil {
		msg = cause.Error()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	var (
		ended *calls.Attempt
		h     telephony.CallHandle
	)
	if m.attempt != nil && m.phase.InCall() {
		a, handle := m.endLocked(string(telephony.CallFailed))
		ended, h = &a, handle
	}
	next, ok := Transition(m.phase, EventRegistrationFailed)
	if ok {
		m.phase = next
		m.lastErr = msg
		if m.settleTimer != nil {
			m.settleTimer.Stop()
			m.settleTimer = nil
		}
		m.attempt = nil
	}
	m.mu.Unlock()

	if h != nil {
		_ = h.Hangup(context.Background())
	}
	if ended != nil {
		m.finish(*ended)
	}
	if ok {
		m.log.Warn("registration lost", "err", cause)
		m.notice(Notice{Kind: NoticeRegistrationError, Message: msg, Persistent: true})
		m.changed()
	}
}

func (m *Machine) notice(n Notice) {
	n.At = m.clock.Now()
	if m.onNotice != nil {
		m.onNotice(n)
	}
}

func (m *Machine) changed() {
	if m.onChange != nil {
		m.onChange(m.Snapshot())
	}
}
