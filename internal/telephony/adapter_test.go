package telephony

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"sales-dialer/internal/timer"
)

type fakeTokens struct {
	mu    sync.Mutex
	clock timer.Clock
	ttl   time.Duration
	calls int
	err   error
}

func (f *fakeTokens) FetchToken(ctx context.Context, identity string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	claims := gojwt.RegisteredClaims{
		Subject:   identity,
		ExpiresAt: gojwt.NewNumericDate(f.clock.Now().Add(f.ttl)),
	}
	return gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
}

func (f *fakeTokens) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type eventLog struct {
	mu     sync.Mutex
	events []AdapterEvent
}

func (l *eventLog) add(ev AdapterEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) types() []AdapterEventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AdapterEventType, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestAdapter(t *testing.T, cfg SimConfig, tokens *fakeTokens) (*Adapter, *SimDevice, *timer.ManualClock, *eventLog) {
	t.Helper()
	clock := timer.NewManualClock(time.Time{})
	tokens.clock = clock
	if tokens.ttl == 0 {
		tokens.ttl = 10 * time.Minute
	}
	sim := NewSimProvider(clock, cfg)
	dev := sim.NewDevice("agent-1").(*SimDevice)
	a := NewAdapter("agent-1", tokens, dev, AdapterOptions{Clock: clock, RefreshLead: time.Minute})
	log := &eventLog{}
	a.OnEvent(log.add)
	return a, dev, clock, log
}

func TestAdapterRegisters(t *testing.T) {
	tokens := &fakeTokens{}
	a, dev, clock, log := newTestAdapter(t, SimConfig{RegisterAfter: 200 * time.Millisecond}, tokens)

	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if a.State() != AdapterRegistering {
		t.Fatalf("expected registering, got %s", a.State())
	}
	clock.Advance(200 * time.Millisecond)

	if a.State() != AdapterRegistered {
		t.Fatalf("expected registered, got %s", a.State())
	}
	if !dev.Registered() {
		t.Fatalf("expected device registered")
	}
	if got := log.types(); len(got) != 1 || got[0] != RegistrationSucceeded {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestAdapterTokenFetchFailure(t *testing.T) {
	tokens := &fakeTokens{err: errors.New("boom")}
	a, dev, _, _ := newTestAdapter(t, SimConfig{}, tokens)

	err := a.Initialize(context.Background())
	if !errors.Is(err, ErrTokenFetch) {
		t.Fatalf("expected ErrTokenFetch, got %v", err)
	}
	if a.State() != AdapterError {
		t.Fatalf("expected error state, got %s", a.State())
	}
	if len(dev.Tokens()) != 0 {
		t.Fatalf("expected device untouched")
	}
}

func TestAdapterRegistrationFailure(t *testing.T) {
	tokens := &fakeTokens{}
	a, _, clock, log := newTestAdapter(t, SimConfig{RegistrationError: errors.New("denied")}, tokens)

	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	clock.Advance(0)

	if a.State() != AdapterError {
		t.Fatalf("expected error state, got %s", a.State())
	}
	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.events) != 1 || log.events[0].Type != RegistrationFailed || !errors.Is(log.events[0].Err, ErrRegistration) {
		t.Fatalf("unexpected events: %+v", log.events)
	}
}

func TestAdapterRefreshesBeforeExpiry(t *testing.T) {
	tokens := &fakeTokens{ttl: 10 * time.Minute}
	a, dev, clock, log := newTestAdapter(t, SimConfig{}, tokens)

	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	clock.Advance(0)

	clock.Advance(8*time.Minute + 59*time.Second)
	if tokens.Calls() != 1 {
		t.Fatalf("refreshed too early: %d fetches", tokens.Calls())
	}
	clock.Advance(time.Second)
	if tokens.Calls() != 2 {
		t.Fatalf("expected refresh at expiry minus lead, got %d fetches", tokens.Calls())
	}
	if got := len(dev.Tokens()); got != 2 {
		t.Fatalf("expected token swapped on device, got %d tokens", got)
	}

	// The refreshed token schedules the next refresh.
	clock.Advance(9 * time.Minute)
	if tokens.Calls() != 3 {
		t.Fatalf("expected second refresh, got %d fetches", tokens.Calls())
	}
	types := log.types()
	if len(types) != 3 || types[1] != TokenRefreshed || types[2] != TokenRefreshed {
		t.Fatalf("unexpected events: %v", types)
	}
	if a.State() != AdapterRegistered {
		t.Fatalf("expected registered, got %s", a.State())
	}
}

func TestAdapterRefreshFailureKeepsRegistration(t *testing.T) {
	tokens := &fakeTokens{}
	a, _, clock, log := newTestAdapter(t, SimConfig{}, tokens)
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	clock.Advance(0)

	tokens.mu.Lock()
	tokens.err = errors.New("token service down")
	tokens.mu.Unlock()
	clock.Advance(9 * time.Minute)

	types := log.types()
	if len(types) != 2 || types[1] != TokenRefreshFailed {
		t.Fatalf("unexpected events: %v", types)
	}
	if a.State() != AdapterRegistered {
		t.Fatalf("expected registration kept, got %s", a.State())
	}
}

func TestAdapterRegistrationLostWhenTokenExpires(t *testing.T) {
	tokens := &fakeTokens{ttl: 10 * time.Minute}
	a, _, clock, log := newTestAdapter(t, SimConfig{}, tokens)
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	clock.Advance(0)

	tokens.mu.Lock()
	tokens.err = errors.New("token service down")
	tokens.mu.Unlock()
	clock.Advance(9 * time.Minute)
	if a.State() != AdapterRegistered {
		t.Fatalf("expected still registered before expiry, got %s", a.State())
	}
	clock.Advance(time.Minute)

	if a.State() != AdapterError {
		t.Fatalf("expected error after expiry, got %s", a.State())
	}
	log.mu.Lock()
	last := log.events[len(log.events)-1]
	log.mu.Unlock()
	if last.Type != RegistrationFailed || !errors.Is(last.Err, ErrRegistration) {
		t.Fatalf("unexpected last event %+v", last)
	}

	// Manual retry re-registers.
	tokens.mu.Lock()
	tokens.err = nil
	tokens.mu.Unlock()
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	clock.Advance(0)
	if a.State() != AdapterRegistered {
		t.Fatalf("expected registered after retry, got %s", a.State())
	}
}

func TestAdapterConnectRequiresRegistration(t *testing.T) {
	tokens := &fakeTokens{}
	a, _, clock, _ := newTestAdapter(t, SimConfig{RegisterAfter: time.Second}, tokens)

	if _, err := a.Connect(context.Background(), "+46701234567", nil); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := a.Connect(context.Background(), "+46701234567", nil); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered while registering, got %v", err)
	}
	clock.Advance(time.Second)

	h, err := a.Connect(context.Background(), "+46701234567", map[string]string{"lead_id": "l1"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if h == nil {
		t.Fatalf("expected call handle")
	}
}

func TestAdapterTeardownStopsRefresh(t *testing.T) {
	tokens := &fakeTokens{}
	a, dev, clock, _ := newTestAdapter(t, SimConfig{}, tokens)
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	clock.Advance(0)

	if err := a.Teardown(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := a.Teardown(context.Background()); err != nil {
		t.Fatalf("expected idempotent teardown, got %v", err)
	}
	if clock.Pending() != 0 {
		t.Fatalf("expected refresh timer cleared, %d pending", clock.Pending())
	}
	if dev.Registered() {
		t.Fatalf("expected device unregistered")
	}
	if a.State() != AdapterClosed {
		t.Fatalf("expected closed, got %s", a.State())
	}
	if err := a.Initialize(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestAdapterLateRegistrationAfterTeardownIgnored(t *testing.T) {
	tokens := &fakeTokens{}
	a, _, clock, log := newTestAdapter(t, SimConfig{RegisterAfter: time.Second}, tokens)
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	_ = a.Teardown(context.Background())
	clock.Advance(time.Second)

	if len(log.types()) != 0 {
		t.Fatalf("expected no events after teardown, got %v", log.types())
	}
	if a.State() != AdapterClosed {
		t.Fatalf("expected closed, got %s", a.State())
	}
}
