package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sales-dialer/internal/timer"
	"sales-dialer/pkg/logger"
)

type AdapterState string

const (
	AdapterIdle        AdapterState = "idle"
	AdapterRegistering AdapterState = "registering"
	AdapterRegistered  AdapterState = "registered"
	AdapterError       AdapterState = "error"
	AdapterClosed      AdapterState = "closed"
)

type AdapterEventType string

const (
	RegistrationSucceeded AdapterEventType = "registered"
	RegistrationFailed    AdapterEventType = "registration_failed"
	TokenRefreshed        AdapterEventType = "token_refreshed"
	TokenRefreshFailed    AdapterEventType = "token_refresh_failed"
)

type AdapterEvent struct {
	Type AdapterEventType
	Err  error
}

type AdapterOptions struct {
	Clock timer.Clock
	// RefreshLead is how long before token expiry the token is refetched.
	RefreshLead time.Duration
	// FetchTimeout bounds background refreshes, which have no caller context.
	FetchTimeout time.Duration
	Log          *slog.Logger
}

// Adapter owns the credential and registration lifecycle of one Device and
// exposes the narrow connect surface the call state machine uses.
type Adapter struct {
	identity string
	tokens   TokenSource
	device   Device
	clock    timer.Clock
	lead     time.Duration
	timeout  time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	state    AdapterState
	gen      uint64
	refresh  timer.Stopper
	expires  time.Time
	listener func(AdapterEvent)
}

func NewAdapter(identity string, tokens TokenSource, device Device, opts AdapterOptions) *Adapter {
	if opts.Clock == nil {
		opts.Clock = timer.RealClock{}
	}
	if opts.RefreshLead <= 0 {
		opts.RefreshLead = time.Minute
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Adapter{
		identity: identity,
		tokens:   tokens,
		device:   device,
		clock:    opts.Clock,
		lead:     opts.RefreshLead,
		timeout:  opts.FetchTimeout,
		log:      logger.ForAgent(opts.Log, identity),
		state:    AdapterIdle,
	}
}

// OnEvent sets the listener for registration and refresh outcomes.
func (a *Adapter) OnEvent(fn func(AdapterEvent)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listener = fn
}

func (a *Adapter) State() AdapterState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Initialize fetches a token and starts registration. A token failure is
// returned (wrapping ErrTokenFetch) and leaves the adapter in error; the
// registration outcome arrives later through the listener.
func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	switch a.state {
	case AdapterClosed:
		a.mu.Unlock()
		return ErrClosed
	case AdapterRegistering, AdapterRegistered:
		a.mu.Unlock()
		return nil
	}
	a.state = AdapterRegistering
	a.gen++
	gen := a.gen
	a.mu.Unlock()

	token, exp, err := a.fetch(ctx)
	if err != nil {
		a.mu.Lock()
		if gen == a.gen {
			a.state = AdapterError
		}
		a.mu.Unlock()
		a.log.Warn("voice token fetch failed", "err", err)
		return fmt.Errorf("%w: %v", ErrTokenFetch, err)
	}

	a.device.Register(ctx, token, func(err error) { a.registered(gen, exp, err) })
	return nil
}

// Connect dials through the registered device.
func (a *Adapter) Connect(ctx context.Context, dialable string, metadata map[string]string) (CallHandle, error) {
	a.mu.Lock()
	st := a.state
	a.mu.Unlock()
	if st != AdapterRegistered {
		return nil, ErrNotRegistered
	}
	return a.device.Connect(ctx, ConnectRequest{To: dialable, Metadata: metadata})
}

// Teardown stops registration and clears the refresh timer. Safe to call
// more than once and from any exit path.
func (a *Adapter) Teardown(ctx context.Context) error {
	a.mu.Lock()
	if a.state == AdapterClosed {
		a.mu.Unlock()
		return nil
	}
	a.state = AdapterClosed
	a.gen++
	if a.refresh != nil {
		a.refresh.Stop()
		a.refresh = nil
	}
	a.mu.Unlock()

	return a.device.Unregister(ctx)
}

func (a *Adapter) fetch(ctx context.Context) (string, time.Time, error) {
	token, err := a.tokens.FetchToken(ctx, a.identity)
	if err != nil {
		return "", time.Time{}, err
	}
	exp, err := TokenExpiry(token)
	if err != nil {
		// Opaque tokens are accepted; they just never refresh proactively.
		a.log.Debug("voice token expiry unknown", "err", err)
		exp = time.Time{}
	}
	return token, exp, nil
}

func (a *Adapter) registered(gen uint64, exp time.Time, err error) {
	a.mu.Lock()
	if gen != a.gen || a.state == AdapterClosed {
		a.mu.Unlock()
		return
	}
	if err != nil {
		a.state = AdapterError
		fn := a.listener
		a.mu.Unlock()
		a.log.Warn("device registration failed", "err", err)
		a.emit(fn, AdapterEvent{Type: RegistrationFailed, Err: fmt.Errorf("%w: %v", ErrRegistration, err)})
		return
	}
	a.state = AdapterRegistered
	a.scheduleRefreshLocked(gen, exp)
	fn := a.listener
	a.mu.Unlock()

	a.log.Info("device registered")
	a.emit(fn, AdapterEvent{Type: RegistrationSucceeded})
}

func (a *Adapter) scheduleRefreshLocked(gen uint64, exp time.Time) {
	if a.refresh != nil {
		a.refresh.Stop()
		a.refresh = nil
	}
	a.expires = exp
	if exp.IsZero() {
		return
	}
	wait := exp.Sub(a.clock.Now()) - a.lead
	if wait < 0 {
		wait = 0
	}
	a.refresh = a.clock.AfterFunc(wait, func() { a.refreshToken(gen) })
}

// refreshToken runs when the token is about to expire. It only swaps the
// credential on the live device; calls in progress are untouched.
func (a *Adapter) refreshToken(gen uint64) {
	a.mu.Lock()
	if gen != a.gen || a.state != AdapterRegistered {
		a.mu.Unlock()
		return
	}
	a.refresh = nil
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	token, exp, err := a.fetch(ctx)
	if err == nil {
		err = a.device.UpdateToken(ctx, token)
	}

	a.mu.Lock()
	if gen != a.gen || a.state != AdapterRegistered {
		a.mu.Unlock()
		return
	}
	fn := a.listener
	if err != nil {
		// The current token stays in use; if nothing replaces it before it
		// expires the registration is considered lost.
		expires := a.expires
		a.refresh = a.clock.AfterFunc(expires.Sub(a.clock.Now()), func() { a.expire(gen) })
		a.mu.Unlock()
		a.log.Warn("voice token refresh failed", "err", err, "expires_at", expires)
		a.emit(fn, AdapterEvent{Type: TokenRefreshFailed, Err: fmt.Errorf("%w: %v", ErrTokenFetch, err)})
		return
	}
	a.scheduleRefreshLocked(gen, exp)
	a.mu.Unlock()

	a.log.Debug("voice token refreshed", "expires_at", exp)
	a.emit(fn, AdapterEvent{Type: TokenRefreshed})
}

func (a *Adapter) expire(gen uint64) {
	a.mu.Lock()
	if gen != a.gen || a.state != AdapterRegistered {
		a.mu.Unlock()
		return
	}
	a.state = AdapterError
	a.refresh = nil
	fn := a.listener
	a.mu.Unlock()

	a.log.Warn("voice token expired, registration lost")
	a.emit(fn, AdapterEvent{Type: RegistrationFailed, Err: fmt.Errorf("%w: %v", ErrRegistration, ErrTokenExpired)})
}

func (a *Adapter) emit(fn func(AdapterEvent), ev AdapterEvent) {
	if fn != nil {
		fn(ev)
	}
}
