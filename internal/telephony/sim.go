package telephony

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sales-dialer/internal/timer"
)

type SimConfig struct {
	// RegisterAfter delays the registration callback. Zero completes on the next tick of the clock.
	RegisterAfter time.Duration
	// RingAfter and AnswerAfter script call progress. Zero disables the step,
	// leaving the call for the caller to drive with Emit.
	RingAfter   time.Duration
	AnswerAfter time.Duration
	// RegistrationError, when set, fails every registration.
	RegistrationError error
}

// SimProvider is an in-process provider for local runs and tests. Timing is
// driven by the injected clock so tests can advance it deterministically.
type SimProvider struct {
	clock timer.Clock
	cfg   SimConfig

	mu      sync.Mutex
	devices []*SimDevice
	calls   []*SimCall
}

func NewSimProvider(clock timer.Clock, cfg SimConfig) *SimProvider {
	if clock == nil {
		clock = timer.RealClock{}
	}
	return &SimProvider{clock: clock, cfg: cfg}
}

func (p *SimProvider) Name() string { return "sim" }

func (p *SimProvider) NewDevice(identity string) Device {
	d := &SimDevice{p: p, Identity: identity}
	p.mu.Lock()
	p.devices = append(p.devices, d)
	p.mu.Unlock()
	return d
}

func (p *SimProvider) Calls() []*SimCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*SimCall(nil), p.calls...)
}

func (p *SimProvider) LastCall() *SimCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return nil
	}
	return p.calls[len(p.calls)-1]
}

func (p *SimProvider) Devices() []*SimDevice {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*SimDevice(nil), p.devices...)
}

type SimDevice struct {
	p        *SimProvider
	Identity string

	mu         sync.Mutex
	registered bool
	tokens     []string
	// ConnectErr, when set, fails the next Connect.
	ConnectErr error
}

func (d *SimDevice) Register(ctx context.Context, token string, done func(error)) {
	d.mu.Lock()
	d.tokens = append(d.tokens, token)
	d.mu.Unlock()

	d.p.clock.AfterFunc(d.p.cfg.RegisterAfter, func() {
		err := d.p.cfg.RegistrationError
		if err == nil {
			d.mu.Lock()
			d.registered = true
			d.mu.Unlock()
		}
		done(err)
	})
}

func (d *SimDevice) UpdateToken(ctx context.Context, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = append(d.tokens, token)
	return nil
}

// Tokens returns every credential the device has been given, oldest first.
func (d *SimDevice) Tokens() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.tokens...)
}

func (d *SimDevice) Registered() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registered
}

func (d *SimDevice) Connect(ctx context.Context, req ConnectRequest) (CallHandle, error) {
	d.mu.Lock()
	ok := d.registered
	err := d.ConnectErr
	d.ConnectErr = nil
	d.mu.Unlock()
	if !ok {
		return nil, ErrNotRegistered
	}
	if err != nil {
		return nil, err
	}

	c := &SimCall{
		p:        d.p,
		ID:       "SIM" + uuid.NewString(),
		To:       req.To,
		Metadata: req.Metadata,
		events:   make(chan CallEvent, 8),
	}
	d.p.mu.Lock()
	d.p.calls = append(d.p.calls, c)
	d.p.mu.Unlock()

	if d.p.cfg.RingAfter > 0 {
		d.p.clock.AfterFunc(d.p.cfg.RingAfter, func() { c.Emit(CallRinging) })
	}
	if d.p.cfg.AnswerAfter > 0 {
		d.p.clock.AfterFunc(d.p.cfg.AnswerAfter, func() { c.Emit(CallAccepted) })
	}
	return c, nil
}

func (d *SimDevice) Unregister(ctx context.Context) error {
	d.mu.Lock()
	d.registered = false
	d.mu.Unlock()
	return nil
}

// SimCall is a scripted call; tests drive it with Emit.
type SimCall struct {
	p        *SimProvider
	ID       string
	To       string
	Metadata map[string]string

	mu       sync.Mutex
	events   chan CallEvent
	answered bool
	closed   bool
	muted    bool
	hangups  int
}

func (c *SimCall) Events() <-chan CallEvent { return c.events }

// Emit delivers an event as if the provider produced it. Events after the
// terminal one are dropped.
func (c *SimCall) Emit(typ CallEventType) {
	var err error
	if typ == CallFailed {
		err = fmt.Errorf("telephony: sim call %s failed", c.ID)
	}
	c.send(CallEvent{Type: typ, ProviderCallID: c.ID, Err: err, At: c.p.clock.Now()})
}

func (c *SimCall) send(ev CallEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if ev.Type == CallAccepted {
		c.answered = true
	}
	c.events <- ev
	if ev.Type.Terminal() {
		c.closed = true
		close(c.events)
	}
}

func (c *SimCall) Hangup(ctx context.Context) error {
	c.mu.Lock()
	c.hangups++
	answered := c.answered
	c.mu.Unlock()
	if answered {
		c.Emit(CallDisconnected)
	} else {
		c.Emit(CallCancelled)
	}
	return nil
}

func (c *SimCall) SetMuted(ctx context.Context, muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = muted
	return nil
}

func (c *SimCall) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

func (c *SimCall) Hangups() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hangups
}

func (c *SimCall) Ended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
