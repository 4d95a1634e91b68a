package telephony

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// callAPI is the slice of the Twilio REST surface the provider needs.
type callAPI interface {
	CreateCall(params *twilioapi.CreateCallParams) (*twilioapi.ApiV2010Call, error)
	UpdateCall(sid string, params *twilioapi.UpdateCallParams) (*twilioapi.ApiV2010Call, error)
}

type TwilioConfig struct {
	// CallerID is the verified number presented to the lead.
	CallerID string
	// AnswerURL serves the TwiML that bridges the answered lead to the agent client.
	AnswerURL string
	// StatusCallbackURL receives call progress webhooks.
	StatusCallbackURL string
	RingTimeout       time.Duration
}

// TwilioProvider places the lead leg through the REST API and bridges it
// to the agent's browser client via the answer TwiML. Call progress comes
// back through status callbacks routed to HandleStatus.
type TwilioProvider struct {
	api callAPI
	cfg TwilioConfig
	log *slog.Logger

	mu    sync.Mutex
	calls map[string]*twilioCall
}

func NewTwilioProvider(accountSID, authToken string, cfg TwilioConfig, log *slog.Logger) (*TwilioProvider, error) {
	if accountSID == "" || authToken == "" {
		return nil, errors.New("telephony: twilio credentials required")
	}
	rc := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newTwilioProvider(rc.Api, cfg, log)
}

func newTwilioProvider(api callAPI, cfg TwilioConfig, log *slog.Logger) (*TwilioProvider, error) {
	if strings.TrimSpace(cfg.CallerID) == "" {
		return nil, errors.New("telephony: twilio caller id required")
	}
	if strings.TrimSpace(cfg.AnswerURL) == "" {
		return nil, errors.New("telephony: twilio answer url required")
	}
	if cfg.RingTimeout <= 0 {
		cfg.RingTimeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &TwilioProvider{
		api:   api,
		cfg:   cfg,
		log:   log.With("provider", "twilio"),
		calls: make(map[string]*twilioCall),
	}, nil
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) NewDevice(identity string) Device {
	return &twilioDevice{p: p, identity: identity}
}

// HandleStatus routes a status callback to the live call. It returns false
// for unknown call SIDs.
func (p *TwilioProvider) HandleStatus(callSID, status string, at time.Time) bool {
	p.mu.Lock()
	c := p.calls[callSID]
	p.mu.Unlock()
	if c == nil {
		return false
	}
	typ, ok := mapTwilioStatus(status)
	if !ok {
		return true
	}
	var err error
	if typ == CallFailed {
		err = fmt.Errorf("telephony: twilio call %s failed", callSID)
	}
	c.emit(CallEvent{Type: typ, ProviderCallID: callSID, Err: err, At: at})
	return true
}

func (p *TwilioProvider) forget(callSID string) {
	p.mu.Lock()
	delete(p.calls, callSID)
	p.mu.Unlock()
}

// mapTwilioStatus maps Twilio CallStatus values onto call events.
// queued and initiated carry no information for the session.
func mapTwilioStatus(status string) (CallEventType, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "ringing":
		return CallRinging, true
	case "in-progress", "answered":
		return CallAccepted, true
	case "completed":
		return CallDisconnected, true
	case "busy":
		return CallRejected, true
	case "no-answer", "canceled":
		return CallCancelled, true
	case "failed":
		return CallFailed, true
	default:
		return "", false
	}
}

type twilioDevice struct {
	p        *TwilioProvider
	identity string

	mu         sync.Mutex
	registered bool
	token      string
}

func (d *twilioDevice) Register(ctx context.Context, token string, done func(error)) {
	err := d.accept(token)
	if err == nil {
		d.mu.Lock()
		d.registered = true
		d.mu.Unlock()
	}
	go done(err)
}

func (d *twilioDevice) UpdateToken(ctx context.Context, token string) error {
	return d.accept(token)
}

func (d *twilioDevice) accept(token string) error {
	if _, err := VoiceApplicationSID(token, ""); err != nil {
		return err
	}
	exp, err := TokenExpiry(token)
	if err != nil {
		return err
	}
	if !exp.After(time.Now()) {
		return errors.New("telephony: voice token already expired")
	}
	d.mu.Lock()
	d.token = token
	d.mu.Unlock()
	return nil
}

func (d *twilioDevice) Connect(ctx context.Context, req ConnectRequest) (CallHandle, error) {
	d.mu.Lock()
	ok := d.registered
	d.mu.Unlock()
	if !ok {
		return nil, ErrNotRegistered
	}

	answer := d.p.cfg.AnswerURL
	sep := "?"
	if strings.Contains(answer, "?") {
		sep = "&"
	}
	answer += sep + "client=" + url.QueryEscape(d.identity)

	params := &twilioapi.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(d.p.cfg.CallerID)
	params.SetUrl(answer)
	params.SetTimeout(int(d.p.cfg.RingTimeout.Seconds()))
	if d.p.cfg.StatusCallbackURL != "" {
		params.SetStatusCallback(d.p.cfg.StatusCallbackURL)
		params.SetStatusCallbackMethod("POST")
		params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
	}

	resp, err := d.p.api.CreateCall(params)
	if err != nil {
		return nil, fmt.Errorf("telephony: twilio create call: %w", err)
	}
	if resp == nil || resp.Sid == nil || *resp.Sid == "" {
		return nil, errors.New("telephony: twilio create call returned no sid")
	}

	c := &twilioCall{
		p:      d.p,
		sid:    *resp.Sid,
		events: make(chan CallEvent, 8),
	}
	d.p.mu.Lock()
	d.p.calls[c.sid] = c
	d.p.mu.Unlock()

	d.p.log.Info("twilio call created", "call_sid", c.sid, "agent_id", d.identity, "lead_id", req.Metadata["lead_id"])
	return c, nil
}

func (d *twilioDevice) Unregister(ctx context.Context) error {
	d.mu.Lock()
	d.registered = false
	d.token = ""
	d.mu.Unlock()
	return nil
}

type twilioCall struct {
	p   *TwilioProvider
	sid string

	mu       sync.Mutex
	events   chan CallEvent
	answered bool
	closed   bool
}

func (c *twilioCall) Events() <-chan CallEvent { return c.events }

func (c *twilioCall) emit(ev CallEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if ev.Type == CallAccepted {
		c.answered = true
	}
	select {
	case c.events <- ev:
	default:
		c.p.log.Warn("twilio call event dropped", "call_sid", c.sid, "event", string(ev.Type))
	}
	if ev.Type.Terminal() {
		c.closed = true
		close(c.events)
		go c.p.forget(c.sid)
	}
}

// Hangup ends the lead leg. Twilio only accepts "canceled" before answer
// and "completed" after.
func (c *twilioCall) Hangup(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	status := "canceled"
	if c.answered {
		status = "completed"
	}
	c.mu.Unlock()

	params := &twilioapi.UpdateCallParams{}
	params.SetStatus(status)
	if _, err := c.p.api.UpdateCall(c.sid, params); err != nil {
		return fmt.Errorf("telephony: twilio hangup %s: %w", c.sid, err)
	}
	// Without status callbacks nothing else will end the call.
	if c.p.cfg.StatusCallbackURL == "" {
		typ := CallCancelled
		if status == "completed" {
			typ = CallDisconnected
		}
		c.emit(CallEvent{Type: typ, ProviderCallID: c.sid, At: time.Now()})
	}
	return nil
}

func (c *twilioCall) SetMuted(ctx context.Context, muted bool) error {
	return ErrMuteUnsupported
}
