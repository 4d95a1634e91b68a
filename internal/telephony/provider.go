package telephony

import (
	"context"
	"errors"
	"time"
)

// Device is one registered signaling client, owned by exactly one agent session.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Registration is asynchronous: Register returns immediately and reports the
//   outcome through done.
type Device interface {
	Register(ctx context.Context, token string, done func(error))
	// UpdateToken swaps credentials on the live client without touching calls in progress.
	UpdateToken(ctx context.Context, token string) error
	Connect(ctx context.Context, req ConnectRequest) (CallHandle, error)
	Unregister(ctx context.Context) error
}

// Provider builds devices for agent identities.
type Provider interface {
	Name() string
	NewDevice(identity string) Device
}

// ConnectRequest describes an outbound dial.
type ConnectRequest struct {
	// To is the dialable "+<digits>" number.
	To string
	// Metadata is forwarded to the provider where supported (e.g. lead id).
	Metadata map[string]string
}

// CallHandle is the provider side of one outbound call.
//
// Events delivers lifecycle events in order and is closed after the first
// terminal event.
type CallHandle interface {
	Events() <-chan CallEvent
	Hangup(ctx context.Context) error
	SetMuted(ctx context.Context, muted bool) error
}

type CallEventType string

const (
	CallRinging      CallEventType = "ringing"
	CallAccepted     CallEventType = "accepted"
	CallDisconnected CallEventType = "disconnected"
	CallCancelled    CallEventType = "cancelled"
	CallRejected     CallEventType = "rejected"
	CallFailed       CallEventType = "error"
)

// Terminal reports whether the event ends the call.
func (t CallEventType) Terminal() bool {
	switch t {
	case CallDisconnected, CallCancelled, CallRejected, CallFailed:
		return true
	default:
		return false
	}
}

type CallEvent struct {
	Type           CallEventType
	ProviderCallID string
	Err            error
	At             time.Time
}

var (
	ErrTokenFetch      = errors.New("telephony: token fetch failed")
	ErrRegistration    = errors.New("telephony: registration failed")
	ErrNotRegistered   = errors.New("telephony: device not registered")
	ErrTokenExpired    = errors.New("telephony: voice token expired")
	ErrClosed          = errors.New("telephony: adapter closed")
	ErrMuteUnsupported = errors.New("telephony: mute not supported by provider")
)
