package callsession

// Phase is the externally visible state of an agent's call session.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseInitializing Phase = "initializing"
	PhaseReady        Phase = "ready"
	PhaseConnecting   Phase = "connecting"
	PhaseRinging      Phase = "ringing"
	PhaseConnected    Phase = "connected"
	PhaseEnded        Phase = "ended"
	PhaseError        Phase = "error"
)

// InCall is true while an attempt is live on the provider.
func (p Phase) InCall() bool {
	switch p {
	case PhaseConnecting, PhaseRinging, PhaseConnected:
		return true
	default:
		return false
	}
}

// EventType is an input to the transition table: a user intent, an
// adapter report, a provider call event or the settle timer.
type EventType string

const (
	EventInitialize         EventType = "initialize"
	EventRegistered         EventType = "registered"
	EventRegistrationFailed EventType = "registration_failed"
	EventDial               EventType = "dial"
	EventRinging            EventType = "ringing"
	EventAccepted           EventType = "accepted"
	EventCallEnded          EventType = "call_ended"
	EventSettled            EventType = "settled"
)

type transitionKey struct {
	from Phase
	ev   EventType
}

var transitions = map[transitionKey]Phase{
	{PhaseIdle, EventInitialize}:  PhaseInitializing,
	{PhaseError, EventInitialize}: PhaseInitializing,

	{PhaseInitializing, EventRegistered}:         PhaseReady,
	{PhaseInitializing, EventRegistrationFailed}: PhaseError,

	{PhaseReady, EventDial}: PhaseConnecting,

	{PhaseConnecting, EventRinging}: PhaseRinging,
	// Some providers report answer without a separate ringing step.
	{PhaseConnecting, EventAccepted}: PhaseConnected,
	{PhaseRinging, EventAccepted}:    PhaseConnected,

	{PhaseConnecting, EventCallEnded}: PhaseEnded,
	{PhaseRinging, EventCallEnded}:    PhaseEnded,
	{PhaseConnected, EventCallEnded}:  PhaseEnded,

	// Registration loss. In-call phases reach error only after the attempt
	// has been ended and logged by the machine.
	{PhaseReady, EventRegistrationFailed}:      PhaseError,
	{PhaseConnecting, EventRegistrationFailed}: PhaseError,
	{PhaseRinging, EventRegistrationFailed}:    PhaseError,
	{PhaseConnected, EventRegistrationFailed}:  PhaseError,
	{PhaseEnded, EventRegistrationFailed}:      PhaseError,

	{PhaseEnded, EventSettled}: PhaseReady,
}

// Transition is the single reducer for phase changes. ok is false when the
// event has no effect in the given phase.
func Transition(from Phase, ev EventType) (Phase, bool) {
	to, ok := transitions[transitionKey{from, ev}]
	return to, ok
}
