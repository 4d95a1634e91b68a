package calls

import (
	"time"
)

// LogEntry is the persisted, append-only record of one outbound call attempt.
//
// Invariant: exactly one row per AttemptID. Postgres enforces this with
// UNIQUE (attempt_id); the recorder also guards it in memory.
type LogEntry struct {
	ID        string `json:"id" db:"id"`
	AttemptID string `json:"attempt_id" db:"attempt_id"`
	AgentID   string `json:"agent_id" db:"agent_id"`

	// LeadID is optional; manual dials have none.
	LeadID string `json:"lead_id,omitempty" db:"lead_id"`

	Phone         string `json:"phone" db:"phone"`
	CountryPrefix string `json:"country_prefix,omitempty" db:"country_prefix"`

	DurationSeconds int        `json:"duration" db:"duration"`
	Direction       Direction  `json:"direction" db:"direction"`
	Status          CallStatus `json:"status" db:"status"`

	// ProviderCallID correlates the row with the provider's CDR (e.g. Twilio CallSid).
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

type CallStatus string

const (
	CallStatusCompleted CallStatus = "completed"
	CallStatusNoAnswer  CallStatus = "no_answer"
)

// Classify maps a measured duration to a completion status. A call that never
// connected and one that rang out both have zero duration and are not told apart.
func Classify(durationSeconds int) CallStatus {
	if durationSeconds > 0 {
		return CallStatusCompleted
	}
	return CallStatusNoAnswer
}

// Attempt is the in-memory record of one active outbound call. At most one
// exists per agent session; it is created on dial and dropped once ended.
type Attempt struct {
	ID      string `json:"id"`
	AgentID string `json:"agent_id"`
	LeadID  string `json:"lead_id,omitempty"`

	Dialable      string `json:"dialable"`
	Phone         string `json:"phone"`
	CountryPrefix string `json:"country_prefix,omitempty"`

	ProviderCallID string `json:"provider_call_id,omitempty"`

	DialedAt    time.Time  `json:"dialed_at"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`

	// EndReason is the provider event that ended the attempt.
	EndReason string `json:"end_reason,omitempty"`
	Muted     bool   `json:"muted"`

	// StatsEpoch is the session counter epoch the attempt was dialed in.
	StatsEpoch uint64 `json:"-"`
}

// Connected reports whether the far end ever answered.
func (a Attempt) Connected() bool { return a.ConnectedAt != nil }

// Ended reports whether the attempt has finished.
func (a Attempt) Ended() bool { return a.EndedAt != nil }

// Duration is measured from answer to end; zero if never connected.
func (a Attempt) Duration() time.Duration {
	if !a.Connected() || !a.Ended() || a.EndedAt.Before(*a.ConnectedAt) {
		return 0
	}
	return a.EndedAt.Sub(*a.ConnectedAt)
}

// DurationSeconds truncates Duration to whole seconds.
func (a Attempt) DurationSeconds() int {
	return int(a.Duration() / time.Second)
}
