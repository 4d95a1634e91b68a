package results

import (
	"errors"
	"strings"

	"sales-dialer/internal/leads"
)

// Outcome is the agent's classification of a worked lead.
type Outcome string

const (
	OutcomeSale          Outcome = "sale"
	OutcomeCallback      Outcome = "callback"
	OutcomeVoicemail     Outcome = "voicemail"
	OutcomeNotInterested Outcome = "not_interested"
	OutcomeWrongNumber   Outcome = "wrong_number"
	OutcomeCallLater     Outcome = "call_later"
)

var Outcomes = []Outcome{
	OutcomeSale,
	OutcomeCallback,
	OutcomeVoicemail,
	OutcomeNotInterested,
	OutcomeWrongNumber,
	OutcomeCallLater,
}

var (
	ErrNoOutcome      = errors.New("results: no outcome selected")
	ErrUnknownOutcome = errors.New("results: unknown outcome")
)

// ParseOutcome accepts both snake and kebab case ("call-later").
func ParseOutcome(s string) (Outcome, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", ErrNoOutcome
	}
	o := Outcome(strings.ReplaceAll(s, "-", "_"))
	if _, ok := statusFor[o]; !ok {
		return "", ErrUnknownOutcome
	}
	return o, nil
}

var statusFor = map[Outcome]leads.Status{
	OutcomeSale:          leads.StatusQualificationCallBooked,
	OutcomeNotInterested: leads.StatusLeadLost,
	OutcomeWrongNumber:   leads.StatusLeadLost,
	OutcomeCallback:      leads.StatusCallback,
	OutcomeCallLater:     leads.StatusCallback,
	OutcomeVoicemail:     leads.StatusContacted,
}

// LeadStatus is the status a lead moves to for this outcome. It does not
// depend on the lead's prior status.
func (o Outcome) LeadStatus() (leads.Status, bool) {
	s, ok := statusFor[o]
	return s, ok
}

// Stats are per-session counters. They only grow until reset on a
// campaign change.
type Stats struct {
	TotalCalls    int `json:"total_calls"`
	Sales         int `json:"sales"`
	Callbacks     int `json:"callbacks"`
	NotInterested int `json:"not_interested"`
}

func (s *Stats) countOutcome(o Outcome) {
	switch o {
	case OutcomeSale:
		s.Sales++
	case OutcomeCallback, OutcomeCallLater:
		s.Callbacks++
	case OutcomeNotInterested, OutcomeWrongNumber:
		s.NotInterested++
	}
}
