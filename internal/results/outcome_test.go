package results

import (
	"errors"
	"testing"

	"sales-dialer/internal/leads"
)

func TestOutcomeStatusMapping(t *testing.T) {
	want := map[Outcome]leads.Status{
		OutcomeSale:          leads.StatusQualificationCallBooked,
		OutcomeNotInterested: leads.StatusLeadLost,
		OutcomeWrongNumber:   leads.StatusLeadLost,
		OutcomeCallback:      leads.StatusCallback,
		OutcomeCallLater:     leads.StatusCallback,
		OutcomeVoicemail:     leads.StatusContacted,
	}
	for _, o := range Outcomes {
		got, ok := o.LeadStatus()
		if !ok || got != want[o] {
			t.Fatalf("%s: want %s got %s", o, want[o], got)
		}
	}
	if _, ok := Outcome("hung_up").LeadStatus(); ok {
		t.Fatalf("expected unknown outcome unmapped")
	}
}

func TestParseOutcome(t *testing.T) {
	cases := map[string]Outcome{
		"sale":           OutcomeSale,
		" Call-Later ":   OutcomeCallLater,
		"not-interested": OutcomeNotInterested,
		"wrong_number":   OutcomeWrongNumber,
	}
	for in, want := range cases {
		got, err := ParseOutcome(in)
		if err != nil || got != want {
			t.Fatalf("%q: want %s got %s (%v)", in, want, got, err)
		}
	}
	if _, err := ParseOutcome(""); !errors.Is(err, ErrNoOutcome) {
		t.Fatalf("expected ErrNoOutcome, got %v", err)
	}
	if _, err := ParseOutcome("maybe"); !errors.Is(err, ErrUnknownOutcome) {
		t.Fatalf("expected ErrUnknownOutcome, got %v", err)
	}
}

func TestStatsCounting(t *testing.T) {
	var s Stats
	for _, o := range Outcomes {
		s.countOutcome(o)
	}
	if s.Sales != 1 || s.Callbacks != 2 || s.NotInterested != 2 || s.TotalCalls != 0 {
		t.Fatalf("unexpected stats %+v", s)
	}
}
