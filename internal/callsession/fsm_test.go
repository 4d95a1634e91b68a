package callsession

import "testing"

func TestTransitionHappyPath(t *testing.T) {
	steps := []struct {
		ev   EventType
		want Phase
	}{
		{EventInitialize, PhaseInitializing},
		{EventRegistered, PhaseReady},
		{EventDial, PhaseConnecting},
		{EventRinging, PhaseRinging},
		{EventAccepted, PhaseConnected},
		{EventCallEnded, PhaseEnded},
		{EventSettled, PhaseReady},
	}
	p := PhaseIdle
	for _, s := range steps {
		next, ok := Transition(p, s.ev)
		if !ok {
			t.Fatalf("%s + %s: expected transition", p, s.ev)
		}
		if next != s.want {
			t.Fatalf("%s + %s: want %s got %s", p, s.ev, s.want, next)
		}
		p = next
	}
}

func TestTransitionRejectsInvalidEvents(t *testing.T) {
	cases := []struct {
		from Phase
		ev   EventType
	}{
		{PhaseIdle, EventDial},
		{PhaseInitializing, EventDial},
		{PhaseConnecting, EventDial},
		{PhaseRinging, EventDial},
		{PhaseConnected, EventDial},
		{PhaseEnded, EventDial},
		{PhaseError, EventDial},
		{PhaseReady, EventRinging},
		{PhaseConnected, EventRinging},
		{PhaseReady, EventCallEnded},
		{PhaseEnded, EventCallEnded},
		{PhaseReady, EventInitialize},
		{PhaseConnected, EventInitialize},
		{PhaseReady, EventSettled},
	}
	for _, c := range cases {
		if next, ok := Transition(c.from, c.ev); ok {
			t.Fatalf("%s + %s: expected no transition, got %s", c.from, c.ev, next)
		}
	}
}

func TestErrorReachableFromInitializingAndInCallPhases(t *testing.T) {
	for _, p := range []Phase{PhaseInitializing, PhaseConnecting, PhaseRinging, PhaseConnected} {
		next, ok := Transition(p, EventRegistrationFailed)
		if !ok || next != PhaseError {
			t.Fatalf("%s: expected error, got %s (%v)", p, next, ok)
		}
	}
	next, ok := Transition(PhaseError, EventInitialize)
	if !ok || next != PhaseInitializing {
		t.Fatalf("expected retry from error")
	}
}

func TestInCall(t *testing.T) {
	in := map[Phase]bool{
		PhaseIdle: false, PhaseInitializing: false, PhaseReady: false,
		PhaseConnecting: true, PhaseRinging: true, PhaseConnected: true,
		PhaseEnded: false, PhaseError: false,
	}
	for p, want := range in {
		if p.InCall() != want {
			t.Fatalf("%s: want InCall=%v", p, want)
		}
	}
}
