package telephony

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeCallAPI struct {
	mu      sync.Mutex
	created []*twilioapi.CreateCallParams
	updates map[string]string
	err     error
}

func (f *fakeCallAPI) CreateCall(params *twilioapi.CreateCallParams) (*twilioapi.ApiV2010Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, params)
	sid := "CA" + strings.Repeat("0", 31) + string(rune('0'+len(f.created)))
	return &twilioapi.ApiV2010Call{Sid: &sid}, nil
}

func (f *fakeCallAPI) UpdateCall(sid string, params *twilioapi.UpdateCallParams) (*twilioapi.ApiV2010Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = make(map[string]string)
	}
	f.updates[sid] = *params.Status
	return &twilioapi.ApiV2010Call{Sid: &sid}, nil
}

func newTestTwilio(t *testing.T, api callAPI) *TwilioProvider {
	t.Helper()
	p, err := newTwilioProvider(api, TwilioConfig{
		CallerID:          "+46850000000",
		AnswerURL:         "https://dialer.example.com/webhooks/twilio/answer",
		StatusCallbackURL: "https://dialer.example.com/webhooks/twilio/status",
		RingTimeout:       25 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return p
}

func registeredTwilioDevice(t *testing.T, p *TwilioProvider) Device {
	t.Helper()
	dev := p.NewDevice("agent-1")
	tok, err := testIssuer(t).Issue("agent-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	done := make(chan error, 1)
	dev.Register(context.Background(), tok, func(err error) { done <- err })
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected registration, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("registration callback not called")
	}
	return dev
}

func TestTwilioConnectCreatesCall(t *testing.T) {
	api := &fakeCallAPI{}
	p := newTestTwilio(t, api)
	dev := registeredTwilioDevice(t, p)

	h, err := dev.Connect(context.Background(), ConnectRequest{To: "+46701234567", Metadata: map[string]string{"lead_id": "l1"}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(api.created) != 1 {
		t.Fatalf("expected one create call")
	}
	params := api.created[0]
	if *params.To != "+46701234567" || *params.From != "+46850000000" {
		t.Fatalf("unexpected to/from: %s %s", *params.To, *params.From)
	}
	if !strings.Contains(*params.Url, "client=agent-1") {
		t.Fatalf("expected client identity in answer url: %s", *params.Url)
	}
	if *params.Timeout != 25 {
		t.Fatalf("unexpected timeout %d", *params.Timeout)
	}
	if h == nil {
		t.Fatalf("expected handle")
	}
}

func TestTwilioConnectRequiresRegistration(t *testing.T) {
	p := newTestTwilio(t, &fakeCallAPI{})
	dev := p.NewDevice("agent-1")
	if _, err := dev.Connect(context.Background(), ConnectRequest{To: "+4670"}); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestTwilioRegisterRejectsTokenWithoutGrant(t *testing.T) {
	p := newTestTwilio(t, &fakeCallAPI{})
	dev := p.NewDevice("agent-1")
	done := make(chan error, 1)
	dev.Register(context.Background(), "garbage", func(err error) { done <- err })
	if err := <-done; err == nil {
		t.Fatalf("expected registration error")
	}
}

func TestTwilioStatusCallbacksDriveEvents(t *testing.T) {
	api := &fakeCallAPI{}
	p := newTestTwilio(t, api)
	dev := registeredTwilioDevice(t, p)
	h, err := dev.Connect(context.Background(), ConnectRequest{To: "+46701234567"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	sid := h.(*twilioCall).sid
	now := time.Now()

	for _, st := range []string{"initiated", "ringing", "in-progress", "completed", "completed"} {
		if !p.HandleStatus(sid, st, now) && st != "completed" {
			t.Fatalf("expected %s routed", st)
		}
	}

	var got []CallEventType
	for ev := range h.Events() {
		got = append(got, ev.Type)
	}
	want := []CallEventType{CallRinging, CallAccepted, CallDisconnected}
	if len(got) != len(want) {
		t.Fatalf("unexpected events %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: want %s got %s", i, want[i], got[i])
		}
	}
}

func TestTwilioHangupStatusDependsOnAnswer(t *testing.T) {
	api := &fakeCallAPI{}
	p := newTestTwilio(t, api)
	dev := registeredTwilioDevice(t, p)

	h1, _ := dev.Connect(context.Background(), ConnectRequest{To: "+1"})
	if err := h1.Hangup(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	h2, _ := dev.Connect(context.Background(), ConnectRequest{To: "+2"})
	sid2 := h2.(*twilioCall).sid
	p.HandleStatus(sid2, "in-progress", time.Now())
	if err := h2.Hangup(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if api.updates[h1.(*twilioCall).sid] != "canceled" {
		t.Fatalf("expected canceled before answer, got %q", api.updates[h1.(*twilioCall).sid])
	}
	if api.updates[sid2] != "completed" {
		t.Fatalf("expected completed after answer, got %q", api.updates[sid2])
	}
	if err := h2.SetMuted(context.Background(), true); !errors.Is(err, ErrMuteUnsupported) {
		t.Fatalf("expected ErrMuteUnsupported, got %v", err)
	}
}

func TestMapTwilioStatus(t *testing.T) {
	cases := map[string]CallEventType{
		"ringing":     CallRinging,
		"in-progress": CallAccepted,
		"completed":   CallDisconnected,
		"busy":        CallRejected,
		"no-answer":   CallCancelled,
		"canceled":    CallCancelled,
		"failed":      CallFailed,
	}
	for in, want := range cases {
		got, ok := mapTwilioStatus(in)
		if !ok || got != want {
			t.Fatalf("%s: want %s got %s (%v)", in, want, got, ok)
		}
	}
	if _, ok := mapTwilioStatus("queued"); ok {
		t.Fatalf("expected queued ignored")
	}
}
