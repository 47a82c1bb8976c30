package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"leadqual_backend/internal/conversations/domain"
	"leadqual_backend/internal/conversations/service"
	"leadqual_backend/internal/events"
	"leadqual_backend/internal/scheduler"
	"leadqual_backend/platform/apperr"
	"leadqual_backend/platform/logger"
)

type fakeOrchestrator struct {
	gotID     string
	gotSignal domain.Signal
	result    *service.Result
	err       error
}

func (f *fakeOrchestrator) HandleInbound(ctx context.Context, conversationID string, sig domain.Signal) (*service.Result, error) {
	f.gotID = conversationID
	f.gotSignal = sig
	return f.result, f.err
}

type fakeSender struct {
	gotContactID string
	gotChannel   string
	gotMessage   string
	calls        int
}

func (f *fakeSender) SendMessage(ctx context.Context, contactID, channel, message string) error {
	f.gotContactID = contactID
	f.gotChannel = channel
	f.gotMessage = message
	f.calls++
	return nil
}

// fakeRecorder remembers leadgen ids like the Postgres repository does.
type fakeRecorder struct {
	seen map[string]bool
}

func (f *fakeRecorder) RecordEvent(_ context.Context, leadgenID, _, _ string, _ []byte) (bool, error) {
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[leadgenID] {
		return false, nil
	}
	f.seen[leadgenID] = true
	return true, nil
}

type fakeBus struct {
	published []events.Event
}

func (f *fakeBus) Publish(_ context.Context, e events.Event) { f.published = append(f.published, e) }
func (f *fakeBus) PublishSync(_ context.Context, e events.Event) error {
	f.published = append(f.published, e)
	return nil
}
func (f *fakeBus) Subscribe(string, events.Handler) {}

func newTestService(orch Orchestrator, sender MessageSender) *Service {
	return NewService(orch, nil, sender, nil, nil, nil, testMetaConfig{secret: "s", token: "verify-me"}, logger.New("test"))
}

func TestVerifyChallenge(t *testing.T) {
	svc := newTestService(nil, nil)

	challenge, err := svc.VerifyChallenge("subscribe", "verify-me", "12345")
	if err != nil {
		t.Fatalf("VerifyChallenge: %v", err)
	}
	if challenge != "12345" {
		t.Errorf("challenge = %q, want 12345", challenge)
	}

	if _, err := svc.VerifyChallenge("subscribe", "wrong", "12345"); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Errorf("wrong token: err = %v, want unauthorized", err)
	}
	if _, err := svc.VerifyChallenge("unsubscribe", "verify-me", "12345"); !apperr.Is(err, apperr.KindBadRequest) {
		t.Errorf("wrong mode: err = %v, want bad request", err)
	}
}

func TestProcessMessageRoutesSignal(t *testing.T) {
	orch := &fakeOrchestrator{result: &service.Result{
		ConversationID: "contact-1",
		Stage:          domain.StageQualifying,
		NextPrompt:     "What's your budget?",
	}}
	sender := &fakeSender{}
	svc := newTestService(orch, sender)

	res, err := svc.ProcessMessage(context.Background(), InboundMessage{
		Type:      "InboundMessage",
		ContactID: "contact-1",
		MessageID: "msg-9",
		Channel:   "WhatsApp",
		Body:      "  hi there  ",
	})
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	if orch.gotID != "contact-1" {
		t.Errorf("conversation id = %q, want contact-1", orch.gotID)
	}
	if orch.gotSignal.Kind != domain.SignalAnswer {
		t.Errorf("signal kind = %q, want answer", orch.gotSignal.Kind)
	}
	if orch.gotSignal.Payload != "hi there" {
		t.Errorf("payload = %q, want trimmed body", orch.gotSignal.Payload)
	}
	if orch.gotSignal.DedupKey != "msg-9" {
		t.Errorf("dedup key = %q, want msg-9", orch.gotSignal.DedupKey)
	}
	if res.Stage != domain.StageQualifying {
		t.Errorf("stage = %q, want qualifying", res.Stage)
	}

	if sender.calls != 1 {
		t.Fatalf("sender calls = %d, want 1", sender.calls)
	}
	if sender.gotChannel != "WhatsApp" {
		t.Errorf("channel = %q, want WhatsApp", sender.gotChannel)
	}
	if sender.gotMessage != "What's your budget?" {
		t.Errorf("message = %q, want next prompt", sender.gotMessage)
	}
}

type fakeFollowUps struct {
	payloads []scheduler.FollowUpPayload
}

func (f *fakeFollowUps) ScheduleFollowUp(ctx context.Context, payload scheduler.FollowUpPayload, runAt time.Time) error {
	f.payloads = append(f.payloads, payload)
	return nil
}

func TestProcessMessageSchedulesFollowUp(t *testing.T) {
	orch := &fakeOrchestrator{result: &service.Result{
		ConversationID: "contact-1",
		Stage:          domain.StageQualifying,
		NextQuestion:   "budget",
		NextPrompt:     "What's your budget?",
	}}
	sender := &fakeSender{}
	svc := newTestService(orch, sender)
	followups := &fakeFollowUps{}
	svc.SetFollowUpScheduler(followups)

	if _, err := svc.ProcessMessage(context.Background(), InboundMessage{
		Type:      "InboundMessage",
		ContactID: "contact-1",
		MessageID: "msg-1",
		Body:      "hi",
	}); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	if len(followups.payloads) != 1 {
		t.Fatalf("follow-ups scheduled = %d, want 1", len(followups.payloads))
	}
	if followups.payloads[0].Question != "budget" {
		t.Errorf("follow-up question = %q, want budget", followups.payloads[0].Question)
	}
}

func TestProcessMessageRejectsUnknownType(t *testing.T) {
	svc := newTestService(&fakeOrchestrator{}, nil)

	_, err := svc.ProcessMessage(context.Background(), InboundMessage{
		Type:      "OutboundMessage",
		ContactID: "contact-1",
	})
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Errorf("err = %v, want bad request", err)
	}
}

func TestProcessMessageDuplicateSkipsReply(t *testing.T) {
	orch := &fakeOrchestrator{result: &service.Result{
		ConversationID: "contact-1",
		Stage:          domain.StageQualifying,
		NextPrompt:     "What's your budget?",
		Duplicate:      true,
	}}
	sender := &fakeSender{}
	svc := newTestService(orch, sender)

	res, err := svc.ProcessMessage(context.Background(), InboundMessage{
		Type:      "InboundMessage",
		ContactID: "contact-1",
		MessageID: "msg-9",
		Body:      "hi",
	})
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if !res.Duplicate {
		t.Error("expected duplicate result")
	}
	if sender.calls != 0 {
		t.Errorf("sender calls = %d, want 0 for duplicate", sender.calls)
	}
}

func TestProcessMessageNoReplyWhenClosed(t *testing.T) {
	orch := &fakeOrchestrator{result: &service.Result{
		ConversationID: "contact-1",
		Stage:          domain.StageClosed,
	}}
	sender := &fakeSender{}
	svc := newTestService(orch, sender)

	if _, err := svc.ProcessMessage(context.Background(), InboundMessage{
		Type:      "InboundMessage",
		ContactID: "contact-1",
		Body:      "hello?",
	}); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if sender.calls != 0 {
		t.Errorf("sender calls = %d, want 0 for closed conversation", sender.calls)
	}
}

func leadgenPayload(t *testing.T, leadgenID string) LeadgenNotification {
	t.Helper()
	raw := fmt.Sprintf(`{"object":"page","entry":[{"id":"p1","time":1,"changes":[{"field":"leadgen","value":{"leadgen_id":%q,"page_id":"p1","form_id":"f1","created_time":1}}]}]}`, leadgenID)
	var payload LeadgenNotification
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatal(err)
	}
	return payload
}

func TestProcessLeadgenSkipsRedeliveredLead(t *testing.T) {
	bus := &fakeBus{}
	recorder := &fakeRecorder{}
	svc := NewService(nil, nil, nil, nil, recorder, bus, testMetaConfig{secret: "s", token: "verify-me"}, logger.New("test"))

	payload := leadgenPayload(t, "lg-42")
	raw := []byte(`{"object":"page"}`)

	accepted, err := svc.ProcessLeadgen(context.Background(), payload, raw)
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if accepted != 1 {
		t.Errorf("accepted = %d, want 1", accepted)
	}

	if _, err := svc.ProcessLeadgen(context.Background(), payload, raw); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	captured := 0
	for _, e := range bus.published {
		if _, ok := e.(events.LeadCaptured); ok {
			captured++
		}
	}
	if captured != 1 {
		t.Errorf("LeadCaptured events = %d, want 1 (redelivery must not re-publish)", captured)
	}
}
