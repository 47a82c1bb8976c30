package scheduler

import (
	"context"
	"testing"
	"time"

	"leadqual_backend/internal/conversations/domain"
	"leadqual_backend/platform/apperr"
	"leadqual_backend/platform/logger"
)

type fakeSweeper struct {
	gotCutoff time.Time
	closed    int
}

func (f *fakeSweeper) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	f.gotCutoff = cutoff
	return f.closed, nil
}

type fakeReader struct {
	rec *domain.Record
	err error
}

func (f *fakeReader) Get(ctx context.Context, conversationID string) (*domain.Record, error) {
	return f.rec, f.err
}

type recordingSender struct {
	calls    int
	gotBody  string
	gotWhere string
}

func (r *recordingSender) SendMessage(ctx context.Context, contactID, channel, message string) error {
	r.calls++
	r.gotWhere = contactID
	r.gotBody = message
	return nil
}

func newTestWorker(sweeper Sweeper, reader ConversationReader, sender MessageSender) *Worker {
	return &Worker{
		sweeper:    sweeper,
		reader:     reader,
		sender:     sender,
		idleExpiry: time.Hour,
		log:        logger.New("test"),
	}
}

func TestHandleSweepExpired(t *testing.T) {
	sweeper := &fakeSweeper{closed: 3}
	w := newTestWorker(sweeper, nil, nil)

	task, err := NewSweepExpiredTask(SweepExpiredPayload{RequestedAt: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		t.Fatalf("NewSweepExpiredTask: %v", err)
	}
	if err := w.handleSweepExpired(context.Background(), task); err != nil {
		t.Fatalf("handleSweepExpired: %v", err)
	}

	wantCutoff := time.Now().Add(-time.Hour)
	if diff := sweeper.gotCutoff.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Errorf("cutoff = %v, want about %v", sweeper.gotCutoff, wantCutoff)
	}
}

func TestHandleFollowUpStillPending(t *testing.T) {
	reader := &fakeReader{rec: &domain.Record{
		ConversationID:  "c1",
		Stage:           domain.StageQualifying,
		PendingQuestion: "budget",
	}}
	sender := &recordingSender{}
	w := newTestWorker(nil, reader, sender)

	task, _ := NewFollowUpTask(FollowUpPayload{ConversationID: "c1", Question: "budget", Channel: "SMS"})
	if err := w.handleFollowUp(context.Background(), task); err != nil {
		t.Fatalf("handleFollowUp: %v", err)
	}

	if sender.calls != 1 {
		t.Fatalf("sender calls = %d, want 1", sender.calls)
	}
	if sender.gotWhere != "c1" {
		t.Errorf("sent to %q, want c1", sender.gotWhere)
	}
}

func TestHandleFollowUpDroppedWhenAnswered(t *testing.T) {
	tests := []struct {
		name string
		rec  *domain.Record
	}{
		{
			name: "question moved on",
			rec:  &domain.Record{Stage: domain.StageQualifying, PendingQuestion: "timeline"},
		},
		{
			name: "conversation qualified",
			rec:  &domain.Record{Stage: domain.StageQualified},
		},
		{
			name: "conversation closed",
			rec:  &domain.Record{Stage: domain.StageClosed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &recordingSender{}
			w := newTestWorker(nil, &fakeReader{rec: tt.rec}, sender)

			task, _ := NewFollowUpTask(FollowUpPayload{ConversationID: "c1", Question: "budget"})
			if err := w.handleFollowUp(context.Background(), task); err != nil {
				t.Fatalf("handleFollowUp: %v", err)
			}
			if sender.calls != 0 {
				t.Errorf("sender calls = %d, want 0", sender.calls)
			}
		})
	}
}

func TestHandleFollowUpPurgedConversation(t *testing.T) {
	reader := &fakeReader{err: apperr.NotFound("conversation not found")}
	w := newTestWorker(nil, reader, &recordingSender{})

	task, _ := NewFollowUpTask(FollowUpPayload{ConversationID: "gone", Question: "budget"})
	if err := w.handleFollowUp(context.Background(), task); err != nil {
		t.Errorf("handleFollowUp = %v, want nil for purged conversation", err)
	}
}
