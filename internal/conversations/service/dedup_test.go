package service

import (
	"context"
	"testing"
	"time"

	"leadqual_backend/internal/conversations/domain"
	"leadqual_backend/internal/conversations/scoring"
	"leadqual_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newDedupService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	dedup := NewRedisDedup(client, time.Hour)
	model := scoring.NewModel(scoring.Default())
	svc := New(newMemStore(), dedup, model, nil, logger.New("development"), RetryPolicy{MaxAttempts: 3, BackoffBase: time.Millisecond})
	return svc, mr
}

func TestDuplicateDeliveryNotDoubleApplied(t *testing.T) {
	svc, _ := newDedupService(t)
	ctx := context.Background()

	sig := domain.Signal{Kind: domain.SignalFreeText, Payload: "hi", DedupKey: "msg-001"}

	res1, err := svc.HandleInbound(ctx, "lead-1", sig)
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if res1.Duplicate {
		t.Error("first delivery flagged as duplicate")
	}
	if res1.Stage != domain.StageEngaged {
		t.Errorf("first delivery stage = %s, want %s", res1.Stage, domain.StageEngaged)
	}

	res2, err := svc.HandleInbound(ctx, "lead-1", sig)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if !res2.Duplicate {
		t.Error("redelivery not flagged as duplicate")
	}
	if res2.Stage != domain.StageEngaged {
		t.Errorf("redelivery changed stage to %s", res2.Stage)
	}

	rec, err := svc.Get(ctx, "lead-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.MessageCount != 1 {
		t.Errorf("message count = %d, want 1 (duplicate must not count)", rec.MessageCount)
	}
}

func TestDistinctDeliveriesApply(t *testing.T) {
	svc, _ := newDedupService(t)
	ctx := context.Background()

	for i, key := range []string{"msg-001", "msg-002"} {
		res, err := svc.HandleInbound(ctx, "lead-1", domain.Signal{
			Kind: domain.SignalFreeText, Payload: "hi", DedupKey: key,
		})
		if err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
		if res.Duplicate {
			t.Errorf("delivery %d with fresh key flagged duplicate", i)
		}
	}

	rec, _ := svc.Get(ctx, "lead-1")
	if rec.MessageCount != 2 {
		t.Errorf("message count = %d, want 2", rec.MessageCount)
	}
}

func TestDedupWindowExpiry(t *testing.T) {
	svc, mr := newDedupService(t)
	ctx := context.Background()

	sig := domain.Signal{Kind: domain.SignalFreeText, Payload: "hi", DedupKey: "msg-001"}
	if _, err := svc.HandleInbound(ctx, "lead-1", sig); err != nil {
		t.Fatal(err)
	}

	mr.FastForward(2 * time.Hour)

	res, err := svc.HandleInbound(ctx, "lead-1", sig)
	if err != nil {
		t.Fatal(err)
	}
	if res.Duplicate {
		t.Error("delivery after window expiry should apply as new")
	}
}

func TestFailedTurnRedeliveryApplies(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	dedup := NewRedisDedup(client, time.Hour)
	store := newMemStore()
	store.failUpdates = 3 // exhausts the first delivery's retry budget
	model := scoring.NewModel(scoring.Default())
	svc := New(store, dedup, model, nil, logger.New("development"), RetryPolicy{MaxAttempts: 3, BackoffBase: time.Millisecond})
	ctx := context.Background()

	sig := domain.Signal{Kind: domain.SignalFreeText, Payload: "hi", DedupKey: "msg-777"}

	if _, err := svc.HandleInbound(ctx, "lead-1", sig); err == nil {
		t.Fatal("expected first delivery to exhaust the retry budget")
	}

	res, err := svc.HandleInbound(ctx, "lead-1", sig)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if res.Duplicate {
		t.Fatal("redelivery of a failed turn answered as duplicate")
	}
	if res.Stage != domain.StageEngaged {
		t.Errorf("redelivery stage = %s, want %s", res.Stage, domain.StageEngaged)
	}

	rec, err := svc.Get(ctx, "lead-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.MessageCount != 1 {
		t.Errorf("message count = %d, want 1 (signal must not be lost)", rec.MessageCount)
	}
}

func TestDedupOutageDoesNotDropSignal(t *testing.T) {
	svc, mr := newDedupService(t)
	ctx := context.Background()

	mr.Close()

	res, err := svc.HandleInbound(ctx, "lead-1", domain.Signal{
		Kind: domain.SignalFreeText, Payload: "hi", DedupKey: "msg-001",
	})
	if err != nil {
		t.Fatalf("signal dropped on dedup outage: %v", err)
	}
	if res.Stage != domain.StageEngaged {
		t.Errorf("stage = %s, want %s", res.Stage, domain.StageEngaged)
	}
}
