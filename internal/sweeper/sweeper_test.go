package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"leadqual_backend/platform/logger"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (c *countingSweeper) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	c.calls.Add(1)
	return 1, c.err
}

func newTestRunner(s Sweeper) *Runner {
	return &Runner{
		sweeper:    s,
		interval:   10 * time.Millisecond,
		idleExpiry: time.Hour,
		log:        logger.New("test"),
		now:        time.Now,
	}
}

func TestRunnerSweepsImmediatelyAndPeriodically(t *testing.T) {
	s := &countingSweeper{}
	r := newTestRunner(s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for s.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("sweep calls = %d, want at least 3", s.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop on cancel")
	}
}

func TestRunnerSurvivesSweepErrors(t *testing.T) {
	s := &countingSweeper{err: errors.New("store down")}
	r := newTestRunner(s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for s.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("sweep calls = %d, want the loop to continue past errors", s.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestSweepCutoff(t *testing.T) {
	var gotCutoff time.Time
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	r := newTestRunner(sweepFunc(func(ctx context.Context, cutoff time.Time) (int, error) {
		gotCutoff = cutoff
		return 0, nil
	}))
	r.now = func() time.Time { return fixed }

	r.sweep(context.Background())

	want := fixed.Add(-time.Hour)
	if !gotCutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", gotCutoff, want)
	}
}

type sweepFunc func(ctx context.Context, cutoff time.Time) (int, error)

func (f sweepFunc) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	return f(ctx, cutoff)
}
