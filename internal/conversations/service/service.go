// Package service orchestrates conversation turns: load-or-create the
// record, advance the stage machine, recompute the score, and commit through
// the store's optimistic-concurrency check.
package service

import (
	"context"
	"time"

	"leadqual_backend/internal/conversations/domain"
	"leadqual_backend/internal/conversations/scoring"
	"leadqual_backend/internal/events"
	"leadqual_backend/platform/apperr"
	"leadqual_backend/platform/logger"
)

// Store is the persistence contract the orchestrator needs. Implemented by
// the repository package.
type Store interface {
	Get(ctx context.Context, conversationID string) (*domain.Record, error)
	GetOrCreate(ctx context.Context, conversationID string, now time.Time) (*domain.Record, error)
	Update(ctx context.Context, rec *domain.Record) error
	Delete(ctx context.Context, conversationID string) error
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Record, error)
	ListActive(ctx context.Context, afterID string, limit int) ([]*domain.Record, error)
	StageCounts(ctx context.Context) (map[domain.Stage]int, error)
}

// DedupStore remembers which logical deliveries have been applied, so
// at-least-once redelivery never double-counts a turn.
type DedupStore interface {
	// MarkSeen records the delivery and reports whether this was the
	// first time it was seen.
	MarkSeen(ctx context.Context, conversationID, dedupKey string) (bool, error)
	// Forget releases a marker so the delivery can be applied again.
	Forget(ctx context.Context, conversationID, dedupKey string) error
}

// RetryPolicy bounds the read-transition-write retry loop on conflicts.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
}

// Result is the outcome of one orchestrated turn.
type Result struct {
	ConversationID string          `json:"conversationId"`
	Stage          domain.Stage    `json:"stage"`
	Score          int             `json:"score"`
	Tier           domain.Tier     `json:"tier"`
	NextQuestion   string          `json:"nextQuestion,omitempty"`
	NextPrompt     string          `json:"nextPrompt,omitempty"`
	Evidence       domain.Evidence `json:"evidence"`
	Duplicate      bool            `json:"duplicate,omitempty"`
}

type Service struct {
	store Store
	dedup DedupStore
	model *scoring.Model
	bus   events.Bus
	log   *logger.Logger
	retry RetryPolicy
	now   func() time.Time
}

// sweepBatchSize records closed per ListExpired page during a sweep pass.
const sweepBatchSize = 200

func New(store Store, dedup DedupStore, model *scoring.Model, bus events.Bus, log *logger.Logger, retry RetryPolicy) *Service {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 3
	}
	if retry.BackoffBase <= 0 {
		retry.BackoffBase = 25 * time.Millisecond
	}
	return &Service{
		store: store,
		dedup: dedup,
		model: model,
		bus:   bus,
		log:   log,
		retry: retry,
		now:   time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// HandleInbound applies one signal to one conversation and returns the new
// state. Safe for concurrent use across conversation ids; conflicting
// writers on the same id are serialized by the store's version check, with
// the loser retrying from a fresh read up to the retry budget.
func (s *Service) HandleInbound(ctx context.Context, conversationID string, sig domain.Signal) (*Result, error) {
	if conversationID == "" {
		return nil, apperr.Validation("conversation id is required").WithOp("conversations.HandleInbound")
	}

	marked := false
	if sig.DedupKey != "" && s.dedup != nil {
		first, err := s.dedup.MarkSeen(ctx, conversationID, sig.DedupKey)
		if err != nil {
			s.log.WithContext(ctx).Warn("dedup store unavailable, applying signal anyway",
				"conversation_id", conversationID, "error", err.Error())
		} else if !first {
			return s.duplicateResult(ctx, conversationID)
		} else {
			marked = true
		}
	}

	res, err := s.applyWithRetry(ctx, conversationID, sig)
	if err != nil && marked {
		// The turn did not commit. Release the marker so the upstream
		// redelivery of this key is applied instead of answered as a
		// duplicate.
		if ferr := s.dedup.Forget(ctx, conversationID, sig.DedupKey); ferr != nil {
			s.log.WithContext(ctx).Warn("dedup marker release failed, redelivery may be suppressed",
				"conversation_id", conversationID, "dedup_key", sig.DedupKey, "error", ferr.Error())
		}
	}
	return res, err
}

func (s *Service) applyWithRetry(ctx context.Context, conversationID string, sig domain.Signal) (*Result, error) {
	var lastErr error
	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, apperr.Wrap(apperr.KindUnavailable, "turn cancelled", ctx.Err()).WithOp("conversations.HandleInbound")
			case <-time.After(s.retry.BackoffBase * time.Duration(attempt-1)):
			}
		}

		rec, err := s.store.GetOrCreate(ctx, conversationID, s.now())
		if err != nil {
			return nil, err
		}

		oldStage := rec.Stage
		fresh := rec.MessageCount == 0 && rec.Stage == domain.StageNew
		s.applySignal(rec, sig)

		if err := s.store.Update(ctx, rec); err != nil {
			if apperr.Is(err, apperr.KindConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}

		if fresh && sig.IsMessage() && s.bus != nil {
			s.bus.Publish(ctx, events.ConversationStarted{
				BaseEvent:      events.NewBaseEvent(),
				ConversationID: rec.ConversationID,
			})
		}
		s.publishTransitions(ctx, rec, oldStage, sig)
		return s.resultFor(rec), nil
	}

	return nil, apperr.Wrap(apperr.KindUnavailable, "concurrent update budget exhausted", lastErr).
		WithOp("conversations.HandleInbound")
}

// applySignal mutates the record for one turn. Score and tier are always
// recomputed from evidence so derived fields never go stale.
func (s *Service) applySignal(rec *domain.Record, sig domain.Signal) {
	now := s.now()

	switch sig.Kind {
	case domain.SignalReset:
		rec.Reset(now)

	case domain.SignalTimeout:
		rec.Stage = domain.Next(rec.Stage, sig.Kind, false, false)
		rec.PendingQuestion = ""
		rec.UpdatedAt = now
		// last_message_at untouched: the sweep is not a real message

	default:
		rec.MessageCount++
		rec.LastMessageAt = now
		rec.UpdatedAt = now

		switch rec.Stage {
		case domain.StageNew, domain.StageEngaged:
			rec.Stage = domain.Next(rec.Stage, sig.Kind, false, false)
			if rec.Stage == domain.StageQualifying {
				next, _ := s.model.NextQuestion(rec.Evidence)
				rec.PendingQuestion = next
			}

		case domain.StageQualifying:
			if rec.PendingQuestion != "" {
				rec.Evidence[rec.PendingQuestion] = s.model.ParseAnswer(rec.PendingQuestion, sig.Payload)
			}
			score, _ := s.model.Compute(rec.Evidence)
			complete := s.model.Complete(rec.Evidence)
			rec.Stage = domain.Next(rec.Stage, sig.Kind, complete, s.model.Qualified(score))
			if rec.Stage == domain.StageQualifying {
				next, _ := s.model.NextQuestion(rec.Evidence)
				rec.PendingQuestion = next
			} else {
				rec.PendingQuestion = ""
			}

		default:
			// QUALIFIED, DISQUALIFIED and CLOSED hold their stage; the
			// message is still counted for diagnostics.
			rec.Stage = domain.Next(rec.Stage, sig.Kind, true, rec.Stage == domain.StageQualified)
		}
	}

	rec.Score, rec.Tier = s.model.Compute(rec.Evidence)
}

func (s *Service) publishTransitions(ctx context.Context, rec *domain.Record, oldStage domain.Stage, sig domain.Signal) {
	if s.bus == nil || rec.Stage == oldStage {
		return
	}

	s.log.WithContext(ctx).StageTransition(rec.ConversationID, string(oldStage), string(rec.Stage), string(sig.Kind))

	s.bus.Publish(ctx, events.StageChanged{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: rec.ConversationID,
		OldStage:       oldStage,
		NewStage:       rec.Stage,
		Signal:         string(sig.Kind),
		Score:          rec.Score,
		Tier:           rec.Tier,
	})

	switch rec.Stage {
	case domain.StageQualified:
		s.bus.Publish(ctx, events.LeadQualified{
			BaseEvent:      events.NewBaseEvent(),
			ConversationID: rec.ConversationID,
			Score:          rec.Score,
			Tier:           rec.Tier,
			Evidence:       rec.Evidence.Clone(),
		})
	case domain.StageDisqualified:
		s.bus.Publish(ctx, events.LeadDisqualified{
			BaseEvent:      events.NewBaseEvent(),
			ConversationID: rec.ConversationID,
			Score:          rec.Score,
			Tier:           rec.Tier,
			Evidence:       rec.Evidence.Clone(),
		})
	case domain.StageClosed:
		reason := "explicit"
		if sig.Kind == domain.SignalTimeout {
			reason = "idle_timeout"
		}
		s.bus.Publish(ctx, events.ConversationClosed{
			BaseEvent:      events.NewBaseEvent(),
			ConversationID: rec.ConversationID,
			Reason:         reason,
		})
	}
}

// duplicateResult reports current state for a redelivered signal without
// mutating anything.
func (s *Service) duplicateResult(ctx context.Context, conversationID string) (*Result, error) {
	rec, err := s.store.Get(ctx, conversationID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			// seen marker without a record: a previous first delivery
			// failed mid-turn, apply normally next redelivery
			return &Result{ConversationID: conversationID, Stage: domain.StageNew, Duplicate: true}, nil
		}
		return nil, err
	}
	out := s.resultFor(rec)
	out.Duplicate = true
	return out, nil
}

func (s *Service) resultFor(rec *domain.Record) *Result {
	res := &Result{
		ConversationID: rec.ConversationID,
		Stage:          rec.Stage,
		Score:          rec.Score,
		Tier:           rec.Tier,
		Evidence:       rec.Evidence.Clone(),
	}
	if rec.Stage == domain.StageQualifying && rec.PendingQuestion != "" {
		res.NextQuestion = rec.PendingQuestion
		res.NextPrompt = s.model.Prompt(rec.PendingQuestion)
	}
	return res
}

// Get returns one conversation record for diagnostics.
func (s *Service) Get(ctx context.Context, conversationID string) (*domain.Record, error) {
	return s.store.Get(ctx, conversationID)
}

// ListActive returns a page of non-closed records for diagnostics.
func (s *Service) ListActive(ctx context.Context, afterID string, limit int) ([]*domain.Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListActive(ctx, afterID, limit)
}

// FunnelSummary returns record counts by stage.
func (s *Service) FunnelSummary(ctx context.Context) (map[domain.Stage]int, error) {
	return s.store.StageCounts(ctx)
}

// Reset returns a conversation to its initial state. Administrative action.
func (s *Service) Reset(ctx context.Context, conversationID string) (*Result, error) {
	return s.HandleInbound(ctx, conversationID, domain.Signal{Kind: domain.SignalReset})
}

// Purge removes a record entirely. Administrative action; normal flow only
// closes records, never deletes them.
func (s *Service) Purge(ctx context.Context, conversationID string) error {
	return s.store.Delete(ctx, conversationID)
}

// SweepExpired closes every conversation idle since before the cutoff. Each
// record goes through the same per-record update path as a live turn, so a
// sweep can never clobber a concurrent message: whichever commits first
// wins and the sweep skips records it loses. Returns the number closed.
func (s *Service) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	closed := 0
	for {
		expired, err := s.store.ListExpired(ctx, cutoff, sweepBatchSize)
		if err != nil {
			return closed, err
		}
		if len(expired) == 0 {
			return closed, nil
		}

		progressed := false
		for _, rec := range expired {
			if ctx.Err() != nil {
				return closed, ctx.Err()
			}
			ok, err := s.sweepClose(ctx, rec.ConversationID, cutoff)
			if err != nil {
				return closed, err
			}
			if ok {
				closed++
				progressed = true
			}
		}

		if len(expired) < sweepBatchSize || !progressed {
			return closed, nil
		}
	}
}

// sweepClose closes one idle conversation through the same versioned update
// path as a live turn. Expiry is rechecked from a fresh read, so a message
// that landed after the listing keeps the record open. Losing the version
// race to a live turn skips the record for this pass.
func (s *Service) sweepClose(ctx context.Context, conversationID string, cutoff time.Time) (bool, error) {
	rec, err := s.store.Get(ctx, conversationID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return false, nil
		}
		return false, err
	}

	if rec.Stage == domain.StageClosed || !rec.ExpiredBefore(cutoff) {
		return false, nil
	}

	oldStage := rec.Stage
	sig := domain.Signal{Kind: domain.SignalTimeout}
	s.applySignal(rec, sig)

	if err := s.store.Update(ctx, rec); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			s.log.WithContext(ctx).Debug("sweep lost update race, skipping",
				"conversation_id", conversationID)
			return false, nil
		}
		return false, err
	}

	s.publishTransitions(ctx, rec, oldStage, sig)
	return true, nil
}
