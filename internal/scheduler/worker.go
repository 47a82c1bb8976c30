package scheduler

import (
	"context"
	"time"

	"leadqual_backend/internal/conversations/domain"
	"leadqual_backend/platform/apperr"
	"leadqual_backend/platform/config"
	"leadqual_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Sweeper closes conversations idle past the cutoff. Satisfied by
// conversations/service.Service.
type Sweeper interface {
	SweepExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// ConversationReader fetches conversation state. Satisfied by
// conversations/service.Service.
type ConversationReader interface {
	Get(ctx context.Context, conversationID string) (*domain.Record, error)
}

// MessageSender delivers follow-up nudges. Satisfied by crm.Client.
type MessageSender interface {
	SendMessage(ctx context.Context, contactID, channel, message string) error
}

type WorkerConfig interface {
	config.RedisConfig
	GetIdleExpiry() time.Duration
}

type Worker struct {
	server     *asynq.Server
	mux        *asynq.ServeMux
	sweeper    Sweeper
	reader     ConversationReader
	sender     MessageSender
	idleExpiry time.Duration
	log        *logger.Logger
}

// NewWorker creates the asynq worker. Returns nil when Redis is not
// configured; Run on a nil receiver is a no-op.
func NewWorker(cfg WorkerConfig, sweeper Sweeper, reader ConversationReader, sender MessageSender, log *logger.Logger) *Worker {
	if cfg.GetRedisAddr() == "" {
		return nil
	}

	server := asynq.NewServer(redisClientOpt(cfg), asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			"default": 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:     server,
		mux:        mux,
		sweeper:    sweeper,
		reader:     reader,
		sender:     sender,
		idleExpiry: cfg.GetIdleExpiry(),
		log:        log,
	}

	mux.HandleFunc(TaskSweepExpired, w.handleSweepExpired)
	mux.HandleFunc(TaskFollowUp, w.handleFollowUp)

	return w
}

func (w *Worker) handleSweepExpired(ctx context.Context, task *asynq.Task) error {
	if _, err := ParseSweepExpiredPayload(task); err != nil {
		return err
	}

	cutoff := time.Now().Add(-w.idleExpiry)
	closed, err := w.sweeper.SweepExpired(ctx, cutoff)
	if err != nil {
		return err
	}
	w.log.Info("sweep task completed", "closed", closed)
	return nil
}

// handleFollowUp nudges a conversation only if it is still stuck on the same
// question the task was scheduled for. Answered, advanced, or purged
// conversations drop the task silently.
func (w *Worker) handleFollowUp(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseFollowUpPayload(task)
	if err != nil {
		return err
	}

	rec, err := w.reader.Get(ctx, payload.ConversationID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil
		}
		return err
	}

	if rec.Stage != domain.StageQualifying || rec.PendingQuestion != payload.Question {
		return nil
	}
	if w.sender == nil {
		return nil
	}

	channel := payload.Channel
	if channel == "" {
		channel = "SMS"
	}
	message := "Just checking in! We still need one more answer to point you to the right person."
	if err := w.sender.SendMessage(ctx, payload.ConversationID, channel, message); err != nil {
		return err
	}

	w.log.Info("follow-up sent", "conversation_id", payload.ConversationID, "question", payload.Question)
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err.Error())
	}
}
