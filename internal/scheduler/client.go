package scheduler

import (
	"context"
	"time"

	"leadqual_backend/platform/config"

	"github.com/hibiken/asynq"
)

type Client struct {
	client *asynq.Client
	queue  string
}

// FollowUpScheduler schedules a nudge for a conversation that may go quiet.
type FollowUpScheduler interface {
	ScheduleFollowUp(ctx context.Context, payload FollowUpPayload, runAt time.Time) error
}

// NewClient creates the task enqueue client. All methods tolerate a nil
// receiver so callers can run without Redis.
func NewClient(cfg config.RedisConfig) *Client {
	if cfg.GetRedisAddr() == "" {
		return nil
	}

	return &Client{
		client: asynq.NewClient(redisClientOpt(cfg)),
		queue:  "default",
	}
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) ScheduleFollowUp(ctx context.Context, payload FollowUpPayload, runAt time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewFollowUpTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.ProcessAt(runAt), asynq.Queue(c.queue))
	return err
}

// EnqueueSweep requests an immediate sweep pass, used to kick a sweep by
// hand without waiting for the periodic runner.
func (c *Client) EnqueueSweep(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewSweepExpiredTask(SweepExpiredPayload{RequestedAt: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	return err
}

func redisClientOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.GetRedisPassword(),
		DB:       cfg.GetRedisDB(),
	}
}
