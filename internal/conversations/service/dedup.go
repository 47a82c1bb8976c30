package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDedup implements DedupStore with SET NX markers that expire after the
// dedup window. A marker that exists means the delivery was already applied.
type RedisDedup struct {
	client *redis.Client
	window time.Duration
}

// NewRedisDedup creates a dedup store. Window is how long a delivery marker
// is remembered.
func NewRedisDedup(client *redis.Client, window time.Duration) *RedisDedup {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &RedisDedup{client: client, window: window}
}

// MarkSeen records the delivery and reports whether it is the first
// occurrence within the window.
func (d *RedisDedup) MarkSeen(ctx context.Context, conversationID, dedupKey string) (bool, error) {
	first, err := d.client.SetNX(ctx, dedupMarkerKey(conversationID, dedupKey), 1, d.window).Result()
	if err != nil {
		return false, err
	}
	return first, nil
}

// Forget removes a marker. Called when a turn fails after marking, so the
// at-least-once redelivery is applied instead of suppressed.
func (d *RedisDedup) Forget(ctx context.Context, conversationID, dedupKey string) error {
	return d.client.Del(ctx, dedupMarkerKey(conversationID, dedupKey)).Err()
}

func dedupMarkerKey(conversationID, dedupKey string) string {
	return fmt.Sprintf("dedup:%s:%s", conversationID, dedupKey)
}
