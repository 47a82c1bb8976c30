package webhook

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists raw leadgen deliveries for audit and debugging. The
// leadgen id is the primary key, so the insert doubles as the redelivery
// check: the platform delivers at least once and retries on non-2xx.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordEvent stores the raw delivery and reports whether this leadgen id
// was seen for the first time. A redelivery leaves the stored row untouched.
func (r *Repository) RecordEvent(ctx context.Context, leadgenID, pageID, formID string, payload []byte) (bool, error) {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO webhook_events (leadgen_id, page_id, form_id, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (leadgen_id) DO NOTHING
	`, leadgenID, pageID, formID, payload)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
