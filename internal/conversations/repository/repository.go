// Package repository persists conversation state records in Postgres.
// All access to the conversations table goes through this package.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"leadqual_backend/internal/conversations/domain"
	"leadqual_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `conversation_id, stage, evidence, score, tier, pending_question,
	message_count, version, created_at, updated_at, last_message_at`

// Get loads one record by conversation id.
func (r *Repository) Get(ctx context.Context, conversationID string) (*domain.Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM conversations
		WHERE conversation_id = $1
	`, conversationID)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("conversation not found").WithOp("repository.Get")
		}
		return nil, storeErr("repository.Get", err)
	}
	return rec, nil
}

// Create inserts a fresh record. Fails with Conflict when the conversation
// id already exists.
func (r *Repository) Create(ctx context.Context, rec *domain.Record) error {
	evidence, err := json.Marshal(rec.Evidence)
	if err != nil {
		return storeErr("repository.Create", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO conversations (
			conversation_id, stage, evidence, score, tier, pending_question,
			message_count, version, created_at, updated_at, last_message_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		rec.ConversationID, string(rec.Stage), evidence, rec.Score, string(rec.Tier),
		rec.PendingQuestion, rec.MessageCount, rec.Version,
		rec.CreatedAt, rec.UpdatedAt, rec.LastMessageAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperr.Conflict("conversation already exists").WithOp("repository.Create")
		}
		return storeErr("repository.Create", err)
	}
	return nil
}

// GetOrCreate returns the existing record or inserts a fresh one. A racing
// insert by another caller is resolved by re-reading.
func (r *Repository) GetOrCreate(ctx context.Context, conversationID string, now time.Time) (*domain.Record, error) {
	rec, err := r.Get(ctx, conversationID)
	if err == nil {
		return rec, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	fresh := domain.NewRecord(conversationID, now)
	if createErr := r.Create(ctx, fresh); createErr != nil {
		if apperr.Is(createErr, apperr.KindConflict) {
			return r.Get(ctx, conversationID)
		}
		return nil, createErr
	}
	return fresh, nil
}

// Update commits a mutated record with an optimistic-concurrency check.
// The write succeeds only when the stored version still equals rec.Version;
// on success the in-memory version is bumped to match the row. A stale
// version fails with Conflict so the caller can reload and retry.
func (r *Repository) Update(ctx context.Context, rec *domain.Record) error {
	evidence, err := json.Marshal(rec.Evidence)
	if err != nil {
		return storeErr("repository.Update", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET stage = $2,
			evidence = $3,
			score = $4,
			tier = $5,
			pending_question = $6,
			message_count = $7,
			version = version + 1,
			updated_at = $8,
			last_message_at = $9
		WHERE conversation_id = $1 AND version = $10
	`,
		rec.ConversationID, string(rec.Stage), evidence, rec.Score, string(rec.Tier),
		rec.PendingQuestion, rec.MessageCount,
		rec.UpdatedAt, rec.LastMessageAt, rec.Version,
	)
	if err != nil {
		return storeErr("repository.Update", err)
	}

	if tag.RowsAffected() == 0 {
		if _, getErr := r.Get(ctx, rec.ConversationID); apperr.Is(getErr, apperr.KindNotFound) {
			return apperr.NotFound("conversation not found").WithOp("repository.Update")
		}
		return apperr.Conflict("conversation was modified concurrently").WithOp("repository.Update")
	}

	rec.Version++
	return nil
}

// Delete removes a record. Used by the administrative purge only; normal
// flow never deletes.
func (r *Repository) Delete(ctx context.Context, conversationID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM conversations WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return storeErr("repository.Delete", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("conversation not found").WithOp("repository.Delete")
	}
	return nil
}

// ListExpired returns records idle since before the cutoff that are not yet
// closed, up to limit. The sweep closes them one by one through the normal
// update path.
func (r *Repository) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM conversations
		WHERE last_message_at < $1 AND stage <> $2
		ORDER BY last_message_at ASC
		LIMIT $3
	`, cutoff, string(domain.StageClosed), limit)
	if err != nil {
		return nil, storeErr("repository.ListExpired", err)
	}
	defer rows.Close()

	return collectRecords(rows, "repository.ListExpired")
}

// ListActive returns a keyset page of non-closed records ordered by
// conversation id. Pass the last id of the previous page to continue;
// an empty afterID starts from the beginning.
func (r *Repository) ListActive(ctx context.Context, afterID string, limit int) ([]*domain.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM conversations
		WHERE stage <> $1 AND conversation_id > $2
		ORDER BY conversation_id ASC
		LIMIT $3
	`, string(domain.StageClosed), afterID, limit)
	if err != nil {
		return nil, storeErr("repository.ListActive", err)
	}
	defer rows.Close()

	return collectRecords(rows, "repository.ListActive")
}

// StageCounts returns the number of records per stage for the funnel
// summary endpoint.
func (r *Repository) StageCounts(ctx context.Context) (map[domain.Stage]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT stage, COUNT(*)
		FROM conversations
		GROUP BY stage
	`)
	if err != nil {
		return nil, storeErr("repository.StageCounts", err)
	}
	defer rows.Close()

	counts := make(map[domain.Stage]int)
	for rows.Next() {
		var stage string
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, storeErr("repository.StageCounts", err)
		}
		counts[domain.Stage(stage)] = count
	}
	if rows.Err() != nil {
		return nil, storeErr("repository.StageCounts", rows.Err())
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.Record, error) {
	var rec domain.Record
	var stage, tier string
	var evidence []byte

	err := row.Scan(
		&rec.ConversationID, &stage, &evidence, &rec.Score, &tier,
		&rec.PendingQuestion, &rec.MessageCount, &rec.Version,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.LastMessageAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Stage = domain.Stage(stage)
	rec.Tier = domain.Tier(tier)
	rec.Evidence = make(domain.Evidence)
	if len(evidence) > 0 {
		if err := json.Unmarshal(evidence, &rec.Evidence); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

func collectRecords(rows pgx.Rows, op string) ([]*domain.Record, error) {
	records := make([]*domain.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storeErr(op, err)
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, storeErr(op, rows.Err())
	}
	return records, nil
}

func storeErr(op string, err error) error {
	return apperr.Wrap(apperr.KindUnavailable, "conversation store unavailable", err).WithOp(op)
}
