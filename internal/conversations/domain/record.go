package domain

import "time"

// AnswerUnparsed is recorded when a reply could not be interpreted for the
// pending question. It counts as answered and contributes zero points, so a
// confusing reply never wedges the conversation.
const AnswerUnparsed = "unparsed"

// Tier is the qualification outcome bucket derived from the score.
type Tier string

// Evidence maps a question key to the collected answer value.
type Evidence map[string]string

// Clone returns an independent copy of the evidence map.
func (e Evidence) Clone() Evidence {
	out := make(Evidence, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Record is the durable state of one lead's conversation. Score and Tier are
// derived from Evidence and recomputed on every update, never set by callers.
type Record struct {
	ConversationID  string
	Stage           Stage
	Evidence        Evidence
	Score           int
	Tier            Tier
	PendingQuestion string
	MessageCount    int
	// Version backs the optimistic-concurrency check in the store. An
	// update commits only when the stored version still matches.
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastMessageAt time.Time
}

// NewRecord creates a fresh record for an unseen conversation id.
func NewRecord(conversationID string, now time.Time) *Record {
	return &Record{
		ConversationID: conversationID,
		Stage:          StageNew,
		Evidence:       make(Evidence),
		CreatedAt:      now,
		UpdatedAt:      now,
		LastMessageAt:  now,
	}
}

// Reset returns the record to the initial stage with evidence cleared.
// Timestamps and message count are preserved for diagnostics.
func (r *Record) Reset(now time.Time) {
	r.Stage = StageNew
	r.Evidence = make(Evidence)
	r.Score = 0
	r.Tier = ""
	r.PendingQuestion = ""
	r.UpdatedAt = now
}

// ExpiredBefore reports whether the record is idle-expired relative to the
// given cutoff.
func (r *Record) ExpiredBefore(cutoff time.Time) bool {
	return r.LastMessageAt.Before(cutoff)
}
