// Package transport defines the request and response DTOs for the
// conversations diagnostics API.
package transport

import (
	"time"

	"leadqual_backend/internal/conversations/domain"
)

// InjectSignalRequest is the admin request to apply a signal manually.
type InjectSignalRequest struct {
	Kind     string `json:"kind" validate:"required,oneof=answer free_text system_reset"`
	Payload  string `json:"payload" validate:"max=4000"`
	DedupKey string `json:"dedupKey,omitempty" validate:"max=200"`
}

// ConversationResponse is the diagnostics view of one conversation.
type ConversationResponse struct {
	ConversationID  string            `json:"conversationId"`
	Stage           string            `json:"stage"`
	Score           int               `json:"score"`
	Tier            string            `json:"tier"`
	Evidence        map[string]string `json:"evidence"`
	PendingQuestion string            `json:"pendingQuestion,omitempty"`
	MessageCount    int               `json:"messageCount"`
	Version         int64             `json:"version"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
	LastMessageAt   time.Time         `json:"lastMessageAt"`
}

// ListConversationsResponse is a keyset page of conversations.
type ListConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
	NextAfter     string                 `json:"nextAfter,omitempty"`
}

// FunnelSummaryResponse reports conversation counts per stage.
type FunnelSummaryResponse struct {
	Stages map[string]int `json:"stages"`
	Total  int            `json:"total"`
}

// FromRecord maps a domain record to its response DTO.
func FromRecord(rec *domain.Record) ConversationResponse {
	return ConversationResponse{
		ConversationID:  rec.ConversationID,
		Stage:           string(rec.Stage),
		Score:           rec.Score,
		Tier:            string(rec.Tier),
		Evidence:        rec.Evidence,
		PendingQuestion: rec.PendingQuestion,
		MessageCount:    rec.MessageCount,
		Version:         rec.Version,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
		LastMessageAt:   rec.LastMessageAt,
	}
}
