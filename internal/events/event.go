// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"leadqual_backend/internal/conversations/domain"
	"leadqual_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Conversation Domain Events
// =============================================================================

// ConversationStarted is published when a first signal creates a record.
type ConversationStarted struct {
	BaseEvent
	ConversationID string `json:"conversationId"`
	Source         string `json:"source,omitempty"`
}

func (e ConversationStarted) EventName() string { return "conversations.started" }

// StageChanged is published whenever a signal moves a conversation to a
// different stage.
type StageChanged struct {
	BaseEvent
	ConversationID string       `json:"conversationId"`
	OldStage       domain.Stage `json:"oldStage"`
	NewStage       domain.Stage `json:"newStage"`
	Signal         string       `json:"signal"`
	Score          int          `json:"score"`
	Tier           domain.Tier  `json:"tier"`
}

func (e StageChanged) EventName() string { return "conversations.stage.changed" }

// LeadQualified is published when a conversation reaches QUALIFIED.
// Downstream handlers tag the CRM contact and alert sales.
type LeadQualified struct {
	BaseEvent
	ConversationID string          `json:"conversationId"`
	Score          int             `json:"score"`
	Tier           domain.Tier     `json:"tier"`
	Evidence       domain.Evidence `json:"evidence"`
}

func (e LeadQualified) EventName() string { return "conversations.lead.qualified" }

// LeadDisqualified is published when a conversation reaches DISQUALIFIED.
type LeadDisqualified struct {
	BaseEvent
	ConversationID string          `json:"conversationId"`
	Score          int             `json:"score"`
	Tier           domain.Tier     `json:"tier"`
	Evidence       domain.Evidence `json:"evidence"`
}

func (e LeadDisqualified) EventName() string { return "conversations.lead.disqualified" }

// ConversationClosed is published when a conversation reaches CLOSED, either
// through the idle sweep or an explicit close.
type ConversationClosed struct {
	BaseEvent
	ConversationID string `json:"conversationId"`
	Reason         string `json:"reason"` // "idle_timeout" or "explicit"
}

func (e ConversationClosed) EventName() string { return "conversations.closed" }

// =============================================================================
// Webhook Domain Events
// =============================================================================

// LeadCaptured is published when an ad-platform webhook delivers a new lead.
// The CRM sync handler creates or updates the contact from it.
type LeadCaptured struct {
	BaseEvent
	LeadgenID string `json:"leadgenId"`
	PageID    string `json:"pageId"`
	FormID    string `json:"formId"`
	FullName  string `json:"fullName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Source    string `json:"source"`
}

func (e LeadCaptured) EventName() string { return "webhook.lead.captured" }
