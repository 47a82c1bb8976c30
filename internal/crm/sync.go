package crm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"leadqual_backend/internal/events"
	"leadqual_backend/platform/logger"
)

// greetingMessage opens the exchange with a fresh lead.
const greetingMessage = "Thanks for reaching out! Tell us a bit about what you're looking for."

// Sync mirrors qualification outcomes into the CRM. It subscribes to lead
// events and writes tags, notes, and new contacts. Conversation IDs are CRM
// contact IDs, so outcome handlers address the contact directly.
type Sync struct {
	client *Client
	log    *logger.Logger
}

func NewSync(client *Client, log *logger.Logger) *Sync {
	return &Sync{client: client, log: log}
}

// Register subscribes the sync handler to the events it mirrors.
func (s *Sync) Register(bus events.Bus) {
	if s.client == nil {
		s.log.Info("crm sync disabled, no api key configured")
		return
	}
	bus.Subscribe(events.LeadCaptured{}.EventName(), s)
	bus.Subscribe(events.LeadQualified{}.EventName(), s)
	bus.Subscribe(events.LeadDisqualified{}.EventName(), s)
	bus.Subscribe(events.ConversationClosed{}.EventName(), s)
}

func (s *Sync) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadCaptured:
		return s.handleLeadCaptured(ctx, e)
	case events.LeadQualified:
		return s.handleLeadQualified(ctx, e)
	case events.LeadDisqualified:
		return s.handleLeadDisqualified(ctx, e)
	case events.ConversationClosed:
		return s.handleConversationClosed(ctx, e)
	default:
		s.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

// handleLeadCaptured upserts the contact for a new ad-platform lead. Existing
// contacts (matched by phone, then email) are updated instead of duplicated.
func (s *Sync) handleLeadCaptured(ctx context.Context, e events.LeadCaptured) error {
	contact, err := s.findExisting(ctx, e.Phone, e.Email)
	if err != nil {
		return err
	}

	params := ContactParams{
		Name:   e.FullName,
		Email:  e.Email,
		Phone:  e.Phone,
		Source: e.Source,
	}

	if contact == nil {
		contact, err = s.client.CreateContact(ctx, params)
		if err != nil {
			return fmt.Errorf("create contact for leadgen %s: %w", e.LeadgenID, err)
		}
	} else if err := s.client.UpdateContact(ctx, contact.ID, params); err != nil {
		return fmt.Errorf("update contact %s: %w", contact.ID, err)
	}

	if err := s.client.AddTag(ctx, contact.ID, "leadgen-"+e.Source); err != nil {
		return err
	}

	// Opening message starts the qualification exchange; the conversation
	// record itself is created lazily when the contact replies.
	if err := s.client.SendMessage(ctx, contact.ID, "SMS", greetingMessage); err != nil {
		s.log.Warn("greeting send failed", "contact_id", contact.ID, "error", err.Error())
	}
	return nil
}

func (s *Sync) handleLeadQualified(ctx context.Context, e events.LeadQualified) error {
	if err := s.client.AddTag(ctx, e.ConversationID, "qualified-"+string(e.Tier)); err != nil {
		return err
	}
	note := fmt.Sprintf("Qualified (%s, score %d)\n%s", e.Tier, e.Score, formatEvidence(e.Evidence))
	return s.client.CreateNote(ctx, e.ConversationID, note)
}

func (s *Sync) handleLeadDisqualified(ctx context.Context, e events.LeadDisqualified) error {
	if err := s.client.AddTag(ctx, e.ConversationID, "disqualified"); err != nil {
		return err
	}
	note := fmt.Sprintf("Disqualified (score %d)\n%s", e.Score, formatEvidence(e.Evidence))
	return s.client.CreateNote(ctx, e.ConversationID, note)
}

func (s *Sync) handleConversationClosed(ctx context.Context, e events.ConversationClosed) error {
	if e.Reason != "idle_timeout" {
		return nil
	}
	return s.client.AddTag(ctx, e.ConversationID, "conversation-expired")
}

func (s *Sync) findExisting(ctx context.Context, phone, email string) (*Contact, error) {
	for _, query := range []string{phone, email} {
		if query == "" {
			continue
		}
		contacts, err := s.client.SearchContacts(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("search contacts: %w", err)
		}
		if len(contacts) > 0 {
			return &contacts[0], nil
		}
	}
	return nil, nil
}

func formatEvidence(evidence map[string]string) string {
	if len(evidence) == 0 {
		return "No answers recorded."
	}
	keys := make([]string, 0, len(evidence))
	for k := range evidence {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, evidence[k])
	}
	return strings.TrimRight(b.String(), "\n")
}
