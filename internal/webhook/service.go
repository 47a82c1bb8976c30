// Package webhook receives inbound traffic from the ad platform and the CRM:
// leadgen captures, conversation messages, and the subscription handshake.
package webhook

import (
	"context"
	"strings"
	"time"

	"leadqual_backend/internal/conversations/domain"
	"leadqual_backend/internal/conversations/service"
	"leadqual_backend/internal/events"
	"leadqual_backend/internal/scheduler"
	"leadqual_backend/platform/apperr"
	"leadqual_backend/platform/config"
	"leadqual_backend/platform/logger"

	"golang.org/x/sync/errgroup"
)

// followUpDelay is how long a pending question may sit unanswered before a
// nudge is sent.
const followUpDelay = 4 * time.Hour

// Orchestrator applies one inbound signal to one conversation. Satisfied by
// conversations/service.Service.
type Orchestrator interface {
	HandleInbound(ctx context.Context, conversationID string, sig domain.Signal) (*service.Result, error)
}

// ReplyComposer turns an orchestrated result into outbound reply text.
type ReplyComposer interface {
	Compose(ctx context.Context, inbound string, res *service.Result) string
}

// MessageSender delivers outbound replies to the contact. Satisfied by
// crm.Client.
type MessageSender interface {
	SendMessage(ctx context.Context, contactID, channel, message string) error
}

// EventRecorder persists raw leadgen deliveries and detects redelivered
// leadgen ids. Satisfied by Repository.
type EventRecorder interface {
	RecordEvent(ctx context.Context, leadgenID, pageID, formID string, payload []byte) (bool, error)
}

// LeadgenNotification is the ad platform's webhook payload. Only leadgen
// changes are processed; other change fields are acknowledged and dropped.
type LeadgenNotification struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Time    int64  `json:"time"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				LeadgenID   string `json:"leadgen_id"`
				PageID      string `json:"page_id"`
				FormID      string `json:"form_id"`
				CreatedTime int64  `json:"created_time"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// InboundMessage is the CRM's conversation webhook payload.
type InboundMessage struct {
	Type      string `json:"type" validate:"required"`
	ContactID string `json:"contactId" validate:"required"`
	MessageID string `json:"messageId"`
	Channel   string `json:"messageType"`
	Body      string `json:"body"`
}

type Service struct {
	orchestrator Orchestrator
	composer     ReplyComposer
	sender       MessageSender
	graph        *GraphClient
	recorder     EventRecorder
	bus          events.Bus
	followups    scheduler.FollowUpScheduler
	verifyToken  string
	log          *logger.Logger
}

func NewService(orchestrator Orchestrator, composer ReplyComposer, sender MessageSender, graph *GraphClient, recorder EventRecorder, bus events.Bus, cfg config.MetaWebhookConfig, log *logger.Logger) *Service {
	return &Service{
		orchestrator: orchestrator,
		composer:     composer,
		sender:       sender,
		graph:        graph,
		recorder:     recorder,
		bus:          bus,
		verifyToken:  cfg.GetMetaVerifyToken(),
		log:          log,
	}
}

// SetFollowUpScheduler wires the optional follow-up scheduler. Without one,
// stalled conversations are only closed by the idle sweep.
func (s *Service) SetFollowUpScheduler(f scheduler.FollowUpScheduler) {
	s.followups = f
}

// VerifyChallenge implements the subscription handshake: the platform sends
// hub.mode=subscribe with a verify token, and expects the challenge echoed
// back verbatim on match.
func (s *Service) VerifyChallenge(mode, token, challenge string) (string, error) {
	if mode != "subscribe" {
		return "", apperr.BadRequest("unsupported hub.mode").WithOp("webhook.VerifyChallenge")
	}
	if token == "" || token != s.verifyToken {
		return "", apperr.Unauthorized("verify token mismatch").WithOp("webhook.VerifyChallenge")
	}
	return challenge, nil
}

// ProcessLeadgen handles one verified leadgen notification. Each change is
// recorded, resolved against the Graph API concurrently, and published as a
// LeadCaptured event; a single failed change fails the request so the
// platform redelivers. Redelivered leadgen ids are acknowledged and skipped.
func (s *Service) ProcessLeadgen(ctx context.Context, payload LeadgenNotification, raw []byte) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	accepted := 0
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "leadgen" {
				s.log.WithContext(ctx).WebhookEvent("meta", change.Field, false, "unsupported change field")
				continue
			}
			accepted++
			value := change.Value
			g.Go(func() error {
				return s.captureLead(gctx, value.LeadgenID, value.PageID, value.FormID, raw)
			})
		}
	}

	if err := g.Wait(); err != nil {
		return accepted, err
	}
	return accepted, nil
}

func (s *Service) captureLead(ctx context.Context, leadgenID, pageID, formID string, raw []byte) error {
	if s.recorder != nil {
		first, err := s.recorder.RecordEvent(ctx, leadgenID, pageID, formID, raw)
		if err != nil {
			return err
		}
		if !first {
			s.log.WithContext(ctx).WebhookEvent("meta", "leadgen", false, "redelivered leadgen id")
			return nil
		}
	}

	event := events.LeadCaptured{
		BaseEvent: events.NewBaseEvent(),
		LeadgenID: leadgenID,
		PageID:    pageID,
		FormID:    formID,
		Source:    "meta",
	}

	lead, err := s.graph.FetchLead(ctx, leadgenID)
	if err != nil {
		s.log.WithContext(ctx).Error("leadgen fetch failed", "leadgen_id", leadgenID, "error", err.Error())
		return err
	}
	if lead != nil {
		extracted := ExtractLead(lead.FieldData)
		if extracted.IsIncomplete() {
			s.log.WithContext(ctx).WebhookEvent("meta", "leadgen", false, "no contact fields extracted")
		}
		event.FullName = extracted.FullName
		event.Email = extracted.Email
		event.Phone = extracted.Phone
	}

	s.log.WithContext(ctx).WebhookEvent("meta", "leadgen", true, "")
	s.bus.Publish(ctx, event)
	return nil
}

// ProcessMessage routes one CRM conversation message through the
// orchestrator and sends the composed reply back. The CRM contact id is the
// conversation id.
func (s *Service) ProcessMessage(ctx context.Context, msg InboundMessage) (*service.Result, error) {
	if msg.Type != "InboundMessage" {
		s.log.WithContext(ctx).WebhookEvent("crm", msg.Type, false, "unsupported event type")
		return nil, apperr.BadRequest("unsupported event type").WithOp("webhook.ProcessMessage")
	}

	sig := domain.Signal{
		Kind:     domain.SignalAnswer,
		Payload:  strings.TrimSpace(msg.Body),
		DedupKey: msg.MessageID,
	}

	res, err := s.orchestrator.HandleInbound(ctx, msg.ContactID, sig)
	if err != nil {
		return nil, err
	}

	if res.Duplicate {
		s.log.WithContext(ctx).WebhookEvent("crm", msg.Type, true, "duplicate delivery")
		return res, nil
	}

	s.reply(ctx, msg, res)
	return res, nil
}

// reply composes and sends the outbound message. Send failures are logged
// but do not fail the turn: the state change is already committed.
func (s *Service) reply(ctx context.Context, msg InboundMessage, res *service.Result) {
	if s.sender == nil || res.Stage == domain.StageClosed {
		return
	}

	text := res.NextPrompt
	if s.composer != nil {
		text = s.composer.Compose(ctx, msg.Body, res)
	}
	if text == "" {
		return
	}

	channel := msg.Channel
	if channel == "" {
		channel = "SMS"
	}
	if err := s.sender.SendMessage(ctx, msg.ContactID, channel, text); err != nil {
		s.log.WithContext(ctx).Error("outbound reply failed",
			"conversation_id", msg.ContactID, "error", err.Error())
		return
	}

	if s.followups != nil && res.NextQuestion != "" {
		err := s.followups.ScheduleFollowUp(ctx, scheduler.FollowUpPayload{
			ConversationID: msg.ContactID,
			Question:       res.NextQuestion,
			Channel:        channel,
		}, time.Now().Add(followUpDelay))
		if err != nil {
			s.log.WithContext(ctx).Warn("follow-up scheduling failed",
				"conversation_id", msg.ContactID, "error", err.Error())
		}
	}
}
