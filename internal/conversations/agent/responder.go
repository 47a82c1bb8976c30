// Package agent composes outbound replies for qualification conversations.
// The state machine decides what to ask next; the agent only rephrases that
// decision into a natural message, so a model outage never changes outcomes.
package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"
	"google.golang.org/genai"

	"github.com/google/uuid"

	"leadqual_backend/internal/conversations/domain"
	"leadqual_backend/internal/conversations/service"
	"leadqual_backend/platform/ai/openaicompat"
	"leadqual_backend/platform/config"
)

// ConversationReader exposes the state the agent may look up mid-reply.
type ConversationReader interface {
	Get(ctx context.Context, conversationID string) (*domain.Record, error)
}

type Responder struct {
	agent          agent.Agent
	runner         *runner.Runner
	sessionService session.Service
	appName        string
	reader         ConversationReader
}

// NewResponder builds the ADK agent. Returns nil when no model API key is
// configured; Compose on a nil receiver falls back to the scripted prompt.
func NewResponder(cfg config.AgentConfig, reader ConversationReader) *Responder {
	if !cfg.IsAgentEnabled() {
		return nil
	}

	llm := openaicompat.NewModel(openaicompat.Config{
		APIKey:  cfg.GetModelAPIKey(),
		BaseURL: cfg.GetModelBaseURL(),
		Model:   cfg.GetModelName(),
	})

	type lookupInput struct {
		ConversationID string `json:"conversationId"`
	}
	type lookupOutput struct {
		Stage    string            `json:"stage"`
		Score    int               `json:"score"`
		Answered map[string]string `json:"answered"`
	}
	lookupTool, err := functiontool.New(functiontool.Config{
		Name:        "LookupConversation",
		Description: "Fetches the current stage, score and recorded answers for a conversation",
	}, func(ctx tool.Context, input lookupInput) (lookupOutput, error) {
		rec, err := reader.Get(context.Background(), input.ConversationID)
		if err != nil {
			return lookupOutput{}, err
		}
		return lookupOutput{
			Stage:    string(rec.Stage),
			Score:    rec.Score,
			Answered: rec.Evidence,
		}, nil
	})
	if err != nil {
		log.Printf("failed to create LookupConversation tool: %v", err)
	}

	tools := make([]tool.Tool, 0, 1)
	if lookupTool != nil {
		tools = append(tools, lookupTool)
	}

	adkAgent, err := llmagent.New(llmagent.Config{
		Name:        "QualificationResponder",
		Model:       llm,
		Description: "Rephrases the next qualification question into a natural reply.",
		Instruction: `You are a friendly sales assistant qualifying inbound leads over chat.

PROTOCOL:
1. You will receive the lead's latest message and the exact question that must be asked next.
2. Briefly acknowledge the lead's message, then ask that question in your own words. Never change its meaning or skip it.
3. If no next question is given, the conversation has an outcome; thank the lead and tell them what happens next.
4. Keep replies under 50 words. Never discuss pricing or make commitments.`,
		Tools: tools,
	})
	if err != nil {
		log.Printf("failed to create ADK agent: %v", err)
	}

	appName := "qualification_responder"
	sessionService := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          adkAgent,
		SessionService: sessionService,
	})
	if err != nil {
		log.Printf("failed to create ADK runner: %v", err)
	}

	return &Responder{
		agent:          adkAgent,
		runner:         r,
		sessionService: sessionService,
		appName:        appName,
		reader:         reader,
	}
}

// Compose turns an orchestrated result into the outbound reply text. Any
// agent failure falls back to the scripted prompt so the turn still answers.
func (r *Responder) Compose(ctx context.Context, inbound string, res *service.Result) string {
	fallback := fallbackReply(res)
	if r == nil || r.runner == nil || r.sessionService == nil {
		return fallback
	}

	prompt := fmt.Sprintf(`Conversation ID: %s
Stage: %s
Lead said: %s
Next question to ask: %s`,
		res.ConversationID, res.Stage, inbound, orNone(res.NextPrompt))

	userMessage := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}

	userID := "conv-" + res.ConversationID
	sessionID := uuid.New().String()

	_, err := r.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   r.appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		log.Printf("failed to create session for %s: %v", res.ConversationID, err)
		return fallback
	}

	var output string
	for event, err := range r.runner.Run(ctx, userID, sessionID, userMessage, agent.RunConfig{StreamingMode: agent.StreamingModeNone}) {
		if err != nil {
			log.Printf("agent run failed for %s: %v", res.ConversationID, err)
			return fallback
		}
		if event.Content != nil {
			for _, part := range event.Content.Parts {
				output += part.Text
			}
		}
	}

	if strings.TrimSpace(output) == "" {
		return fallback
	}
	return strings.TrimSpace(output)
}

// fallbackReply is the scripted reply used when no model is configured or the
// model call fails.
func fallbackReply(res *service.Result) string {
	switch res.Stage {
	case domain.StageQualified:
		return "Great, that's everything we need. One of our specialists will reach out shortly to get you started."
	case domain.StageDisqualified:
		return "Thanks for the details. It doesn't look like we're the right fit today, but we'll keep your info in case that changes."
	case domain.StageClosed:
		return "This conversation has ended. Send us a new message any time to start over."
	default:
		if res.NextPrompt != "" {
			return res.NextPrompt
		}
		return "Thanks for reaching out! Tell us a bit about what you're looking for."
	}
}

func orNone(s string) string {
	if s == "" {
		return "none (conversation has an outcome)"
	}
	return s
}
