// Package notify alerts the sales team when a conversation reaches an
// outcome. Delivery is SMTP via go-mail.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"net"
	"sort"
	"strings"
	"time"

	"leadqual_backend/internal/events"
	"leadqual_backend/platform/config"
	"leadqual_backend/platform/logger"

	gomail "github.com/wneessen/go-mail"
)

// Module sends sales notifications for qualified leads. It implements the
// event Handler interface and subscribes itself on Register.
type Module struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
	salesTo   string
	log       *logger.Logger
}

// NewModule creates the notify module. Returns nil when email is not
// configured.
func NewModule(cfg config.EmailConfig, log *logger.Logger) *Module {
	if !cfg.GetEmailEnabled() {
		return nil
	}
	return &Module{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
		salesTo:   cfg.GetSalesEmailAddress(),
		log:       log,
	}
}

// Register subscribes the module to qualification outcomes.
func (m *Module) Register(bus events.Bus) {
	if m == nil {
		return
	}
	bus.Subscribe(events.LeadQualified{}.EventName(), m)
}

func (m *Module) Handle(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadQualified)
	if !ok {
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}

	subject := fmt.Sprintf("Qualified lead (%s, score %d)", e.Tier, e.Score)
	if err := m.send(ctx, m.salesTo, subject, qualifiedBody(e)); err != nil {
		return fmt.Errorf("sales notification for %s: %w", e.ConversationID, err)
	}

	m.log.Info("sales notification sent", "conversation_id", e.ConversationID, "tier", string(e.Tier))
	return nil
}

func (m *Module) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(m.fromName, m.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	client, err := gomail.NewClient(m.host,
		gomail.WithPort(m.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(m.username),
		gomail.WithPassword(m.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func qualifiedBody(e events.LeadQualified) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "<h2>New qualified lead</h2>")
	fmt.Fprintf(&b, "<p>Conversation <strong>%s</strong> qualified as <strong>%s</strong> with score %d.</p>",
		html.EscapeString(e.ConversationID), html.EscapeString(string(e.Tier)), e.Score)

	keys := make([]string, 0, len(e.Evidence))
	for k := range e.Evidence {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString("<ul>")
	for _, k := range keys {
		fmt.Fprintf(&b, "<li><strong>%s</strong>: %s</li>",
			html.EscapeString(strings.ReplaceAll(k, "_", " ")), html.EscapeString(e.Evidence[k]))
	}
	b.WriteString("</ul>")
	return b.String()
}
