// Package email provides the send_email action. Delivery goes through the
// Mailer interface so deployments can plug in their own provider; the default
// mailer writes the message to the log, which is enough for development.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/storeflow/storeflow/pkg/template"
	"github.com/storeflow/storeflow/pkg/triggers"
)

var (
	ErrRecipientRequired = errors.New("email recipient is required")
	ErrSubjectRequired   = errors.New("email subject is required")
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers rendered messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	Logger *slog.Logger
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.Logger.InfoContext(ctx, "Sending email",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body,
	)

	return nil
}

// Action renders the recipient, subject, and body templates against the
// trigger event and hands the message to the mailer.
type Action struct {
	To      string
	Subject string
	Body    string

	mailer Mailer
}

func NewAction(params map[string]any, mailer Mailer) (*Action, error) {
	to, _ := params["to"].(string)
	if to == "" {
		return nil, ErrRecipientRequired
	}

	subject, _ := params["subject"].(string)
	if subject == "" {
		return nil, ErrSubjectRequired
	}

	body, _ := params["body"].(string)

	return &Action{
		To:      to,
		Subject: subject,
		Body:    body,
		mailer:  mailer,
	}, nil
}

func (a *Action) Execute(ctx context.Context, event triggers.Event, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "email_action")

	to, err := template.RenderString(a.To, event)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient template: %w", err)
	}

	subject, err := template.RenderString(a.Subject, event)
	if err != nil {
		return nil, fmt.Errorf("invalid subject template: %w", err)
	}

	body, err := template.RenderString(a.Body, event)
	if err != nil {
		return nil, fmt.Errorf("invalid body template: %w", err)
	}

	msg := Message{To: to, Subject: subject, Body: body}

	logger.InfoContext(ctx, "Executing email action", "to", to, "subject", subject)

	err = a.mailer.Send(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	return map[string]any{
		"to":      to,
		"subject": subject,
	}, nil
}
