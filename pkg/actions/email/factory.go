package email

import (
	"context"

	"github.com/storeflow/storeflow/pkg/registry"
)

// ActionFactory creates email actions bound to a mailer.
type ActionFactory struct {
	mailer Mailer
}

func NewActionFactory(mailer Mailer) *ActionFactory {
	return &ActionFactory{mailer: mailer}
}

func (f *ActionFactory) Create(_ context.Context, params map[string]any) (registry.Action, error) {
	return NewAction(params, f.mailer)
}

func (f *ActionFactory) ID() string {
	return "send_email"
}

func (f *ActionFactory) Name() string {
	return "Send Email"
}

func (f *ActionFactory) Description() string {
	return "Sends an email rendered from the trigger event."
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"type":        "string",
				"description": "Recipient address. Supports templating with event fields.",
				"examples": []string{
					"{{ .event.customerEmail }}",
					"ops@example.com",
				},
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "Subject line template.",
				"examples": []string{
					"Thanks for your order {{ .event.orderId }}",
				},
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Body template.",
			},
		},
		"required":             []string{"to", "subject"},
		"additionalProperties": false,
	}
}
