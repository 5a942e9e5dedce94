package webhook

import (
	"context"

	"github.com/storeflow/storeflow/pkg/registry"
)

// ActionFactory creates webhook actions.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (f *ActionFactory) Create(_ context.Context, params map[string]any) (registry.Action, error) {
	return NewAction(params)
}

func (f *ActionFactory) ID() string {
	return "send_webhook"
}

func (f *ActionFactory) Name() string {
	return "Send Webhook"
}

func (f *ActionFactory) Description() string {
	return "Delivers the trigger event to an external HTTP endpoint."
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to deliver the event to. Supports templating with event fields.",
				"examples": []string{
					"https://hooks.example.com/orders",
					"https://hooks.example.com/orders/{{ .event.orderId }}",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use.",
				"default":     "POST",
				"enum":        []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers to include. Values support templating.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body template. Defaults to the full event envelope as JSON.",
				"examples": []string{
					`{"order": "{{ .event.orderId }}", "total": {{ .event.totalAmount }}}`,
				},
			},
			"timeout_seconds": map[string]any{
				"type":        "integer",
				"description": "Request timeout in seconds.",
				"default":     30,
				"minimum":     1,
				"maximum":     300,
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}
