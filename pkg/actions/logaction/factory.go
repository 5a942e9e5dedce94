package logaction

import (
	"context"

	"github.com/storeflow/storeflow/pkg/registry"
)

type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (f *ActionFactory) Create(_ context.Context, params map[string]any) (registry.Action, error) {
	if params == nil {
		params = map[string]any{}
	}

	return NewAction(params), nil
}

func (f *ActionFactory) ID() string {
	return "log"
}

func (f *ActionFactory) Name() string {
	return "Log"
}

func (f *ActionFactory) Description() string {
	return "Writes a templated message to the engine log."
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message template.",
				"examples": []string{
					"Order {{ .event.orderId }} placed for {{ .event.totalAmount }}",
				},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level to write at.",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "error"},
			},
		},
		"additionalProperties": false,
	}
}
