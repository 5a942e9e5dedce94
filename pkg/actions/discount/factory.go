package discount

import (
	"context"

	"github.com/storeflow/storeflow/pkg/registry"
)

// ActionFactory creates discount actions bound to an issuer.
type ActionFactory struct {
	issuer Issuer
}

func NewActionFactory(issuer Issuer) *ActionFactory {
	return &ActionFactory{issuer: issuer}
}

func (f *ActionFactory) Create(_ context.Context, params map[string]any) (registry.Action, error) {
	return NewAction(params, f.issuer)
}

func (f *ActionFactory) ID() string {
	return "apply_discount"
}

func (f *ActionFactory) Name() string {
	return "Apply Discount"
}

func (f *ActionFactory) Description() string {
	return "Issues a single-use discount code for the customer referenced by the event."
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"percent": map[string]any{
				"type":        "number",
				"description": "Discount percentage to grant.",
				"minimum":     1,
				"maximum":     100,
			},
			"customer_id": map[string]any{
				"type":        "string",
				"description": "Customer to issue the code for. Defaults to the event's customer.",
				"default":     "{{ .event.customerId }}",
			},
			"valid_days": map[string]any{
				"type":        "integer",
				"description": "Days until the code expires.",
				"default":     30,
				"minimum":     1,
			},
			"prefix": map[string]any{
				"type":        "string",
				"description": "Prefix for generated codes.",
				"default":     "SAVE",
			},
		},
		"required":             []string{"percent"},
		"additionalProperties": false,
	}
}
