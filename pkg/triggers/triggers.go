// Package triggers defines the business events that drive workflow automation:
// the trigger kinds, their typed payloads, the immutable event envelope, and the
// static catalog consumed by the workflow-builder UI.
package triggers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies which business event occurred.
type Kind string

const (
	KindOrderPlaced           Kind = "order.placed"
	KindCustomerFirstPurchase Kind = "customer.first_purchase"
	KindProductRestocked      Kind = "product.restocked"
	KindProductOutOfStock     Kind = "product.out_of_stock"
	KindProductLowStock       Kind = "product.low_stock"
	KindManual                Kind = "manual"
)

// Payload is the kind-specific body of a trigger event. Each implementation is
// a plain value type; readers receive copies and must never mutate shared state
// through one.
type Payload interface {
	TriggerKind() Kind
}

// Event is the envelope emitted on the bus. It is immutable once created:
// downstream consumers read it, snapshot it into execution records, and that is
// all.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"payload"`
}

// NewEvent wraps a payload into an envelope with a fresh id and timestamp.
func NewEvent(payload Payload) Event {
	return Event{
		ID:        "evt-" + uuid.New().String(),
		Kind:      payload.TriggerKind(),
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// Fields returns the payload as a dotted-path addressable map. Numbers
// normalize to float64 through the JSON form, which is what the condition
// evaluator compares against. The map is a fresh copy on every call.
func (e Event) Fields() (map[string]any, error) {
	if e.Payload == nil {
		return map[string]any{}, nil
	}

	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", e.Kind, err)
	}

	fields := make(map[string]any)

	err = json.Unmarshal(raw, &fields)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild %s payload fields: %w", e.Kind, err)
	}

	return fields, nil
}

type eventAlias struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// UnmarshalJSON decodes the envelope, selecting the payload type from the kind
// discriminator.
func (e *Event) UnmarshalJSON(data []byte) error {
	var alias eventAlias

	err := json.Unmarshal(data, &alias)
	if err != nil {
		return err
	}

	payload, err := decodePayload(alias.Kind, alias.Payload)
	if err != nil {
		return err
	}

	e.ID = alias.ID
	e.Kind = alias.Kind
	e.Timestamp = alias.Timestamp
	e.Payload = payload

	return nil
}

func decodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("trigger event %q: %w", kind, ErrMissingPayload)
	}

	switch kind {
	case KindOrderPlaced:
		var p OrderPlacedPayload

		return p, json.Unmarshal(raw, &p)
	case KindCustomerFirstPurchase:
		var p CustomerFirstPurchasePayload

		return p, json.Unmarshal(raw, &p)
	case KindProductRestocked:
		var p ProductRestockedPayload

		return p, json.Unmarshal(raw, &p)
	case KindProductOutOfStock:
		var p ProductOutOfStockPayload

		return p, json.Unmarshal(raw, &p)
	case KindProductLowStock:
		var p ProductLowStockPayload

		return p, json.Unmarshal(raw, &p)
	case KindManual:
		var p ManualPayload

		return p, json.Unmarshal(raw, &p)
	default:
		return nil, fmt.Errorf("trigger kind %q: %w", kind, ErrUnknownKind)
	}
}

// Kinds lists every supported trigger kind, in catalog order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(catalog))
	for _, entry := range catalog {
		kinds = append(kinds, entry.Kind)
	}

	return kinds
}

// Valid reports whether kind names a supported trigger.
func Valid(kind Kind) bool {
	for _, entry := range catalog {
		if entry.Kind == kind {
			return true
		}
	}

	return false
}
