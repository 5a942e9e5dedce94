package template

import (
	"testing"
	"time"

	"github.com/storeflow/storeflow/pkg/triggers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderEvent(t *testing.T) triggers.Event {
	t.Helper()

	return triggers.Event{
		ID:        "evt-1",
		Kind:      triggers.KindOrderPlaced,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Payload: triggers.OrderPlacedPayload{
			OrderID:       "ord-1",
			CustomerID:    "cus-1",
			CustomerEmail: "jamie@example.com",
			CustomerName:  "Jamie",
			TotalAmount:   5000,
			Currency:      "USD",
		},
	}
}

func TestRenderForEventInterpolatesPayloadFields(t *testing.T) {
	result, err := RenderForEvent("Hello {{ .event.customerName }}", orderEvent(t))
	require.NoError(t, err)
	assert.Equal(t, "Hello Jamie", result)
}

func TestRenderForEventExposesEnvelope(t *testing.T) {
	result, err := RenderForEvent("{{ .trigger.kind }}/{{ .trigger.id }}", orderEvent(t))
	require.NoError(t, err)
	assert.Equal(t, "order.placed/evt-1", result)
}

func TestRenderCoercesNumbers(t *testing.T) {
	result, err := RenderForEvent("{{ .event.totalAmount }}", orderEvent(t))
	require.NoError(t, err)
	assert.Equal(t, float64(5000), result)
}

func TestRenderParsesJSONOutput(t *testing.T) {
	result, err := RenderForEvent(`{"order": "{{ .event.orderId }}"}`, orderEvent(t))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"order": "ord-1"}, result)
}

func TestRenderParamsWalksNestedValues(t *testing.T) {
	params := map[string]any{
		"to":      "{{ .event.customerEmail }}",
		"retries": 3,
		"headers": map[string]any{
			"X-Order": "{{ .event.orderId }}",
		},
		"tags": []any{"order", "{{ .event.currency }}"},
	}

	rendered, err := RenderParams(params, orderEvent(t))
	require.NoError(t, err)

	assert.Equal(t, "jamie@example.com", rendered["to"])
	assert.Equal(t, 3, rendered["retries"])
	assert.Equal(t, map[string]any{"X-Order": "ord-1"}, rendered["headers"])
	assert.Equal(t, []any{"order", "USD"}, rendered["tags"])
}

func TestRenderStringStringifiesNumbers(t *testing.T) {
	result, err := RenderString("{{ .event.totalAmount }}", orderEvent(t))
	require.NoError(t, err)
	assert.Equal(t, "5000", result)
}

func TestRenderFailsOnBadTemplate(t *testing.T) {
	_, err := RenderForEvent("{{ .event.customerName", orderEvent(t))
	assert.Error(t, err)
}
