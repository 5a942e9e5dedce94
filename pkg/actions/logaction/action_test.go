package logaction

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storeflow/storeflow/pkg/triggers"
)

func TestNewActionDefaults(t *testing.T) {
	action := NewAction(map[string]any{})
	assert.Equal(t, "Workflow action fired", action.Message)
	assert.Equal(t, "info", action.Level)
}

func TestExecuteRendersMessage(t *testing.T) {
	action := NewAction(map[string]any{
		"message": "Restocked {{ .event.productId }}",
		"level":   "warn",
	})

	event := triggers.Event{
		ID:        "evt-1",
		Kind:      triggers.KindProductRestocked,
		Timestamp: time.Now().UTC(),
		Payload: triggers.ProductRestockedPayload{
			ProductID: "prod-1",
			Name:      "Tea Kettle",
			Quantity:  12,
		},
	}

	result, err := action.Execute(context.Background(), event, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "Restocked prod-1", result["message"])
}

func TestFactoryCreateAcceptsNilParams(t *testing.T) {
	factory := NewActionFactory()
	assert.Equal(t, "log", factory.ID())

	action, err := factory.Create(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, action)
}
