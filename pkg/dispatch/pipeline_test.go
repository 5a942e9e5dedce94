package dispatch_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storeflow/storeflow/pkg/actions/email"
	"github.com/storeflow/storeflow/pkg/bus"
	"github.com/storeflow/storeflow/pkg/channels/gochannel"
	"github.com/storeflow/storeflow/pkg/conditions"
	"github.com/storeflow/storeflow/pkg/dispatch"
	"github.com/storeflow/storeflow/pkg/models"
	"github.com/storeflow/storeflow/pkg/persistence/memory"
	"github.com/storeflow/storeflow/pkg/queue/watermillqueue"
	"github.com/storeflow/storeflow/pkg/registry"
	"github.com/storeflow/storeflow/pkg/retry"
	"github.com/storeflow/storeflow/pkg/triggers"
	"github.com/storeflow/storeflow/pkg/worker"
)

// Emits an order event through the bus and lets the real pipeline run it to
// completion: dispatcher match, pending record, watermill queue, worker pool,
// send_email action.
func TestPipelineOrderPlacedToSucceededExecution(t *testing.T) {
	logger := slog.Default()
	store := memory.NewPersistence()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	q := watermillqueue.New(pub, sub, watermillqueue.DefaultTopic, logger)

	t.Cleanup(func() { _ = q.Close() })

	// The in-process channel drops messages published before the first
	// subscriber attaches, so force the subscription before dispatching.
	forceCtx, forceCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer forceCancel()

	_, err = q.Dequeue(forceCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	reg := registry.NewRegistry(logger)
	reg.Register(email.NewActionFactory(&email.LogMailer{Logger: logger}))

	eventBus := bus.New(logger)
	dispatcher := dispatch.NewDispatcher(logger, nil, store, q, reg)

	t.Cleanup(dispatcher.Attach(eventBus))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := worker.NewPool(logger, nil, store, q, reg, worker.Options{
		Workers:       2,
		ActionTimeout: time.Second,
		RetryPolicy:   retry.Policy{MaxAttempts: 2, InitialDelay: 5 * time.Millisecond, Multiplier: 1.0},
	})
	pool.Start(ctx)

	t.Cleanup(pool.Wait)
	t.Cleanup(cancel)

	bigSpender := &models.Workflow{
		ID:          "wf-thank-you",
		Name:        "Thank big spenders",
		TriggerKind: triggers.KindOrderPlaced,
		Enabled:     true,
		Conditions:  &conditions.Node{Field: "totalAmount", Operator: conditions.OpGreaterThan, Value: 1000},
		Actions: []models.ActionSpec{
			{Kind: "send_email", Parameters: map[string]any{
				"to":      "{{ .event.customerEmail }}",
				"subject": "Thanks, {{ .event.customerName }}!",
			}},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	whale := &models.Workflow{
		ID:          "wf-whale",
		Name:        "Whale outreach",
		TriggerKind: triggers.KindOrderPlaced,
		Enabled:     true,
		Conditions:  &conditions.Node{Field: "totalAmount", Operator: conditions.OpGreaterThan, Value: 10000},
		Actions: []models.ActionSpec{
			{Kind: "send_email", Parameters: map[string]any{"to": "sales@example.com", "subject": "Whale"}},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveWorkflow(ctx, bigSpender))
	require.NoError(t, store.SaveWorkflow(ctx, whale))

	eventBus.Emit(ctx, triggers.OrderPlacedPayload{
		OrderID:       "ord_1",
		CustomerID:    "cus_1",
		CustomerEmail: "ada@example.com",
		CustomerName:  "Ada",
		TotalAmount:   5000,
		Currency:      "USD",
		Items:         []triggers.LineItem{{ProductID: "p1", Quantity: 2}},
	})

	var execution *models.Execution

	require.Eventually(t, func() bool {
		executions, err := store.Executions(ctx)
		if err != nil || len(executions) != 1 {
			return false
		}

		execution = executions[0]

		return execution.Finished()
	}, 5*time.Second, 10*time.Millisecond)

	// Only the >1000 condition matched; the whale workflow produced no record.
	assert.Equal(t, "wf-thank-you", execution.WorkflowID)
	assert.Equal(t, models.ExecutionSucceeded, execution.Status)
	require.Len(t, execution.ActionResults, 1)
	assert.Equal(t, "send_email", execution.ActionResults[0].Kind)
	assert.Equal(t, models.ActionSucceeded, execution.ActionResults[0].Status)
	assert.Equal(t, 1, execution.ActionResults[0].Attempts)
}
