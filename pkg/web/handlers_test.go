package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storeflow/storeflow/pkg/actions/logaction"
	"github.com/storeflow/storeflow/pkg/bus"
	"github.com/storeflow/storeflow/pkg/models"
	"github.com/storeflow/storeflow/pkg/persistence/memory"
	"github.com/storeflow/storeflow/pkg/registry"
	"github.com/storeflow/storeflow/pkg/triggers"
	"github.com/storeflow/storeflow/pkg/web"
)

func setupTestApp(t *testing.T) (*fiber.App, *memory.Persistence, *bus.Bus) {
	t.Helper()

	store := memory.NewPersistence()

	reg := registry.NewRegistry(slog.Default())
	reg.Register(logaction.NewActionFactory())

	b := bus.New(slog.Default())

	handlers := web.NewAPIHandlers(slog.Default(), store, reg, b)

	return web.NewApp(handlers), store, b
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody(t *testing.T, resp *http.Response, target any) {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, target))
}

func TestHealthCheck(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp := doRequest(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetTriggersListsCatalog(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp := doRequest(t, app, http.MethodGet, "/triggers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Triggers []triggers.CatalogEntry `json:"triggers"`
	}

	decodeBody(t, resp, &body)
	assert.Len(t, body.Triggers, len(triggers.Kinds()))
}

func TestGetActionsListsSchemas(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp := doRequest(t, app, http.MethodGet, "/actions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Actions []web.ActionKindResponse `json:"actions"`
	}

	decodeBody(t, resp, &body)
	require.Len(t, body.Actions, 1)
	assert.Equal(t, "log", body.Actions[0].Kind)
	assert.NotEmpty(t, body.Actions[0].Schema)
}

func TestCreateWorkflow(t *testing.T) {
	app, store, _ := setupTestApp(t)

	resp := doRequest(t, app, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		Name:        "Order follow-up",
		TriggerKind: triggers.KindOrderPlaced,
		Actions: []models.ActionSpec{
			{Kind: "log", Parameters: map[string]any{"message": "order placed"}},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var workflow models.Workflow

	decodeBody(t, resp, &workflow)
	assert.NotEmpty(t, workflow.ID)
	assert.True(t, workflow.Enabled)

	saved, err := store.WorkflowByID(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "Order follow-up", saved.Name)
}

func TestCreateWorkflowRejectsMissingActions(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp := doRequest(t, app, http.MethodPost, "/workflows", map[string]any{
		"name":         "No actions",
		"trigger_kind": "order.placed",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateWorkflowRejectsUnknownTrigger(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp := doRequest(t, app, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		Name:        "Bad trigger",
		TriggerKind: "meteor.strike",
		Actions:     []models.ActionSpec{{Kind: "log"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateWorkflow(t *testing.T) {
	app, store, _ := setupTestApp(t)

	workflow := &models.Workflow{
		ID:          "wf-1",
		Name:        "Original name",
		TriggerKind: triggers.KindOrderPlaced,
		Enabled:     true,
		Actions:     []models.ActionSpec{{Kind: "log"}},
	}
	require.NoError(t, store.SaveWorkflow(context.Background(), workflow))

	resp := doRequest(t, app, http.MethodPatch, "/workflows/wf-1", map[string]any{
		"name":    "Renamed workflow",
		"enabled": false,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	saved, err := store.WorkflowByID(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed workflow", saved.Name)
	assert.False(t, saved.Enabled)
	assert.Equal(t, triggers.KindOrderPlaced, saved.TriggerKind)
}

func TestGetWorkflowNotFound(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp := doRequest(t, app, http.MethodGet, "/workflows/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteWorkflow(t *testing.T) {
	app, store, _ := setupTestApp(t)

	workflow := &models.Workflow{
		ID:          "wf-1",
		Name:        "To be deleted",
		TriggerKind: triggers.KindOrderPlaced,
		Actions:     []models.ActionSpec{{Kind: "log"}},
	}
	require.NoError(t, store.SaveWorkflow(context.Background(), workflow))

	resp := doRequest(t, app, http.MethodDelete, "/workflows/wf-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doRequest(t, app, http.MethodDelete, "/workflows/wf-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetExecutionsFiltersByWorkflow(t *testing.T) {
	app, store, _ := setupTestApp(t)

	workflow := &models.Workflow{
		ID:          "wf-1",
		Name:        "Order follow-up",
		TriggerKind: triggers.KindOrderPlaced,
		Actions:     []models.ActionSpec{{Kind: "log"}},
	}

	event := triggers.NewEvent(triggers.OrderPlacedPayload{OrderID: "ord-1", TotalAmount: 100, Currency: "USD"})

	first := models.NewExecution(workflow, event)
	require.NoError(t, store.SaveExecution(context.Background(), first))

	other := models.NewExecution(&models.Workflow{
		ID: "wf-2", Name: "Other", TriggerKind: triggers.KindOrderPlaced,
		Actions: []models.ActionSpec{{Kind: "log"}},
	}, event)
	require.NoError(t, store.SaveExecution(context.Background(), other))

	resp := doRequest(t, app, http.MethodGet, "/executions?workflow_id=wf-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Executions []*models.Execution `json:"executions"`
	}

	decodeBody(t, resp, &body)
	require.Len(t, body.Executions, 1)
	assert.Equal(t, first.ID, body.Executions[0].ID)
}

func TestGetExecutionByID(t *testing.T) {
	app, store, _ := setupTestApp(t)

	workflow := &models.Workflow{
		ID: "wf-1", Name: "Order follow-up", TriggerKind: triggers.KindOrderPlaced,
		Actions: []models.ActionSpec{{Kind: "log"}},
	}
	execution := models.NewExecution(workflow, triggers.NewEvent(triggers.OrderPlacedPayload{OrderID: "ord-1"}))
	require.NoError(t, store.SaveExecution(context.Background(), execution))

	resp := doRequest(t, app, http.MethodGet, "/executions/"+execution.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched models.Execution

	decodeBody(t, resp, &fetched)
	assert.Equal(t, execution.ID, fetched.ID)
	assert.Equal(t, models.ExecutionPending, fetched.Status)

	resp = doRequest(t, app, http.MethodGet, "/executions/exec-missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTestTriggerEmitsSamplePayload(t *testing.T) {
	app, _, b := setupTestApp(t)

	received := make(chan triggers.Event, 1)

	b.Subscribe(triggers.KindOrderPlaced, func(_ context.Context, event triggers.Event) error {
		received <- event

		return nil
	})

	resp := doRequest(t, app, http.MethodPost, "/triggers/order.placed/test", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body web.TestTriggerResponse

	decodeBody(t, resp, &body)
	assert.NotEmpty(t, body.EventID)

	select {
	case event := <-received:
		assert.Equal(t, triggers.KindOrderPlaced, event.Kind)
	default:
		t.Fatal("no event reached the bus")
	}
}

func TestTestTriggerWithCustomPayload(t *testing.T) {
	app, _, b := setupTestApp(t)

	received := make(chan triggers.Event, 1)

	b.Subscribe(triggers.KindProductLowStock, func(_ context.Context, event triggers.Event) error {
		received <- event

		return nil
	})

	resp := doRequest(t, app, http.MethodPost, "/triggers/product.low_stock/test", map[string]any{
		"productId": "prod-9",
		"name":      "Tea Kettle",
		"quantity":  2,
		"threshold": 5,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case event := <-received:
		payload, ok := event.Payload.(triggers.ProductLowStockPayload)
		require.True(t, ok)
		assert.Equal(t, "prod-9", payload.ProductID)
		assert.Equal(t, 2, payload.Quantity)
	default:
		t.Fatal("no event reached the bus")
	}
}

func TestTestTriggerUnknownKind(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp := doRequest(t, app, http.MethodPost, "/triggers/meteor.strike/test", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTestTriggerRejectsMalformedBody(t *testing.T) {
	app, _, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/triggers/order.placed/test", bytes.NewReader([]byte(`{not json`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
