// Package web provides the REST API for workflow management, execution
// inspection, and test trigger emission.
package web

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/moogar0880/problems"

	"github.com/storeflow/storeflow/pkg/bus"
	"github.com/storeflow/storeflow/pkg/models"
	"github.com/storeflow/storeflow/pkg/persistence"
	"github.com/storeflow/storeflow/pkg/registry"
	"github.com/storeflow/storeflow/pkg/triggers"
)

type APIHandlers struct {
	logger    *slog.Logger
	store     persistence.Persistence
	registry  *registry.Registry
	bus       *bus.Bus
	validator *validator.Validate
}

func NewAPIHandlers(
	logger *slog.Logger,
	store persistence.Persistence,
	reg *registry.Registry,
	b *bus.Bus,
) *APIHandlers {
	return &APIHandlers{
		logger:    logger.With("module", "web"),
		store:     store,
		registry:  reg,
		bus:       b,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.store.HealthCheck(c.Context())
	if err != nil {
		problem := problems.NewStatusProblem(503).
			WithInstance(c.Path()).
			WithType("unhealthy").
			WithDetail(err.Error())

		return c.Status(fiber.StatusServiceUnavailable).JSON(problem)
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

// GetTriggers lists the trigger catalog with sample payloads.
func (h *APIHandlers) GetTriggers(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"triggers": triggers.Catalog()})
}

// GetActions lists the registered action kinds and their parameter schemas.
func (h *APIHandlers) GetActions(c fiber.Ctx) error {
	kinds := h.registry.Kinds()
	actions := make([]ActionKindResponse, 0, len(kinds))

	for _, kind := range kinds {
		factory, ok := h.registry.Factory(kind)
		if !ok {
			continue
		}

		actions = append(actions, ActionKindResponse{
			Kind:        factory.ID(),
			Name:        factory.Name(),
			Description: factory.Description(),
			Schema:      factory.Schema(),
		})
	}

	return c.JSON(fiber.Map{"actions": actions})
}

// TestTrigger emits an event of the given kind onto the bus. The request body
// is used as the payload when present; otherwise the catalog sample is used.
func (h *APIHandlers) TestTrigger(c fiber.Ctx) error {
	kind := triggers.Kind(c.Params("kind"))
	if !triggers.Valid(kind) {
		return notFound(c, "unknown trigger kind")
	}

	var event triggers.Event

	if len(c.Body()) > 0 {
		if !json.Valid(c.Body()) {
			return badRequest(c, "Request body is not valid JSON")
		}

		envelope, err := json.Marshal(struct {
			ID        string          `json:"id"`
			Kind      triggers.Kind   `json:"kind"`
			Timestamp time.Time       `json:"timestamp"`
			Payload   json.RawMessage `json:"payload"`
		}{
			ID:        "evt-" + uuid.NewString(),
			Kind:      kind,
			Timestamp: time.Now().UTC(),
			Payload:   c.Body(),
		})
		if err != nil {
			return internalError(c, err)
		}

		err = json.Unmarshal(envelope, &event)
		if err != nil {
			return badRequest(c, "Invalid payload for trigger kind: "+err.Error())
		}

		h.bus.EmitEvent(c.Context(), event)
	} else {
		payload, ok := triggers.SamplePayload(kind)
		if !ok {
			return notFound(c, "no sample payload for trigger kind")
		}

		event = h.bus.Emit(c.Context(), payload)
	}

	h.logger.InfoContext(c.Context(), "Emitted test trigger", "trigger_kind", kind, "event_id", event.ID)

	return c.Status(fiber.StatusAccepted).JSON(TestTriggerResponse{EventID: event.ID, Kind: kind})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.store.Workflows(c.Context())
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.store.WorkflowByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest

	err := c.Bind().JSON(&req)
	if err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	err = h.validator.Struct(req)
	if err != nil {
		return badRequest(c, err.Error())
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := time.Now().UTC()
	workflow := &models.Workflow{
		ID:          "wf-" + uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		TriggerKind: req.TriggerKind,
		Enabled:     enabled,
		Conditions:  req.Conditions,
		Actions:     req.Actions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = workflow.Validate()
	if err != nil {
		return badRequest(c, err.Error())
	}

	err = h.store.SaveWorkflow(c.Context(), workflow)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	workflow, err := h.store.WorkflowByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	var req UpdateWorkflowRequest

	err = c.Bind().JSON(&req)
	if err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if req.Name != nil {
		workflow.Name = *req.Name
	}

	if req.Description != nil {
		workflow.Description = *req.Description
	}

	if req.TriggerKind != nil {
		workflow.TriggerKind = *req.TriggerKind
	}

	if req.Enabled != nil {
		workflow.Enabled = *req.Enabled
	}

	if req.Conditions != nil {
		workflow.Conditions = req.Conditions
	}

	if req.Actions != nil {
		workflow.Actions = req.Actions
	}

	workflow.UpdatedAt = time.Now().UTC()

	err = workflow.Validate()
	if err != nil {
		return badRequest(c, err.Error())
	}

	err = h.store.SaveWorkflow(c.Context(), workflow)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	err := h.store.DeleteWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	executions, err := h.store.Executions(c.Context())
	if err != nil {
		return handleStoreError(c, err)
	}

	if workflowID := c.Query("workflow_id"); workflowID != "" {
		filtered := make([]*models.Execution, 0, len(executions))

		for _, execution := range executions {
			if execution.WorkflowID == workflowID {
				filtered = append(filtered, execution)
			}
		}

		executions = filtered
	}

	return c.JSON(fiber.Map{"executions": executions})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.store.ExecutionByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(execution)
}
