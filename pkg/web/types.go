package web

import (
	"github.com/storeflow/storeflow/pkg/conditions"
	"github.com/storeflow/storeflow/pkg/models"
	"github.com/storeflow/storeflow/pkg/triggers"
)

// CreateWorkflowRequest is the payload for POST /workflows.
type CreateWorkflowRequest struct {
	Name        string              `json:"name"        validate:"required,min=3"`
	Description string              `json:"description"`
	TriggerKind triggers.Kind       `json:"trigger_kind" validate:"required"`
	Enabled     *bool               `json:"enabled"`
	Conditions  *conditions.Node    `json:"conditions"`
	Actions     []models.ActionSpec `json:"actions"     validate:"required,min=1,dive"`
}

// UpdateWorkflowRequest is the payload for PATCH /workflows/:id. Nil fields
// keep their current value.
type UpdateWorkflowRequest struct {
	Name        *string             `json:"name"`
	Description *string             `json:"description"`
	TriggerKind *triggers.Kind      `json:"trigger_kind"`
	Enabled     *bool               `json:"enabled"`
	Conditions  *conditions.Node    `json:"conditions"`
	Actions     []models.ActionSpec `json:"actions"`
}

// ActionKindResponse describes one registered action kind.
type ActionKindResponse struct {
	Kind        string         `json:"kind"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}

// TestTriggerResponse acknowledges an emitted test event.
type TestTriggerResponse struct {
	EventID string        `json:"event_id"`
	Kind    triggers.Kind `json:"kind"`
}
