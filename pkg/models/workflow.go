// Package models defines the core domain models for event-driven workflow
// automation: workflow definitions, action specs, and execution records.
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/storeflow/storeflow/pkg/conditions"
	"github.com/storeflow/storeflow/pkg/triggers"
)

// Workflow is a user-defined automation: when an event of TriggerKind occurs
// and Conditions match its payload, Actions run in order. Definitions are
// owned by the CRUD layer; the engine only reads them.
type Workflow struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"         validate:"required,min=3"`
	Description string           `json:"description,omitempty"`
	TriggerKind triggers.Kind    `json:"trigger_kind" validate:"required"`
	Enabled     bool             `json:"enabled"`
	Conditions  *conditions.Node `json:"conditions,omitempty"`
	Actions     []ActionSpec     `json:"actions"      validate:"required,min=1,dive"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// ActionSpec is one configured step of a workflow. Kind selects the registered
// action handler; Parameters are handler-specific and may contain templates
// over the event payload.
type ActionSpec struct {
	Kind       string         `json:"kind" validate:"required"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

var validate = validator.New()

var (
	ErrNoActions      = errors.New("workflow has no actions")
	ErrUnknownTrigger = errors.New("workflow references an unknown trigger kind")
)

// ConfigError tags a workflow definition problem so callers can tell a
// configuration mistake from a runtime failure.
type ConfigError struct {
	WorkflowID string
	Err        error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("workflow %s misconfigured: %v", e.WorkflowID, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError wraps err as a configuration error for the given workflow.
func NewConfigError(workflowID string, err error) *ConfigError {
	return &ConfigError{WorkflowID: workflowID, Err: err}
}

// IsConfigError reports whether err is (or wraps) a workflow configuration
// error.
func IsConfigError(err error) bool {
	var configErr *ConfigError

	return errors.As(err, &configErr)
}

// Validate checks the definition: struct constraints, a known trigger kind, a
// non-empty action list, and a well-formed condition tree within the depth
// bound. Saved definitions are validated by the CRUD layer; the engine also
// calls this at dispatch time, since stores can hold hand-edited files.
func (w *Workflow) Validate() error {
	err := validate.Struct(w)
	if err != nil {
		if len(w.Actions) == 0 {
			return NewConfigError(w.ID, ErrNoActions)
		}

		return NewConfigError(w.ID, err)
	}

	if !triggers.Valid(w.TriggerKind) {
		return NewConfigError(w.ID, fmt.Errorf("%w: %q", ErrUnknownTrigger, w.TriggerKind))
	}

	err = conditions.Validate(w.Conditions, conditions.DefaultMaxDepth)
	if err != nil {
		return NewConfigError(w.ID, err)
	}

	return nil
}
