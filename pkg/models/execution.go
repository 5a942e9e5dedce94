package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/storeflow/storeflow/pkg/triggers"
)

// ExecutionStatus is the lifecycle state of one workflow run.
// pending -> running -> {succeeded | failed | partial}.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
	// ExecutionPartial means at least one action succeeded and at least one
	// exhausted its retries.
	ExecutionPartial ExecutionStatus = "partial"
)

// ActionStatus is the terminal state of one action within an execution.
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionSucceeded ActionStatus = "succeeded"
	ActionFailed    ActionStatus = "failed"
)

// ActionResult is the audited outcome of one action. A failed action keeps its
// last error; the result list never drops entries.
type ActionResult struct {
	Kind       string       `json:"kind"`
	Status     ActionStatus `json:"status"`
	Attempts   int          `json:"attempts"`
	LastError  string       `json:"last_error,omitempty"`
	ExecutedAt time.Time    `json:"executed_at,omitzero"`
}

// Terminal reports whether the action has reached a final state.
func (r ActionResult) Terminal() bool {
	return r.Status == ActionSucceeded || r.Status == ActionFailed
}

// Execution is the audit record of one workflow run against one triggering
// event. It is created in pending state the instant the workflow matches,
// before any action runs, and is owned exclusively by the dispatch pipeline
// until it reaches a terminal status.
type Execution struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflow_id"`

	// TriggerEvent is an immutable snapshot of the event that matched.
	TriggerEvent triggers.Event `json:"trigger_event"`

	Status        ExecutionStatus `json:"status"`
	ActionResults []ActionResult  `json:"action_results"`
	RetryCounts   []int           `json:"retry_counts"`

	// NextAction is the index of the next action allowed to run. Workers use
	// it to keep actions of one record strictly in definition order.
	NextAction int `json:"next_action"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewExecution creates a pending record for a matched workflow, with one
// result slot per action.
func NewExecution(workflow *Workflow, event triggers.Event) *Execution {
	results := make([]ActionResult, len(workflow.Actions))
	for i, action := range workflow.Actions {
		results[i] = ActionResult{Kind: action.Kind, Status: ActionPending}
	}

	return &Execution{
		ID:            "exec-" + uuid.New().String(),
		WorkflowID:    workflow.ID,
		TriggerEvent:  event,
		Status:        ExecutionPending,
		ActionResults: results,
		RetryCounts:   make([]int, len(workflow.Actions)),
		CreatedAt:     time.Now().UTC(),
	}
}

// Finished reports whether every action has reached a terminal state.
func (e *Execution) Finished() bool {
	for _, result := range e.ActionResults {
		if !result.Terminal() {
			return false
		}
	}

	return true
}

// Finalize computes the overall status from the full result list and stamps
// CompletedAt. Call only once every action is terminal.
func (e *Execution) Finalize(now time.Time) {
	succeeded, failed := 0, 0

	for _, result := range e.ActionResults {
		switch result.Status {
		case ActionSucceeded:
			succeeded++
		case ActionFailed:
			failed++
		}
	}

	switch {
	case failed == 0:
		e.Status = ExecutionSucceeded
	case succeeded == 0:
		e.Status = ExecutionFailed
	default:
		e.Status = ExecutionPartial
	}

	completed := now.UTC()
	e.CompletedAt = &completed
}
