// Package persistence defines the storage contracts the engine depends on:
// read access to workflow definitions and ownership of execution records.
package persistence

import (
	"context"

	"github.com/storeflow/storeflow/pkg/models"
	"github.com/storeflow/storeflow/pkg/triggers"
)

// WorkflowRepository reads workflow definitions. Definitions are written by
// the CRUD layer; the engine treats them as read-only input fetched at match
// time, so edits are picked up on the next dispatch cycle.
type WorkflowRepository interface {
	// ListByTrigger returns the enabled workflows registered for a trigger
	// kind.
	ListByTrigger(ctx context.Context, kind triggers.Kind) ([]*models.Workflow, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	// Workflows returns every workflow definition, including disabled ones.
	Workflows(ctx context.Context) ([]*models.Workflow, error)
}

// WorkflowWriter extends the repository with write operations, used by the
// admin tooling and tests. The engine itself never writes definitions.
type WorkflowWriter interface {
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error
}

// ExecutionRepository owns execution records for the dispatch pipeline.
type ExecutionRepository interface {
	SaveExecution(ctx context.Context, execution *models.Execution) error
	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	Executions(ctx context.Context) ([]*models.Execution, error)
}

// Persistence is the full storage surface a backend provides.
type Persistence interface {
	WorkflowRepository
	WorkflowWriter
	ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
