// Package memory provides an in-memory persistence implementation for tests
// and local development.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/storeflow/storeflow/pkg/models"
	"github.com/storeflow/storeflow/pkg/persistence"
	"github.com/storeflow/storeflow/pkg/triggers"
)

// Persistence keeps workflows and executions in process memory. Records are
// stored and returned as deep copies so callers cannot alias internal state.
type Persistence struct {
	mu         sync.RWMutex
	workflows  map[string]*models.Workflow
	executions map[string]*models.Execution
}

func NewPersistence() *Persistence {
	return &Persistence{
		workflows:  make(map[string]*models.Workflow),
		executions: make(map[string]*models.Execution),
	}
}

func (p *Persistence) ListByTrigger(_ context.Context, kind triggers.Kind) ([]*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	matched := make([]*models.Workflow, 0)

	for _, workflow := range p.workflows {
		if workflow.Enabled && workflow.TriggerKind == kind {
			clone, err := cloneWorkflow(workflow)
			if err != nil {
				return nil, persistence.NewStoreError("ListByTrigger", workflow.ID, err)
			}

			matched = append(matched, clone)
		}
	}

	return matched, nil
}

func (p *Persistence) Workflows(_ context.Context) ([]*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(p.workflows))

	for _, workflow := range p.workflows {
		clone, err := cloneWorkflow(workflow)
		if err != nil {
			return nil, persistence.NewStoreError("Workflows", workflow.ID, err)
		}

		workflows = append(workflows, clone)
	}

	return workflows, nil
}

func (p *Persistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflow, ok := p.workflows[id]
	if !ok {
		return nil, persistence.ErrWorkflowNotFound
	}

	return cloneWorkflow(workflow)
}

func (p *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	clone, err := cloneWorkflow(workflow)
	if err != nil {
		return persistence.NewStoreError("SaveWorkflow", workflow.ID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.workflows[workflow.ID] = clone

	return nil
}

func (p *Persistence) DeleteWorkflow(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.workflows[id]; !ok {
		return persistence.ErrWorkflowNotFound
	}

	delete(p.workflows, id)

	return nil
}

func (p *Persistence) SaveExecution(_ context.Context, execution *models.Execution) error {
	clone, err := cloneExecution(execution)
	if err != nil {
		return persistence.NewStoreError("SaveExecution", execution.ID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.executions[execution.ID] = clone

	return nil
}

func (p *Persistence) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	execution, ok := p.executions[id]
	if !ok {
		return nil, persistence.ErrExecutionNotFound
	}

	return cloneExecution(execution)
}

func (p *Persistence) Executions(_ context.Context) ([]*models.Execution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	executions := make([]*models.Execution, 0, len(p.executions))

	for _, execution := range p.executions {
		clone, err := cloneExecution(execution)
		if err != nil {
			return nil, persistence.NewStoreError("Executions", execution.ID, err)
		}

		executions = append(executions, clone)
	}

	return executions, nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func cloneWorkflow(workflow *models.Workflow) (*models.Workflow, error) {
	raw, err := json.Marshal(workflow)
	if err != nil {
		return nil, err
	}

	var clone models.Workflow

	err = json.Unmarshal(raw, &clone)
	if err != nil {
		return nil, err
	}

	return &clone, nil
}

func cloneExecution(execution *models.Execution) (*models.Execution, error) {
	raw, err := json.Marshal(execution)
	if err != nil {
		return nil, err
	}

	var clone models.Execution

	err = json.Unmarshal(raw, &clone)
	if err != nil {
		return nil, err
	}

	return &clone, nil
}
