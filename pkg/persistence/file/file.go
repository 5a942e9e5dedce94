// Package file provides a file-based persistence implementation. Each
// workflow and execution record is one JSON file under the root directory,
// which keeps local setups inspectable with nothing but a text editor.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/storeflow/storeflow/pkg/models"
	"github.com/storeflow/storeflow/pkg/persistence"
	"github.com/storeflow/storeflow/pkg/triggers"
)

const fileMode = 0o600

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root string

	mu sync.Mutex
}

// NewPersistence creates a file persistence rooted at the given directory,
// accepting either a plain path or a file:// URL.
func NewPersistence(root string) *Persistence {
	return &Persistence{root: strings.TrimPrefix(root, "file://")}
}

func (p *Persistence) workflowPath(id string) string {
	return filepath.Join(p.root, "workflows", id+".json")
}

func (p *Persistence) executionPath(id string) string {
	return filepath.Join(p.root, "executions", id+".json")
}

func (p *Persistence) ListByTrigger(ctx context.Context, kind triggers.Kind) ([]*models.Workflow, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids, err := listIDs(filepath.Join(p.root, "workflows"))
	if err != nil {
		return nil, persistence.NewStoreError("ListByTrigger", string(kind), err)
	}

	matched := make([]*models.Workflow, 0)

	for _, id := range ids {
		workflow, err := readJSON[models.Workflow](p.workflowPath(id))
		if err != nil {
			return nil, persistence.NewStoreError("ListByTrigger", id, err)
		}

		if workflow.Enabled && workflow.TriggerKind == kind {
			matched = append(matched, workflow)
		}
	}

	return matched, nil
}

func (p *Persistence) Workflows(_ context.Context) ([]*models.Workflow, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids, err := listIDs(filepath.Join(p.root, "workflows"))
	if err != nil {
		return nil, persistence.NewStoreError("Workflows", "", err)
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := readJSON[models.Workflow](p.workflowPath(id))
		if err != nil {
			return nil, persistence.NewStoreError("Workflows", id, err)
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (p *Persistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	workflow, err := readJSON[models.Workflow](p.workflowPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.ErrWorkflowNotFound
	}

	if err != nil {
		return nil, persistence.NewStoreError("WorkflowByID", id, err)
	}

	return workflow, nil
}

func (p *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := writeJSON(p.workflowPath(workflow.ID), workflow)
	if err != nil {
		return persistence.NewStoreError("SaveWorkflow", workflow.ID, err)
	}

	return nil
}

func (p *Persistence) DeleteWorkflow(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := os.Remove(p.workflowPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return persistence.ErrWorkflowNotFound
	}

	if err != nil {
		return persistence.NewStoreError("DeleteWorkflow", id, err)
	}

	return nil
}

func (p *Persistence) SaveExecution(_ context.Context, execution *models.Execution) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := writeJSON(p.executionPath(execution.ID), execution)
	if err != nil {
		return persistence.NewStoreError("SaveExecution", execution.ID, err)
	}

	return nil
}

func (p *Persistence) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	execution, err := readJSON[models.Execution](p.executionPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.ErrExecutionNotFound
	}

	if err != nil {
		return nil, persistence.NewStoreError("ExecutionByID", id, err)
	}

	return execution, nil
}

func (p *Persistence) Executions(_ context.Context) ([]*models.Execution, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids, err := listIDs(filepath.Join(p.root, "executions"))
	if err != nil {
		return nil, persistence.NewStoreError("Executions", "", err)
	}

	executions := make([]*models.Execution, 0, len(ids))

	for _, id := range ids {
		execution, err := readJSON[models.Execution](p.executionPath(id))
		if err != nil {
			return nil, persistence.NewStoreError("Executions", id, err)
		}

		executions = append(executions, execution)
	}

	return executions, nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	_, err := os.Stat(p.root)
	if err != nil {
		return persistence.NewStoreError("HealthCheck", p.root, err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func listIDs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	return ids, nil
}

func readJSON[T any](path string) (*T, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var value T

	err = json.Unmarshal(raw, &value)
	if err != nil {
		return nil, err
	}

	return &value, nil
}

func writeJSON(path string, value any) error {
	err := os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return err
	}

	raw, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, raw, fileMode)
}
