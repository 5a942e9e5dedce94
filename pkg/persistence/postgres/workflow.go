package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/storeflow/storeflow/pkg/conditions"
	"github.com/storeflow/storeflow/pkg/models"
	"github.com/storeflow/storeflow/pkg/persistence"
	"github.com/storeflow/storeflow/pkg/triggers"
)

func (p *Persistence) ListByTrigger(ctx context.Context, kind triggers.Kind) ([]*models.Workflow, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, description, trigger_kind, enabled, conditions, actions, created_at, updated_at
		FROM workflows
		WHERE trigger_kind = $1 AND enabled
	`, string(kind))
	if err != nil {
		return nil, persistence.NewStoreError("ListByTrigger", string(kind), err)
	}
	defer func() { _ = rows.Close() }()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, persistence.NewStoreError("ListByTrigger", string(kind), err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewStoreError("ListByTrigger", string(kind), err)
	}

	return workflows, nil
}

func (p *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, description, trigger_kind, enabled, conditions, actions, created_at, updated_at
		FROM workflows
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, persistence.NewStoreError("Workflows", "", err)
	}
	defer func() { _ = rows.Close() }()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, persistence.NewStoreError("Workflows", "", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewStoreError("Workflows", "", err)
	}

	return workflows, nil
}

func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, description, trigger_kind, enabled, conditions, actions, created_at, updated_at
		FROM workflows
		WHERE id = $1
	`, id)

	workflow, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrWorkflowNotFound
	}

	if err != nil {
		return nil, persistence.NewStoreError("WorkflowByID", id, err)
	}

	return workflow, nil
}

func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	conditionsJSON, err := marshalNullable(workflow.Conditions)
	if err != nil {
		return persistence.NewStoreError("SaveWorkflow", workflow.ID, err)
	}

	actionsJSON, err := json.Marshal(workflow.Actions)
	if err != nil {
		return persistence.NewStoreError("SaveWorkflow", workflow.ID, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO workflows (id, name, description, trigger_kind, enabled, conditions, actions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			trigger_kind = EXCLUDED.trigger_kind,
			enabled = EXCLUDED.enabled,
			conditions = EXCLUDED.conditions,
			actions = EXCLUDED.actions,
			updated_at = EXCLUDED.updated_at
	`,
		workflow.ID, workflow.Name, workflow.Description, string(workflow.TriggerKind),
		workflow.Enabled, conditionsJSON, actionsJSON, workflow.CreatedAt, workflow.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("SaveWorkflow", workflow.ID, err)
	}

	return nil
}

func (p *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = $1", id)
	if err != nil {
		return persistence.NewStoreError("DeleteWorkflow", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("DeleteWorkflow", id, err)
	}

	if affected == 0 {
		return persistence.ErrWorkflowNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow       models.Workflow
		kind           string
		conditionsJSON []byte
		actionsJSON    []byte
	)

	err := row.Scan(
		&workflow.ID, &workflow.Name, &workflow.Description, &kind,
		&workflow.Enabled, &conditionsJSON, &actionsJSON,
		&workflow.CreatedAt, &workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.TriggerKind = triggers.Kind(kind)

	if len(conditionsJSON) > 0 {
		var tree conditions.Node

		err = json.Unmarshal(conditionsJSON, &tree)
		if err != nil {
			return nil, fmt.Errorf("failed to decode conditions: %w", err)
		}

		workflow.Conditions = &tree
	}

	err = json.Unmarshal(actionsJSON, &workflow.Actions)
	if err != nil {
		return nil, fmt.Errorf("failed to decode actions: %w", err)
	}

	return &workflow, nil
}

func marshalNullable(value any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}

	if node, ok := value.(*conditions.Node); ok && node == nil {
		return nil, nil
	}

	return json.Marshal(value)
}
