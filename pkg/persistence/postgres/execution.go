package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/storeflow/storeflow/pkg/models"
	"github.com/storeflow/storeflow/pkg/persistence"
	"github.com/storeflow/storeflow/pkg/triggers"
)

func (p *Persistence) SaveExecution(ctx context.Context, execution *models.Execution) error {
	eventJSON, err := json.Marshal(execution.TriggerEvent)
	if err != nil {
		return persistence.NewStoreError("SaveExecution", execution.ID, err)
	}

	resultsJSON, err := json.Marshal(execution.ActionResults)
	if err != nil {
		return persistence.NewStoreError("SaveExecution", execution.ID, err)
	}

	retriesJSON, err := json.Marshal(execution.RetryCounts)
	if err != nil {
		return persistence.NewStoreError("SaveExecution", execution.ID, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, trigger_event, status, action_results, retry_counts, next_action, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			action_results = EXCLUDED.action_results,
			retry_counts = EXCLUDED.retry_counts,
			next_action = EXCLUDED.next_action,
			completed_at = EXCLUDED.completed_at
	`,
		execution.ID, execution.WorkflowID, eventJSON, string(execution.Status),
		resultsJSON, retriesJSON, execution.NextAction, execution.CreatedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return persistence.NewStoreError("SaveExecution", execution.ID, err)
	}

	return nil
}

func (p *Persistence) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, trigger_event, status, action_results, retry_counts, next_action, created_at, completed_at
		FROM executions
		WHERE id = $1
	`, id)

	execution, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrExecutionNotFound
	}

	if err != nil {
		return nil, persistence.NewStoreError("ExecutionByID", id, err)
	}

	return execution, nil
}

func (p *Persistence) Executions(ctx context.Context) ([]*models.Execution, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, workflow_id, trigger_event, status, action_results, retry_counts, next_action, created_at, completed_at
		FROM executions
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, persistence.NewStoreError("Executions", "", err)
	}
	defer func() { _ = rows.Close() }()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, persistence.NewStoreError("Executions", "", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewStoreError("Executions", "", err)
	}

	return executions, nil
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution   models.Execution
		status      string
		eventJSON   []byte
		resultsJSON []byte
		retriesJSON []byte
		completedAt sql.NullTime
	)

	err := row.Scan(
		&execution.ID, &execution.WorkflowID, &eventJSON, &status,
		&resultsJSON, &retriesJSON, &execution.NextAction,
		&execution.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.Status = models.ExecutionStatus(status)

	var event triggers.Event

	err = json.Unmarshal(eventJSON, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to decode trigger event snapshot: %w", err)
	}

	execution.TriggerEvent = event

	err = json.Unmarshal(resultsJSON, &execution.ActionResults)
	if err != nil {
		return nil, fmt.Errorf("failed to decode action results: %w", err)
	}

	err = json.Unmarshal(retriesJSON, &execution.RetryCounts)
	if err != nil {
		return nil, fmt.Errorf("failed to decode retry counts: %w", err)
	}

	if completedAt.Valid {
		completed := completedAt.Time.UTC()
		execution.CompletedAt = &completed
	}

	return &execution, nil
}
