// Package dispatch matches trigger events against registered workflows and
// turns every match into a pending execution with one queued job per action.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/google/uuid"
	"github.com/storeflow/storeflow/pkg/bus"
	"github.com/storeflow/storeflow/pkg/conditions"
	"github.com/storeflow/storeflow/pkg/log"
	"github.com/storeflow/storeflow/pkg/models"
	"github.com/storeflow/storeflow/pkg/otelhelper"
	"github.com/storeflow/storeflow/pkg/persistence"
	"github.com/storeflow/storeflow/pkg/queue"
	"github.com/storeflow/storeflow/pkg/registry"
	"github.com/storeflow/storeflow/pkg/triggers"
)

// Dispatcher is the matching stage of the pipeline. It owns no goroutines;
// callers attach it to a bus or invoke Dispatch directly.
type Dispatcher struct {
	logger   *slog.Logger
	tracer   trace.Tracer
	store    persistence.Persistence
	queue    queue.Queue
	registry *registry.Registry
}

func NewDispatcher(
	logger *slog.Logger,
	tracer trace.Tracer,
	store persistence.Persistence,
	q queue.Queue,
	reg *registry.Registry,
) *Dispatcher {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("dispatch")
	}

	return &Dispatcher{
		logger:   logger.With("module", "dispatch"),
		tracer:   tracer,
		store:    store,
		queue:    q,
		registry: reg,
	}
}

// Attach subscribes the dispatcher to every trigger kind on the bus and
// returns a function that removes all subscriptions.
func (d *Dispatcher) Attach(b *bus.Bus) func() {
	kinds := triggers.Kinds()
	unsubscribes := make([]func(), 0, len(kinds))

	for _, kind := range kinds {
		unsubscribes = append(unsubscribes, b.Subscribe(kind, d.Dispatch))
	}

	return func() {
		for _, unsubscribe := range unsubscribes {
			unsubscribe()
		}
	}
}

// Dispatch matches the event against workflows registered for its trigger
// kind. Each match gets a pending execution record before any job is queued,
// so an execution is never invisible to the status API while its jobs run.
// A failure on one workflow never blocks the others.
func (d *Dispatcher) Dispatch(ctx context.Context, event triggers.Event) error {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatch",
		attribute.String(otelhelper.EventIDKey, event.ID),
		attribute.String(otelhelper.TriggerKindKey, string(event.Kind)),
	)
	defer span.End()

	workflows, err := d.store.ListByTrigger(ctx, event.Kind)
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to list workflows for trigger %q: %w", event.Kind, err)
	}

	fields, err := event.Fields()
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to flatten event payload: %w", err)
	}

	logger := log.WithEvent(d.logger, event)

	var errs []error

	matched := 0

	for _, workflow := range workflows {
		started, err := d.dispatchWorkflow(ctx, workflow, event, fields)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to dispatch workflow",
				"workflow_id", workflow.ID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("workflow %s: %w", workflow.ID, err))

			continue
		}

		if started {
			matched++
		}
	}

	logger.InfoContext(ctx, "Dispatched trigger event",
		"workflows", len(workflows),
		"matched", matched,
	)

	if len(errs) > 0 {
		err := errors.Join(errs...)
		otelhelper.SetError(span, err)

		return err
	}

	return nil
}

// dispatchWorkflow reports whether an execution was started. Misconfigured
// workflows are skipped with a log line rather than treated as engine
// failures.
func (d *Dispatcher) dispatchWorkflow(
	ctx context.Context,
	workflow *models.Workflow,
	event triggers.Event,
	fields map[string]any,
) (bool, error) {
	err := workflow.Validate()
	if err != nil {
		d.logger.WarnContext(ctx, "Skipping misconfigured workflow",
			"workflow_id", workflow.ID,
			"error", err,
		)

		return false, nil
	}

	for _, action := range workflow.Actions {
		if _, ok := d.registry.Factory(action.Kind); !ok {
			d.logger.WarnContext(ctx, "Skipping workflow with unregistered action kind",
				"workflow_id", workflow.ID,
				"action_kind", action.Kind,
			)

			return false, nil
		}
	}

	if !conditions.Evaluate(workflow.Conditions, fields) {
		return false, nil
	}

	execution := models.NewExecution(workflow, event)

	err = d.store.SaveExecution(ctx, execution)
	if err != nil {
		return false, fmt.Errorf("failed to save execution: %w", err)
	}

	for index, action := range workflow.Actions {
		job := queue.ActionJob{
			ID:          "job-" + uuid.NewString(),
			ExecutionID: execution.ID,
			WorkflowID:  workflow.ID,
			ActionIndex: index,
			ActionKind:  action.Kind,
		}

		err = d.queue.Enqueue(ctx, job)
		if err != nil {
			return false, fmt.Errorf("failed to enqueue action %d: %w", index, err)
		}
	}

	d.logger.InfoContext(ctx, "Started execution",
		"execution_id", execution.ID,
		"workflow_id", workflow.ID,
		"event_id", event.ID,
		"actions", len(workflow.Actions),
	)

	return true, nil
}
