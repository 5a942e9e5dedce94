// Package worker drains the action-job queue and runs workflow actions
// against their execution records. Jobs for one execution run strictly in
// action order; retries go back through the queue with a backoff delay, so a
// slow action never blocks a worker goroutine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/google/uuid"
	"github.com/storeflow/storeflow/pkg/models"
	"github.com/storeflow/storeflow/pkg/otelhelper"
	"github.com/storeflow/storeflow/pkg/persistence"
	"github.com/storeflow/storeflow/pkg/queue"
	"github.com/storeflow/storeflow/pkg/registry"
	"github.com/storeflow/storeflow/pkg/retry"
	"github.com/storeflow/storeflow/pkg/triggers"
)

const (
	DefaultWorkers       = 4
	DefaultActionTimeout = 30 * time.Second

	// orderingDelay is how long a job waits when it arrives ahead of its
	// execution's cursor.
	orderingDelay = 100 * time.Millisecond

	// transientDelay is the redelivery delay for infrastructure failures
	// (store unreachable, save failed) as opposed to action failures.
	transientDelay = 1 * time.Second
)

type Options struct {
	Workers       int
	ActionTimeout time.Duration
	RetryPolicy   retry.Policy
}

// Pool runs a fixed number of worker goroutines over one shared queue.
type Pool struct {
	id       string
	logger   *slog.Logger
	tracer   trace.Tracer
	store    persistence.Persistence
	queue    queue.Queue
	registry *registry.Registry

	workers       int
	actionTimeout time.Duration
	retryPolicy   retry.Policy

	wg sync.WaitGroup
}

func NewPool(
	logger *slog.Logger,
	tracer trace.Tracer,
	store persistence.Persistence,
	q queue.Queue,
	reg *registry.Registry,
	opts Options,
) *Pool {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("worker")
	}

	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = DefaultActionTimeout
	}

	if opts.RetryPolicy.MaxAttempts <= 0 {
		opts.RetryPolicy = retry.Default()
	}

	id := "pool-" + uuid.NewString()

	return &Pool{
		id:            id,
		logger:        logger.With("module", "worker", "pool_id", id),
		tracer:        tracer,
		store:         store,
		queue:         q,
		registry:      reg,
		workers:       opts.Workers,
		actionTimeout: opts.ActionTimeout,
		retryPolicy:   opts.RetryPolicy,
	}
}

// Start launches the worker goroutines. They exit when ctx is cancelled or
// the queue is closed.
func (p *Pool) Start(ctx context.Context) {
	p.logger.InfoContext(ctx, "Starting worker pool", "workers", p.workers)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)

		go p.run(ctx, i)
	}
}

// Wait blocks until every worker goroutine has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, workerID int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", workerID)

	for {
		delivery, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.InfoContext(ctx, "Worker stopping")

				return
			}

			logger.ErrorContext(ctx, "Failed to dequeue job", "error", err)

			select {
			case <-time.After(transientDelay):
			case <-ctx.Done():
				return
			}

			continue
		}

		p.process(ctx, logger, delivery)
	}
}

func (p *Pool) process(ctx context.Context, logger *slog.Logger, delivery queue.Delivery) {
	job := delivery.Job()

	// Delay-stamped jobs (transport backends without native delayed delivery
	// republish retries this way) wait out their remaining window. Holding the
	// slot for up to one ordering delay keeps requeue churn bounded.
	if !job.Due(time.Now()) {
		select {
		case <-time.After(min(time.Until(job.NotBefore), orderingDelay)):
		case <-ctx.Done():
			p.nack(logger, delivery, time.Until(job.NotBefore))

			return
		}

		if !job.Due(time.Now()) {
			p.nack(logger, delivery, time.Until(job.NotBefore))

			return
		}
	}

	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "worker.process",
		attribute.String(otelhelper.ExecutionIDKey, job.ExecutionID),
		attribute.String(otelhelper.WorkflowIDKey, job.WorkflowID),
		attribute.String(otelhelper.ActionKindKey, job.ActionKind),
		attribute.Int(otelhelper.ActionIndexKey, job.ActionIndex),
	)
	defer span.End()

	logger = logger.With(
		"execution_id", job.ExecutionID,
		"action_kind", job.ActionKind,
		"action_index", job.ActionIndex,
	)

	execution, err := p.store.ExecutionByID(ctx, job.ExecutionID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			logger.WarnContext(ctx, "Dropping job for unknown execution")
			p.ack(logger, delivery)

			return
		}

		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Failed to load execution", "error", err)
		p.nack(logger, delivery, transientDelay)

		return
	}

	if execution.Finished() {
		p.ack(logger, delivery)

		return
	}

	// Jobs for one execution run in definition order. A job ahead of the
	// cursor waits; a job behind it already ran.
	if job.ActionIndex < execution.NextAction {
		p.ack(logger, delivery)

		return
	}

	if job.ActionIndex > execution.NextAction {
		p.nack(logger, delivery, orderingDelay)

		return
	}

	if execution.Status == models.ExecutionPending {
		execution.Status = models.ExecutionRunning

		err = p.store.SaveExecution(ctx, execution)
		if err != nil {
			otelhelper.SetError(span, err)
			logger.ErrorContext(ctx, "Failed to mark execution running", "error", err)
			p.nack(logger, delivery, transientDelay)

			return
		}
	}

	attempt := execution.RetryCounts[job.ActionIndex] + 1

	actionErr := p.runAction(ctx, execution.TriggerEvent, job, logger.With("attempt", attempt))
	if actionErr == nil {
		p.recordOutcome(ctx, logger, span, delivery, execution, job.ActionIndex, attempt, "")

		return
	}

	logger.WarnContext(ctx, "Action attempt failed", "attempt", attempt, "error", actionErr)

	var permanent *permanentError
	if !errors.As(actionErr, &permanent) && p.retryPolicy.ShouldRetry(attempt) {
		execution.RetryCounts[job.ActionIndex] = attempt

		err = p.store.SaveExecution(ctx, execution)
		if err != nil {
			otelhelper.SetError(span, err)
			logger.ErrorContext(ctx, "Failed to persist retry count", "error", err)
			p.nack(logger, delivery, transientDelay)

			return
		}

		p.nack(logger, delivery, p.retryPolicy.NextDelay(attempt))

		return
	}

	p.recordOutcome(ctx, logger, span, delivery, execution, job.ActionIndex, attempt, actionErr.Error())
}

// recordOutcome writes the terminal result for one action slot, advances the
// cursor, and finalizes the execution when it was the last outstanding
// action.
func (p *Pool) recordOutcome(
	ctx context.Context,
	logger *slog.Logger,
	span trace.Span,
	delivery queue.Delivery,
	execution *models.Execution,
	actionIndex int,
	attempts int,
	lastError string,
) {
	result := &execution.ActionResults[actionIndex]
	result.Attempts = attempts
	result.ExecutedAt = time.Now().UTC()

	if lastError == "" {
		result.Status = models.ActionSucceeded
	} else {
		result.Status = models.ActionFailed
		result.LastError = lastError
	}

	execution.RetryCounts[actionIndex] = attempts
	execution.NextAction = actionIndex + 1

	if execution.Finished() {
		execution.Finalize(time.Now())
	}

	err := p.store.SaveExecution(ctx, execution)
	if err != nil {
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Failed to save execution outcome", "error", err)
		p.nack(logger, delivery, transientDelay)

		return
	}

	if execution.Finished() {
		logger.InfoContext(ctx, "Execution finished",
			"status", execution.Status,
			"actions", len(execution.ActionResults),
		)
	}

	p.ack(logger, delivery)
}

// runAction builds and executes the action with the per-action timeout.
// Creation failures are permanent: retrying a misconfigured action cannot
// succeed.
func (p *Pool) runAction(ctx context.Context, event triggers.Event, job queue.ActionJob, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()

	workflow, err := p.store.WorkflowByID(ctx, job.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return &permanentError{err: fmt.Errorf("workflow %s no longer exists", job.WorkflowID)}
		}

		return err
	}

	if job.ActionIndex >= len(workflow.Actions) {
		return &permanentError{err: fmt.Errorf("workflow %s has no action at index %d", job.WorkflowID, job.ActionIndex)}
	}

	spec := workflow.Actions[job.ActionIndex]

	action, err := p.registry.Create(ctx, spec.Kind, spec.Parameters)
	if err != nil {
		return &permanentError{err: err}
	}

	actionCtx, cancel := context.WithTimeout(ctx, p.actionTimeout)
	defer cancel()

	_, err = action.Execute(actionCtx, event, logger)

	return err
}

func (p *Pool) ack(logger *slog.Logger, delivery queue.Delivery) {
	err := delivery.Ack()
	if err != nil {
		logger.Error("Failed to ack job", "error", err)
	}
}

func (p *Pool) nack(logger *slog.Logger, delivery queue.Delivery, delay time.Duration) {
	err := delivery.Nack(delay)
	if err != nil {
		logger.Error("Failed to nack job", "error", err)
	}
}

// permanentError marks failures that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }
