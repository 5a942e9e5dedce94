package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storeflow/storeflow/pkg/actions/logaction"
	"github.com/storeflow/storeflow/pkg/models"
	"github.com/storeflow/storeflow/pkg/persistence/memory"
	"github.com/storeflow/storeflow/pkg/queue"
	"github.com/storeflow/storeflow/pkg/registry"
	"github.com/storeflow/storeflow/pkg/retry"
	"github.com/storeflow/storeflow/pkg/triggers"
)

// chanQueue is a minimal in-process queue for pool tests. Nacked jobs come
// back after their delay.
type chanQueue struct {
	ch        chan queue.ActionJob
	closed    chan struct{}
	closeOnce sync.Once
}

func newChanQueue() *chanQueue {
	return &chanQueue{
		ch:     make(chan queue.ActionJob, 128),
		closed: make(chan struct{}),
	}
}

func (q *chanQueue) Enqueue(_ context.Context, job queue.ActionJob) error {
	select {
	case q.ch <- job:
		return nil
	case <-q.closed:
		return queue.ErrClosed
	}
}

func (q *chanQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	select {
	case job := <-q.ch:
		return &chanDelivery{queue: q, job: job}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.closed:
		return nil, queue.ErrClosed
	}
}

func (q *chanQueue) Close() error {
	q.closeOnce.Do(func() { close(q.closed) })

	return nil
}

type chanDelivery struct {
	queue *chanQueue
	job   queue.ActionJob
}

func (d *chanDelivery) Job() queue.ActionJob { return d.job }

func (d *chanDelivery) Ack() error { return nil }

func (d *chanDelivery) Nack(retryAfter time.Duration) error {
	if retryAfter <= 0 {
		return d.queue.Enqueue(context.Background(), d.job)
	}

	time.AfterFunc(retryAfter, func() {
		_ = d.queue.Enqueue(context.Background(), d.job)
	})

	return nil
}

// scriptedFactory registers a test action whose behavior is a closure.
type scriptedFactory struct {
	id string
	fn func(ctx context.Context, event triggers.Event) error
}

func (f *scriptedFactory) ID() string          { return f.id }
func (f *scriptedFactory) Name() string        { return f.id }
func (f *scriptedFactory) Description() string { return "test action" }

func (f *scriptedFactory) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

func (f *scriptedFactory) Create(_ context.Context, _ map[string]any) (registry.Action, error) {
	return &scriptedAction{fn: f.fn}, nil
}

type scriptedAction struct {
	fn func(ctx context.Context, event triggers.Event) error
}

func (a *scriptedAction) Execute(ctx context.Context, event triggers.Event, _ *slog.Logger) (map[string]any, error) {
	err := a.fn(ctx, event)
	if err != nil {
		return nil, err
	}

	return map[string]any{}, nil
}

type fixture struct {
	store *memory.Persistence
	queue *chanQueue
	reg   *registry.Registry
	pool  *Pool
}

func fastPolicy(maxAttempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   1.0,
	}
}

func newFixture(t *testing.T, opts Options, factories ...registry.ActionFactory) *fixture {
	t.Helper()

	store := memory.NewPersistence()
	q := newChanQueue()

	reg := registry.NewRegistry(slog.Default())
	reg.Register(logaction.NewActionFactory())

	for _, factory := range factories {
		reg.Register(factory)
	}

	pool := NewPool(slog.Default(), nil, store, q, reg, opts)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	t.Cleanup(func() {
		cancel()
		_ = q.Close()
		pool.Wait()
	})

	return &fixture{store: store, queue: q, reg: reg, pool: pool}
}

// startExecution saves the workflow and a pending execution, then enqueues
// the action jobs the way the dispatcher would.
func (f *fixture) startExecution(t *testing.T, workflow *models.Workflow, event triggers.Event) *models.Execution {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, f.store.SaveWorkflow(ctx, workflow))

	execution := models.NewExecution(workflow, event)
	require.NoError(t, f.store.SaveExecution(ctx, execution))

	for index, action := range workflow.Actions {
		require.NoError(t, f.queue.Enqueue(ctx, queue.ActionJob{
			ID:          "job-" + execution.ID + "-" + action.Kind,
			ExecutionID: execution.ID,
			WorkflowID:  workflow.ID,
			ActionIndex: index,
			ActionKind:  action.Kind,
		}))
	}

	return execution
}

func (f *fixture) waitFinished(t *testing.T, executionID string) *models.Execution {
	t.Helper()

	var finished *models.Execution

	require.Eventually(t, func() bool {
		execution, err := f.store.ExecutionByID(context.Background(), executionID)
		if err != nil || !execution.Finished() {
			return false
		}

		finished = execution

		return true
	}, 5*time.Second, 10*time.Millisecond)

	return finished
}

func workflowWith(actions ...models.ActionSpec) *models.Workflow {
	return &models.Workflow{
		ID:          "wf-1",
		Name:        "High-value order follow-up",
		TriggerKind: triggers.KindOrderPlaced,
		Enabled:     true,
		Actions:     actions,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
}

func orderEvent() triggers.Event {
	return triggers.NewEvent(triggers.OrderPlacedPayload{
		OrderID:     "ord-1",
		CustomerID:  "cus-1",
		TotalAmount: 5000,
		Currency:    "USD",
	})
}

func TestPoolRunsAllActionsToSuccess(t *testing.T) {
	f := newFixture(t, Options{Workers: 2, RetryPolicy: fastPolicy(3)})

	execution := f.startExecution(t, workflowWith(
		models.ActionSpec{Kind: "log", Parameters: map[string]any{"message": "first"}},
		models.ActionSpec{Kind: "log", Parameters: map[string]any{"message": "second"}},
	), orderEvent())

	finished := f.waitFinished(t, execution.ID)

	assert.Equal(t, models.ExecutionSucceeded, finished.Status)
	require.NotNil(t, finished.CompletedAt)
	assert.Equal(t, 2, finished.NextAction)

	for _, result := range finished.ActionResults {
		assert.Equal(t, models.ActionSucceeded, result.Status)
		assert.Equal(t, 1, result.Attempts)
		assert.False(t, result.ExecutedAt.IsZero())
	}
}

func TestPoolRetriesTransientFailures(t *testing.T) {
	var mu sync.Mutex

	calls := 0

	flaky := &scriptedFactory{id: "flaky", fn: func(_ context.Context, _ triggers.Event) error {
		mu.Lock()
		defer mu.Unlock()

		calls++
		if calls < 3 {
			return errors.New("temporarily unavailable")
		}

		return nil
	}}

	f := newFixture(t, Options{Workers: 1, RetryPolicy: fastPolicy(3)}, flaky)

	execution := f.startExecution(t, workflowWith(
		models.ActionSpec{Kind: "flaky"},
	), orderEvent())

	finished := f.waitFinished(t, execution.ID)

	assert.Equal(t, models.ExecutionSucceeded, finished.Status)
	assert.Equal(t, 3, finished.ActionResults[0].Attempts)
}

func TestPoolExhaustedRetriesYieldPartial(t *testing.T) {
	failing := &scriptedFactory{id: "doomed", fn: func(_ context.Context, _ triggers.Event) error {
		return errors.New("upstream rejects everything")
	}}

	f := newFixture(t, Options{Workers: 2, RetryPolicy: fastPolicy(2)}, failing)

	execution := f.startExecution(t, workflowWith(
		models.ActionSpec{Kind: "doomed"},
		models.ActionSpec{Kind: "log"},
	), orderEvent())

	finished := f.waitFinished(t, execution.ID)

	assert.Equal(t, models.ExecutionPartial, finished.Status)

	failed := finished.ActionResults[0]
	assert.Equal(t, models.ActionFailed, failed.Status)
	assert.Equal(t, 2, failed.Attempts)
	assert.Contains(t, failed.LastError, "upstream rejects everything")

	assert.Equal(t, models.ActionSucceeded, finished.ActionResults[1].Status)
}

func TestPoolAllActionsFailingYieldFailed(t *testing.T) {
	failing := &scriptedFactory{id: "doomed", fn: func(_ context.Context, _ triggers.Event) error {
		return errors.New("nope")
	}}

	f := newFixture(t, Options{Workers: 1, RetryPolicy: fastPolicy(1)}, failing)

	execution := f.startExecution(t, workflowWith(
		models.ActionSpec{Kind: "doomed"},
	), orderEvent())

	finished := f.waitFinished(t, execution.ID)
	assert.Equal(t, models.ExecutionFailed, finished.Status)
}

func TestPoolKeepsActionsInDefinitionOrder(t *testing.T) {
	var mu sync.Mutex

	var order []string

	recording := func(name string) *scriptedFactory {
		return &scriptedFactory{id: name, fn: func(_ context.Context, _ triggers.Event) error {
			mu.Lock()
			defer mu.Unlock()

			order = append(order, name)

			return nil
		}}
	}

	f := newFixture(t, Options{Workers: 4, RetryPolicy: fastPolicy(1)},
		recording("first_step"), recording("second_step"))

	workflow := workflowWith(
		models.ActionSpec{Kind: "first_step"},
		models.ActionSpec{Kind: "second_step"},
	)

	ctx := context.Background()
	require.NoError(t, f.store.SaveWorkflow(ctx, workflow))

	execution := models.NewExecution(workflow, orderEvent())
	require.NoError(t, f.store.SaveExecution(ctx, execution))

	// Deliver the second action's job first. The pool must hold it until
	// the first action has run.
	require.NoError(t, f.queue.Enqueue(ctx, queue.ActionJob{
		ID: "job-b", ExecutionID: execution.ID, WorkflowID: workflow.ID, ActionIndex: 1, ActionKind: "second_step",
	}))
	require.NoError(t, f.queue.Enqueue(ctx, queue.ActionJob{
		ID: "job-a", ExecutionID: execution.ID, WorkflowID: workflow.ID, ActionIndex: 0, ActionKind: "first_step",
	}))

	finished := f.waitFinished(t, execution.ID)
	assert.Equal(t, models.ExecutionSucceeded, finished.Status)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first_step", "second_step"}, order)
}

func TestPoolTimesOutSlowActions(t *testing.T) {
	slow := &scriptedFactory{id: "slow", fn: func(ctx context.Context, _ triggers.Event) error {
		select {
		case <-time.After(5 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}}

	f := newFixture(t, Options{
		Workers:       1,
		ActionTimeout: 20 * time.Millisecond,
		RetryPolicy:   fastPolicy(2),
	}, slow)

	execution := f.startExecution(t, workflowWith(
		models.ActionSpec{Kind: "slow"},
	), orderEvent())

	finished := f.waitFinished(t, execution.ID)

	assert.Equal(t, models.ExecutionFailed, finished.Status)
	assert.Equal(t, 2, finished.ActionResults[0].Attempts)
	assert.Contains(t, finished.ActionResults[0].LastError, "context deadline exceeded")
}

func TestPoolDoesNotRetryMisconfiguredActions(t *testing.T) {
	f := newFixture(t, Options{Workers: 1, RetryPolicy: fastPolicy(3)})

	// The workflow references a kind the registry does not know. The
	// dispatcher would normally skip it, but a stale job must still drain.
	workflow := workflowWith(models.ActionSpec{Kind: "vanished"})

	ctx := context.Background()
	require.NoError(t, f.store.SaveWorkflow(ctx, workflow))

	execution := models.NewExecution(workflow, orderEvent())
	require.NoError(t, f.store.SaveExecution(ctx, execution))

	require.NoError(t, f.queue.Enqueue(ctx, queue.ActionJob{
		ID: "job-1", ExecutionID: execution.ID, WorkflowID: workflow.ID, ActionIndex: 0, ActionKind: "vanished",
	}))

	finished := f.waitFinished(t, execution.ID)

	assert.Equal(t, models.ExecutionFailed, finished.Status)
	assert.Equal(t, 1, finished.ActionResults[0].Attempts)
}

func TestPoolMarksExecutionRunningOnFirstAction(t *testing.T) {
	release := make(chan struct{})

	blocking := &scriptedFactory{id: "blocking", fn: func(_ context.Context, _ triggers.Event) error {
		<-release

		return nil
	}}

	f := newFixture(t, Options{Workers: 1, RetryPolicy: fastPolicy(1)}, blocking)

	execution := f.startExecution(t, workflowWith(
		models.ActionSpec{Kind: "blocking"},
	), orderEvent())

	require.Eventually(t, func() bool {
		current, err := f.store.ExecutionByID(context.Background(), execution.ID)

		return err == nil && current.Status == models.ExecutionRunning
	}, 2*time.Second, 10*time.Millisecond)

	close(release)

	finished := f.waitFinished(t, execution.ID)
	assert.Equal(t, models.ExecutionSucceeded, finished.Status)
}

func TestPoolDropsJobsForUnknownExecutions(t *testing.T) {
	f := newFixture(t, Options{Workers: 1, RetryPolicy: fastPolicy(1)})

	require.NoError(t, f.queue.Enqueue(context.Background(), queue.ActionJob{
		ID: "job-ghost", ExecutionID: "exec-ghost", WorkflowID: "wf-ghost", ActionIndex: 0, ActionKind: "log",
	}))

	// The job is acked and the queue drains without the pool crashing.
	assert.Eventually(t, func() bool {
		return len(f.queue.ch) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

// Delay-stamped jobs are how queue backends without native delayed delivery
// carry retry backoff; the pool must not run them before their stamp.
func TestPoolHoldsStampedJobsUntilDue(t *testing.T) {
	f := newFixture(t, Options{Workers: 1, RetryPolicy: fastPolicy(1)})

	workflow := workflowWith(models.ActionSpec{Kind: "log", Parameters: map[string]any{"message": "later"}})
	ctx := context.Background()
	require.NoError(t, f.store.SaveWorkflow(ctx, workflow))

	execution := models.NewExecution(workflow, orderEvent())
	require.NoError(t, f.store.SaveExecution(ctx, execution))

	due := time.Now().Add(80 * time.Millisecond)
	require.NoError(t, f.queue.Enqueue(ctx, queue.ActionJob{
		ID:          "job-stamped",
		ExecutionID: execution.ID,
		WorkflowID:  workflow.ID,
		ActionIndex: 0,
		ActionKind:  "log",
		NotBefore:   due,
	}))

	finished := f.waitFinished(t, execution.ID)
	assert.Equal(t, models.ExecutionSucceeded, finished.Status)
	require.Len(t, finished.ActionResults, 1)
	assert.False(t, finished.ActionResults[0].ExecutedAt.Before(due))
}
