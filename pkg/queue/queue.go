// Package queue defines the durable task-queue contract the engine runs on.
// Any at-least-once queue satisfies it; the engine is agnostic to the
// concrete backend.
package queue

import (
	"context"
	"errors"
	"time"
)

// ActionJob is one unit of work: run one action of one execution record. The
// action index doubles as the per-record sequence number, so workers can keep
// actions of one record strictly in definition order while interleaving jobs
// from different records.
type ActionJob struct {
	ID          string `json:"id"`
	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id"`
	ActionIndex int    `json:"action_index"`
	ActionKind  string `json:"action_kind"`

	// NotBefore is the earliest time the job may run. Backends without native
	// delayed delivery implement Nack(retryAfter) by republishing the job with
	// this stamp; consumers seeing a job ahead of its stamp nack it back with
	// the remaining delay. Zero means immediately runnable.
	NotBefore time.Time `json:"not_before,omitzero"`
}

// Due reports whether the job's delay window has elapsed.
func (j ActionJob) Due(now time.Time) bool {
	return !j.NotBefore.After(now)
}

// Delivery is one dequeued job awaiting acknowledgement. Exactly one of Ack
// or Nack must be called per delivery.
type Delivery interface {
	Job() ActionJob

	// Ack confirms the job is done (or permanently abandoned) and must not be
	// redelivered.
	Ack() error

	// Nack returns the job to the queue for redelivery after retryAfter.
	// A non-positive delay requests immediate redelivery.
	Nack(retryAfter time.Duration) error
}

// ErrClosed is returned by Dequeue once the queue is shut down.
var ErrClosed = errors.New("queue closed")

// Queue is the durable at-least-once job queue.
type Queue interface {
	Enqueue(ctx context.Context, job ActionJob) error

	// Dequeue blocks until a job is available, ctx is done, or the queue is
	// closed.
	Dequeue(ctx context.Context) (Delivery, error)

	Close() error
}
