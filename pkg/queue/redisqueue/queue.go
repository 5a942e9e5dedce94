// Package redisqueue implements the durable action-job queue on Redis lists,
// with a sorted set holding jobs scheduled for delayed retry.
package redisqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/storeflow/storeflow/pkg/queue"
)

const (
	DefaultPrefix = "storeflow:"

	// DefaultClaimTimeout bounds how long a dequeued job may sit unacked in
	// the processing list before it is considered abandoned by a dead worker
	// and requeued. It must comfortably exceed the longest action timeout.
	DefaultClaimTimeout = 5 * time.Minute

	dequeueBlockTimeout = 1 * time.Second
	connectTimeout      = 5 * time.Second
)

// Queue keeps ready jobs in a list, moves them to a processing list on
// dequeue, and parks delayed retries in a sorted set scored by the time they
// become due. Each dequeued job also gets a claim deadline in a second sorted
// set; jobs whose claim expires without an ack are requeued, so a crashed
// worker cannot strand its in-flight job.
type Queue struct {
	client        redis.UniversalClient
	readyKey      string
	processingKey string
	delayedKey    string
	claimsKey     string
	claimTimeout  time.Duration
	logger        *slog.Logger
	closed        atomic.Bool
	ownsClient    bool
}

func New(client redis.UniversalClient, prefix string, logger *slog.Logger) *Queue {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &Queue{
		client:        client,
		readyKey:      prefix + "jobs:ready",
		processingKey: prefix + "jobs:processing",
		delayedKey:    prefix + "jobs:delayed",
		claimsKey:     prefix + "jobs:claims",
		claimTimeout:  DefaultClaimTimeout,
		logger:        logger.With("module", "redisqueue"),
	}
}

// Open connects to Redis at the given URL and returns a queue that owns the
// connection.
func Open(ctx context.Context, redisURL, prefix string, logger *slog.Logger) (*Queue, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	q := New(client, prefix, logger)
	q.ownsClient = true

	return q, nil
}

func (q *Queue) Enqueue(ctx context.Context, job queue.ActionJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}

	return q.client.LPush(ctx, q.readyKey, payload).Err()
}

func (q *Queue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	for {
		if q.closed.Load() {
			return nil, queue.ErrClosed
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := q.promoteDue(ctx); err != nil {
			return nil, err
		}

		if err := q.reclaimStale(ctx); err != nil {
			return nil, err
		}

		raw, err := q.client.BLMove(ctx, q.readyKey, q.processingKey, "RIGHT", "LEFT", dequeueBlockTimeout).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}

			if q.closed.Load() {
				return nil, queue.ErrClosed
			}

			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}

			return nil, err
		}

		deadline := float64(time.Now().Add(q.claimTimeout).UnixMilli())

		err = q.client.ZAdd(ctx, q.claimsKey, redis.Z{Score: deadline, Member: raw}).Err()
		if err != nil {
			return nil, err
		}

		var job queue.ActionJob

		err = json.Unmarshal([]byte(raw), &job)
		if err != nil {
			// Undecodable payloads can never succeed; drop them.
			q.logger.Error("Dropping malformed action job", "error", err)
			q.release(ctx, raw)

			continue
		}

		return &delivery{queue: q, raw: raw, job: job}, nil
	}
}

// promoteDue moves delayed jobs whose due time has passed back to the ready
// list.
func (q *Queue) promoteDue(ctx context.Context) error {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())

	due, err := q.client.ZRangeByScore(ctx, q.delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return err
	}

	for _, member := range due {
		removed, err := q.client.ZRem(ctx, q.delayedKey, member).Result()
		if err != nil {
			return err
		}

		// Another consumer may have promoted it first.
		if removed == 0 {
			continue
		}

		err = q.client.LPush(ctx, q.readyKey, member).Err()
		if err != nil {
			return err
		}
	}

	return nil
}

// reclaimStale requeues processing-list jobs whose claim deadline has passed,
// the same pattern promoteDue applies to the delayed set. A claim that
// expires while its worker is still alive means the job runs again; the queue
// is at-least-once and the worker's execution cursor absorbs the duplicate.
func (q *Queue) reclaimStale(ctx context.Context) error {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())

	stale, err := q.client.ZRangeByScore(ctx, q.claimsKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return err
	}

	for _, member := range stale {
		removed, err := q.client.ZRem(ctx, q.claimsKey, member).Result()
		if err != nil {
			return err
		}

		// Another consumer reclaimed it, or the worker acked in the meantime.
		if removed == 0 {
			continue
		}

		taken, err := q.client.LRem(ctx, q.processingKey, 1, member).Result()
		if err != nil {
			return err
		}

		if taken == 0 {
			continue
		}

		q.logger.Warn("Requeueing abandoned action job")

		err = q.client.LPush(ctx, q.readyKey, member).Err()
		if err != nil {
			return err
		}
	}

	return nil
}

// release drops a job from the processing list and its claim from the claims
// set.
func (q *Queue) release(ctx context.Context, raw string) error {
	err := q.client.LRem(ctx, q.processingKey, 1, raw).Err()

	claimErr := q.client.ZRem(ctx, q.claimsKey, raw).Err()
	if err == nil {
		err = claimErr
	}

	return err
}

func (q *Queue) Close() error {
	if q.closed.Swap(true) {
		return nil
	}

	if q.ownsClient {
		return q.client.Close()
	}

	return nil
}

type delivery struct {
	queue *Queue
	raw   string
	job   queue.ActionJob
}

func (d *delivery) Job() queue.ActionJob {
	return d.job
}

func (d *delivery) Ack() error {
	return d.queue.release(context.Background(), d.raw)
}

func (d *delivery) Nack(retryAfter time.Duration) error {
	ctx := context.Background()

	err := d.queue.release(ctx, d.raw)
	if err != nil {
		return err
	}

	if retryAfter <= 0 {
		return d.queue.client.LPush(ctx, d.queue.readyKey, d.raw).Err()
	}

	due := float64(time.Now().Add(retryAfter).UnixMilli())

	return d.queue.client.ZAdd(ctx, d.queue.delayedKey, redis.Z{Score: due, Member: d.raw}).Err()
}
