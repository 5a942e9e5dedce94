// Package watermillqueue implements the durable action-job queue on top of a
// Watermill publisher/subscriber pair, which lets the same code run on the
// in-process gochannel transport for tests and on Kafka in production.
package watermillqueue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/storeflow/storeflow/pkg/queue"
)

const DefaultTopic = "storeflow.action.jobs"

// Queue adapts a Watermill pub/sub pair to the queue.Queue contract.
type Queue struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	topic      string
	logger     *slog.Logger

	subscribeOnce sync.Once
	messages      <-chan *message.Message
	subscribeErr  error

	closeOnce sync.Once
	closed    chan struct{}
}

func New(publisher message.Publisher, subscriber message.Subscriber, topic string, logger *slog.Logger) *Queue {
	if topic == "" {
		topic = DefaultTopic
	}

	return &Queue{
		publisher:  publisher,
		subscriber: subscriber,
		topic:      topic,
		logger:     logger.With("module", "watermillqueue", "topic", topic),
		closed:     make(chan struct{}),
	}
}

func (q *Queue) Enqueue(_ context.Context, job queue.ActionJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)

	return q.publisher.Publish(q.topic, msg)
}

func (q *Queue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	q.subscribeOnce.Do(func() {
		q.messages, q.subscribeErr = q.subscriber.Subscribe(context.Background(), q.topic)
	})

	if q.subscribeErr != nil {
		return nil, q.subscribeErr
	}

	for {
		select {
		case msg, ok := <-q.messages:
			if !ok {
				return nil, queue.ErrClosed
			}

			var job queue.ActionJob

			err := json.Unmarshal(msg.Payload, &job)
			if err != nil {
				// Undecodable payloads can never succeed; drop them instead
				// of redelivering forever.
				q.logger.Error("Dropping malformed action job", "message_id", msg.UUID, "error", err)
				msg.Ack()

				continue
			}

			return &delivery{queue: q, msg: msg, job: job}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.closed:
			return nil, queue.ErrClosed
		}
	}
}

func (q *Queue) Close() error {
	var err error

	q.closeOnce.Do(func() {
		close(q.closed)

		err = q.publisher.Close()

		subErr := q.subscriber.Close()
		if err == nil {
			err = subErr
		}
	})

	return err
}

type delivery struct {
	queue *Queue
	msg   *message.Message
	job   queue.ActionJob
}

func (d *delivery) Job() queue.ActionJob {
	return d.job
}

func (d *delivery) Ack() error {
	d.msg.Ack()

	return nil
}

// Nack requests redelivery. An immediate nack goes through the transport. Not
// every Watermill backend supports native delayed delivery, so a delayed nack
// republishes the job with its NotBefore stamp and only then acks the
// original; consumers hold stamped jobs until they fall due. The original
// message stays unacked until the copy is on the transport, so a crash at any
// point leaves at least one copy of the job durable.
func (d *delivery) Nack(retryAfter time.Duration) error {
	if retryAfter <= 0 {
		d.msg.Nack()

		return nil
	}

	job := d.job
	job.NotBefore = time.Now().UTC().Add(retryAfter)

	payload, err := json.Marshal(job)
	if err != nil {
		d.msg.Nack()

		return err
	}

	err = d.queue.publisher.Publish(d.queue.topic, message.NewMessage(watermill.NewUUID(), payload))
	if err != nil {
		d.msg.Nack()

		return err
	}

	d.msg.Ack()

	return nil
}
