package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/storeflow/storeflow/pkg/channels/gochannel"
	"github.com/storeflow/storeflow/pkg/channels/kafka"
	"github.com/storeflow/storeflow/pkg/config"
	"github.com/storeflow/storeflow/pkg/queue"
	"github.com/storeflow/storeflow/pkg/queue/redisqueue"
	"github.com/storeflow/storeflow/pkg/queue/watermillqueue"
)

// NewQueue creates the action job queue backend selected by the config.
func NewQueue(ctx context.Context, cfg config.QueueConfig, logger *slog.Logger) queue.Queue {
	switch cfg.Provider {
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			panic(fmt.Errorf("failed to create gochannel pub/sub: %w", err))
		}

		return watermillqueue.New(pub, sub, cfg.Topic, logger)
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), "storeflow", cfg.Brokers)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return watermillqueue.New(pub, sub, cfg.Topic, logger)
	case "redis":
		q, err := redisqueue.Open(ctx, cfg.RedisURL, redisqueue.DefaultPrefix, logger)
		if err != nil {
			panic(fmt.Errorf("failed to connect to Redis queue: %w", err))
		}

		return q
	default:
		panic("Unsupported queue provider: " + cfg.Provider)
	}
}
