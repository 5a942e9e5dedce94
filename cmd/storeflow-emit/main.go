// Command storeflow-emit publishes trigger events into a running engine
// deployment. It shares the queue and storage configuration with the worker,
// so dispatched action jobs land on the same backend the workers consume.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/storeflow/storeflow/pkg/bus"
	"github.com/storeflow/storeflow/pkg/cmd"
	"github.com/storeflow/storeflow/pkg/config"
	"github.com/storeflow/storeflow/pkg/dispatch"
	"github.com/storeflow/storeflow/pkg/log"
	"github.com/storeflow/storeflow/pkg/triggers"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "storeflow-emit",
		EnableShellCompletion: true,
		Usage:                 "Publish trigger events for testing workflows",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List all trigger kinds with their sample payloads",
				Action:  listTriggers,
			},
			{
				Name:      "send",
				Aliases:   []string{"s"},
				Usage:     "Emit one trigger event and dispatch matching workflows",
				ArgsUsage: "<trigger-kind>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to the engine configuration file",
						Value:   "storeflow.yaml",
						Sources: cli.EnvVars("STOREFLOW_CONFIG"),
					},
					&cli.StringFlag{
						Name:    "payload",
						Aliases: []string{"f"},
						Usage:   "Path to a JSON payload file ('-' for stdin); defaults to the sample payload",
					},
					&cli.StringFlag{
						Name:    "log-level",
						Usage:   "Log level (debug, info, warn, error)",
						Value:   "info",
						Sources: cli.EnvVars("LOG_LEVEL"),
					},
				},
				Action: sendTrigger,
			},
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func listTriggers(_ context.Context, _ *cli.Command) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tCATEGORY\tDESCRIPTION")

	for _, entry := range triggers.Catalog() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", entry.Kind, entry.Category, entry.Description)
	}

	return w.Flush()
}

func sendTrigger(ctx context.Context, command *cli.Command) error {
	kind := triggers.Kind(command.Args().First())
	if kind == "" {
		return fmt.Errorf("usage: storeflow-emit send <trigger-kind>")
	}

	if !triggers.Valid(kind) {
		return fmt.Errorf("unknown trigger kind %q", kind)
	}

	cfg := config.LoadOrDefault(command.String("config"))

	err := cfg.Validate()
	if err != nil {
		return err
	}

	log.Setup(command.String("log-level"))
	logger := log.WithModule("storeflow-emit")

	event, err := buildEvent(kind, command.String("payload"))
	if err != nil {
		return err
	}

	persistence := cmd.NewPersistence(ctx, logger, cfg.DatabaseURL)
	defer func() {
		if err := persistence.Close(context.Background()); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	q := cmd.NewQueue(ctx, cfg.Queue, logger)
	defer func() {
		if err := q.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close queue", "error", err)
		}
	}()

	eventBus := bus.New(logger)
	dispatcher := dispatch.NewDispatcher(logger, nil, persistence, q, cmd.NewRegistry(logger))
	defer dispatcher.Attach(eventBus)()

	eventBus.EmitEvent(ctx, event)

	fmt.Printf("Emitted %s event %s\n", event.Kind, event.ID)

	return nil
}

// buildEvent wraps the payload into an envelope. A custom payload is decoded
// through the envelope's kind discriminator so it gets the same validation an
// API test trigger would.
func buildEvent(kind triggers.Kind, payloadPath string) (triggers.Event, error) {
	if payloadPath == "" {
		sample, ok := triggers.SamplePayload(kind)
		if !ok {
			return triggers.Event{}, fmt.Errorf("no sample payload for trigger kind %q", kind)
		}

		return triggers.NewEvent(sample), nil
	}

	var (
		raw []byte
		err error
	)

	if payloadPath == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(payloadPath)
	}

	if err != nil {
		return triggers.Event{}, fmt.Errorf("failed to read payload: %w", err)
	}

	if !json.Valid(raw) {
		return triggers.Event{}, fmt.Errorf("payload is not valid JSON")
	}

	envelope, err := json.Marshal(struct {
		ID        string          `json:"id"`
		Kind      triggers.Kind   `json:"kind"`
		Timestamp time.Time       `json:"timestamp"`
		Payload   json.RawMessage `json:"payload"`
	}{
		ID:        "evt-" + uuid.New().String(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Payload:   json.RawMessage(raw),
	})
	if err != nil {
		return triggers.Event{}, err
	}

	var event triggers.Event

	err = json.Unmarshal(envelope, &event)
	if err != nil {
		return triggers.Event{}, fmt.Errorf("invalid payload for %s: %w", kind, err)
	}

	return event, nil
}
