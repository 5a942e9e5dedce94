package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/storeflow/storeflow/pkg/cmd"
	"github.com/storeflow/storeflow/pkg/config"
	"github.com/storeflow/storeflow/pkg/log"
	"github.com/storeflow/storeflow/pkg/otelhelper"
	"github.com/storeflow/storeflow/pkg/retry"
	"github.com/storeflow/storeflow/pkg/worker"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

func main() {
	command := &cli.Command{
		Name:                  "storeflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers to execute workflow actions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the engine configuration file",
				Value:   "storeflow.yaml",
				Sources: cli.EnvVars("STOREFLOW_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL, overrides the config file",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error), overrides the config file",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	cfg := config.LoadOrDefault(command.String("config"))
	if v := command.String("database-url"); v != "" {
		cfg.DatabaseURL = v
	}

	if v := command.String("log-level"); v != "" {
		cfg.LogLevel = v
	}

	err := cfg.Validate()
	if err != nil {
		return err
	}

	log.Setup(cfg.LogLevel)
	logger := log.WithModule("storeflow-worker")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "Initializing Storeflow worker")

	var tracer trace.Tracer
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		tracer, err = otelhelper.NewTracer(ctx, "storeflow-worker")
		if err != nil {
			return err
		}
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

	registry := cmd.NewRegistry(logger)

	pool := worker.NewPool(logger, tracer, persistence, q, registry, worker.Options{
		Workers:       cfg.Worker.Count,
		ActionTimeout: cfg.Worker.ActionTimeout,
		RetryPolicy: retry.Policy{
			MaxAttempts:  cfg.Worker.RetryMaxAttempts,
			InitialDelay: cfg.Worker.RetryInitialDelay,
			MaxDelay:     cfg.Worker.RetryMaxDelay,
			Multiplier:   cfg.Worker.RetryDelayMultiplier,
		},
	})

	pool.Start(ctx)

	<-ctx.Done()
	logger.Info("Shutting down Storeflow worker")

	pool.Wait()

	return nil
}
