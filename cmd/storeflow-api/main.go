package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/storeflow/storeflow/pkg/bus"
	"github.com/storeflow/storeflow/pkg/cmd"
	"github.com/storeflow/storeflow/pkg/config"
	"github.com/storeflow/storeflow/pkg/dispatch"
	"github.com/storeflow/storeflow/pkg/log"
	"github.com/storeflow/storeflow/pkg/otelhelper"
	"github.com/storeflow/storeflow/pkg/web"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

func main() {
	command := &cli.Command{
		Name:                  "storeflow-api",
		EnableShellCompletion: true,
		Usage:                 "Create and manage workflows",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the engine configuration file",
				Value:   "storeflow.yaml",
				Sources: cli.EnvVars("STOREFLOW_CONFIG"),
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on, overrides the config file",
				Sources: cli.EnvVars("PORT"),
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
	if v := command.Int("port"); v != 0 {
		cfg.API.Port = v
	}

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
	logger := log.WithModule("storeflow-api")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "Initializing Storeflow API")

	var tracer trace.Tracer
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		tracer, err = otelhelper.NewTracer(ctx, "storeflow-api")
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

	eventBus := bus.New(logger)
	dispatcher := dispatch.NewDispatcher(logger, tracer, persistence, q, registry)
	detach := dispatcher.Attach(eventBus)
	defer detach()

	app := web.NewApp(web.NewAPIHandlers(logger, persistence, registry, eventBus))

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down Storeflow API")

		if err := app.Shutdown(); err != nil {
			logger.Error("Failed to shut down HTTP server", "error", err)
		}
	}()

	return app.Listen(":" + strconv.Itoa(cfg.API.Port))
}
