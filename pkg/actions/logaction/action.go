// Package logaction provides the log action, mostly useful while authoring
// workflows.
package logaction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/storeflow/storeflow/pkg/template"
	"github.com/storeflow/storeflow/pkg/triggers"
)

type Action struct {
	Message string
	Level   string
}

func NewAction(params map[string]any) *Action {
	message, _ := params["message"].(string)
	if message == "" {
		message = "Workflow action fired"
	}

	level, _ := params["level"].(string)
	if level == "" {
		level = "info"
	}

	return &Action{Message: message, Level: level}
}

func (a *Action) Execute(ctx context.Context, event triggers.Event, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "log_action")

	message, err := template.RenderString(a.Message, event)
	if err != nil {
		return nil, fmt.Errorf("invalid message template: %w", err)
	}

	switch a.Level {
	case "debug":
		logger.DebugContext(ctx, message, "trigger_kind", event.Kind, "event_id", event.ID)
	case "warn":
		logger.WarnContext(ctx, message, "trigger_kind", event.Kind, "event_id", event.ID)
	case "error":
		logger.ErrorContext(ctx, message, "trigger_kind", event.Kind, "event_id", event.ID)
	default:
		logger.InfoContext(ctx, message, "trigger_kind", event.Kind, "event_id", event.ID)
	}

	return map[string]any{"message": message}, nil
}
