// Package log configures the process-wide structured logger and holds the
// correlation conventions shared by the event path: every line touching a
// trigger event carries the same trigger_kind and event_id fields so one
// event can be followed from emit through dispatch to action execution.
package log

import (
	"log/slog"
	"os"
	"strings"

	"github.com/storeflow/storeflow/pkg/triggers"
)

// Setup installs the default text logger at the given level. Unknown level
// names fall back to info rather than failing startup.
func Setup(logLevel string) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(logLevel))); err != nil {
		level = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// WithModule returns the default logger tagged with the component name.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}

// WithEvent tags a logger with the correlation fields for a trigger event.
func WithEvent(logger *slog.Logger, event triggers.Event) *slog.Logger {
	return logger.With("trigger_kind", event.Kind, "event_id", event.ID)
}
