package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/storeflow/storeflow/pkg/persistence"
	"github.com/storeflow/storeflow/pkg/persistence/file"
	"github.com/storeflow/storeflow/pkg/persistence/memory"
	"github.com/storeflow/storeflow/pkg/persistence/postgres"
)

// NewPersistence creates the storage backend for the given database URL.
// Supported schemes are postgres://, file:// and memory://; anything else
// falls back to file storage rooted at the URL itself.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	scheme, rest, found := strings.Cut(databaseURL, "://")
	if !found {
		return file.NewPersistence(databaseURL)
	}

	switch scheme {
	case "postgres", "postgresql":
		p, err := postgres.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to connect to PostgreSQL: %w", err))
		}

		return p
	case "memory":
		return memory.NewPersistence()
	case "file":
		return file.NewPersistence(rest)
	default:
		return file.NewPersistence(databaseURL)
	}
}
