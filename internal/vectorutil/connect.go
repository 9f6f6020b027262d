package vectorutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hackrx/docqa/internal/vector"
	"github.com/hackrx/docqa/internal/vector/memory"
	"github.com/hackrx/docqa/internal/vector/pgvector"
	"github.com/hackrx/docqa/internal/vector/qdrant"
)

// Open connects the configured vector backend. The primary driver is tried
// first; if it fails to connect and a fallback driver is configured, that is
// tried next. The chosen driver is logged once so operators can tell which
// strategy won.
func Open(ctx context.Context, cfg vector.Config, logger *slog.Logger) (vector.Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}

	drivers := make([]string, 0, 2)
	if cfg.Driver != "" {
		drivers = append(drivers, cfg.Driver)
	}
	if cfg.FallbackDriver != "" && cfg.FallbackDriver != cfg.Driver {
		drivers = append(drivers, cfg.FallbackDriver)
	}
	if len(drivers) == 0 {
		drivers = append(drivers, "memory")
	}

	var attempts []error
	for _, driver := range drivers {
		repo, err := open(ctx, driver, cfg)
		if err != nil {
			logger.Warn("vector driver failed to connect", "driver", driver, "error", err)
			attempts = append(attempts, fmt.Errorf("%s: %w", driver, err))
			continue
		}
		logger.Info("vector store connected", "driver", driver, "collection", cfg.Collection)
		return repo, nil
	}
	return nil, fmt.Errorf("no vector driver available: %w", errors.Join(attempts...))
}

func open(ctx context.Context, driver string, cfg vector.Config) (vector.Repository, error) {
	switch driver {
	case "qdrant":
		return qdrant.New(ctx, qdrant.Config{
			Addr:       cfg.URL,
			APIKey:     cfg.APIKey,
			Collection: cfg.Collection,
			Dimension:  cfg.Dimension,
			BatchSize:  cfg.EffectiveBatchSize(),
		})
	case "pgvector":
		return pgvector.New(ctx, pgvector.Config{
			DSN:       cfg.PostgresDSN,
			Table:     cfg.Collection,
			Dimension: cfg.Dimension,
			BatchSize: cfg.EffectiveBatchSize(),
		})
	case "memory", "none":
		return memory.New(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown vector driver %q (known: qdrant, pgvector, memory)", driver)
	}
}
