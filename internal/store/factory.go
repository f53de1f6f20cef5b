package store

import (
	"context"
	"fmt"

	"agentcore/internal/config"
)

// New constructs the configured Durable Store backend, grounded on the
// teacher's persistence/databases.NewManager per-concern backend switch.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres", "pg":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("store backend postgres requires DATABASE_URL")
		}
		pool, err := NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return NewPostgresStore(ctx, pool)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}
