package app

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

// initStorage подменяет in-memory репозитории на PostgreSQL, если выбран
// соответствующий драйвер. Возвращает открытый Store (nil для memory);
// закрытие остаётся за вызывающим.
func initStorage(ctx context.Context, cfg Config, deps *Dependencies) (*postgres.Store, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		return nil, nil
	case StorageDriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}

	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres storage driver requires a DSN")
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}

	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply postgres migrations: %w", err)
		}
	}

	deps.Carts = postgres.NewCartRepository(store)
	deps.Orders = postgres.NewOrderRepository(store)
	deps.Callbacks = postgres.NewCallbackRepository(store)
	deps.Outbox = postgres.NewOutboxRepository(store)
	deps.Timeline = postgres.NewTimelineRepository(store)
	deps.Logger.Info("postgres storage initialized")

	return store, nil
}
