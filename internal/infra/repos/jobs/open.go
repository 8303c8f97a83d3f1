package jobs

import (
	"context"
	"fmt"

	"github.com/mmrzaf/tablegen/internal/config"
)

// Open builds the store selected by cfg.JobStore.
func Open(ctx context.Context, cfg *config.Config) (Repository, error) {
	switch cfg.JobStore {
	case config.JobStoreMemory:
		return NewMemoryRepository(), nil
	case config.JobStoreSQLite, "":
		repo := NewSQLiteRepository(cfg.DBDSN)
		if err := repo.Init(); err != nil {
			return nil, fmt.Errorf("failed to open sqlite job store: %w", err)
		}
		return repo, nil
	case config.JobStorePostgres:
		repo := NewPostgresRepository(cfg.DBDSN)
		if err := repo.Init(); err != nil {
			return nil, fmt.Errorf("failed to open postgres job store: %w", err)
		}
		return repo, nil
	case config.JobStoreRedis:
		repo, err := OpenRedis(ctx, cfg.RedisURL, cfg.JobTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis job store: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown job store %q", cfg.JobStore)
	}
}
