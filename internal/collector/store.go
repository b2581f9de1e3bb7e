package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"quotecollector/config"
	"quotecollector/pkg/storage"
	"quotecollector/pkg/storage/gormstore"
	"quotecollector/pkg/storage/memory"
	"quotecollector/pkg/storage/redisstore"
)

// OpenStore builds the entry store selected by cfg.Store.Driver.
func OpenStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory, "":
		return memory.NewStore(), nil
	case config.DriverSQLite:
		if cfg.SQLite.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		return gormstore.OpenSQLite(cfg.SQLite.Path)
	case config.DriverPostgres:
		return gormstore.OpenPostgres(cfg.Postgres, cfg.Log.Environment, cfg.Store.CreateDB)
	case config.DriverRedis:
		return redisstore.Open(ctx, cfg.Redis.URL, cfg.Redis.Prefix)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
