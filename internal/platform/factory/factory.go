package factory

import (
	"context"
	"fmt"

	"github.com/workmate-hq/workmate/internal/config"
	"github.com/workmate-hq/workmate/internal/store"
	"github.com/workmate-hq/workmate/internal/store/postgres"
	"github.com/workmate-hq/workmate/internal/store/sqlite"
)

// NewStore builds the store selected by cfg.DBDriver. The schema is applied
// on startup for both drivers; statements are idempotent.
func NewStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := postgres.Bootstrap(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return postgres.New(db), nil
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return sqlite.New(db), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER: %s", cfg.DBDriver)
	}
}
