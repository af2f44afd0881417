// internal/store/open.go
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/triage/internal/config"
)

// Open builds the recorder selected by cfg. The returned function releases
// its resources.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Recorder, func(), error) {
	switch cfg.Type {
	case "", config.StoreNone:
		return Nop{}, func() {}, nil

	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		s, err := New(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil

	case config.StoreSQLite:
		path, err := homedir.Expand(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to expand %s: %w", cfg.SQLitePath, err)
		}
		s, err := OpenSQLite(path, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warn("Failed to close sqlite store.", zap.Error(err))
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
