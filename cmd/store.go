package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/horizonnet/coverage-cli/internal/coverage"
	"github.com/horizonnet/coverage-cli/internal/db"
)

// initStore opens the configured backend. The returned closer releases the
// underlying pool or file handle.
func initStore(ctx context.Context) (coverage.Store, func(), error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "coverage.db"
		}
		store, err := coverage.NewSQLiteStore(path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "postgres":
		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return coverage.NewPostgresStore(pool), pool.Close, nil
	default:
		return nil, nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
