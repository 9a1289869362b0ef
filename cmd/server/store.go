package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/config"
	"github.com/stemsi/exstem-academy/internal/database"
	"github.com/stemsi/exstem-academy/internal/model"
	"github.com/stemsi/exstem-academy/internal/repository"
	"github.com/stemsi/exstem-academy/internal/service"
	"github.com/stemsi/exstem-academy/internal/worker"
)

// resultStore is what a driver offers on the result side.
type resultStore interface {
	service.ResultQuerier
	worker.ResultSink
}

// stores is the Test Catalog and Result Store chosen by STORE_DRIVER.
type stores struct {
	tests   service.TestCatalog
	results resultStore
	close   func()
}

// openStores connects the configured driver and loads CATALOG_FILE into it
// when set.
func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	var (
		s    stores
		load func(ctx context.Context, t *model.Test, position int) error
	)

	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		testRepo := repository.NewTestRepository(pool)
		s = stores{tests: testRepo, results: repository.NewResultRepository(pool), close: pool.Close}
		load = testRepo.Upsert

	case config.StoreDriverSQLite:
		db, err := database.NewSQLite(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		store, err := repository.NewSQLiteStore(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		s = stores{tests: store, results: store, close: func() { _ = db.Close() }}
		load = store.PutTest

	case config.StoreDriverMemory:
		store := repository.NewMemoryStore()
		s = stores{tests: store, results: store, close: func() {}}
		load = func(_ context.Context, t *model.Test, _ int) error {
			store.PutTest(*t)
			return nil
		}

	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.CatalogFile == "" {
		return &s, nil
	}

	tests, err := repository.LoadTestsFile(cfg.CatalogFile)
	if err != nil {
		s.close()
		return nil, err
	}
	for i := range tests {
		if err := load(ctx, &tests[i], i); err != nil {
			s.close()
			return nil, fmt.Errorf("load test %q: %w", tests[i].Title, err)
		}
	}
	log.Info().Int("tests", len(tests)).Str("file", cfg.CatalogFile).Msg("Catalog file loaded")

	return &s, nil
}
