package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/stemsi/exstem-academy/internal/config"
	"github.com/stemsi/exstem-academy/internal/database"
	"github.com/stemsi/exstem-academy/internal/logger"
	"github.com/stemsi/exstem-academy/internal/repository"
)

func main() {
	cfg := config.Load()

	var path string
	flag.StringVar(&path, "file", cfg.CatalogFile, "Path to the JSON test catalog")
	flag.Parse()

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if path == "" {
		log.Fatal().Msg("No catalog file given (use -file or CATALOG_FILE)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	tests, err := repository.LoadTestsFile(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load catalog file")
	}

	testRepo := repository.NewTestRepository(pool)

	fmt.Printf("=== Seeding %d Tests ===\n", len(tests))

	successCount := 0
	for i := range tests {
		t := &tests[i]
		if err := testRepo.Upsert(ctx, t, i); err != nil {
			fmt.Printf("Error seeding test %s (%s): %v\n", t.Title, t.ID, err)
			continue
		}
		successCount++
		fmt.Printf("Seeded %s (%s), %d questions\n", t.Title, t.ID, len(t.Questions))
	}

	fmt.Printf("\nSeed completed! Successfully upserted %d/%d tests.\n", successCount, len(tests))
}
