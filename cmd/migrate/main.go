package main

import (
	"errors"
	"flag"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/config"
	"github.com/stemsi/exstem-academy/internal/logger"
	"github.com/stemsi/exstem-academy/migrations"
)

func main() {
	var (
		migrationDir string
		steps        int
	)
	flag.StringVar(&migrationDir, "path", "", "Path to migration files (default: embedded)")
	flag.IntVar(&steps, "steps", 0, "Apply only N steps for up/down (0 = all)")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		return
	}

	m, err := newMigrate(migrationDir, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed to initialize")
	}
	defer m.Close()

	switch command := args[0]; command {
	case "up":
		run(log, "up", func() error {
			if steps > 0 {
				return m.Steps(steps)
			}
			return m.Up()
		})
	case "down":
		run(log, "down", func() error {
			if steps > 0 {
				return m.Steps(-steps)
			}
			return m.Down()
		})
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("Version: none")
			return
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Version failed")
		}
		fmt.Printf("Version: %d, Dirty: %t\n", version, dirty)
	case "force":
		if len(args) < 2 {
			log.Fatal().Msg("force requires version argument")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid version")
		}
		if err := m.Force(v); err != nil {
			log.Fatal().Err(err).Msg("Force failed")
		}
		log.Info().Int("version", v).Msg("Forced version")
	default:
		printUsage()
	}
}

// newMigrate reads migrations from dir, or from the copy embedded in the
// binary when dir is empty.
func newMigrate(dir, databaseURL string) (*migrate.Migrate, error) {
	if dir != "" {
		return migrate.New("file://"+dir, databaseURL)
	}
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	return migrate.NewWithSourceInstance("iofs", src, databaseURL)
}

func run(log zerolog.Logger, name string, fn func() error) {
	err := fn()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Info().Str("direction", name).Msg("No migration to apply")
	case err != nil:
		log.Fatal().Err(err).Str("direction", name).Msg("Migration failed")
	default:
		log.Info().Str("direction", name).Msg("Migrated successfully")
	}
}

func printUsage() {
	fmt.Println("Usage: migrate [flags] <command>")
	fmt.Println("Commands: up, down, version, force <version>")
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
