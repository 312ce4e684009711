package main

import (
	"os"

	zlog "github.com/rs/zerolog/log"

	"github.com/safar/go-rental-store/internal/config"
	"github.com/safar/go-rental-store/internal/database"
	"github.com/safar/go-rental-store/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		zlog.Fatal().Msg("usage: migrate [up|down]")
	}

	direction := database.MigrateDirection(os.Args[1])
	if direction != database.MigrateUp && direction != database.MigrateDown {
		zlog.Fatal().Str("direction", os.Args[1]).Msg("direction must be 'up' or 'down'")
	}

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(cfg.Log)

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer db.Close()

	if err := database.RunMigrations(db, cfg.Database.MigrationsPath, direction); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	log.Info().Str("direction", string(direction)).Str("path", cfg.Database.MigrationsPath).Msg("migrations applied")
}
