package main

import (
	"flag"
	"os"

	"github.com/oggyb/swipecook/internal/config"
	"github.com/oggyb/swipecook/internal/db"
	"github.com/oggyb/swipecook/internal/logger"
)

func main() {
	pairs := flag.Int("pairs", 3, "number of partnered user pairs to create")
	flag.Parse()

	// Load configuration
	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.L()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}
	if err := db.Migrate(database); err != nil {
		log.Error("failed to migrate", "err", err)
		os.Exit(1)
	}

	if err := db.SeedTestData(database, *pairs, log); err != nil {
		log.Error("failed to seed", "err", err)
		os.Exit(1)
	}

	log.Info("seeding completed")
}
