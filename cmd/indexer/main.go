package main

import (
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/coldbell/matchers/internal/config"
	"github.com/coldbell/matchers/internal/daemon"
	"github.com/coldbell/matchers/internal/indexer"
)

func main() {
	os.Exit(daemon.Main(daemon.Spec[config.IndexerConfig]{
		Name: "indexer",
		Load: config.LoadIndexerConfig,
		Log:  func(cfg config.IndexerConfig) config.LogConfig { return cfg.Log },
		Build: func(cfg config.IndexerConfig, logger *slog.Logger) (daemon.Service, error) {
			logger.Info("indexing matcher programs", "programs", cfg.Programs.Names(), "poll_interval", cfg.PollInterval)
			return indexer.New(cfg, logger)
		},
	}))
}
