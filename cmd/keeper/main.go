package main

import (
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/coldbell/matchers/internal/config"
	"github.com/coldbell/matchers/internal/daemon"
	"github.com/coldbell/matchers/internal/keeper"
)

func main() {
	os.Exit(daemon.Main(daemon.Spec[config.KeeperConfig]{
		Name: "keeper",
		Load: config.LoadKeeperConfig,
		Log:  func(cfg config.KeeperConfig) config.LogConfig { return cfg.Log },
		Build: func(cfg config.KeeperConfig, logger *slog.Logger) (daemon.Service, error) {
			logger.Info("keeper targets", "count", len(cfg.Targets), "programs", cfg.Programs.Names(), "refresh_slots", cfg.RefreshSlots)
			return keeper.New(cfg, logger)
		},
	}))
}
