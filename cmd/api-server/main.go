package main

import (
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/coldbell/matchers/internal/apiserver"
	"github.com/coldbell/matchers/internal/config"
	"github.com/coldbell/matchers/internal/daemon"
)

func main() {
	os.Exit(daemon.Main(daemon.Spec[config.APIServerConfig]{
		Name: "api-server",
		Load: config.LoadAPIServerConfig,
		Log:  func(cfg config.APIServerConfig) config.LogConfig { return cfg.Log },
		Build: func(cfg config.APIServerConfig, logger *slog.Logger) (daemon.Service, error) {
			logger.Info("serving matcher api", "addr", cfg.ListenAddr, "programs", cfg.Programs.Names())
			return apiserver.New(cfg, logger)
		},
	}))
}
