// Package daemon runs the long-lived matcher services: load config, build
// the logger, then run until SIGINT or SIGTERM.
package daemon

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/coldbell/matchers/internal/config"
	"github.com/coldbell/matchers/internal/logging"
)

type Service interface {
	Run(ctx context.Context) error
}

// Spec describes one service binary.
type Spec[C any] struct {
	Name  string
	Load  func() (C, error)
	Log   func(C) config.LogConfig
	Build func(C, *slog.Logger) (Service, error)
}

// Main runs spec with the process signal context and returns the exit code.
func Main[C any](spec Spec[C]) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return Run(ctx, spec, os.Stdout)
}

// Run is Main with an explicit context and bootstrap log destination.
func Run[C any](ctx context.Context, spec Spec[C], bootstrapOut *os.File) int {
	bootstrap := slog.New(slog.NewTextHandler(bootstrapOut, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := spec.Load()
	if err != nil {
		bootstrap.Error("failed to load config", "service", spec.Name, "err", err)
		return 1
	}

	logger, closeLogger, err := logging.New(spec.Name, spec.Log(cfg))
	if err != nil {
		bootstrap.Error("failed to initialize logger", "service", spec.Name, "err", err)
		return 1
	}
	defer func() {
		if err := closeLogger(); err != nil {
			bootstrap.Error("failed to close logger", "service", spec.Name, "err", err)
		}
	}()

	if source, err := config.CurrentConfigSource(); err == nil {
		logger.Info("configuration loaded", "phase", source.Phase, "path", source.Path, "loaded", source.Loaded)
	}

	svc, err := spec.Build(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize service", "err", err)
		return 1
	}
	if err := svc.Run(ctx); err != nil {
		logger.Error("service exited with error", "err", err)
		return 1
	}
	logger.Info("service stopped")
	return 0
}
