// Package app wires configuration, migrations, telemetry, and workers into a
// runnable process. cmd/waypost parses flags and hands the rest to App.
package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wayposthq/waypost/internal/config"
	"github.com/wayposthq/waypost/internal/idgen"
	"github.com/wayposthq/waypost/internal/logging"
	"github.com/wayposthq/waypost/internal/otel"
	"github.com/wayposthq/waypost/internal/services"
	"go.uber.org/zap"
)

const cleanupTimeout = 10 * time.Second

type App struct {
	config *config.Config
}

func New(cfg *config.Config) *App {
	return &App{
		config: cfg,
	}
}

func (a *App) Run(ctx context.Context) error {
	return run(ctx, a.config)
}

func run(mainContext context.Context, cfg *config.Config) (err error) {
	logger, err := logging.NewLogger(
		logging.WithLogLevel(cfg.LogLevel),
		logging.WithAuditLog(cfg.AuditLog),
	)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting waypost", cfg.LogConfigurationSummary()...)

	if err := idgen.Configure(cfg.IDTemplate.ToConfig()); err != nil {
		logger.Error("failed to configure ID generators", zap.Error(err))
		return err
	}

	if cfg.StorageDriver == config.StorageDriverPostgres {
		if err := runMigration(mainContext, cfg, logger); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(mainContext)
	defer cancel()

	if otelConfig := cfg.OpenTelemetry.ToConfig(); otelConfig != nil {
		otelShutdown, setupErr := otel.SetupOTelSDK(ctx, otelConfig)
		if setupErr != nil {
			return setupErr
		}
		// Flush exporters on the way out, whatever the exit path.
		defer func() {
			err = errors.Join(err, otelShutdown(context.Background()))
		}()
	}

	logger.Debug("building services")
	builder := services.NewServiceBuilder(ctx, cfg, logger)

	supervisor, err := builder.BuildWorkers()
	if err != nil {
		logger.Error("failed to build workers", zap.Error(err))
		return err
	}

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- supervisor.Run(ctx)
	}()

	// Wait for a termination signal or for the workers to stop on their own.
	// context.Canceled is the supervisor's normal return after a graceful
	// shutdown, so it is not treated as a failure on either path.
	var exitErr error
	select {
	case <-termChan:
		logger.Info("shutdown signal received")
		cancel()
		if err := <-errChan; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("error during graceful shutdown", zap.Error(err))
			exitErr = err
		}
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("workers exited unexpectedly", zap.Error(err))
			exitErr = err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer shutdownCancel()
	builder.Cleanup(shutdownCtx)

	logger.Info("waypost shutdown complete")

	return exitErr
}
