package services

import (
	"context"
	"net/http"
	"time"

	"github.com/wayposthq/waypost/internal/logging"
	"github.com/wayposthq/waypost/internal/worker"
	"go.uber.org/zap"
)

const httpShutdownTimeout = 10 * time.Second

// HTTPServerWorker wraps an HTTP server as a worker.
type HTTPServerWorker struct {
	server *http.Server
	logger *logging.Logger
}

func NewHTTPServerWorker(server *http.Server, logger *logging.Logger) worker.Worker {
	return &HTTPServerWorker{
		server: server,
		logger: logger,
	}
}

func (w *HTTPServerWorker) Name() string {
	return "http-server"
}

// Run serves until the context is cancelled, then shuts the server down
// gracefully, bounded by httpShutdownTimeout.
func (w *HTTPServerWorker) Run(ctx context.Context) error {
	logger := w.logger.Ctx(ctx)
	logger.Info("http server listening", zap.String("addr", w.server.Addr))

	errChan := make(chan error, 1)
	go func() {
		if err := w.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := w.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down http server", zap.Error(err))
			return err
		}
		logger.Info("http server shut down")
		return ctx.Err()
	case err := <-errChan:
		logger.Error("http server error", zap.Error(err))
		return err
	}
}
