package services

import (
	"context"
	"errors"

	"github.com/wayposthq/waypost/internal/engine"
	"github.com/wayposthq/waypost/internal/logging"
	"github.com/wayposthq/waypost/internal/worker"
)

// EngineWorker supervises a started engine: it stops the engine when the
// context is cancelled and reports failure if the pipeline dies first.
type EngineWorker struct {
	engine *engine.Engine
	logger *logging.Logger
}

func NewEngineWorker(eng *engine.Engine, logger *logging.Logger) worker.Worker {
	return &EngineWorker{
		engine: eng,
		logger: logger,
	}
}

func (w *EngineWorker) Name() string {
	return "engine"
}

func (w *EngineWorker) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		// Stop bounds its own wait with the engine's shutdown timeout.
		if err := w.engine.Stop(context.Background()); err != nil {
			return err
		}
		return ctx.Err()
	case <-w.engine.Done():
		return errors.New("delivery pipeline exited unexpectedly")
	}
}
