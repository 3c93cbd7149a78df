package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Logger is the slice of the logging interface the supervisor needs.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// Supervisor runs registered workers and tracks their health. A worker
// failing does not stop its siblings; the health tracker reports the failure
// so the orchestrator can decide to restart the process.
type Supervisor struct {
	workers         map[string]Worker
	health          *HealthTracker
	logger          Logger
	shutdownTimeout time.Duration
}

type SupervisorOption func(*Supervisor)

// WithShutdownTimeout bounds how long Run waits for workers to drain after
// the context is cancelled. Zero waits indefinitely.
func WithShutdownTimeout(timeout time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		s.shutdownTimeout = timeout
	}
}

func NewSupervisor(logger Logger, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		workers: make(map[string]Worker),
		health:  NewHealthTracker(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a worker. Worker names identify health entries, so
// registering two workers with the same name panics.
func (s *Supervisor) Register(w Worker) {
	if _, exists := s.workers[w.Name()]; exists {
		panic(fmt.Sprintf("worker %s already registered", w.Name()))
	}
	s.workers[w.Name()] = w
	s.logger.Debug("worker registered", zap.String("worker", w.Name()))
}

func (s *Supervisor) GetHealthTracker() *HealthTracker {
	return s.health
}

// Run starts every registered worker and blocks until the context is
// cancelled or all workers have exited on their own. On cancellation it
// waits for workers to drain and returns ctx.Err(); callers treat
// context.Canceled as a graceful shutdown. All workers exiting before
// cancellation is an error even if each exit was clean.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.workers) == 0 {
		s.logger.Warn("no workers registered")
		return errors.New("no workers registered")
	}

	s.logger.Info("starting workers", zap.Int("count", len(s.workers)))

	var wg sync.WaitGroup
	for name, w := range s.workers {
		wg.Add(1)
		s.health.MarkHealthy(name)
		go func(name string, w Worker) {
			defer wg.Done()
			s.logger.Info("worker starting", zap.String("worker", name))
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("worker failed", zap.String("worker", name), zap.Error(err))
				s.health.MarkFailed(name)
				return
			}
			s.logger.Info("worker stopped", zap.String("worker", name))
		}(name, w)
	}

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down workers")
		if s.shutdownTimeout > 0 {
			select {
			case <-waitChan(&wg):
			case <-time.After(s.shutdownTimeout):
				s.logger.Warn("shutdown timeout exceeded, some workers may still be running",
					zap.Duration("timeout", s.shutdownTimeout))
				return fmt.Errorf("shutdown timeout exceeded (%v)", s.shutdownTimeout)
			}
		} else {
			wg.Wait()
		}
		s.logger.Info("all workers shut down")
		return ctx.Err()
	case <-waitChan(&wg):
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("all workers have exited")
		return errors.New("all workers exited unexpectedly")
	}
}

func waitChan(wg *sync.WaitGroup) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}
