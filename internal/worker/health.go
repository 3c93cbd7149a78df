package worker

import (
	"sync"
	"time"
)

const (
	WorkerStatusHealthy = "healthy"
	WorkerStatusFailed  = "failed"
)

// WorkerHealth is the reported state of one worker. Error details are kept
// out of it; health responses may be exposed outside the process.
type WorkerHealth struct {
	Status    string    `json:"status"`
	LastCheck time.Time `json:"last_check"`
}

// Status is the aggregate health report served on the health endpoint.
type Status struct {
	Status    string                  `json:"status"`
	Workers   map[string]WorkerHealth `json:"workers"`
	Timestamp time.Time               `json:"timestamp"`
}

// HealthTracker tracks worker health. Safe for concurrent use.
type HealthTracker struct {
	mu      sync.RWMutex
	workers map[string]WorkerHealth
}

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{
		workers: make(map[string]WorkerHealth),
	}
}

func (h *HealthTracker) MarkHealthy(name string) {
	h.mark(name, WorkerStatusHealthy)
}

func (h *HealthTracker) MarkFailed(name string) {
	h.mark(name, WorkerStatusFailed)
}

func (h *HealthTracker) mark(name, status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.workers[name] = WorkerHealth{
		Status:    status,
		LastCheck: time.Now(),
	}
}

// IsHealthy reports whether every tracked worker is healthy.
func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.isHealthyLocked()
}

// GetStatus returns a snapshot of the aggregate and per-worker health.
func (h *HealthTracker) GetStatus() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()

	workers := make(map[string]WorkerHealth, len(h.workers))
	for name, w := range h.workers {
		workers[name] = w
	}

	status := WorkerStatusHealthy
	if !h.isHealthyLocked() {
		status = WorkerStatusFailed
	}

	return Status{
		Status:    status,
		Workers:   workers,
		Timestamp: time.Now(),
	}
}

func (h *HealthTracker) isHealthyLocked() bool {
	for _, w := range h.workers {
		if w.Status != WorkerStatusHealthy {
			return false
		}
	}
	return true
}
