package alert

import (
	"context"
	"sync"
	"time"
)

type memTracker struct {
	mu     sync.Mutex
	states map[string]*FailureState
}

var _ FailureTracker = &memTracker{}

func newMemTracker() *memTracker {
	return &memTracker{states: make(map[string]*FailureState)}
}

func (t *memTracker) IncrFailures(_ context.Context, endpointID string) (FailureState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.states[endpointID]
	if !ok {
		state = &FailureState{}
		t.states[endpointID] = state
	}
	state.Failures++
	return *state, nil
}

func (t *memTracker) ResetFailures(_ context.Context, endpointID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state, ok := t.states[endpointID]; ok {
		state.Failures = 0
	}
	return nil
}

func (t *memTracker) MarkAlerted(_ context.Context, endpointID string, at time.Time, level int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.states[endpointID]
	if !ok {
		state = &FailureState{}
		t.states[endpointID] = state
	}
	state.LastAlertAt = at
	state.LastAlertLevel = level
	return nil
}
