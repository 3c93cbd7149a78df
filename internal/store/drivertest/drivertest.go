// Package drivertest provides a conformance test suite for store drivers.
package drivertest

import (
	"context"
	"testing"

	"github.com/wayposthq/waypost/internal/store/driver"
)

// Harness provides the test infrastructure for a store driver implementation.
type Harness interface {
	MakeDriver(ctx context.Context) (driver.Store, error)
	Close()
}

// HarnessMaker creates a new Harness for each test.
type HarnessMaker func(ctx context.Context, t *testing.T) (Harness, error)

// RunConformanceTests executes the full conformance test suite for a store
// driver. Every driver must pass all three parts:
//   - Endpoints: CRUD, duplicate and not-found errors, list ordering
//   - Deliveries: CRUD, state transitions, not-found errors
//   - ListDeliveries: filtering, ordering, and paging
func RunConformanceTests(t *testing.T, newHarness HarnessMaker) {
	t.Helper()

	t.Run("Endpoints", func(t *testing.T) {
		testEndpoints(t, newHarness)
	})
	t.Run("Deliveries", func(t *testing.T) {
		testDeliveries(t, newHarness)
	})
	t.Run("ListDeliveries", func(t *testing.T) {
		testListDeliveries(t, newHarness)
	})
}
