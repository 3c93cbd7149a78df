// Package worker supervises the long-running pieces of a service process:
// HTTP servers, queue consumers, the delivery engine. Each piece implements
// Worker; the Supervisor runs them, tracks their health, and drains them on
// shutdown.
package worker

import "context"

// Worker is a long-running background process. Run blocks until ctx is
// cancelled or the worker hits a fatal error. A nil or context.Canceled
// return is a graceful exit; anything else marks the worker failed.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}
