// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers can register hooks at startup
// to receive events about storage operations, the write queue, and run
// execution.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// This approach:
//   - Avoids import cycles (hooks are registered by main, not by libraries)
//   - Keeps the core library dependency-free from observability frameworks
//   - Allows different backends (OpenTelemetry, Prometheus, DataDog, etc.)
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetStorageHooks(&myStorageHooks{})
//	    observability.SetQueueHooks(&myQueueHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Storage().OnStoreStart(ctx, traj, node)
//	// ... write nodes ...
//	observability.Storage().OnStoreComplete(ctx, traj, node, count, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Storage Hooks
// =============================================================================

// StorageHooks receives events from store/load/delete operations.
type StorageHooks interface {
	// Store events
	OnStoreStart(ctx context.Context, traj, node string)
	OnStoreComplete(ctx context.Context, traj, node string, nodeCount int, duration time.Duration, err error)

	// Load events
	OnLoadStart(ctx context.Context, traj, node string)
	OnLoadComplete(ctx context.Context, traj, node string, nodeCount int, duration time.Duration, err error)

	// OnDelete records a node deletion from the backend.
	OnDelete(ctx context.Context, traj, node string, err error)
}

// =============================================================================
// Queue Hooks
// =============================================================================

// QueueHooks receives events from the write queue.
type QueueHooks interface {
	// OnEnqueue records a request entering the queue.
	OnEnqueue(ctx context.Context, node string)

	// OnApply records the writer applying a request.
	OnApply(ctx context.Context, node string, duration time.Duration)

	// OnFail records a request whose apply failed.
	OnFail(ctx context.Context, node string, err error)
}

// =============================================================================
// Run Hooks
// =============================================================================

// RunHooks receives events from run execution on the worker pool.
type RunHooks interface {
	// OnRunStart records a worker picking up a run.
	OnRunStart(ctx context.Context, traj string, run int)

	// OnRunComplete records a run finishing.
	OnRunComplete(ctx context.Context, traj string, run int, duration time.Duration, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopStorageHooks is a no-op implementation of StorageHooks.
type NoopStorageHooks struct{}

func (NoopStorageHooks) OnStoreStart(context.Context, string, string) {}
func (NoopStorageHooks) OnStoreComplete(context.Context, string, string, int, time.Duration, error) {
}
func (NoopStorageHooks) OnLoadStart(context.Context, string, string) {}
func (NoopStorageHooks) OnLoadComplete(context.Context, string, string, int, time.Duration, error) {
}
func (NoopStorageHooks) OnDelete(context.Context, string, string, error) {}

// NoopQueueHooks is a no-op implementation of QueueHooks.
type NoopQueueHooks struct{}

func (NoopQueueHooks) OnEnqueue(context.Context, string)                {}
func (NoopQueueHooks) OnApply(context.Context, string, time.Duration)   {}
func (NoopQueueHooks) OnFail(context.Context, string, error)            {}

// NoopRunHooks is a no-op implementation of RunHooks.
type NoopRunHooks struct{}

func (NoopRunHooks) OnRunStart(context.Context, string, int)                          {}
func (NoopRunHooks) OnRunComplete(context.Context, string, int, time.Duration, error) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	storageHooks StorageHooks = NoopStorageHooks{}
	queueHooks   QueueHooks   = NoopQueueHooks{}
	runHooks     RunHooks     = NoopRunHooks{}
	hooksMu      sync.RWMutex
)

// SetStorageHooks registers custom storage hooks.
// This should be called once at application startup before any storage operations.
func SetStorageHooks(h StorageHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		storageHooks = h
	}
}

// SetQueueHooks registers custom queue hooks.
// This should be called once at application startup before any queue operations.
func SetQueueHooks(h QueueHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		queueHooks = h
	}
}

// SetRunHooks registers custom run hooks.
// This should be called once at application startup before any runs execute.
func SetRunHooks(h RunHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		runHooks = h
	}
}

// Storage returns the registered storage hooks.
func Storage() StorageHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return storageHooks
}

// Queue returns the registered queue hooks.
func Queue() QueueHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return queueHooks
}

// Run returns the registered run hooks.
func Run() RunHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return runHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	storageHooks = NoopStorageHooks{}
	queueHooks = NoopQueueHooks{}
	runHooks = NoopRunHooks{}
}
