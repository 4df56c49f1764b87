// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// This package handles goroutine lifecycle management with panic recovery, timeout
// enforcement, context cancellation, and error collection.
//
// # Key Functions
//
// SafeGo: Execute function in goroutine with safety features
//
//	async.SafeGo(ctx, 30*time.Second, "blob cleanup", func(ctx context.Context) error {
//		return blobs.Delete(ctx, key)
//	})
//
// WorkerPool: Managed pool of concurrent workers
//
//	pool := async.NewWorkerPool(ctx, 4, "audit writes", 5*time.Second, async.WithQueueSize(1024))
//	defer pool.Shutdown(10 * time.Second)
//
//	if err := pool.TrySubmit(task); errors.Is(err, async.ErrQueueFull) {
//		// queue is saturated, caller decides
//	}
//
// Batch: Concurrent batch processing
//
//	errs := async.Batch(ctx, keys, 4, "blob cleanup", 10*time.Second, func(ctx context.Context, key string) error {
//		return blobs.Delete(ctx, key)
//	})
//
// # Features
//
// Panic Recovery: Captures panics with stack traces
// Timeout Enforcement: Per-task timeouts
// Context Cancellation: Respects context cancellation
// Error Collection: Non-blocking error channels
// Graceful Shutdown: Worker draining
//
// # Use Cases
//
// Audit record writes, blob cleanup after case deletion, scheduled sweeps.
// Panics and dropped errors go to the logrus logger set with SetLogger.
//
// # Related Packages
//
//   - pkg/audit: Recorder writes granted and error records through a WorkerPool
//   - pkg/tenant: blob cleanup after case deletion uses Batch
package async
