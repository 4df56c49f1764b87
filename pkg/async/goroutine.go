package async

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrPoolShutdown is returned when submitting to a stopped pool
	ErrPoolShutdown = errors.New("worker pool shut down")
	// ErrQueueFull is returned by TrySubmit when the queue has no free slot
	ErrQueueFull = errors.New("worker pool queue full")
)

var (
	logMu  sync.RWMutex
	logger = logrus.StandardLogger()
)

// SetLogger replaces the logger used for panics and dropped errors
func SetLogger(l *logrus.Logger) {
	if l == nil {
		return
	}
	logMu.Lock()
	logger = l
	logMu.Unlock()
}

func log() *logrus.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// Use this instead of bare `go func()` to prevent goroutine leaks and crashes.
//
// Example:
//
//	SafeGo(ctx, 30*time.Second, "blob cleanup", func(ctx context.Context) error {
//	    return blobs.Delete(ctx, key)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log().WithFields(logrus.Fields{
					"task":  taskName,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("Recovered panic in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			// Caller decides whether this is critical
			log().WithError(err).WithField("task", taskName).Warn("Background task failed")
		}
	}()
}

// PoolOption configures a WorkerPool
type PoolOption func(*poolOptions)

type poolOptions struct {
	queueSize int
}

// WithQueueSize bounds the number of tasks waiting for a worker
func WithQueueSize(n int) PoolOption {
	return func(o *poolOptions) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WorkerPool manages a pool of workers that process tasks from a bounded queue.
// Provides graceful shutdown and error collection.
type WorkerPool struct {
	workers      int
	taskName     string
	timeout      time.Duration
	workCh       chan func(context.Context) error
	doneCh       chan struct{}
	errCh        chan error
	ctx          context.Context
	cancel       context.CancelFunc
	mu           sync.RWMutex
	closed       bool
	shutdownOnce sync.Once
	pending      atomic.Int64
}

// NewWorkerPool creates and starts a worker pool.
//
// Example:
//
//	pool := NewWorkerPool(ctx, 4, "audit writes", 5*time.Second, WithQueueSize(1024))
//	defer pool.Shutdown(10 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//	    return sink.Log(ctx, record)
//	})
func NewWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration, opts ...PoolOption) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	o := poolOptions{queueSize: workers * 2}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		workers:  workers,
		taskName: taskName,
		timeout:  timeout,
		workCh:   make(chan func(context.Context) error, o.queueSize),
		doneCh:   make(chan struct{}),
		errCh:    make(chan error, workers*10),
		ctx:      ctx,
		cancel:   cancel,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				pool.worker(id)
			}(i)
		}
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit queues a task, blocking while the queue is full.
// Returns ErrPoolShutdown if the pool is stopped.
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed || p.ctx.Err() != nil {
		return ErrPoolShutdown
	}

	p.pending.Add(1)
	select {
	case p.workCh <- fn:
		return nil
	case <-p.ctx.Done():
		p.pending.Add(-1)
		return ErrPoolShutdown
	}
}

// TrySubmit queues a task without blocking. Returns ErrQueueFull when every
// queue slot is taken.
func (p *WorkerPool) TrySubmit(fn func(context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed || p.ctx.Err() != nil {
		return ErrPoolShutdown
	}

	p.pending.Add(1)
	select {
	case p.workCh <- fn:
		return nil
	default:
		p.pending.Add(-1)
		return ErrQueueFull
	}
}

// Pending returns the number of tasks queued or running
func (p *WorkerPool) Pending() int {
	return int(p.pending.Load())
}

// Shutdown stops accepting work and waits up to timeout for queued tasks to drain.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	var shutdownErr error

	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.workCh)
		p.mu.Unlock()

		select {
		case <-p.doneCh:
			p.cancel()
		case <-time.After(timeout):
			p.cancel()
			shutdownErr = fmt.Errorf("worker pool shutdown timed out after %v", timeout)
		}
	})

	return shutdownErr
}

// Errors returns a channel that receives worker errors.
// Non-blocking, use select to check for errors.
func (p *WorkerPool) Errors() <-chan error {
	return p.errCh
}

func (p *WorkerPool) report(err error) {
	select {
	case p.errCh <- err:
	default:
		log().WithError(err).WithField("pool", p.taskName).Warn("Worker pool error channel full, dropping error")
	}
}

func (p *WorkerPool) worker(id int) {
	for {
		select {
		case <-p.ctx.Done():
			return

		case fn, ok := <-p.workCh:
			if !ok {
				return
			}
			p.run(id, fn)
		}
	}
}

func (p *WorkerPool) run(id int, fn func(context.Context) error) {
	defer p.pending.Add(-1)

	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log().WithFields(logrus.Fields{
				"pool":   p.taskName,
				"worker": id,
				"panic":  r,
				"stack":  string(debug.Stack()),
			}).Error("Recovered panic in worker")
			p.report(fmt.Errorf("panic: %v", r))
		}
	}()

	if err := fn(ctx); err != nil {
		p.report(err)
	}
}

// Batch processes a slice of items concurrently using a worker pool.
// Returns all errors encountered.
//
// Example:
//
//	errs := Batch(ctx, keys, 4, "blob cleanup", 10*time.Second, func(ctx context.Context, key string) error {
//	    return blobs.Delete(ctx, key)
//	})
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	pool := NewWorkerPool(ctx, workers, taskName, timeout, WithQueueSize(len(items)+1))

	for _, item := range items {
		item := item
		if err := pool.Submit(func(ctx context.Context) error {
			return fn(ctx, item)
		}); err != nil {
			pool.Shutdown(5 * time.Second)
			return []error{err}
		}
	}

	// Shutdown drains every queued task before returning
	pool.Shutdown(timeout * time.Duration(len(items)+1))

	var errs []error
	for {
		select {
		case err := <-pool.errCh:
			errs = append(errs, err)
		default:
			return errs
		}
	}
}
