package async

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *test.Hook {
	t.Helper()
	l, hook := test.NewNullLogger()
	SetLogger(l)
	t.Cleanup(func() { SetLogger(logrus.StandardLogger()) })
	return hook
}

func entriesFor(hook *test.Hook, msg string) []*logrus.Entry {
	var out []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == msg {
			out = append(out, e)
		}
	}
	return out
}

// auditSink collects records the way the audit recorder's sink does
type auditSink struct {
	mu      sync.Mutex
	records []string
	fail    map[string]error
}

func (s *auditSink) write(ctx context.Context, action string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fail[action]; err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, action)
	return nil
}

func (s *auditSink) written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string(nil), s.records...)
	sort.Strings(out)
	return out
}

// blobBucket stands in for a blob store during case deletion
type blobBucket struct {
	mu      sync.Mutex
	objects map[string]bool
	broken  map[string]bool
}

func newBlobBucket(keys ...string) *blobBucket {
	b := &blobBucket{objects: make(map[string]bool), broken: make(map[string]bool)}
	for _, k := range keys {
		b.objects[k] = true
	}
	return b
}

func (b *blobBucket) Delete(ctx context.Context, key string) error {
	if b.broken[key] {
		return fmt.Errorf("delete %s: access denied", key)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *blobBucket) remaining() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for k := range b.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestSafeGo_StartupSessionCleanup(t *testing.T) {
	hook := captureLogs(t)
	done := make(chan struct{})

	SafeGo(context.Background(), time.Second, "startup session cleanup", func(ctx context.Context) error {
		defer close(done)
		_, ok := ctx.Deadline()
		assert.True(t, ok, "the task runs under its timeout")
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup task never ran")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, entriesFor(hook, "Background task failed"))
}

func TestSafeGo_FailureIsLoggedWithTaskName(t *testing.T) {
	hook := captureLogs(t)

	SafeGo(context.Background(), time.Second, "startup session cleanup", func(ctx context.Context) error {
		return errors.New("database is locked")
	})

	require.Eventually(t, func() bool {
		return len(entriesFor(hook, "Background task failed")) == 1
	}, time.Second, 5*time.Millisecond)
	entry := entriesFor(hook, "Background task failed")[0]
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "startup session cleanup", entry.Data["task"])
	assert.EqualError(t, entry.Data[logrus.ErrorKey].(error), "database is locked")
}

func TestSafeGo_PanicIsRecovered(t *testing.T) {
	hook := captureLogs(t)

	SafeGo(context.Background(), time.Second, "orphaned blob removal", func(ctx context.Context) error {
		var store map[string]bool
		store["cases/c1/documents/d1/v1"] = true
		return nil
	})

	require.Eventually(t, func() bool {
		return len(entriesFor(hook, "Recovered panic in background task")) == 1
	}, time.Second, 5*time.Millisecond)
	entry := entriesFor(hook, "Recovered panic in background task")[0]
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "orphaned blob removal", entry.Data["task"])
	assert.NotEmpty(t, entry.Data["stack"])
}

func TestSafeGo_StopsAtTimeoutOrCancel(t *testing.T) {
	captureLogs(t)

	t.Run("Timeout", func(t *testing.T) {
		result := make(chan error, 1)
		SafeGo(context.Background(), 20*time.Millisecond, "slow cleanup", func(ctx context.Context) error {
			<-ctx.Done()
			result <- ctx.Err()
			return ctx.Err()
		})
		select {
		case err := <-result:
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		case <-time.After(time.Second):
			t.Fatal("task ignored its timeout")
		}
	})

	t.Run("Shutdown", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		result := make(chan error, 1)
		SafeGo(ctx, time.Minute, "slow cleanup", func(ctx context.Context) error {
			<-ctx.Done()
			result <- ctx.Err()
			return ctx.Err()
		})
		cancel()
		select {
		case err := <-result:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("task ignored cancellation")
		}
	})
}

func TestWorkerPool_AuditWritesDrainOnShutdown(t *testing.T) {
	captureLogs(t)
	sink := &auditSink{}
	pool := NewWorkerPool(context.Background(), 2, "audit writes", time.Second, WithQueueSize(16))

	actions := []string{"CASE_CREATED", "CASE_VIEWED", "DOCUMENT_UPLOADED", "FOIL_CREATED", "LOGIN_SUCCESS"}
	for _, action := range actions {
		action := action
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			return sink.write(ctx, action)
		}))
	}

	require.NoError(t, pool.Shutdown(time.Second))
	assert.Equal(t, actions, sink.written())
	assert.Zero(t, pool.Pending())
	assert.ErrorIs(t, pool.Submit(func(ctx context.Context) error { return nil }), ErrPoolShutdown)
}

func TestWorkerPool_FailedAuditWritesAreReported(t *testing.T) {
	captureLogs(t)
	sinkDown := errors.New("audit table unavailable")
	sink := &auditSink{fail: map[string]error{"CASE_DELETED": sinkDown}}
	pool := NewWorkerPool(context.Background(), 2, "audit writes", time.Second)

	for _, action := range []string{"CASE_VIEWED", "CASE_DELETED", "CASE_UPDATED"} {
		action := action
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			return sink.write(ctx, action)
		}))
	}
	require.NoError(t, pool.Shutdown(time.Second))

	select {
	case err := <-pool.Errors():
		assert.ErrorIs(t, err, sinkDown)
	default:
		t.Fatal("expected the failed write on the error channel")
	}
	assert.Equal(t, []string{"CASE_UPDATED", "CASE_VIEWED"}, sink.written())
}

func TestWorkerPool_SlowSinkHitsWriteTimeout(t *testing.T) {
	captureLogs(t)
	pool := NewWorkerPool(context.Background(), 1, "audit writes", 20*time.Millisecond)

	require.NoError(t, pool.Submit(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	require.NoError(t, pool.Shutdown(time.Second))

	select {
	case err := <-pool.Errors():
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	default:
		t.Fatal("expected a timeout error")
	}
}

func TestWorkerPool_PanickingWriteIsRecovered(t *testing.T) {
	hook := captureLogs(t)
	sink := &auditSink{}
	pool := NewWorkerPool(context.Background(), 1, "audit writes", time.Second)

	require.NoError(t, pool.Submit(func(ctx context.Context) error {
		var record *struct{ Action string }
		return sink.write(ctx, record.Action)
	}))
	require.NoError(t, pool.Submit(func(ctx context.Context) error {
		return sink.write(ctx, "LOGIN_FAILED")
	}))
	require.NoError(t, pool.Shutdown(time.Second))

	assert.Equal(t, []string{"LOGIN_FAILED"}, sink.written(), "the worker survives the panic")
	entries := entriesFor(hook, "Recovered panic in worker")
	require.Len(t, entries, 1)
	assert.Equal(t, "audit writes", entries[0].Data["pool"])
	select {
	case err := <-pool.Errors():
		assert.Contains(t, err.Error(), "panic:")
	default:
		t.Fatal("expected the panic on the error channel")
	}
}

func TestWorkerPool_TrySubmitWhenAuditQueueIsFull(t *testing.T) {
	captureLogs(t)
	release := make(chan struct{})
	started := make(chan struct{})
	pool := NewWorkerPool(context.Background(), 1, "audit writes", time.Second, WithQueueSize(1))
	defer pool.Shutdown(time.Second)

	require.NoError(t, pool.Submit(func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	require.NoError(t, pool.TrySubmit(func(ctx context.Context) error { return nil }))
	assert.Equal(t, 2, pool.Pending(), "one running write plus one queued")
	assert.ErrorIs(t, pool.TrySubmit(func(ctx context.Context) error { return nil }), ErrQueueFull)

	close(release)
}

func TestWorkerPool_ShutdownTwice(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, "audit writes", time.Second)
	require.NoError(t, pool.Shutdown(time.Second))
	assert.ErrorIs(t, pool.TrySubmit(func(ctx context.Context) error { return nil }), ErrPoolShutdown)
	assert.NoError(t, pool.Shutdown(time.Second))
}

func TestBatch_CaseBlobCleanup(t *testing.T) {
	captureLogs(t)
	keys := []string{
		"cases/c1/documents/d1/v1",
		"cases/c1/documents/d1/v2",
		"cases/c1/documents/d2/v1",
		"cases/c1/documents/d3/v1",
	}
	bucket := newBlobBucket(append(keys, "cases/c2/documents/d9/v1")...)

	errs := Batch(context.Background(), keys, 2, "case blob cleanup", time.Second, bucket.Delete)

	assert.Empty(t, errs)
	assert.Equal(t, []string{"cases/c2/documents/d9/v1"}, bucket.remaining(), "other cases keep their content")
}

func TestBatch_CaseBlobCleanupCollectsFailures(t *testing.T) {
	captureLogs(t)
	keys := []string{"cases/c1/documents/d1/v1", "cases/c1/documents/d2/v1", "cases/c1/documents/d3/v1"}
	bucket := newBlobBucket(keys...)
	bucket.broken["cases/c1/documents/d2/v1"] = true

	errs := Batch(context.Background(), keys, 2, "case blob cleanup", time.Second, bucket.Delete)

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "cases/c1/documents/d2/v1")
	assert.Equal(t, []string{"cases/c1/documents/d2/v1"}, bucket.remaining())
}

func TestBatch_CancelledRequestContext(t *testing.T) {
	captureLogs(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	keys := []string{"cases/c1/documents/d1/v1", "cases/c1/documents/d2/v1"}
	bucket := newBlobBucket(keys...)

	errs := Batch(ctx, keys, 2, "case blob cleanup", time.Second, bucket.Delete)

	require.NotEmpty(t, errs)
	assert.ErrorIs(t, errs[0], ErrPoolShutdown)
	assert.Equal(t, keys, bucket.remaining())
}
