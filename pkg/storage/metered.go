package storage

import (
	"context"
	"io"
	"time"

	"github.com/platinummonkey/docket/pkg/observability"
)

// meteredBlobStore records latency and outcome of every blob operation
type meteredBlobStore struct {
	next    BlobStore
	backend string
	metrics *observability.Metrics
}

// WithMetrics wraps store so each call is counted under backend. A nil
// metrics returns store unchanged.
func WithMetrics(store BlobStore, backend string, metrics *observability.Metrics) BlobStore {
	if metrics == nil {
		return store
	}
	return &meteredBlobStore{next: store, backend: backend, metrics: metrics}
}

func (m *meteredBlobStore) Put(ctx context.Context, key string, content io.Reader, contentType string) error {
	start := time.Now()
	err := m.next.Put(ctx, key, content, contentType)
	m.metrics.ObserveBlob(m.backend, "put", start, err)
	return err
}

// Get observes the time to open the content, not to read it
func (m *meteredBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := m.next.Get(ctx, key)
	m.metrics.ObserveBlob(m.backend, "get", start, err)
	return rc, err
}

func (m *meteredBlobStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := m.next.Delete(ctx, key)
	m.metrics.ObserveBlob(m.backend, "delete", start, err)
	return err
}
