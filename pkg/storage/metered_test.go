package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/docket/pkg/observability"
)

func TestWithMetrics(t *testing.T) {
	fs, err := NewFilesystemBlobStore(t.TempDir())
	require.NoError(t, err)
	assert.Same(t, fs, WithMetrics(fs, "filesystem", nil))

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	store := WithMetrics(fs, "filesystem", metrics)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", strings.NewReader("x"), "text/plain"))
	rc, err := store.Get(ctx, "k")
	require.NoError(t, err)
	rc.Close()
	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrBlobNotFound)

	ops := metrics.StorageOperationsTotal
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("filesystem", "put", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("filesystem", "get", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("filesystem", "get", "error")))
}
