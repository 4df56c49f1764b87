package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/storage/storagetest"
)

func newTestChecker(t *testing.T) (*Checker, *Store) {
	t.Helper()
	db := storagetest.OpenDB(t)
	store := NewStore(db)
	return NewChecker(store, CheckerConfig{Registerer: prometheus.NewRegistry()}), store
}

func TestChecker_StaticTable(t *testing.T) {
	checker, _ := newTestChecker(t)
	ctx := context.Background()

	ok, err := checker.Authorize(ctx, session(auth.RoleAttorney, "LEGAL-LIT", "atty"), OpCaseDelete)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checker.Authorize(ctx, session(auth.RoleUser, "LEGAL-LIT", "u1"), OpCaseDelete)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = checker.Authorize(ctx, nil, OpCaseRead)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, float64(1), testutil.ToFloat64(checker.decisions.WithLabelValues("CASE_DELETE", "allow", "role")))
	assert.Equal(t, float64(1), testutil.ToFloat64(checker.decisions.WithLabelValues("CASE_DELETE", "deny", "role")))
}

func TestChecker_GrantExtendsTable(t *testing.T) {
	checker, store := newTestChecker(t)
	ctx := context.Background()
	user := session(auth.RoleUser, "LEGAL-LIT", "u1")

	ok, err := checker.Authorize(ctx, user, OpAuditLogRead)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveGrant(ctx, &Grant{UserID: "u1", Operation: OpAuditLogRead, GrantedBy: "admin"}))

	// The empty grant set is cached until invalidated
	ok, err = checker.Authorize(ctx, user, OpAuditLogRead)
	require.NoError(t, err)
	assert.False(t, ok)

	checker.Invalidate("u1")
	ok, err = checker.Authorize(ctx, user, OpAuditLogRead)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, float64(1), testutil.ToFloat64(checker.decisions.WithLabelValues("AUDIT_LOG_READ", "allow", "grant")))

	// A grant for one operation does not leak into others
	ok, err = checker.Authorize(ctx, user, OpDataExport)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChecker_ExpiredGrantIgnored(t *testing.T) {
	checker, store := newTestChecker(t)
	ctx := context.Background()
	user := session(auth.RoleUser, "LEGAL-LIT", "u1")

	expires := time.Now().UTC().Add(time.Hour)
	require.NoError(t, store.SaveGrant(ctx, &Grant{UserID: "u1", Operation: OpDataExport, GrantedBy: "admin", ExpiresAt: &expires}))

	ok, err := checker.Authorize(ctx, user, OpDataExport)
	require.NoError(t, err)
	assert.True(t, ok)

	// Expiry is evaluated on every call, including cached grant sets
	checker.now = func() time.Time { return expires.Add(time.Minute) }
	ok, err = checker.Authorize(ctx, user, OpDataExport)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChecker_CacheTTL(t *testing.T) {
	db := storagetest.OpenDB(t)
	store := NewStore(db)
	checker := NewChecker(store, CheckerConfig{CacheTTL: 50 * time.Millisecond})
	ctx := context.Background()
	user := session(auth.RoleUser, "LEGAL-LIT", "u1")

	ok, err := checker.Authorize(ctx, user, OpFOILRead)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveGrant(ctx, &Grant{UserID: "u1", Operation: OpFOILRead, GrantedBy: "admin"}))

	assert.Eventually(t, func() bool {
		ok, err := checker.Authorize(ctx, user, OpFOILRead)
		return err == nil && ok
	}, 2*time.Second, 20*time.Millisecond)
}

func TestChecker_EffectiveOperations(t *testing.T) {
	checker, store := newTestChecker(t)
	ctx := context.Background()
	user := session(auth.RoleUser, "LEGAL-LIT", "u1")

	require.NoError(t, store.SaveGrant(ctx, &Grant{UserID: "u1", Operation: OpFOILRead, GrantedBy: "admin"}))

	ops, err := checker.EffectiveOperations(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []Operation{OpCaseRead, OpDocumentRead, OpTaskRead, OpFOILRead, OpMessageRead}, ops)

	ops, err = checker.EffectiveOperations(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestChecker_StoreError(t *testing.T) {
	db := storagetest.OpenDB(t)
	store := NewStore(db)
	checker := NewChecker(store, CheckerConfig{})
	db.Close()

	_, err := checker.Authorize(context.Background(), session(auth.RoleUser, "", "u1"), OpDataExport)
	assert.Error(t, err)

	// The static table never touches the store
	ok, err := checker.Authorize(context.Background(), session(auth.RoleAdmin, "", "a"), OpDataExport)
	require.NoError(t, err)
	assert.True(t, ok)
}
