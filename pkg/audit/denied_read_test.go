package audit_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/platinummonkey/docket/pkg/storage/storagetest"
)

// countingStore fails the test if a denied request reaches the data
type countingStore struct {
	audit.Store
	calls int
}

func (s *countingStore) Search(ctx context.Context, filter audit.SearchFilter) ([]*audit.Record, error) {
	s.calls++
	return []*audit.Record{{ID: 1, Action: "CASE_CREATE"}}, nil
}

func TestAuditRead_DeniedProducesExactlyOneRecord(t *testing.T) {
	db := storagetest.OpenDB(t)
	checker := rbac.NewChecker(rbac.NewStore(db), rbac.CheckerConfig{})

	logger, _ := test.NewNullLogger()
	sink := audit.NewMemoryLogger()
	recorder := audit.NewRecorder(context.Background(), sink, logger, audit.RecorderConfig{})
	defer recorder.Close(time.Second)

	mw := rbac.NewMiddleware(checker, recorder)
	store := &countingStore{}
	handlers := audit.NewHandlers(store, recorder, mw.Guard(rbac.OpAuditLogRead), mw.Guard(rbac.OpDataExport))

	router := mux.NewRouter()
	handlers.RegisterRoutes(router)

	session := &auth.Session{SessionID: "s1", UserID: "para", DepartmentID: "LEGAL-LIT", Role: auth.RoleParalegal}
	req := httptest.NewRequest("GET", "/audit/events?action=CASE_CREATE", nil)
	req = req.WithContext(auth.WithSession(req.Context(), session))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	recorder.Flush(time.Second)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "CASE_CREATE")
	assert.Zero(t, store.calls)

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "AUDIT_LOG_READ_DENIED", records[0].Action)
	assert.Equal(t, audit.OutcomeDenied, records[0].Outcome)
	assert.Equal(t, "para", records[0].UserID)
	assert.Equal(t, "LEGAL-LIT", records[0].DepartmentID)
}

func TestAuditRead_GrantedProducesExactlyOneRecord(t *testing.T) {
	db := storagetest.OpenDB(t)
	grants := rbac.NewStore(db)
	require.NoError(t, grants.SaveGrant(context.Background(), &rbac.Grant{UserID: "para", Operation: rbac.OpAuditLogRead, GrantedBy: "admin"}))
	checker := rbac.NewChecker(grants, rbac.CheckerConfig{})

	logger, _ := test.NewNullLogger()
	sink := audit.NewMemoryLogger()
	recorder := audit.NewRecorder(context.Background(), sink, logger, audit.RecorderConfig{})
	defer recorder.Close(time.Second)

	mw := rbac.NewMiddleware(checker, recorder)
	store := &countingStore{}
	handlers := audit.NewHandlers(store, recorder, mw.Guard(rbac.OpAuditLogRead), mw.Guard(rbac.OpDataExport))

	router := mux.NewRouter()
	handlers.RegisterRoutes(router)

	session := &auth.Session{SessionID: "s1", UserID: "para", DepartmentID: "LEGAL-LIT", Role: auth.RoleParalegal}
	req := httptest.NewRequest("GET", "/audit/events", nil)
	req = req.WithContext(auth.WithSession(req.Context(), session))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	recorder.Flush(time.Second)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.calls)

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "AUDIT_LOG_READ", records[0].Action)
	assert.Equal(t, audit.OutcomeGranted, records[0].Outcome)
}
