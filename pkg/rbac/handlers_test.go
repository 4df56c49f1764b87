package rbac

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/docket/pkg/auth"
)

type stubUsers map[string]*auth.User

func (s stubUsers) GetUser(ctx context.Context, id string) (*auth.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, auth.ErrUserNotFound
}

type grantFixture struct {
	*middlewareFixture
	router *mux.Router
}

func newGrantFixture(t *testing.T) *grantFixture {
	f := newMiddlewareFixture(t)
	users := stubUsers{"u1": {ID: "u1", Role: auth.RoleUser}}
	h := NewHandlers(f.store, f.checker, users, f.recorder)
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return &grantFixture{middlewareFixture: f, router: router}
}

func (f *grantFixture) do(method, target string, body interface{}, s *auth.Session) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	if s != nil {
		req = req.WithContext(auth.WithSession(req.Context(), s))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	f.recorder.Flush(time.Second)
	return rec
}

func TestGrantHandlers_CreateListRevoke(t *testing.T) {
	f := newGrantFixture(t)
	admin := session(auth.RoleAdmin, "", "admin")
	user := session(auth.RoleUser, "LEGAL-LIT", "u1")

	// Warm the cache so the create has to invalidate it
	ok, err := f.checker.Authorize(context.Background(), user, OpAuditLogRead)
	require.NoError(t, err)
	require.False(t, ok)

	rec := f.do("POST", "/security/users/u1/grants", map[string]string{"operation": "AUDIT_LOG_READ"}, admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	ok, err = f.checker.Authorize(context.Background(), user, OpAuditLogRead)
	require.NoError(t, err)
	assert.True(t, ok)

	rec = f.do("GET", "/security/users/u1/grants", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	var grants []Grant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grants))
	require.Len(t, grants, 1)
	assert.Equal(t, OpAuditLogRead, grants[0].Operation)
	assert.Equal(t, "admin", grants[0].GrantedBy)

	rec = f.do("DELETE", "/security/users/u1/grants/AUDIT_LOG_READ", nil, admin)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	ok, err = f.checker.Authorize(context.Background(), user, OpAuditLogRead)
	require.NoError(t, err)
	assert.False(t, ok)

	rec = f.do("DELETE", "/security/users/u1/grants/AUDIT_LOG_READ", nil, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Len(t, f.sink.ByAction("SECURITY_CONFIG"), 3)
}

func TestGrantHandlers_Validation(t *testing.T) {
	f := newGrantFixture(t)
	admin := session(auth.RoleAdmin, "", "admin")

	rec := f.do("POST", "/security/users/u1/grants", map[string]string{"operation": "NOPE"}, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do("POST", "/security/users/u1/grants", map[string]string{}, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "operation")

	past := time.Now().Add(-time.Hour)
	rec = f.do("POST", "/security/users/u1/grants", map[string]interface{}{"operation": "DATA_EXPORT", "expiresAt": past}, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "expiresAt")

	rec = f.do("POST", "/security/users/ghost/grants", map[string]string{"operation": "DATA_EXPORT"}, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do("DELETE", "/security/users/u1/grants/NOPE", nil, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, f.sink.ByAction("SECURITY_CONFIG_DENIED"))
}

func TestGrantHandlers_RequireSecurityConfig(t *testing.T) {
	f := newGrantFixture(t)
	atty := session(auth.RoleAttorney, "LEGAL-LIT", "atty")

	rec := f.do("POST", "/security/users/u1/grants", map[string]string{"operation": "CASE_READ"}, atty)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Len(t, f.sink.ByAction("SECURITY_CONFIG_DENIED"), 1)

	rec = f.do("GET", "/security/users/u1/grants", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGrantHandlers_NoEscalationBeyondGrantor(t *testing.T) {
	f := newGrantFixture(t)
	ctx := context.Background()

	// A security officer holding SECURITY_CONFIG through a grant cannot hand
	// out USER_MANAGE, which it does not hold itself
	require.NoError(t, f.store.SaveGrant(ctx, &Grant{UserID: "officer", Operation: OpSecurityConfig, GrantedBy: "admin"}))
	officer := session(auth.RoleAttorney, "LEGAL-LIT", "officer")

	rec := f.do("POST", "/security/users/u1/grants", map[string]string{"operation": "USER_MANAGE"}, officer)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Len(t, f.sink.ByAction("SECURITY_CONFIG_DENIED"), 1)

	rec = f.do("POST", "/security/users/u1/grants", map[string]string{"operation": "DATA_EXPORT"}, officer)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestGrantHandlers_MyPermissions(t *testing.T) {
	f := newGrantFixture(t)

	rec := f.do("GET", "/security/me/permissions", nil, session(auth.RoleUser, "LEGAL-LIT", "u1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		UserID     string   `json:"userId"`
		Role       string   `json:"role"`
		Operations []string `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "u1", resp.UserID)
	assert.Equal(t, "USER", resp.Role)
	assert.Equal(t, []string{"CASE_READ", "DOCUMENT_READ", "TASK_READ", "MESSAGE_READ"}, resp.Operations)

	rec = f.do("GET", "/security/me/permissions", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
