package httputil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/docket/pkg/contextkeys"
	"github.com/platinummonkey/docket/pkg/observability"
)

func TestRequestIDMiddleware(t *testing.T) {
	var gotID, gotIP, gotUA string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = contextkeys.GetRequestID(r.Context())
		gotIP = contextkeys.GetClientIP(r.Context())
		gotUA = contextkeys.GetUserAgent(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("User-Agent", "docket-test")
	req.Header.Set("X-Forwarded-For", "1.1.1.1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	_, err := ulid.ParseStrict(gotID)
	assert.NoError(t, err)
	assert.Equal(t, gotID, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "10.1.2.3", gotIP)
	assert.Equal(t, "docket-test", gotUA)
}

func TestRequestIDMiddleware_KeepsValidCallerID(t *testing.T) {
	callerID := NewRequestID()
	var gotID string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = contextkeys.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", callerID)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, callerID, gotID)

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "<script>")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, "<script>", gotID)
}

func TestNewRequestID_Monotonic(t *testing.T) {
	a := NewRequestID()
	b := NewRequestID()
	assert.Less(t, a, b)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := observability.NewLogger(observability.InfoLevel, &buf)

	handler := Chain(RequestIDMiddleware, LoggingMiddleware(base))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		observability.GetLogger(r.Context()).Info("inside handler")
		WriteForbidden(w, "access denied")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/cases/x", nil))
	require.Equal(t, http.StatusForbidden, rr.Code)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inside, done map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &inside))
	require.NoError(t, json.Unmarshal(lines[1], &done))
	assert.Equal(t, rr.Header().Get("X-Request-ID"), inside["request_id"])
	assert.Equal(t, "Request rejected", done["msg"])
	assert.Equal(t, float64(403), done["status"])
}

func TestMaxBytesMiddleware(t *testing.T) {
	handler := MaxBytesMiddleware(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var v interface{}
		if err := ParseJSON(r, &v); err != nil {
			WriteBadRequest(w, err.Error())
			return
		}
		WriteNoContent(w)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("POST", "/", bytes.NewBufferString(`{"title":"too long"}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
