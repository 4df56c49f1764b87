package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	var dest struct {
		Title string `json:"title"`
	}

	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"title":"Smith v. City"}`))
	require.NoError(t, ParseJSON(r, &dest))
	assert.Equal(t, "Smith v. City", dest.Title)

	r = httptest.NewRequest("POST", "/", strings.NewReader(`{"title":`))
	err := ParseJSON(r, &dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func withVars(r *http.Request, vars map[string]string) *http.Request {
	return mux.SetURLVars(r, vars)
}

func TestParsePathInt64(t *testing.T) {
	r := withVars(httptest.NewRequest("GET", "/", nil), map[string]string{"id": "42"})
	id, err := ParsePathInt64(r, "id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	r = withVars(httptest.NewRequest("GET", "/", nil), map[string]string{"id": "abc"})
	_, err = ParsePathInt64(r, "id")
	assert.Error(t, err)

	_, err = ParsePathInt64(httptest.NewRequest("GET", "/", nil), "id")
	assert.Error(t, err)
}

func TestParsePathInt64OrError(t *testing.T) {
	w := httptest.NewRecorder()
	r := withVars(httptest.NewRequest("GET", "/", nil), map[string]string{"id": "x"})

	_, ok := ParsePathInt64OrError(w, r, "id")

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParsePathString(t *testing.T) {
	r := withVars(httptest.NewRequest("GET", "/", nil), map[string]string{"caseId": "c-1"})
	val, err := ParsePathString(r, "caseId")
	require.NoError(t, err)
	assert.Equal(t, "c-1", val)

	_, err = ParsePathString(r, "documentId")
	assert.Error(t, err)
}

func TestParseQuery(t *testing.T) {
	r := httptest.NewRequest("GET", "/?limit=25&status=OPEN&overdue=true&bad=x", nil)

	limit, err := ParseQueryInt(r, "limit", 100)
	require.NoError(t, err)
	assert.Equal(t, 25, limit)

	offset, err := ParseQueryInt(r, "offset", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, offset)

	_, err = ParseQueryInt(r, "bad", 0)
	assert.Error(t, err)

	assert.Equal(t, "OPEN", ParseQueryString(r, "status", ""))
	assert.Equal(t, "all", ParseQueryString(r, "scope", "all"))

	overdue, err := ParseQueryBool(r, "overdue", false)
	require.NoError(t, err)
	assert.True(t, overdue)

	_, err = ParseQueryBool(r, "bad", false)
	assert.Error(t, err)
}

func TestParseQueryTime(t *testing.T) {
	r := httptest.NewRequest("GET", "/?from=2024-03-01&to=2024-03-31T12:00:00Z&bad=yesterday", nil)

	from, err := ParseQueryTime(r, "from")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *from)

	to, err := ParseQueryTime(r, "to")
	require.NoError(t, err)
	assert.Equal(t, 12, to.Hour())

	missing, err := ParseQueryTime(r, "since")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = ParseQueryTime(r, "bad")
	assert.Error(t, err)
}
