package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func TestHealthChecker_Liveness(t *testing.T) {
	checker := NewHealthChecker(nil, nil, "test")

	req := httptest.NewRequest("GET", "/health/live", nil)
	rr := httptest.NewRecorder()
	checker.Liveness(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Liveness returned %d, want %d", rr.Code, http.StatusOK)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", ct)
	}
}

func TestHealthChecker_DatabaseHealthy(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	status := NewHealthChecker(db, nil, "v1.2.3").Check(context.Background())
	if status.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", status.Status)
	}
	if status.Version != "v1.2.3" {
		t.Errorf("Expected version v1.2.3, got %s", status.Version)
	}
	if status.Dependencies["database"].Status != StatusHealthy {
		t.Errorf("Expected healthy database, got %+v", status.Dependencies["database"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestHealthChecker_DatabaseDown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	checker := NewHealthChecker(db, nil, "")
	req := httptest.NewRequest("GET", "/health/ready", nil)
	rr := httptest.NewRecorder()
	checker.Readiness(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Readiness returned %d, want 503", rr.Code)
	}
	var status HealthStatus
	if err := json.NewDecoder(rr.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if status.Dependencies["database"].Message != "connection refused" {
		t.Errorf("Unexpected database message %q", status.Dependencies["database"].Message)
	}
}

func TestHealthChecker_RedisDownDegrades(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	checker := NewHealthChecker(nil, client, "")
	if s := checker.Check(context.Background()); s.Status != StatusHealthy {
		t.Errorf("Expected healthy with redis up, got %s", s.Status)
	}

	mr.Close()
	s := checker.Check(context.Background())
	if s.Status != StatusDegraded {
		t.Errorf("Expected degraded with redis down, got %s", s.Status)
	}
	if s.Dependencies["redis"].Status != StatusUnhealthy {
		t.Errorf("Expected redis unhealthy, got %s", s.Dependencies["redis"].Status)
	}
}

func TestHealthChecker_CustomChecks(t *testing.T) {
	checker := NewHealthChecker(nil, nil, "")
	checker.AddCheck("blobs", func(ctx context.Context) error { return nil }, true)
	checker.AddCheck("smtp", func(ctx context.Context) error { return errors.New("timeout") }, false)

	s := checker.Check(context.Background())
	if s.Status != StatusDegraded {
		t.Errorf("Expected degraded from non-critical failure, got %s", s.Status)
	}

	checker.AddCheck("blobs", func(ctx context.Context) error { return errors.New("read-only filesystem") }, true)
	s = checker.Check(context.Background())
	if s.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy from critical failure, got %s", s.Status)
	}
	if len(s.Dependencies) != 2 {
		t.Errorf("Expected 2 dependencies, got %d", len(s.Dependencies))
	}
}

func TestRegisterHealthRoutes(t *testing.T) {
	mux := http.NewServeMux()
	RegisterHealthRoutes(mux, NewHealthChecker(nil, nil, ""))

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest("GET", path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("%s returned %d", path, rr.Code)
		}
	}
}
