// Package storagetest opens migrated in-memory SQLite databases and seeds fixture rows for package tests.
package storagetest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/docket/pkg/storage"
)

// OpenDB returns a migrated in-memory database that is closed when the test ends.
// The pool is limited to one connection so every query sees the same database.
func OpenDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if err := storage.Migrate(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// SeedDepartment inserts a department row
func SeedDepartment(t testing.TB, db *sql.DB, id, code string) {
	t.Helper()
	now := time.Now().UTC()
	_, err := db.Exec(
		"INSERT INTO departments (id, name, code, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)",
		id, code+" department", code, now, now,
	)
	if err != nil {
		t.Fatalf("Failed to seed department %s: %v", id, err)
	}
}

// SeedUser inserts an active user row. departmentID may be empty.
func SeedUser(t testing.TB, db *sql.DB, id, role, departmentID string) {
	t.Helper()
	now := time.Now().UTC()
	var dept interface{}
	if departmentID != "" {
		dept = departmentID
	}
	_, err := db.Exec(
		`INSERT INTO users (id, email, name, password_hash, role, department_id, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, id+"@example.test", "User "+id, "x", role, dept, true, now, now,
	)
	if err != nil {
		t.Fatalf("Failed to seed user %s: %v", id, err)
	}
}

// SeedCase inserts an OPEN case row. assignedToID may be empty.
func SeedCase(t testing.TB, db *sql.DB, id, departmentID, createdByID, assignedToID string) {
	t.Helper()
	now := time.Now().UTC()
	var assignee interface{}
	if assignedToID != "" {
		assignee = assignedToID
	}
	_, err := db.Exec(
		`INSERT INTO cases (id, case_number, department_id, title, description, case_type, priority, status,
			created_by_id, assigned_to_id, opened_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, '', '', 'MEDIUM', 'OPEN', $5, $6, $7, $8, $9)`,
		id, "TEST-"+id, departmentID, "Case "+id, createdByID, assignee, now, now, now,
	)
	if err != nil {
		t.Fatalf("Failed to seed case %s: %v", id, err)
	}
}

// SeedTask inserts a TODO task row. assignedToID may be empty.
func SeedTask(t testing.TB, db *sql.DB, id, caseID, createdByID, assignedToID string) {
	t.Helper()
	now := time.Now().UTC()
	var assignee interface{}
	if assignedToID != "" {
		assignee = assignedToID
	}
	_, err := db.Exec(
		`INSERT INTO tasks (id, case_id, title, description, status, priority, assigned_to_id, created_by_id, created_at, updated_at)
		 VALUES ($1, $2, $3, '', 'TODO', 'MEDIUM', $4, $5, $6, $7)`,
		id, caseID, "Task "+id, assignee, createdByID, now, now,
	)
	if err != nil {
		t.Fatalf("Failed to seed task %s: %v", id, err)
	}
}
