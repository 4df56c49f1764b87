package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	Statements  []string
}

// GetMigrations returns the schema migrations in application order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create departments and users",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS departments (
					id VARCHAR(36) PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					code VARCHAR(32) NOT NULL UNIQUE,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS users (
					id VARCHAR(36) PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					password_hash VARCHAR(255) NOT NULL,
					role VARCHAR(32) NOT NULL,
					department_id VARCHAR(36) REFERENCES departments(id),
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					last_login_at TIMESTAMP
				)`,
				`CREATE INDEX IF NOT EXISTS idx_users_department_id ON users(department_id)`,
			},
		},
		{
			Version:     2,
			Description: "Create sessions and permission grants",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS sessions (
					id VARCHAR(36) PRIMARY KEY,
					user_id VARCHAR(36) NOT NULL REFERENCES users(id),
					created_at TIMESTAMP NOT NULL,
					expires_at TIMESTAMP NOT NULL,
					revoked_at TIMESTAMP,
					ip_address VARCHAR(64) NOT NULL DEFAULT '',
					user_agent TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`,
				`CREATE TABLE IF NOT EXISTS permission_grants (
					user_id VARCHAR(36) NOT NULL REFERENCES users(id),
					operation VARCHAR(64) NOT NULL,
					granted_by VARCHAR(36) NOT NULL,
					granted_at TIMESTAMP NOT NULL,
					expires_at TIMESTAMP,
					PRIMARY KEY (user_id, operation)
				)`,
			},
		},
		{
			Version:     3,
			Description: "Create identifier sequences",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS identifier_sequences (
					kind VARCHAR(32) NOT NULL,
					department_id VARCHAR(36) NOT NULL,
					year INTEGER NOT NULL,
					last_value BIGINT NOT NULL,
					PRIMARY KEY (kind, department_id, year)
				)`,
			},
		},
		{
			Version:     4,
			Description: "Create cases, activities and tasks",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS cases (
					id VARCHAR(36) PRIMARY KEY,
					case_number VARCHAR(64) NOT NULL UNIQUE,
					department_id VARCHAR(36) NOT NULL REFERENCES departments(id),
					title VARCHAR(500) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					case_type VARCHAR(64) NOT NULL DEFAULT '',
					priority VARCHAR(16) NOT NULL,
					status VARCHAR(32) NOT NULL,
					created_by_id VARCHAR(36) NOT NULL,
					assigned_to_id VARCHAR(36),
					paralegal_id VARCHAR(36),
					opened_at TIMESTAMP NOT NULL,
					closed_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_cases_department_id ON cases(department_id)`,
				`CREATE INDEX IF NOT EXISTS idx_cases_assigned_to_id ON cases(assigned_to_id)`,
				`CREATE TABLE IF NOT EXISTS activities (
					id VARCHAR(36) PRIMARY KEY,
					case_id VARCHAR(36) NOT NULL REFERENCES cases(id),
					user_id VARCHAR(36) NOT NULL,
					action VARCHAR(64) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_activities_case_id ON activities(case_id)`,
				`CREATE TABLE IF NOT EXISTS tasks (
					id VARCHAR(36) PRIMARY KEY,
					case_id VARCHAR(36) NOT NULL REFERENCES cases(id),
					title VARCHAR(500) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					status VARCHAR(32) NOT NULL,
					priority VARCHAR(16) NOT NULL,
					assigned_to_id VARCHAR(36),
					created_by_id VARCHAR(36) NOT NULL,
					due_date TIMESTAMP,
					completed_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_tasks_case_id ON tasks(case_id)`,
				`CREATE INDEX IF NOT EXISTS idx_tasks_assigned_to_id ON tasks(assigned_to_id)`,
				`CREATE TABLE IF NOT EXISTS task_templates (
					id VARCHAR(36) PRIMARY KEY,
					department_id VARCHAR(36) NOT NULL REFERENCES departments(id),
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					items TEXT NOT NULL,
					created_by_id VARCHAR(36) NOT NULL,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				)`,
			},
		},
		{
			Version:     5,
			Description: "Create documents and chain of custody",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS documents (
					id VARCHAR(36) PRIMARY KEY,
					case_id VARCHAR(36) NOT NULL REFERENCES cases(id),
					uploaded_by_id VARCHAR(36) NOT NULL,
					title VARCHAR(500) NOT NULL,
					file_name VARCHAR(500) NOT NULL,
					content_type VARCHAR(255) NOT NULL,
					size_bytes BIGINT NOT NULL,
					checksum VARCHAR(64) NOT NULL,
					storage_key TEXT NOT NULL,
					classification VARCHAR(32) NOT NULL,
					version INTEGER NOT NULL,
					parent_id VARCHAR(36),
					created_at TIMESTAMP NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_documents_case_id ON documents(case_id)`,
				`CREATE INDEX IF NOT EXISTS idx_documents_parent_id ON documents(parent_id)`,
				`CREATE TABLE IF NOT EXISTS custody_entries (
					id VARCHAR(36) PRIMARY KEY,
					document_id VARCHAR(36) NOT NULL REFERENCES documents(id),
					user_id VARCHAR(36) NOT NULL,
					action VARCHAR(32) NOT NULL,
					detail TEXT NOT NULL DEFAULT '',
					ip_address VARCHAR(64) NOT NULL DEFAULT '',
					occurred_at TIMESTAMP NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_custody_entries_document_id ON custody_entries(document_id)`,
			},
		},
		{
			Version:     6,
			Description: "Create FOIL requests and status history",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS foil_requests (
					id VARCHAR(36) PRIMARY KEY,
					department_id VARCHAR(36) NOT NULL REFERENCES departments(id),
					request_number VARCHAR(64) NOT NULL UNIQUE,
					case_id VARCHAR(36),
					requester_name VARCHAR(255) NOT NULL,
					requester_email VARCHAR(255) NOT NULL DEFAULT '',
					subject VARCHAR(500) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					status VARCHAR(32) NOT NULL,
					received_at TIMESTAMP NOT NULL,
					acknowledge_by TIMESTAMP NOT NULL,
					due_at TIMESTAMP NOT NULL,
					assigned_to_id VARCHAR(36),
					created_by_id VARCHAR(36) NOT NULL,
					closed_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_foil_requests_department_id ON foil_requests(department_id)`,
				`CREATE TABLE IF NOT EXISTS foil_status_history (
					id VARCHAR(36) PRIMARY KEY,
					request_id VARCHAR(36) NOT NULL REFERENCES foil_requests(id),
					from_status VARCHAR(32) NOT NULL DEFAULT '',
					to_status VARCHAR(32) NOT NULL,
					changed_by_id VARCHAR(36) NOT NULL,
					note TEXT NOT NULL DEFAULT '',
					changed_at TIMESTAMP NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_foil_status_history_request_id ON foil_status_history(request_id)`,
			},
		},
		{
			Version:     7,
			Description: "Create messages",
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS messages (
					id VARCHAR(36) PRIMARY KEY,
					from_user_id VARCHAR(36) NOT NULL,
					from_department_id VARCHAR(36) NOT NULL,
					to_department_id VARCHAR(36) NOT NULL,
					to_user_id VARCHAR(36),
					case_id VARCHAR(36),
					subject VARCHAR(500) NOT NULL,
					body TEXT NOT NULL,
					read_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_messages_to_department_id ON messages(to_department_id)`,
			},
		},
		{
			Version:     8,
			Description: "Allow one successor per document version",
			Statements: []string{
				`DROP INDEX IF EXISTS idx_documents_parent_id`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_parent_id_unique ON documents(parent_id) WHERE parent_id IS NOT NULL`,
			},
		},
		{
			Version:     9,
			Description: "Track overdue notices on FOIL requests",
			Statements: []string{
				`ALTER TABLE foil_requests ADD COLUMN overdue_notified_for TIMESTAMP`,
			},
		},
	}
}

// Migrate applies every migration that has not been recorded in schema_migrations
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description VARCHAR(255) NOT NULL,
		applied_at TIMESTAMP NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating migrations: %w", err)
	}

	for _, m := range GetMigrations() {
		if applied[m.Version] {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
	}

	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description, applied_at) VALUES ($1, $2, $3)",
		m.Version, m.Description, time.Now().UTC(),
	); err != nil {
		return err
	}

	return tx.Commit()
}
