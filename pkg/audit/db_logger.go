package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// DBLogger writes audit records to the PostgreSQL audit_logs table
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed sink and ensures the table exists
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{db: db}
	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_logs table: %w", err)
	}

	return logger, nil
}

// ensureTable creates the audit_logs table if it doesn't exist
func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		action VARCHAR(100) NOT NULL,
		outcome VARCHAR(16) NOT NULL,
		severity VARCHAR(16) NOT NULL,
		entity_type VARCHAR(50) NOT NULL DEFAULT '',
		entity_id VARCHAR(255) NOT NULL DEFAULT '',
		user_id VARCHAR(36) NOT NULL DEFAULT '',
		department_id VARCHAR(36) NOT NULL DEFAULT '',
		ip_address VARCHAR(64) NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		request_id VARCHAR(100) NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		metadata JSONB
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_department_id ON audit_logs(department_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_entity ON audit_logs(entity_type, entity_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_outcome ON audit_logs(outcome);
	`

	_, err := l.db.Exec(query)
	return err
}

// Log inserts the record and sets its ID
func (l *DBLogger) Log(ctx context.Context, record *Record) error {
	var metadataJSON []byte
	if record.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (
			timestamp, action, outcome, severity,
			entity_type, entity_id,
			user_id, department_id,
			ip_address, user_agent, request_id,
			description, metadata
		) VALUES (
			$1, $2, $3, $4,
			$5, $6,
			$7, $8,
			$9, $10, $11,
			$12, $13
		) RETURNING id
	`

	err := l.db.QueryRowContext(ctx, query,
		record.Timestamp, record.Action, string(record.Outcome), string(record.Severity),
		string(record.EntityType), record.EntityID,
		record.UserID, record.DepartmentID,
		record.IPAddress, record.UserAgent, record.RequestID,
		record.Description, metadataJSON,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}

	return nil
}

// Close is a no-op; the connection is shared
func (l *DBLogger) Close() error {
	return nil
}
