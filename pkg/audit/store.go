package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrNotFound is returned by Get for an unknown record id
var ErrNotFound = errors.New("audit record not found")

// Store provides methods for querying and managing audit records
type Store interface {
	// Search returns records matching the filter
	Search(ctx context.Context, filter SearchFilter) ([]*Record, error)

	// Get retrieves a single record by ID
	Get(ctx context.Context, id int64) (*Record, error)

	// GetStats summarizes records in the optional time range
	GetStats(ctx context.Context, startTime, endTime *time.Time) (*Stats, error)

	// Export renders matching records in the given format
	Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error)

	// Cleanup removes records older than the retention period
	Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error)
}

// DBStore implements Store on the audit_logs table. Reads may go to a
// replica; Cleanup must be given the primary.
type DBStore struct {
	reader *sql.DB
	writer *sql.DB
}

// NewDBStore creates a store. reader may equal writer.
func NewDBStore(reader, writer *sql.DB) *DBStore {
	if reader == nil {
		reader = writer
	}
	return &DBStore{reader: reader, writer: writer}
}

const recordColumns = `
	id, timestamp, action, outcome, severity,
	entity_type, entity_id,
	user_id, department_id,
	ip_address, user_agent, request_id,
	description, metadata`

var sortColumns = map[string]string{
	"timestamp": "timestamp",
	"action":    "action",
	"severity":  "severity",
	"user_id":   "user_id",
}

func scanRecord(row interface{ Scan(...interface{}) error }) (*Record, error) {
	var r Record
	var outcome, severity, entityType string
	var metadataJSON []byte

	err := row.Scan(
		&r.ID, &r.Timestamp, &r.Action, &outcome, &severity,
		&entityType, &r.EntityID,
		&r.UserID, &r.DepartmentID,
		&r.IPAddress, &r.UserAgent, &r.RequestID,
		&r.Description, &metadataJSON,
	)
	if err != nil {
		return nil, err
	}
	r.Outcome = Outcome(outcome)
	r.Severity = Severity(severity)
	r.EntityType = EntityType(entityType)

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &r.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &r, nil
}

// Search returns records matching the filter, newest first by default
func (s *DBStore) Search(ctx context.Context, filter SearchFilter) ([]*Record, error) {
	query := "SELECT" + recordColumns + " FROM audit_logs WHERE 1=1"

	args := []interface{}{}
	argCount := 1

	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, *filter.StartTime)
		argCount++
	}

	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argCount)
		args = append(args, *filter.EndTime)
		argCount++
	}

	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argCount)
		args = append(args, filter.UserID)
		argCount++
	}

	if filter.DepartmentID != "" {
		query += fmt.Sprintf(" AND department_id = $%d", argCount)
		args = append(args, filter.DepartmentID)
		argCount++
	}

	if len(filter.Actions) > 0 {
		query += fmt.Sprintf(" AND action = ANY($%d)", argCount)
		args = append(args, pq.Array(filter.Actions))
		argCount++
	}

	if filter.Outcome != nil {
		query += fmt.Sprintf(" AND outcome = $%d", argCount)
		args = append(args, string(*filter.Outcome))
		argCount++
	}

	if len(filter.Severities) > 0 {
		sev := make([]string, len(filter.Severities))
		for i, v := range filter.Severities {
			sev[i] = string(v)
		}
		query += fmt.Sprintf(" AND severity = ANY($%d)", argCount)
		args = append(args, pq.Array(sev))
		argCount++
	}

	if filter.EntityType != "" {
		query += fmt.Sprintf(" AND entity_type = $%d", argCount)
		args = append(args, string(filter.EntityType))
		argCount++
	}

	if filter.EntityID != "" {
		query += fmt.Sprintf(" AND entity_id = $%d", argCount)
		args = append(args, filter.EntityID)
		argCount++
	}

	if filter.IPAddress != "" {
		query += fmt.Sprintf(" AND ip_address = $%d", argCount)
		args = append(args, filter.IPAddress)
		argCount++
	}

	if filter.RequestID != "" {
		query += fmt.Sprintf(" AND request_id = $%d", argCount)
		args = append(args, filter.RequestID)
		argCount++
	}

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = "timestamp"
	}
	order := "DESC"
	if filter.SortOrder == "asc" {
		order = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s, id %s", column, order, order)

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
		argCount++
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := s.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit records: %w", err)
	}
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit records: %w", err)
	}

	return records, nil
}

// Get retrieves a specific record by ID
func (s *DBStore) Get(ctx context.Context, id int64) (*Record, error) {
	row := s.reader.QueryRowContext(ctx, "SELECT"+recordColumns+" FROM audit_logs WHERE id = $1", id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit record: %w", err)
	}
	return r, nil
}

// GetStats retrieves audit statistics
func (s *DBStore) GetStats(ctx context.Context, startTime, endTime *time.Time) (*Stats, error) {
	stats := &Stats{
		ByAction:     make(map[string]int64),
		ByOutcome:    make(map[Outcome]int64),
		BySeverity:   make(map[Severity]int64),
		ByEntityType: make(map[EntityType]int64),
	}

	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	if startTime != nil {
		whereClause += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, *startTime)
		argCount++
		stats.TimeRange = &TimeRange{Start: *startTime}
	}

	if endTime != nil {
		whereClause += fmt.Sprintf(" AND timestamp <= $%d", argCount)
		args = append(args, *endTime)
		if stats.TimeRange == nil {
			stats.TimeRange = &TimeRange{}
		}
		stats.TimeRange.End = *endTime
	}

	count := func(query string, dest *int64) error {
		return s.reader.QueryRowContext(ctx, query, args...).Scan(dest)
	}

	if err := count("SELECT COUNT(*) FROM audit_logs "+whereClause, &stats.TotalRecords); err != nil {
		return nil, fmt.Errorf("failed to get total records: %w", err)
	}

	groups := []struct {
		column string
		put    func(key string, n int64)
	}{
		{"action", func(k string, n int64) { stats.ByAction[k] = n }},
		{"outcome", func(k string, n int64) { stats.ByOutcome[Outcome(k)] = n }},
		{"severity", func(k string, n int64) { stats.BySeverity[Severity(k)] = n }},
		{"entity_type", func(k string, n int64) { stats.ByEntityType[EntityType(k)] = n }},
	}
	for _, g := range groups {
		if err := s.groupCount(ctx, g.column, whereClause, args, g.put); err != nil {
			return nil, fmt.Errorf("failed to get records by %s: %w", g.column, err)
		}
	}

	if err := count("SELECT COUNT(DISTINCT user_id) FROM audit_logs "+whereClause+" AND user_id <> ''", &stats.UniqueUsers); err != nil {
		return nil, fmt.Errorf("failed to get unique users: %w", err)
	}

	if err := count("SELECT COUNT(DISTINCT ip_address) FROM audit_logs "+whereClause+" AND ip_address <> ''", &stats.UniqueIPs); err != nil {
		return nil, fmt.Errorf("failed to get unique IPs: %w", err)
	}

	if err := count("SELECT COUNT(*) FROM audit_logs "+whereClause+" AND action = '"+ActionLoginFailed+"'", &stats.FailedLogins); err != nil {
		return nil, fmt.Errorf("failed to get failed logins: %w", err)
	}

	if err := count("SELECT COUNT(*) FROM audit_logs "+whereClause+" AND outcome = '"+string(OutcomeDenied)+"'", &stats.AccessDenials); err != nil {
		return nil, fmt.Errorf("failed to get access denials: %w", err)
	}

	return stats, nil
}

func (s *DBStore) groupCount(ctx context.Context, column, whereClause string, args []interface{}, put func(string, int64)) error {
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM audit_logs %s GROUP BY %s", column, whereClause, column)
	rows, err := s.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		put(key, n)
	}
	return rows.Err()
}

// Export exports matching records in the specified format
func (s *DBStore) Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error) {
	records, err := s.Search(ctx, filter)
	if err != nil {
		return nil, err
	}
	return Encode(records, format)
}

// Cleanup removes records older than the retention period
func (s *DBStore) Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error) {
	if policy.RetentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive")
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -policy.RetentionDays)

	result, err := s.writer.ExecContext(ctx, "DELETE FROM audit_logs WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired audit records: %w", err)
	}

	return result.RowsAffected()
}
