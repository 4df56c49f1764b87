package audit

import (
	"encoding/json"
	"strings"
	"time"
)

// Severity ranks how much attention a record deserves
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Outcome of the audited operation
type Outcome string

const (
	OutcomeGranted Outcome = "GRANTED"
	OutcomeDenied  Outcome = "DENIED"
	OutcomeError   Outcome = "ERROR"
)

// EntityType is the kind of record an audit entry is about
type EntityType string

const (
	EntityCase            EntityType = "CASE"
	EntityDocument        EntityType = "DOCUMENT"
	EntityTask            EntityType = "TASK"
	EntityTaskTemplate    EntityType = "TASK_TEMPLATE"
	EntityActivity        EntityType = "ACTIVITY"
	EntityFOILRequest     EntityType = "FOIL_REQUEST"
	EntityMessage         EntityType = "MESSAGE"
	EntityUser            EntityType = "USER"
	EntityDepartment      EntityType = "DEPARTMENT"
	EntitySession         EntityType = "SESSION"
	EntityPermissionGrant EntityType = "PERMISSION_GRANT"
	EntityAuditLog        EntityType = "AUDIT_LOG"
)

// Action names for records that are not tied to a single operation code
const (
	ActionLogin         = "LOGIN"
	ActionLoginFailed   = "LOGIN_FAILED"
	ActionLogout        = "LOGOUT"
	ActionSessionRevoke = "SESSION_REVOKE"
	ActionFOILOverdue   = "FOIL_OVERDUE"
	ActionRetention     = "AUDIT_RETENTION"
)

const (
	deniedSuffix = "_DENIED"
	errorSuffix  = "_ERROR"
)

// DeniedAction returns the action recorded when op is refused
func DeniedAction(op string) string {
	return op + deniedSuffix
}

// ErrorAction returns the action recorded when op fails in the store
func ErrorAction(op string) string {
	return op + errorSuffix
}

// Record is a single append-only audit entry
type Record struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	Action   string   `json:"action"`
	Outcome  Outcome  `json:"outcome"`
	Severity Severity `json:"severity"`

	EntityType EntityType `json:"entityType,omitempty"`
	EntityID   string     `json:"entityId,omitempty"`

	UserID       string `json:"userId,omitempty"`
	DepartmentID string `json:"departmentId,omitempty"`

	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	RequestID string `json:"requestId,omitempty"`

	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the record to JSON
func (r *Record) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a record from JSON
func FromJSON(data []byte) (*Record, error) {
	var r Record
	err := json.Unmarshal(data, &r)
	return &r, err
}

// DefaultSeverity derives a severity from the action name and outcome.
// Reads are LOW, mutations MEDIUM, deletes and denials HIGH, and security
// configuration and user management CRITICAL.
func DefaultSeverity(action string, outcome Outcome) Severity {
	base := strings.TrimSuffix(strings.TrimSuffix(action, deniedSuffix), errorSuffix)

	switch {
	case base == "SECURITY_CONFIG", base == "USER_MANAGE", base == ActionSessionRevoke:
		return SeverityCritical
	case outcome == OutcomeDenied:
		return SeverityHigh
	case strings.HasSuffix(base, "_DELETE"), base == ActionFOILOverdue, base == ActionLoginFailed:
		return SeverityHigh
	case outcome == OutcomeError:
		return SeverityMedium
	case strings.HasSuffix(base, "_READ"), base == ActionLogin, base == ActionLogout:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// SearchFilter represents filters for searching audit records
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	UserID       string
	DepartmentID string

	Actions    []string
	Outcome    *Outcome
	Severities []Severity

	EntityType EntityType
	EntityID   string
	IPAddress  string
	RequestID  string

	Limit  int
	Offset int

	SortBy    string // timestamp, action, severity or user_id
	SortOrder string // "asc" or "desc"
}

// ExportFormat represents the format for exporting audit records
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson" // Newline-delimited JSON
)

// Stats summarizes audit records over an optional time range
type Stats struct {
	TotalRecords  int64                `json:"totalRecords"`
	ByAction      map[string]int64     `json:"byAction"`
	ByOutcome     map[Outcome]int64    `json:"byOutcome"`
	BySeverity    map[Severity]int64   `json:"bySeverity"`
	ByEntityType  map[EntityType]int64 `json:"byEntityType"`
	UniqueUsers   int64                `json:"uniqueUsers"`
	UniqueIPs     int64                `json:"uniqueIps"`
	FailedLogins  int64                `json:"failedLogins"`
	AccessDenials int64                `json:"accessDenials"`
	TimeRange     *TimeRange           `json:"timeRange,omitempty"`
}

// TimeRange represents a time range for statistics
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RetentionPolicy defines how long audit records are kept
type RetentionPolicy struct {
	RetentionDays int
}
