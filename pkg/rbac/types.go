package rbac

import (
	"fmt"
	"time"
)

// Operation is a permission-gated action. The set is closed: every valid
// value is declared below.
type Operation uint8

const (
	OpCaseCreate Operation = iota + 1
	OpCaseRead
	OpCaseUpdate
	OpCaseDelete
	OpCaseAssign
	OpDocumentUpload
	OpDocumentRead
	OpDocumentClassify
	OpTaskCreate
	OpTaskRead
	OpTaskUpdate
	OpTaskTemplateManage
	OpFOILCreate
	OpFOILRead
	OpFOILUpdate
	OpMessageSend
	OpMessageRead
	OpAuditLogRead
	OpDataExport
	OpUserManage
	OpDepartmentManage
	OpSecurityConfig

	opSentinel
)

var operationNames = [...]string{
	OpCaseCreate:         "CASE_CREATE",
	OpCaseRead:           "CASE_READ",
	OpCaseUpdate:         "CASE_UPDATE",
	OpCaseDelete:         "CASE_DELETE",
	OpCaseAssign:         "CASE_ASSIGN",
	OpDocumentUpload:     "DOCUMENT_UPLOAD",
	OpDocumentRead:       "DOCUMENT_READ",
	OpDocumentClassify:   "DOCUMENT_CLASSIFY",
	OpTaskCreate:         "TASK_CREATE",
	OpTaskRead:           "TASK_READ",
	OpTaskUpdate:         "TASK_UPDATE",
	OpTaskTemplateManage: "TASK_TEMPLATE_MANAGE",
	OpFOILCreate:         "FOIL_CREATE",
	OpFOILRead:           "FOIL_READ",
	OpFOILUpdate:         "FOIL_UPDATE",
	OpMessageSend:        "MESSAGE_SEND",
	OpMessageRead:        "MESSAGE_READ",
	OpAuditLogRead:       "AUDIT_LOG_READ",
	OpDataExport:         "DATA_EXPORT",
	OpUserManage:         "USER_MANAGE",
	OpDepartmentManage:   "DEPARTMENT_MANAGE",
	OpSecurityConfig:     "SECURITY_CONFIG",
}

// Valid reports whether o is one of the declared operations
func (o Operation) Valid() bool {
	return o > 0 && o < opSentinel
}

// String returns the operation code, for example CASE_CREATE
func (o Operation) String() string {
	if !o.Valid() {
		return fmt.Sprintf("Operation(%d)", uint8(o))
	}
	return operationNames[o]
}

// MarshalText encodes the operation code
func (o Operation) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("invalid operation %d", uint8(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText decodes an operation code
func (o *Operation) UnmarshalText(text []byte) error {
	op, err := ParseOperation(string(text))
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// ParseOperation returns the operation with the given code
func ParseOperation(s string) (Operation, error) {
	for op := OpCaseCreate; op < opSentinel; op++ {
		if operationNames[op] == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}

// AllOperations returns every operation in declaration order
func AllOperations() []Operation {
	ops := make([]Operation, 0, int(opSentinel)-1)
	for op := OpCaseCreate; op < opSentinel; op++ {
		ops = append(ops, op)
	}
	return ops
}

// Grant extends the role table with one operation for one user
type Grant struct {
	UserID    string     `json:"userId"`
	Operation Operation  `json:"operation"`
	GrantedBy string     `json:"grantedBy"`
	GrantedAt time.Time  `json:"grantedAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Active reports whether the grant is in force at now
func (g Grant) Active(now time.Time) bool {
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}
