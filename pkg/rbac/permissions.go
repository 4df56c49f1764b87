package rbac

import (
	"fmt"

	"github.com/platinummonkey/docket/pkg/auth"
)

// opSet is a bitset of operations
type opSet uint32

func setOf(ops ...Operation) opSet {
	var s opSet
	for _, op := range ops {
		s |= 1 << op
	}
	return s
}

func (s opSet) has(op Operation) bool {
	return s&(1<<op) != 0
}

var allOps = setOf(AllOperations()...)

var (
	caseOps     = setOf(OpCaseCreate, OpCaseRead, OpCaseUpdate, OpCaseDelete, OpCaseAssign)
	documentOps = setOf(OpDocumentUpload, OpDocumentRead, OpDocumentClassify)
	taskOps     = setOf(OpTaskCreate, OpTaskRead, OpTaskUpdate, OpTaskTemplateManage)
	foilOps     = setOf(OpFOILCreate, OpFOILRead, OpFOILUpdate)
	messageOps  = setOf(OpMessageSend, OpMessageRead)
)

// permissionTable maps each role to the operations it may perform.
// It is never mutated after initialization.
var permissionTable = map[auth.Role]opSet{
	auth.RoleAdmin:    allOps,
	auth.RoleAttorney: caseOps | documentOps | taskOps | foilOps | messageOps | setOf(OpDataExport),
	auth.RoleParalegal: setOf(
		OpCaseCreate, OpCaseRead, OpCaseUpdate,
		OpDocumentUpload, OpDocumentRead,
		OpTaskCreate, OpTaskRead, OpTaskUpdate,
		OpFOILCreate, OpFOILRead, OpFOILUpdate,
		OpMessageSend, OpMessageRead,
	),
	auth.RoleClientDept: setOf(
		OpCaseCreate, OpCaseRead,
		OpDocumentUpload, OpDocumentRead,
		OpTaskRead, OpTaskUpdate,
		OpMessageSend, OpMessageRead,
	),
	auth.RoleUser: setOf(OpCaseRead, OpDocumentRead, OpTaskRead, OpMessageRead),
}

// HasPermission reports whether role may perform op according to the static
// table. Unknown roles have no permissions. An op outside the declared set
// is a programming error and panics.
func HasPermission(role auth.Role, op Operation) bool {
	if !op.Valid() {
		panic(fmt.Sprintf("rbac: invalid operation %d", uint8(op)))
	}
	return permissionTable[role].has(op)
}

// OperationsFor lists the operations the table grants to role
func OperationsFor(role auth.Role) []Operation {
	set := permissionTable[role]
	var ops []Operation
	for _, op := range AllOperations() {
		if set.has(op) {
			ops = append(ops, op)
		}
	}
	return ops
}

var roleRanks = map[auth.Role]int{
	auth.RoleAdmin:      5,
	auth.RoleAttorney:   4,
	auth.RoleParalegal:  3,
	auth.RoleClientDept: 2,
	auth.RoleUser:       1,
}

// Rank returns the role's position in the hierarchy; unknown roles rank 0
func Rank(role auth.Role) int {
	return roleRanks[role]
}

// HasMinimumRole reports whether role ranks at or above minimum. An unknown
// role never satisfies a minimum, and an unknown minimum is never satisfied.
func HasMinimumRole(role, minimum auth.Role) bool {
	r, m := Rank(role), Rank(minimum)
	return r > 0 && m > 0 && r >= m
}
