package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/docket/pkg/auth"
)

func session(role auth.Role, dept, user string) *auth.Session {
	return &auth.Session{SessionID: "s-" + user, UserID: user, DepartmentID: dept, Role: role}
}

func TestCaseAccess_NilSession(t *testing.T) {
	c := CaseScope{DepartmentID: "LEGAL-LIT"}
	assert.False(t, CanAccessCase(nil, c))
	assert.False(t, CanEditCase(nil, c))
	assert.False(t, CanDeleteCase(nil, c))
}

func TestCaseAccess_DepartmentWallDominates(t *testing.T) {
	foreign := CaseScope{DepartmentID: "LEGAL-CORP", OwnerID: "u1", ParalegalID: "u1"}

	for _, role := range []auth.Role{auth.RoleAttorney, auth.RoleParalegal, auth.RoleClientDept, auth.RoleUser} {
		t.Run(string(role), func(t *testing.T) {
			s := session(role, "LEGAL-LIT", "u1")
			assert.False(t, CanAccessCase(s, foreign))
			assert.False(t, CanEditCase(s, foreign))
			assert.False(t, CanDeleteCase(s, foreign))
		})
	}
}

func TestCaseAccess_AdminCrossesDepartments(t *testing.T) {
	admin := session(auth.RoleAdmin, "LEGAL-LIT", "admin")
	foreign := CaseScope{DepartmentID: "LEGAL-CORP"}

	assert.True(t, CanAccessCase(admin, foreign))
	assert.True(t, CanEditCase(admin, foreign))
	assert.True(t, CanDeleteCase(admin, foreign))

	noDept := session(auth.RoleAdmin, "", "admin")
	assert.True(t, CanDeleteCase(noDept, foreign))
}

func TestCanEditCase_AttorneySameDepartment(t *testing.T) {
	atty := session(auth.RoleAttorney, "LEGAL-LIT", "atty")

	assert.True(t, CanEditCase(atty, CaseScope{DepartmentID: "LEGAL-LIT"}))
	assert.True(t, CanEditCase(atty, CaseScope{DepartmentID: "LEGAL-LIT", OwnerID: "someone-else"}))
	assert.False(t, CanEditCase(atty, CaseScope{DepartmentID: "LEGAL-CORP"}))

	noDept := session(auth.RoleAttorney, "", "atty")
	assert.False(t, CanEditCase(noDept, CaseScope{DepartmentID: "LEGAL-LIT"}))
}

func TestCanEditCase_ParalegalOwnership(t *testing.T) {
	p := session(auth.RoleParalegal, "LEGAL-LIT", "para")

	tests := []struct {
		name  string
		scope CaseScope
		want  bool
	}{
		{"assignee", CaseScope{DepartmentID: "LEGAL-LIT", OwnerID: "para"}, true},
		{"paralegal", CaseScope{DepartmentID: "LEGAL-LIT", OwnerID: "atty", ParalegalID: "para"}, true},
		{"unrelated", CaseScope{DepartmentID: "LEGAL-LIT", OwnerID: "atty"}, false},
		{"unassigned", CaseScope{DepartmentID: "LEGAL-LIT"}, false},
		{"owner in other department", CaseScope{DepartmentID: "LEGAL-CORP", OwnerID: "para"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanEditCase(p, tt.scope))
		})
	}

	// An empty user id never matches an empty owner
	anon := session(auth.RoleParalegal, "LEGAL-LIT", "")
	assert.False(t, CanEditCase(anon, CaseScope{DepartmentID: "LEGAL-LIT"}))
}

func TestCaseAccess_LowerRoles(t *testing.T) {
	c := CaseScope{DepartmentID: "LEGAL-LIT", OwnerID: "u1"}

	client := session(auth.RoleClientDept, "LEGAL-LIT", "u1")
	assert.True(t, CanAccessCase(client, c))
	assert.False(t, CanEditCase(client, c))
	assert.False(t, CanDeleteCase(client, c))

	user := session(auth.RoleUser, "LEGAL-LIT", "u1")
	assert.True(t, CanAccessCase(user, c))
	assert.False(t, CanEditCase(user, c))
	assert.False(t, CanDeleteCase(user, c))

	atty := session(auth.RoleAttorney, "LEGAL-LIT", "atty")
	assert.True(t, CanDeleteCase(atty, c))
	para := session(auth.RoleParalegal, "LEGAL-LIT", "u1")
	assert.False(t, CanDeleteCase(para, c))
}
