package auth

import (
	"context"
	"testing"
)

func TestSessionContext(t *testing.T) {
	if SessionFromContext(context.Background()) != nil {
		t.Error("expected nil session on empty context")
	}

	s := &Session{UserID: "u1", DepartmentID: "d1", Role: RoleAdmin}
	ctx := WithSession(context.Background(), s)
	if got := SessionFromContext(ctx); got != s {
		t.Errorf("SessionFromContext() = %v, want %v", got, s)
	}
}
