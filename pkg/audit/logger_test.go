package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{
			"unique violation",
			&pq.Error{Code: "23505", Message: "duplicate key (email)=(alice@example.test)"},
			"database error (SQLSTATE class 23: integrity_constraint_violation)",
		},
		{
			"wrapped pq error",
			fmt.Errorf("failed to create case: %w", &pq.Error{Code: "40001", Detail: "secret row"}),
			"database error (SQLSTATE class 40: transaction_rollback)",
		},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"no rows", sql.ErrNoRows, "not found"},
		{"tx done", sql.ErrTxDone, "database error"},
		{"other", errors.New("open /etc/secret: permission denied"), "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Redact(tt.err))
		})
	}
}

func TestMemoryLogger(t *testing.T) {
	m := NewMemoryLogger()
	ctx := context.Background()

	first := &Record{Action: "CASE_READ"}
	require.NoError(t, m.Log(ctx, first))
	require.NoError(t, m.Log(ctx, &Record{Action: "CASE_UPDATE"}))

	assert.Equal(t, int64(1), first.ID)
	assert.Len(t, m.Records(), 2)
	assert.Len(t, m.ByAction("CASE_UPDATE"), 1)

	// Stored records are copies
	first.Action = "MUTATED"
	assert.Len(t, m.ByAction("CASE_READ"), 1)

	m.FailWith(errors.New("down"))
	assert.Error(t, m.Log(ctx, &Record{}))
	assert.Len(t, m.Records(), 2)
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	assert.NoError(t, l.Log(context.Background(), &Record{}))
	assert.NoError(t, l.Close())
}
