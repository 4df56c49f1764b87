package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrGrantNotFound is returned when revoking a grant that does not exist
var ErrGrantNotFound = errors.New("permission grant not found")

// Store persists per-user permission grants
type Store struct {
	db *sql.DB
}

// NewStore creates a new grant store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveGrant creates the grant or replaces an existing one for the same
// user and operation
func (s *Store) SaveGrant(ctx context.Context, grant *Grant) error {
	if !grant.Operation.Valid() {
		return fmt.Errorf("invalid operation %d", uint8(grant.Operation))
	}
	if grant.GrantedAt.IsZero() {
		grant.GrantedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO permission_grants (user_id, operation, granted_by, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, operation)
		DO UPDATE SET granted_by = excluded.granted_by, granted_at = excluded.granted_at, expires_at = excluded.expires_at
	`

	_, err := s.db.ExecContext(ctx, query,
		grant.UserID,
		grant.Operation.String(),
		grant.GrantedBy,
		grant.GrantedAt,
		grant.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save grant: %w", err)
	}
	return nil
}

// RevokeGrant removes the user's grant for op
func (s *Store) RevokeGrant(ctx context.Context, userID string, op Operation) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM permission_grants WHERE user_id = $1 AND operation = $2",
		userID, op.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to revoke grant: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to revoke grant: %w", err)
	}
	if n == 0 {
		return ErrGrantNotFound
	}
	return nil
}

// ListGrants returns every grant held by the user, expired ones included
func (s *Store) ListGrants(ctx context.Context, userID string) ([]Grant, error) {
	query := `
		SELECT user_id, operation, granted_by, granted_at, expires_at
		FROM permission_grants
		WHERE user_id = $1
		ORDER BY operation
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	grants := make([]Grant, 0)
	for rows.Next() {
		var g Grant
		var opName string
		var expiresAt sql.NullTime

		if err := rows.Scan(&g.UserID, &opName, &g.GrantedBy, &g.GrantedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}

		op, err := ParseOperation(opName)
		if err != nil {
			// Rows for operations that no longer exist grant nothing
			continue
		}
		g.Operation = op

		if expiresAt.Valid {
			t := expiresAt.Time
			g.ExpiresAt = &t
		}
		grants = append(grants, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating grants: %w", err)
	}
	return grants, nil
}

// DeleteExpired removes grants that expired before the given time
func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM permission_grants WHERE expires_at IS NOT NULL AND expires_at < $1",
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired grants: %w", err)
	}
	return result.RowsAffected()
}
