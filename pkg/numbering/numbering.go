// Package numbering issues human-readable identifiers for cases and FOIL
// requests. Each (kind, department, year) triple has its own counter; a
// counter is advanced by a single INSERT ... ON CONFLICT statement so
// concurrent callers never observe the same value.
package numbering

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Kind names a counter family
type Kind string

const (
	KindCase Kind = "CASE"
	KindFOIL Kind = "FOIL"
)

// Querier is satisfied by *sql.DB and *sql.Tx
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const nextQuery = `
	INSERT INTO identifier_sequences (kind, department_id, year, last_value)
	VALUES ($1, $2, $3, 1)
	ON CONFLICT (kind, department_id, year)
	DO UPDATE SET last_value = identifier_sequences.last_value + 1
	RETURNING last_value
`

// Sequencer hands out sequence values
type Sequencer struct{}

// NewSequencer creates a sequencer
func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Next advances the counter and returns its new value, starting at 1.
// Run it on the transaction that writes the numbered row so a rollback
// also releases the value.
func (s *Sequencer) Next(ctx context.Context, q Querier, kind Kind, departmentID string, year int) (int64, error) {
	var n int64
	if err := q.QueryRowContext(ctx, nextQuery, string(kind), departmentID, year).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to advance %s sequence: %w", kind, err)
	}
	return n, nil
}

// CaseNumber returns the next case number for the department, for example
// LIT-2024-00042
func (s *Sequencer) CaseNumber(ctx context.Context, q Querier, departmentID, departmentCode string, at time.Time) (string, error) {
	year := at.UTC().Year()
	n, err := s.Next(ctx, q, KindCase, departmentID, year)
	if err != nil {
		return "", err
	}
	return FormatCaseNumber(departmentCode, year, n), nil
}

// FOILNumber returns the next FOIL request number for the department, for
// example FOIL-LIT-2024-0007
func (s *Sequencer) FOILNumber(ctx context.Context, q Querier, departmentID, departmentCode string, at time.Time) (string, error) {
	year := at.UTC().Year()
	n, err := s.Next(ctx, q, KindFOIL, departmentID, year)
	if err != nil {
		return "", err
	}
	return FormatFOILNumber(departmentCode, year, n), nil
}

func FormatCaseNumber(code string, year int, n int64) string {
	return fmt.Sprintf("%s-%d-%05d", code, year, n)
}

func FormatFOILNumber(code string, year int, n int64) string {
	return fmt.Sprintf("FOIL-%s-%d-%04d", code, year, n)
}
