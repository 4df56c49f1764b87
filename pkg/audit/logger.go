package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/lib/pq"
)

// Logger is a destination for audit records
type Logger interface {
	// Log persists a record. Implementations may assign Record.ID.
	Log(ctx context.Context, record *Record) error

	// Close flushes and releases the sink
	Close() error
}

// NopLogger discards every record
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, record *Record) error { return nil }
func (NopLogger) Close() error                                  { return nil }

// MemoryLogger keeps records in memory
type MemoryLogger struct {
	mu      sync.Mutex
	records []*Record
	nextID  int64
	err     error
}

// NewMemoryLogger creates an empty in-memory sink
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

// FailWith makes every subsequent Log call return err
func (m *MemoryLogger) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Log appends a copy of the record
func (m *MemoryLogger) Log(ctx context.Context, record *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.nextID++
	record.ID = m.nextID
	cp := *record
	m.records = append(m.records, &cp)
	return nil
}

// Records returns a snapshot of the logged records
func (m *MemoryLogger) Records() []*Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Record, len(m.records))
	copy(out, m.records)
	return out
}

// ByAction returns the logged records with the given action
func (m *MemoryLogger) ByAction(action string) []*Record {
	var out []*Record
	for _, r := range m.Records() {
		if r.Action == action {
			out = append(out, r)
		}
	}
	return out
}

func (m *MemoryLogger) Close() error { return nil }

// Redact turns a persistence error into a message safe to store in an audit
// record. Database errors keep only their SQLSTATE class; raw driver text,
// which may echo row values, is never included.
func Redact(err error) string {
	if err == nil {
		return ""
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		class := pqErr.Code.Class()
		return fmt.Sprintf("database error (SQLSTATE class %s: %s)", class, class.Name())
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, sql.ErrNoRows):
		return "not found"
	case errors.Is(err, sql.ErrTxDone), errors.Is(err, sql.ErrConnDone):
		return "database error"
	default:
		return "internal error"
	}
}
