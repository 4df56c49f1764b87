// Package audit records who did what to which case-management resource.
//
// # Overview
//
// Every state-changing or sensitive-read operation produces exactly one
// Record. The action is the operation code (CASE_CREATE, DOCUMENT_READ, ...)
// for granted operations, <OP>_DENIED for refusals and <OP>_ERROR for
// persistence failures. Records are append-only; only the retention job
// deletes them.
//
// # Recording
//
// Recorder is the write side used by handlers:
//
//	recorder := audit.NewRecorder(ctx, sink, logrusLogger, audit.DefaultRecorderConfig())
//	defer recorder.Close(10 * time.Second)
//
//	recorder.Granted(ctx, session, audit.Event{
//		Action:     "CASE_CREATE",
//		EntityType: audit.EntityCase,
//		EntityID:   c.ID,
//	})
//
// Granted and Failed are queued to a bounded worker pool. Denied writes the
// record before returning so the refusal is persisted before the 403 goes
// out. Sink errors never reach the caller; they are logged with logrus and
// counted in docket_audit_records_failed_total.
//
// Failed stores Redact(err) in the record metadata. Database errors keep
// only their SQLSTATE class.
//
// # Sinks
//
//   - DBLogger writes to the audit_logs table
//   - FileLogger writes JSON lines with size based rotation
//   - MultiLogger fans out to several sinks
//   - MemoryLogger and NopLogger for tests and tools
//
// # Querying
//
// DBStore implements Store: filtered search, get by id, statistics, export
// as JSON, NDJSON or CSV, and retention cleanup. Handlers exposes it under
// /audit. Routes are wrapped with guards supplied by the caller, which keeps
// this package independent of the permission checker.
//
// # Severity
//
// DefaultSeverity: reads LOW, mutations MEDIUM, deletes and denials HIGH,
// user management, security configuration and session revocation CRITICAL.
package audit
