// Package storage provides the persistence plumbing shared by the domain packages.
//
// # Overview
//
// Domain packages (cases, documents, foil, ...) own their SQL. This package owns
// everything around it:
//
//   - ConnectionManager: primary + read replica pools for PostgreSQL
//   - Migrate: the versioned schema, portable between PostgreSQL and SQLite
//   - BlobStore: document content, backed by S3 or the local filesystem
//   - RedisClient: JSON values and counters in Redis
//
// # Usage Example
//
//	cm, err := storage.NewConnectionManager(storage.ConnectionConfigFrom(cfg), logger)
//	if err := storage.Migrate(ctx, cm.Primary()); err != nil { ... }
//
//	blobs, err := storage.NewBlobStore(ctx, cfg)
//	err = blobs.Put(ctx, key, bytes.NewReader(data), "application/pdf")
//
// # Schema
//
// The schema avoids dialect specific defaults: ids are generated in Go,
// timestamps are written by the application and booleans are plain BOOLEAN.
// The one dialect specific table, audit_logs, is created by the audit package.
package storage
