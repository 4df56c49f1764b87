package documents

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/contextkeys"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/platinummonkey/docket/pkg/storage"
)

// Service stores document content and metadata and keeps the chain of
// custody. Every method checks tenant access through the given Scope before
// touching the document.
type Service struct {
	db    *sql.DB
	blobs storage.BlobStore
	log   *logrus.Logger
	now   func() time.Time
}

// NewService creates a document service
func NewService(db *sql.DB, blobs storage.BlobStore, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		db:    db,
		blobs: blobs,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// BlobKey is where a version's content is stored
func BlobKey(caseID, documentID string, version int) string {
	return path.Join("cases", caseID, "documents", documentID, fmt.Sprintf("v%d", version))
}

// CanRead reports whether the session may read a document of the given
// classification. SEALED content needs at least ATTORNEY.
func CanRead(s *auth.Session, c Classification) bool {
	if s == nil {
		return false
	}
	if c == ClassSealed {
		return rbac.HasMinimumRole(s.Role, auth.RoleAttorney)
	}
	return true
}

func (s *Service) custody(ctx context.Context, session *auth.Session, documentID string, action CustodyAction, detail string) *CustodyEntry {
	return &CustodyEntry{
		ID:         uuid.New().String(),
		DocumentID: documentID,
		UserID:     session.UserID,
		Action:     action,
		Detail:     detail,
		IPAddress:  contextkeys.GetClientIP(ctx),
		OccurredAt: s.now(),
	}
}

func requireAccess(ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		return rbac.ErrAccessDenied
	}
	return nil
}

// putContent streams content into the blob store, returning size and sha256
func (s *Service) putContent(ctx context.Context, key string, content io.Reader, contentType string) (int64, string, error) {
	if content == nil {
		return 0, "", ErrEmptyContent
	}
	h := sha256.New()
	counter := &countingReader{r: io.TeeReader(content, h)}
	if err := s.blobs.Put(ctx, key, counter, contentType); err != nil {
		return 0, "", fmt.Errorf("failed to store document content: %w", err)
	}
	if counter.n == 0 {
		s.removeBlob(ctx, key)
		return 0, "", ErrEmptyContent
	}
	return counter.n, hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Service) removeBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("Failed to remove orphaned document content")
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Upload stores the first version of a document on an accessible case
func (s *Service) Upload(ctx context.Context, scope Scope, in Upload) (*Document, error) {
	session := scope.Session()
	if err := requireAccess(scope.CanAccessCase(ctx, in.CaseID)); err != nil {
		return nil, err
	}
	if in.Classification == "" {
		in.Classification = ClassConfidential
	}
	if !in.Classification.Valid() {
		return nil, ErrInvalidClassification
	}
	// Uploaders must be able to read what they file
	if !CanRead(session, in.Classification) {
		return nil, rbac.ErrAccessDenied
	}

	doc := &Document{
		ID:             uuid.New().String(),
		CaseID:         in.CaseID,
		UploadedByID:   session.UserID,
		Title:          in.Title,
		FileName:       in.FileName,
		ContentType:    in.ContentType,
		Classification: in.Classification,
		Version:        1,
		CreatedAt:      s.now(),
	}
	if doc.Title == "" {
		doc.Title = doc.FileName
	}
	doc.StorageKey = BlobKey(doc.CaseID, doc.ID, doc.Version)

	size, sum, err := s.putContent(ctx, doc.StorageKey, in.Content, in.ContentType)
	if err != nil {
		return nil, err
	}
	doc.Size, doc.Checksum = size, sum

	err = storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := insertDocument(ctx, tx, doc); err != nil {
			return err
		}
		return insertCustody(ctx, tx, s.custody(ctx, session, doc.ID, CustodyUploaded, "sha256:"+sum))
	})
	if err != nil {
		s.removeBlob(ctx, doc.StorageKey)
		return nil, err
	}
	return doc, nil
}

// NewVersion appends a version after the current head. The new row links to
// the head through ParentID; the head itself is left untouched.
func (s *Service) NewVersion(ctx context.Context, scope Scope, headID string, in Upload) (*Document, error) {
	session := scope.Session()
	if err := requireAccess(scope.CanAccessDocument(ctx, headID)); err != nil {
		return nil, err
	}
	head, err := getDocument(ctx, s.db, headID)
	if err != nil {
		return nil, err
	}
	if !CanRead(session, head.Classification) {
		return nil, rbac.ErrAccessDenied
	}

	classification := head.Classification
	if in.Classification != "" {
		if !in.Classification.Valid() {
			return nil, ErrInvalidClassification
		}
		if !CanRead(session, in.Classification) {
			return nil, rbac.ErrAccessDenied
		}
		classification = in.Classification
	}

	doc := &Document{
		ID:             uuid.New().String(),
		CaseID:         head.CaseID,
		UploadedByID:   session.UserID,
		Title:          head.Title,
		FileName:       in.FileName,
		ContentType:    in.ContentType,
		Classification: classification,
		Version:        head.Version + 1,
		ParentID:       head.ID,
		CreatedAt:      s.now(),
	}
	if in.Title != "" {
		doc.Title = in.Title
	}
	if doc.FileName == "" {
		doc.FileName = head.FileName
	}
	doc.StorageKey = BlobKey(doc.CaseID, doc.ID, doc.Version)

	size, sum, err := s.putContent(ctx, doc.StorageKey, in.Content, in.ContentType)
	if err != nil {
		return nil, err
	}
	doc.Size, doc.Checksum = size, sum

	err = storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		// the unique index on parent_id admits one successor per version
		if err := insertDocument(ctx, tx, doc); err != nil {
			if storage.IsUniqueViolation(err) {
				return ErrNotHead
			}
			return err
		}
		detail := fmt.Sprintf("v%d supersedes %s", doc.Version, head.ID)
		return insertCustody(ctx, tx, s.custody(ctx, session, doc.ID, CustodyVersioned, detail))
	})
	if err != nil {
		s.removeBlob(ctx, doc.StorageKey)
		return nil, err
	}
	return doc, nil
}

// Get returns document metadata and records a VIEWED entry
func (s *Service) Get(ctx context.Context, scope Scope, id string) (*Document, error) {
	doc, err := s.readable(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if err := insertCustody(ctx, s.db, s.custody(ctx, scope.Session(), id, CustodyViewed, "")); err != nil {
		return nil, err
	}
	return doc, nil
}

// Open returns the document content and records a DOWNLOADED entry. The
// caller closes the reader.
func (s *Service) Open(ctx context.Context, scope Scope, id string) (*Document, io.ReadCloser, error) {
	doc, err := s.readable(ctx, scope, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Get(ctx, doc.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open document content: %w", err)
	}
	if err := insertCustody(ctx, s.db, s.custody(ctx, scope.Session(), id, CustodyDownloaded, "")); err != nil {
		rc.Close()
		return nil, nil, err
	}
	return doc, rc, nil
}

// Classify changes the classification of one version
func (s *Service) Classify(ctx context.Context, scope Scope, id string, c Classification, reason string) (*Document, error) {
	if !c.Valid() {
		return nil, ErrInvalidClassification
	}
	doc, err := s.readable(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	session := scope.Session()
	if !CanRead(session, c) {
		return nil, rbac.ErrAccessDenied
	}

	from := doc.Classification
	err = storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"UPDATE documents SET classification = $1 WHERE id = $2", string(c), id); err != nil {
			return fmt.Errorf("failed to classify document: %w", err)
		}
		detail := fmt.Sprintf("%s -> %s", from, c)
		if reason != "" {
			detail += ": " + reason
		}
		return insertCustody(ctx, tx, s.custody(ctx, session, id, CustodyClassified, detail))
	})
	if err != nil {
		return nil, err
	}
	doc.Classification = c
	return doc, nil
}

// Custody returns the chain of custody of a document
func (s *Service) Custody(ctx context.Context, scope Scope, id string) ([]*CustodyEntry, error) {
	if _, err := s.readable(ctx, scope, id); err != nil {
		return nil, err
	}
	return ListCustody(ctx, s.db, id)
}

// Versions returns every version in the document's chain, oldest first
func (s *Service) Versions(ctx context.Context, scope Scope, id string) ([]*Document, error) {
	doc, err := s.readable(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	chain := []*Document{doc}
	seen := map[string]bool{doc.ID: true}
	for cur := doc; cur.ParentID != ""; {
		parent, err := getDocument(ctx, s.db, cur.ParentID)
		if err != nil {
			return nil, err
		}
		if seen[parent.ID] {
			return nil, fmt.Errorf("document version chain loops at %s", parent.ID)
		}
		seen[parent.ID] = true
		chain = append([]*Document{parent}, chain...)
		cur = parent
	}

	for cur := doc; ; {
		next, err := scanDocument(s.db.QueryRowContext(ctx,
			"SELECT "+documentColumns+" FROM documents d WHERE d.parent_id = $1", cur.ID))
		if err == sql.ErrNoRows {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load document version: %w", err)
		}
		if seen[next.ID] {
			return nil, fmt.Errorf("document version chain loops at %s", next.ID)
		}
		seen[next.ID] = true
		chain = append(chain, next)
		cur = next
	}
	return chain, nil
}

// readable loads a document the session may access and read
func (s *Service) readable(ctx context.Context, scope Scope, id string) (*Document, error) {
	if err := requireAccess(scope.CanAccessDocument(ctx, id)); err != nil {
		return nil, err
	}
	doc, err := getDocument(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !CanRead(scope.Session(), doc.Classification) {
		return nil, rbac.ErrAccessDenied
	}
	return doc, nil
}
