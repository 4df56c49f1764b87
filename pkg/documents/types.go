package documents

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/platinummonkey/docket/pkg/auth"
)

var (
	ErrNotFound              = errors.New("document not found")
	ErrNotHead               = errors.New("only the latest version can be superseded")
	ErrInvalidClassification = errors.New("invalid classification")
	ErrEmptyContent          = errors.New("document content is empty")
)

// Classification restricts who may read a document
type Classification string

const (
	ClassPublic       Classification = "PUBLIC"
	ClassConfidential Classification = "CONFIDENTIAL"
	ClassPrivileged   Classification = "PRIVILEGED"
	ClassSealed       Classification = "SEALED"
)

// Valid reports whether c is a known classification
func (c Classification) Valid() bool {
	switch c {
	case ClassPublic, ClassConfidential, ClassPrivileged, ClassSealed:
		return true
	}
	return false
}

// CustodyAction is an entry kind in the chain of custody
type CustodyAction string

const (
	CustodyUploaded   CustodyAction = "UPLOADED"
	CustodyVersioned  CustodyAction = "VERSIONED"
	CustodyViewed     CustodyAction = "VIEWED"
	CustodyDownloaded CustodyAction = "DOWNLOADED"
	CustodyClassified CustodyAction = "CLASSIFIED"
)

// Document is one immutable version of a file attached to a case
type Document struct {
	ID             string         `json:"id"`
	CaseID         string         `json:"caseId"`
	UploadedByID   string         `json:"uploadedById"`
	Title          string         `json:"title"`
	FileName       string         `json:"fileName"`
	ContentType    string         `json:"contentType"`
	Size           int64          `json:"size"`
	Checksum       string         `json:"checksum"`
	StorageKey     string         `json:"-"`
	Classification Classification `json:"classification"`
	Version        int            `json:"version"`
	ParentID       string         `json:"parentId,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// CustodyEntry records one action taken on a document
type CustodyEntry struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"documentId"`
	UserID     string        `json:"userId"`
	Action     CustodyAction `json:"action"`
	Detail     string        `json:"detail,omitempty"`
	IPAddress  string        `json:"ipAddress,omitempty"`
	OccurredAt time.Time     `json:"occurredAt"`
}

// Upload describes new content
type Upload struct {
	CaseID         string
	Title          string
	FileName       string
	ContentType    string
	Classification Classification
	Content        io.Reader
}

// Scope answers tenant questions for the calling session
type Scope interface {
	Session() *auth.Session
	CanAccessCase(ctx context.Context, caseID string) (bool, error)
	CanAccessDocument(ctx context.Context, documentID string) (bool, error)
}
