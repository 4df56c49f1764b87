package documents

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/docket/pkg/storage"
)

const documentColumns = `d.id, d.case_id, d.uploaded_by_id, d.title, d.file_name, d.content_type, d.size_bytes,
	d.checksum, d.storage_key, d.classification, d.version, d.parent_id, d.created_at`

func scanDocument(row interface{ Scan(...interface{}) error }) (*Document, error) {
	d := &Document{}
	var parent sql.NullString
	err := row.Scan(&d.ID, &d.CaseID, &d.UploadedByID, &d.Title, &d.FileName, &d.ContentType, &d.Size,
		&d.Checksum, &d.StorageKey, &d.Classification, &d.Version, &parent, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.ParentID = storage.StringValue(parent)
	return d, nil
}

func insertDocument(ctx context.Context, q storage.DBTX, d *Document) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO documents (id, case_id, uploaded_by_id, title, file_name, content_type, size_bytes,
			checksum, storage_key, classification, version, parent_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		d.ID, d.CaseID, d.UploadedByID, d.Title, d.FileName, d.ContentType, d.Size,
		d.Checksum, d.StorageKey, string(d.Classification), d.Version, storage.NullString(d.ParentID), d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func insertCustody(ctx context.Context, q storage.DBTX, e *CustodyEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO custody_entries (id, document_id, user_id, action, detail, ip_address, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.DocumentID, e.UserID, string(e.Action), e.Detail, e.IPAddress, e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert custody entry: %w", err)
	}
	return nil
}

func getDocument(ctx context.Context, q storage.DBTX, id string) (*Document, error) {
	d, err := scanDocument(q.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents d WHERE d.id = $1", id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return d, nil
}

// DepartmentOf resolves a document's department through its case
func DepartmentOf(ctx context.Context, q storage.DBTX, documentID string) (string, error) {
	var dept string
	err := q.QueryRowContext(ctx,
		"SELECT c.department_id FROM documents d JOIN cases c ON c.id = d.case_id WHERE d.id = $1", documentID,
	).Scan(&dept)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve document department: %w", err)
	}
	return dept, nil
}

// ListForDepartment returns the documents of a case in the department,
// newest first. Documents of a case in another department are never
// returned.
func ListForDepartment(ctx context.Context, q storage.DBTX, departmentID, caseID string) ([]*Document, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents d
		JOIN cases c ON c.id = d.case_id
		WHERE c.department_id = $1 AND d.case_id = $2
		ORDER BY d.created_at DESC, d.version DESC`,
		departmentID, caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	out := make([]*Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return out, nil
}

// ListCustody returns a document's chain of custody, oldest first
func ListCustody(ctx context.Context, q storage.DBTX, documentID string) ([]*CustodyEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, document_id, user_id, action, detail, ip_address, occurred_at
		FROM custody_entries
		WHERE document_id = $1
		ORDER BY occurred_at, id`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list custody entries: %w", err)
	}
	defer rows.Close()

	out := make([]*CustodyEntry, 0)
	for rows.Next() {
		e := &CustodyEntry{}
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.UserID, &e.Action, &e.Detail, &e.IPAddress, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan custody entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating custody entries: %w", err)
	}
	return out, nil
}
