package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/documents"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/platinummonkey/docket/pkg/validation"
)

// multipart parts above this size spill to temporary files
const multipartMemory = 8 << 20

// ClassifyRequest is the body of PUT /documents/{id}/classification
type ClassifyRequest struct {
	Classification documents.Classification `json:"classification" validate:"required,oneof=PUBLIC CONFIDENTIAL PRIVILEGED SEALED"`
	Reason         string                   `json:"reason,omitempty" validate:"max=1000"`
}

func (s *Server) registerDocumentRoutes(r *mux.Router) {
	r.Handle("/cases/{id}/documents", s.op(rbac.OpDocumentRead, s.listDocuments)).Methods("GET")
	r.Handle("/cases/{id}/documents", s.op(rbac.OpDocumentUpload, s.uploadDocument)).Methods("POST")
	r.Handle("/documents/{id}", s.op(rbac.OpDocumentRead, s.getDocument)).Methods("GET")
	r.Handle("/documents/{id}/content", s.op(rbac.OpDocumentRead, s.downloadDocument)).Methods("GET")
	r.Handle("/documents/{id}/versions", s.op(rbac.OpDocumentRead, s.documentVersions)).Methods("GET")
	r.Handle("/documents/{id}/versions", s.op(rbac.OpDocumentUpload, s.uploadVersion)).Methods("POST")
	r.Handle("/documents/{id}/custody", s.op(rbac.OpDocumentRead, s.documentCustody)).Methods("GET")
	r.Handle("/documents/{id}/classification", s.op(rbac.OpDocumentClassify, s.classifyDocument)).Methods("PUT")
}

func documentEvent(op rbac.Operation, id string) audit.Event {
	return audit.Event{Action: op.String(), EntityType: audit.EntityDocument, EntityID: id}
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	caseID := mux.Vars(r)["id"]
	ev := audit.Event{Action: rbac.OpDocumentRead.String(), EntityType: audit.EntityCase, EntityID: caseID}
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}

	all, err := svc.GetDocuments(r.Context(), caseID)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}
	session := svc.Session()
	visible := make([]*documents.Document, 0, len(all))
	for _, d := range all {
		if documents.CanRead(session, d.Classification) {
			visible = append(visible, d)
		}
	}

	ev.Metadata = map[string]interface{}{"count": len(visible)}
	s.granted(r, ev)
	httputil.WriteSuccess(w, visible)
}

// readUpload parses a multipart upload with a "file" part. On failure the
// response is written and ok is false.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteErrorMessage(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", s.deps.MaxUploadBytes))
			return nil, nil, false
		}
		httputil.WriteBadRequest(w, "expected a multipart form")
		return nil, nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteValidationErrors(w, map[string]string{"file": "is required"})
		return nil, nil, false
	}
	return file, header, true
}

func uploadFrom(r *http.Request, header *multipart.FileHeader, content io.Reader) documents.Upload {
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = header.Filename
	}
	return documents.Upload{
		Title:          title,
		FileName:       header.Filename,
		ContentType:    contentType,
		Classification: documents.Classification(strings.ToUpper(r.FormValue("classification"))),
		Content:        content,
	}
}

func (s *Server) uploadDocument(w http.ResponseWriter, r *http.Request) {
	caseID := mux.Vars(r)["id"]
	ev := documentEvent(rbac.OpDocumentUpload, "")
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}

	file, header, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	in := uploadFrom(r, header, file)
	in.CaseID = caseID
	doc, err := s.deps.Documents.Upload(r.Context(), svc, in)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}

	ev.EntityID = doc.ID
	ev.Metadata = map[string]interface{}{
		"caseId":         caseID,
		"size":           doc.Size,
		"classification": string(doc.Classification),
	}
	s.granted(r, ev)
	httputil.WriteCreated(w, doc)
}

func (s *Server) uploadVersion(w http.ResponseWriter, r *http.Request) {
	headID := mux.Vars(r)["id"]
	ev := documentEvent(rbac.OpDocumentUpload, headID)
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}

	file, header, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	doc, err := s.deps.Documents.NewVersion(r.Context(), svc, headID, uploadFrom(r, header, file))
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}

	ev.EntityID = doc.ID
	ev.Description = fmt.Sprintf("uploaded version %d", doc.Version)
	ev.Metadata = map[string]interface{}{"parentId": headID, "version": doc.Version}
	s.granted(r, ev)
	httputil.WriteCreated(w, doc)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ev := documentEvent(rbac.OpDocumentRead, id)
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}

	doc, err := s.deps.Documents.Get(r.Context(), svc, id)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}
	s.granted(r, ev)
	httputil.WriteSuccess(w, doc)
}

// downloadDocument streams the stored content of one version
func (s *Server) downloadDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ev := documentEvent(rbac.OpDocumentRead, id)
	ev.Description = "downloaded document"
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}

	doc, content, err := s.deps.Documents.Open(r.Context(), svc, id)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}
	defer content.Close()
	s.granted(r, ev)

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.FileName}))
	w.Header().Set("X-Content-SHA256", doc.Checksum)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, content); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("Document download interrupted")
	}
}

func (s *Server) documentVersions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ev := documentEvent(rbac.OpDocumentRead, id)
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}

	versions, err := s.deps.Documents.Versions(r.Context(), svc, id)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}
	s.granted(r, ev)
	httputil.WriteSuccess(w, versions)
}

func (s *Server) documentCustody(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ev := documentEvent(rbac.OpDocumentRead, id)
	ev.Description = "viewed chain of custody"
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}

	entries, err := s.deps.Documents.Custody(r.Context(), svc, id)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}
	s.granted(r, ev)
	httputil.WriteSuccess(w, entries)
}

func (s *Server) classifyDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ev := documentEvent(rbac.OpDocumentClassify, id)
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}

	var req ClassifyRequest
	if !validation.DecodeOrError(w, r, &req) {
		return
	}
	doc, err := s.deps.Documents.Classify(r.Context(), svc, id, req.Classification, req.Reason)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}

	ev.Metadata = map[string]interface{}{"classification": string(doc.Classification)}
	if req.Reason != "" {
		ev.Metadata["reason"] = req.Reason
	}
	s.granted(r, ev)
	httputil.WriteSuccess(w, doc)
}
