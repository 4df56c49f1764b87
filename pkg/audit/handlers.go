package audit

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/httputil"
)

// Operation codes recorded by the audit API
const (
	ActionAuditLogRead = "AUDIT_LOG_READ"
	ActionDataExport   = "DATA_EXPORT"
)

const (
	defaultSearchLimit = 100
	maxSearchLimit     = 1000
)

// Guard wraps a handler with an authorization check
type Guard func(http.Handler) http.Handler

// Handlers provides HTTP handlers for the audit log API
type Handlers struct {
	store       Store
	recorder    *Recorder
	readGuard   Guard
	exportGuard Guard
}

// NewHandlers creates audit handlers. readGuard must enforce AUDIT_LOG_READ
// and exportGuard DATA_EXPORT; a nil guard refuses every request.
func NewHandlers(store Store, recorder *Recorder, readGuard, exportGuard Guard) *Handlers {
	if readGuard == nil {
		readGuard = denyAll
	}
	if exportGuard == nil {
		exportGuard = denyAll
	}
	return &Handlers{
		store:       store,
		recorder:    recorder,
		readGuard:   readGuard,
		exportGuard: exportGuard,
	}
}

func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteForbidden(w, "Insufficient permissions")
	})
}

// RegisterRoutes registers audit log routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	read := func(f http.HandlerFunc) http.Handler { return h.readGuard(f) }

	router.Handle("/audit/events", read(h.listEvents)).Methods("GET")
	router.Handle("/audit/events/{id}", read(h.getEvent)).Methods("GET")
	router.Handle("/audit/export", h.readGuard(h.exportGuard(http.HandlerFunc(h.exportEvents)))).Methods("GET")
	router.Handle("/audit/stats", read(h.getStats)).Methods("GET")
}

// listEvents handles GET /audit/events
func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	session := sessionOrUnauthorized(w, r)
	if session == nil {
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	scopeFilter(session, &filter)

	records, err := h.store.Search(r.Context(), filter)
	if err != nil {
		h.failed(r, session, ActionAuditLogRead, "", err)
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to search audit records")
		return
	}

	h.granted(r, session, ActionAuditLogRead, "", map[string]interface{}{"count": len(records)})
	httputil.WriteSuccess(w, map[string]interface{}{
		"events": records,
		"count":  len(records),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// getEvent handles GET /audit/events/{id}
func (h *Handlers) getEvent(w http.ResponseWriter, r *http.Request) {
	session := sessionOrUnauthorized(w, r)
	if session == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	record, err := h.store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) || (err == nil && !visible(session, record)) {
		httputil.WriteNotFoundError(w, "audit record not found")
		return
	}
	if err != nil {
		h.failed(r, session, ActionAuditLogRead, strconv.FormatInt(id, 10), err)
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to get audit record")
		return
	}

	h.granted(r, session, ActionAuditLogRead, strconv.FormatInt(id, 10), nil)
	httputil.WriteSuccess(w, record)
}

// exportEvents handles GET /audit/export
func (h *Handlers) exportEvents(w http.ResponseWriter, r *http.Request) {
	session := sessionOrUnauthorized(w, r)
	if session == nil {
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	scopeFilter(session, &filter)

	format := ExportFormat(r.URL.Query().Get("format"))
	switch format {
	case "":
		format = ExportFormatJSON
	case ExportFormatJSON, ExportFormatCSV, ExportFormatNDJSON:
	default:
		httputil.WriteBadRequest(w, "format must be json, csv or ndjson")
		return
	}

	data, err := h.store.Export(r.Context(), filter, format)
	if err != nil {
		h.failed(r, session, ActionDataExport, "", err)
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to export audit records")
		return
	}

	h.granted(r, session, ActionDataExport, "", map[string]interface{}{"format": string(format)})

	switch format {
	case ExportFormatCSV:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=audit-logs.csv")
	case ExportFormatNDJSON:
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Content-Disposition", "attachment; filename=audit-logs.ndjson")
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", "attachment; filename=audit-logs.json")
	}

	w.Write(data)
}

// getStats handles GET /audit/stats
func (h *Handlers) getStats(w http.ResponseWriter, r *http.Request) {
	session := sessionOrUnauthorized(w, r)
	if session == nil {
		return
	}
	if session.Role != auth.RoleAdmin {
		// Stats span every department
		h.denied(r, session, ActionAuditLogRead)
		httputil.WriteForbidden(w, "Insufficient permissions")
		return
	}

	startTime, err := parseTime(r, "start_time")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	endTime, err := parseTime(r, "end_time")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	stats, err := h.store.GetStats(r.Context(), startTime, endTime)
	if err != nil {
		h.failed(r, session, ActionAuditLogRead, "", err)
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to get audit statistics")
		return
	}

	h.granted(r, session, ActionAuditLogRead, "", map[string]interface{}{"view": "stats"})
	httputil.WriteSuccess(w, stats)
}

func (h *Handlers) granted(r *http.Request, session *auth.Session, action, id string, metadata map[string]interface{}) {
	if h.recorder == nil {
		return
	}
	h.recorder.Granted(r.Context(), session, Event{
		Action:     action,
		EntityType: EntityAuditLog,
		EntityID:   id,
		Metadata:   metadata,
	})
}

func (h *Handlers) denied(r *http.Request, session *auth.Session, action string) {
	if h.recorder == nil {
		return
	}
	h.recorder.Denied(r.Context(), session, Event{Action: action, EntityType: EntityAuditLog})
}

func (h *Handlers) failed(r *http.Request, session *auth.Session, action, id string, err error) {
	if h.recorder == nil {
		return
	}
	h.recorder.Failed(r.Context(), session, Event{
		Action:     action,
		EntityType: EntityAuditLog,
		EntityID:   id,
	}, err)
}

// sessionOrUnauthorized returns the caller's session or writes 401
func sessionOrUnauthorized(w http.ResponseWriter, r *http.Request) *auth.Session {
	session := auth.SessionFromContext(r.Context())
	if session == nil {
		httputil.WriteUnauthorized(w, "Authentication required")
	}
	return session
}

// scopeFilter restricts non-admin readers, such as users holding a
// grant, to their own department
func scopeFilter(session *auth.Session, filter *SearchFilter) {
	if session.Role == auth.RoleAdmin {
		return
	}
	filter.DepartmentID = session.DepartmentID
}

func visible(session *auth.Session, record *Record) bool {
	if record == nil || session == nil {
		return false
	}
	return session.Role == auth.RoleAdmin || record.DepartmentID == session.DepartmentID
}

func parseTime(r *http.Request, key string) (*time.Time, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, errors.New(key + " must be an RFC3339 timestamp")
	}
	return &t, nil
}

// parseFilter parses the search filter from query parameters
func parseFilter(r *http.Request) (SearchFilter, error) {
	query := r.URL.Query()
	filter := SearchFilter{}

	var err error
	if filter.StartTime, err = parseTime(r, "start_time"); err != nil {
		return filter, err
	}
	if filter.EndTime, err = parseTime(r, "end_time"); err != nil {
		return filter, err
	}

	filter.UserID = query.Get("user_id")
	filter.DepartmentID = query.Get("department_id")
	filter.Actions = parseCommaSeparated(query.Get("actions"))

	if outcome := query.Get("outcome"); outcome != "" {
		o := Outcome(strings.ToUpper(outcome))
		filter.Outcome = &o
	}
	for _, s := range parseCommaSeparated(query.Get("severities")) {
		filter.Severities = append(filter.Severities, Severity(strings.ToUpper(s)))
	}

	filter.EntityType = EntityType(query.Get("entity_type"))
	filter.EntityID = query.Get("entity_id")
	filter.IPAddress = query.Get("ip_address")
	filter.RequestID = query.Get("request_id")

	filter.Limit, err = httputil.ParseQueryInt(r, "limit", defaultSearchLimit)
	if err != nil || filter.Limit <= 0 {
		return filter, errors.New("limit must be a positive integer")
	}
	if filter.Limit > maxSearchLimit {
		filter.Limit = maxSearchLimit
	}
	filter.Offset, err = httputil.ParseQueryInt(r, "offset", 0)
	if err != nil || filter.Offset < 0 {
		return filter, errors.New("offset must be a non-negative integer")
	}

	filter.SortBy = query.Get("sort_by")
	filter.SortOrder = query.Get("sort_order")
	if filter.SortOrder == "" {
		filter.SortOrder = "desc"
	}

	return filter, nil
}

// parseCommaSeparated splits a comma-separated list, dropping empty items
func parseCommaSeparated(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}
	return result
}
