package api

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/cases"
	"github.com/platinummonkey/docket/pkg/departments"
	"github.com/platinummonkey/docket/pkg/documents"
	"github.com/platinummonkey/docket/pkg/foil"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/messages"
	"github.com/platinummonkey/docket/pkg/middleware"
	"github.com/platinummonkey/docket/pkg/numbering"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/platinummonkey/docket/pkg/storage"
	"github.com/platinummonkey/docket/pkg/tasks"
	"github.com/platinummonkey/docket/pkg/tenant"
)

// PathPrefix is where the JSON API is mounted
const PathPrefix = "/api/v1"

const defaultMaxUploadBytes = 64 << 20

// Deps are the services the API is built from. Throttle, Metrics and the
// loggers are optional.
type Deps struct {
	DB          *sql.DB
	Auth        *auth.Authenticator
	Throttle    *middleware.LoginThrottle
	Checker     *rbac.Checker
	Grants      *rbac.Store
	Recorder    *audit.Recorder
	AuditStore  audit.Store
	Departments *departments.Store
	Cases       *cases.Store
	Tasks       *tasks.Store
	Documents   *documents.Service
	FOIL        *foil.Service
	Messages    *messages.Service
	Sequencer   *numbering.Sequencer
	Resolver    *tenant.Resolver
	Blobs       storage.BlobStore
	Metrics     *observability.Metrics
	Logger      *observability.Logger
	OpLog       *logrus.Logger

	MaxUploadBytes int64
}

// Server is the docket HTTP API
type Server struct {
	deps   Deps
	router *mux.Router
	guard  *rbac.Middleware
	users  *auth.Store
}

// NewServer creates the API server and registers every route
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if deps.OpLog == nil {
		deps.OpLog = logrus.StandardLogger()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = defaultMaxUploadBytes
	}

	s := &Server{
		deps:   deps,
		router: mux.NewRouter(),
		guard:  rbac.NewMiddleware(deps.Checker, deps.Recorder),
		users:  deps.Auth.Store(),
	}
	s.setupRoutes()
	return s
}

// Router returns the route table, for tests and route listing
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the API with request ids, logging, panic recovery, body
// limits and metrics applied
func (s *Server) Handler() http.Handler {
	return httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.deps.Logger),
		observability.RecoveryMiddleware(s.deps.Logger),
		httputil.MaxBytesMiddleware(s.deps.MaxUploadBytes),
	)(s.router)
}

func (s *Server) setupRoutes() {
	if s.deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.deps.Metrics))
	}

	api := s.router.PathPrefix(PathPrefix).Subrouter()
	api.HandleFunc("/auth/login", s.login).Methods("POST")

	private := api.NewRoute().Subrouter()
	private.Use(middleware.NewAuthMiddleware(s.deps.Auth).Handler)

	s.registerAuthRoutes(private)
	s.registerUserRoutes(private)
	s.registerDepartmentRoutes(private)
	s.registerCaseRoutes(private)
	s.registerDocumentRoutes(private)
	s.registerTaskRoutes(private)
	s.registerFOILRoutes(private)
	s.registerMessageRoutes(private)
	private.Handle("/dashboard", s.op(rbac.OpCaseRead, s.dashboard)).Methods("GET")

	audit.NewHandlers(s.deps.AuditStore, s.deps.Recorder,
		s.guard.Guard(rbac.OpAuditLogRead), s.guard.Guard(rbac.OpDataExport)).RegisterRoutes(private)
	rbac.NewHandlers(s.deps.Grants, s.deps.Checker, s.users, s.deps.Recorder).RegisterRoutes(private)
}

// op gates a handler on an operation. Denials are recorded by the guard.
func (s *Server) op(op rbac.Operation, h http.HandlerFunc) http.Handler {
	return s.guard.RequireOperation(op)(h)
}

// tenant returns the caller's tenant view, or nil when the caller has no
// department
func (s *Server) tenant(r *http.Request) *tenant.Service {
	return tenant.New(auth.SessionFromContext(r.Context()), tenant.Deps{
		DB:        s.deps.DB,
		Cases:     s.deps.Cases,
		Tasks:     s.deps.Tasks,
		Sequencer: s.deps.Sequencer,
		Resolver:  s.deps.Resolver,
		Blobs:     s.deps.Blobs,
		Logger:    s.deps.OpLog,
	})
}

// sessionOf is the caller's session, never nil behind the auth middleware
func sessionOf(r *http.Request) *auth.Session {
	return auth.SessionFromContext(r.Context())
}
