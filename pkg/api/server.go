package api

import (
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/coopportal/coopsearch/pkg/auth"
	"github.com/coopportal/coopsearch/pkg/httputil"
	"github.com/coopportal/coopsearch/pkg/middleware"
	"github.com/coopportal/coopsearch/pkg/observability"
	"github.com/coopportal/coopsearch/pkg/rbac"
	"github.com/coopportal/coopsearch/pkg/search"
)

// Engine is the search surface served over HTTP. *search.Engine implements it.
type Engine interface {
	search.Searcher
	Config() search.Config
	Policy() *rbac.Policy
	NewSession(ac auth.Context, cfg search.SessionConfig) *search.Session
}

// Options configures a Server. Only the engine is required.
type Options struct {
	Logger  logrus.FieldLogger
	Metrics *observability.Metrics

	// Gatherer backs /metrics; nil leaves the route out
	Gatherer prometheus.Gatherer
	// Health backs /healthz and /readyz; nil leaves the routes out
	Health *observability.HealthChecker
	// Limiter rate limits /api/v1; nil disables rate limiting
	Limiter middleware.Limiter
	// TrustProxy keys anonymous rate limits on proxy headers instead of the peer address
	TrustProxy bool

	AllowedOrigins []string

	// Live search
	Debounce        time.Duration
	LiveIdleTimeout time.Duration
	Clock           clock.Clock
}

// Server represents our API server
type Server struct {
	engine   Engine
	router   *mux.Router
	opts     Options
	logger   logrus.FieldLogger
	upgrader websocket.Upgrader
}

// NewServer creates a new API server
func NewServer(engine Engine, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = search.DefaultDebounce
	}
	if opts.LiveIdleTimeout <= 0 {
		opts.LiveIdleTimeout = defaultLiveIdleTimeout
	}

	s := &Server{
		engine: engine,
		router: mux.NewRouter(),
		opts:   opts,
		logger: opts.Logger.WithField("component", "api"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	if s.opts.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.opts.Metrics))
	}

	RegisterHealthRoutes(s.router, s.opts.Health, s.opts.Gatherer)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.Use(middleware.NewIdentityMiddleware(false).Handler)
	if s.opts.Limiter != nil {
		v1.Use(middleware.NewRateLimitMiddleware(s.opts.Limiter, s.opts.Logger, s.opts.Metrics).WithTrustedProxy(s.opts.TrustProxy).Handler)
	}

	v1.HandleFunc("/search", s.search).Methods("GET")
	v1.HandleFunc("/search/categories", s.listCategories).Methods("GET")
	v1.HandleFunc("/search/live", s.liveSearch).Methods("GET")
}

// RegisterHealthRoutes adds /healthz, /readyz and /metrics to a router. Either
// dependency may be nil.
func RegisterHealthRoutes(router *mux.Router, health *observability.HealthChecker, gatherer prometheus.Gatherer) {
	if health != nil {
		router.HandleFunc("/healthz", health.Liveness).Methods("GET")
		router.HandleFunc("/readyz", health.Readiness).Methods("GET")
	}
	if gatherer != nil {
		router.Handle("/metrics", observability.MetricsHandler(gatherer)).Methods("GET")
	}
}

// Handler returns the server wrapped in the request middleware chain
func (s *Server) Handler() http.Handler {
	return httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.opts.Logger),
		httputil.RecoveryMiddleware(s.opts.Logger),
		httputil.CORSMiddleware(s.opts.AllowedOrigins),
	)(s.router)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router so callers can add routes
func (s *Server) Router() *mux.Router {
	return s.router
}

// checkOrigin allows same-origin websocket clients and the configured origins
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}
