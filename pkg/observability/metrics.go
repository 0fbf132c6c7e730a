package observability

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Search metrics
	SearchesTotal         *prometheus.CounterVec
	SearchDuration        *prometheus.HistogramVec
	SearchResults         *prometheus.HistogramVec
	AdapterQueriesTotal   *prometheus.CounterVec
	AdapterDuration       *prometheus.HistogramVec
	CategoriesSuppressed  *prometheus.CounterVec
	ShortQueriesTotal     prometheus.Counter
	DebouncedKeystrokes   prometheus.Counter
	StaleResultsDiscarded prometheus.Counter
	LiveSessionsActive    prometheus.Gauge

	// Gateway metrics
	GatewayOperationsTotal   *prometheus.CounterVec
	GatewayOperationDuration *prometheus.HistogramVec
	BreakerState             *prometheus.GaugeVec

	// Scope metrics
	ScopeResolutionsTotal *prometheus.CounterVec
	ScopeCacheHitsTotal   *prometheus.CounterVec
	ScopeCacheMissesTotal *prometheus.CounterVec

	// Policy metrics
	PolicyReloadsTotal *prometheus.CounterVec

	// Rate limiting
	RateLimitDecisions *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coopsearch_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coopsearch_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coopsearch_searches_total",
				Help: "Total number of federated searches by role and outcome",
			},
			[]string{"role", "outcome"},
		),
		SearchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coopsearch_search_duration_seconds",
				Help:    "Federated search duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"role"},
		),
		SearchResults: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coopsearch_search_results",
				Help:    "Number of results returned per search",
				Buckets: []float64{0, 1, 5, 10, 20, 40},
			},
			[]string{"role"},
		),
		AdapterQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coopsearch_adapter_queries_total",
				Help: "Total number of per-category adapter queries by status",
			},
			[]string{"category", "status"},
		),
		AdapterDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coopsearch_adapter_duration_seconds",
				Help:    "Per-category adapter duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"category"},
		),
		CategoriesSuppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coopsearch_categories_suppressed_total",
				Help: "Categories skipped because the caller may not see them",
			},
			[]string{"category", "role"},
		),
		ShortQueriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "coopsearch_short_queries_total",
				Help: "Searches short-circuited because the query was too short",
			},
		),
		DebouncedKeystrokes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "coopsearch_debounced_keystrokes_total",
				Help: "Pending searches replaced by a newer keystroke before firing",
			},
		),
		StaleResultsDiscarded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "coopsearch_stale_results_discarded_total",
				Help: "Search results dropped because a newer search had started",
			},
		),
		LiveSessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "coopsearch_live_sessions_active",
				Help: "Open live search sessions",
			},
		),

		GatewayOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coopsearch_gateway_operations_total",
				Help: "Total number of data gateway operations",
			},
			[]string{"table", "operation", "status"},
		),
		GatewayOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coopsearch_gateway_operation_duration_seconds",
				Help:    "Data gateway operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"table", "operation"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coopsearch_gateway_breaker_state",
				Help: "Circuit breaker state per table (0 closed, 1 half-open, 2 open)",
			},
			[]string{"table"},
		),

		ScopeResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coopsearch_scope_resolutions_total",
				Help: "Cooperative scope resolutions by source",
			},
			[]string{"source"},
		),
		ScopeCacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coopsearch_scope_cache_hits_total",
				Help: "Scope cache hits by layer",
			},
			[]string{"layer"},
		),
		ScopeCacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coopsearch_scope_cache_misses_total",
				Help: "Scope cache misses by layer",
			},
			[]string{"layer"},
		),

		PolicyReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coopsearch_policy_reloads_total",
				Help: "Visibility policy reloads by status",
			},
			[]string{"status"},
		),

		RateLimitDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coopsearch_ratelimit_decisions_total",
				Help: "Rate limit decisions by outcome (allowed, limited, error)",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SearchesTotal,
		m.SearchDuration,
		m.SearchResults,
		m.AdapterQueriesTotal,
		m.AdapterDuration,
		m.CategoriesSuppressed,
		m.ShortQueriesTotal,
		m.DebouncedKeystrokes,
		m.StaleResultsDiscarded,
		m.LiveSessionsActive,
		m.GatewayOperationsTotal,
		m.GatewayOperationDuration,
		m.BreakerState,
		m.ScopeResolutionsTotal,
		m.ScopeCacheHitsTotal,
		m.ScopeCacheMissesTotal,
		m.PolicyReloadsTotal,
		m.RateLimitDecisions,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack passes websocket upgrades through to the underlying connection
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	conn, buf, err := h.Hijack()
	if err == nil {
		rw.statusCode = http.StatusSwitchingProtocols
	}
	return conn, buf, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics. Requests are
// labelled with the mux route template so path parameters do not explode cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
