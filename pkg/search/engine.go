package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/coopportal/coopsearch/pkg/async"
	"github.com/coopportal/coopsearch/pkg/auth"
	"github.com/coopportal/coopsearch/pkg/gateway"
	"github.com/coopportal/coopsearch/pkg/observability"
	"github.com/coopportal/coopsearch/pkg/rbac"
	"github.com/coopportal/coopsearch/pkg/scope"
)

var searchTracer = otel.Tracer("coopsearch/search")

// Config tunes the engine
type Config struct {
	MinQueryLength int
	MaxPerCategory int
	AdapterTimeout time.Duration // 0 leaves timeouts to the gateway
	Concurrency    int           // 0 runs every adapter at once
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		MinQueryLength: 2,
		MaxPerCategory: 5,
	}
}

// PolicySource supplies the current visibility policy. *rbac.Store satisfies it.
type PolicySource interface {
	Policy() *rbac.Policy
}

// Searcher runs one search
type Searcher interface {
	Search(ctx context.Context, req Request) (*Results, error)
}

// Option configures an Engine
type Option func(*Engine)

// WithAdapter replaces the adapter for its category
func WithAdapter(a Adapter) Option {
	return func(e *Engine) {
		e.adapters[a.Category] = a
	}
}

// Engine runs federated searches
type Engine struct {
	gw       gateway.Gateway
	policies PolicySource
	resolver scope.Resolver
	adapters map[rbac.Category]Adapter
	cfg      Config
	logger   logrus.FieldLogger
	metrics  *observability.Metrics
}

// NewEngine creates a search engine. A nil policies uses the default policy.
func NewEngine(gw gateway.Gateway, policies PolicySource, resolver scope.Resolver, cfg Config, logger logrus.FieldLogger, metrics *observability.Metrics, opts ...Option) *Engine {
	defaults := DefaultConfig()
	if cfg.MinQueryLength <= 0 {
		cfg.MinQueryLength = defaults.MinQueryLength
	}
	if cfg.MaxPerCategory <= 0 {
		cfg.MaxPerCategory = defaults.MaxPerCategory
	}
	if policies == nil {
		policies = rbac.NewStore(nil)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	e := &Engine{
		gw:       gw,
		policies: policies,
		resolver: resolver,
		adapters: DefaultAdapters(),
		cfg:      cfg,
		logger:   logger.WithField("component", "search"),
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Policy returns the policy currently in force
func (e *Engine) Policy() *rbac.Policy {
	return e.policies.Policy()
}

type outcome struct {
	results  []Result
	err      error
	executed bool
}

// Search runs the query against every category the caller may see.
//
// A failing adapter leaves its category empty and records the error in
// Results.Failures. When every executed adapter fails the partial Results are returned
// together with an *AggregateError. A COOPERATIVE_ADMIN whose cooperative cannot be
// resolved gets Results with CooperativeNotFound set and ErrCooperativeNotFound.
func (e *Engine) Search(ctx context.Context, req Request) (*Results, error) {
	start := time.Now()
	query := strings.TrimSpace(req.Query)
	role := string(req.Auth.Role)

	ctx, span := searchTracer.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("role", role),
			attribute.Int("query_length", utf8.RuneCountInString(query)),
		),
	)
	defer span.End()

	results := newResults(query)

	if utf8.RuneCountInString(query) < e.cfg.MinQueryLength {
		if e.metrics != nil {
			e.metrics.ShortQueriesTotal.Inc()
		}
		e.observe(role, "short", start, 0)
		span.SetStatus(codes.Ok, "query too short")
		return results, nil
	}

	if err := e.validate(req); err != nil {
		e.observe(role, "invalid", start, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return nil, err
	}

	limit := req.MaxPerCategory
	if limit <= 0 {
		limit = e.cfg.MaxPerCategory
	}

	logger := observability.WithTraceContext(ctx, e.logger).WithField("role", role)
	policy := e.policies.Policy()

	ac, err := e.resolveScope(ctx, req, policy)
	switch {
	case errors.Is(err, ErrCooperativeNotFound):
		results.CooperativeNotFound = true
		logger.WithField("user_id", req.Auth.User()).Info("No cooperative found for cooperative admin")
		e.observe(role, "cooperative_not_found", start, 0)
		span.SetAttributes(attribute.Bool("cooperative_not_found", true))
		span.SetStatus(codes.Ok, "cooperative not found")
		return results, err
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			e.observe(role, "canceled", start, 0)
			return nil, ctxErr
		}
		logger.WithError(err).Error("Scope resolution failed")
		e.observe(role, "failed", start, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, "scope resolution failed")
		return nil, &AggregateError{Cause: fmt.Errorf("failed to resolve cooperative scope: %w", err)}
	}

	categories := rbac.Categories()
	outcomes := make([]outcome, len(categories))

	var g errgroup.Group
	if e.cfg.Concurrency > 0 {
		g.SetLimit(e.cfg.Concurrency)
	}
	for i, c := range categories {
		d := policy.Decide(c, ac)
		if !d.Visible {
			if e.metrics != nil {
				e.metrics.CategoriesSuppressed.WithLabelValues(string(c), role).Inc()
			}
			logger.WithFields(logrus.Fields{"category": c, "reason": d.Reason}).Debug("Category suppressed")
			continue
		}
		adapter, ok := e.adapters[c]
		if !ok {
			outcomes[i] = outcome{executed: true, err: &CategoryError{Category: c, Err: errors.New("no adapter registered")}}
			continue
		}

		outcomes[i].executed = true
		g.Go(func() error {
			res, err := e.runAdapter(ctx, adapter, d, query, limit)
			outcomes[i].results = res
			outcomes[i].err = err
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		e.observe(role, "canceled", start, 0)
		span.SetStatus(codes.Error, "canceled")
		return nil, err
	}

	executed := 0
	failures := make(map[rbac.Category]error)
	for i, c := range categories {
		o := outcomes[i]
		if !o.executed {
			continue
		}
		executed++
		if o.err != nil {
			failures[c] = o.err
			logger.WithFields(logrus.Fields{"category": c}).WithError(o.err).Warn("Category search failed")
			continue
		}
		results.Categories.Set(c, o.results)
	}
	results.TotalCount = results.Categories.Total()

	if len(failures) > 0 {
		results.Failures = make(map[rbac.Category]string, len(failures))
		for c, err := range failures {
			results.Failures[c] = err.Error()
		}
	}

	span.SetAttributes(
		attribute.Int("categories_executed", executed),
		attribute.Int("categories_failed", len(failures)),
		attribute.Int("total_count", results.TotalCount),
	)

	if executed > 0 && len(failures) == executed {
		aggErr := &AggregateError{Failures: failures}
		logger.WithError(aggErr).Error("All categories failed")
		e.observe(role, "failed", start, 0)
		span.RecordError(aggErr)
		span.SetStatus(codes.Error, "all categories failed")
		return results, aggErr
	}

	outcomeLabel := "ok"
	if len(failures) > 0 {
		outcomeLabel = "partial"
	}
	e.observe(role, outcomeLabel, start, results.TotalCount)
	logger.WithFields(logrus.Fields{
		"total_count": results.TotalCount,
		"failed":      len(failures),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Search completed")
	span.SetStatus(codes.Ok, "search completed")
	return results, nil
}

func (e *Engine) validate(req Request) error {
	if err := auth.Validator().Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := req.Auth.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// resolveScope fills in the cooperative of a COOPERATIVE_ADMIN that has none
func (e *Engine) resolveScope(ctx context.Context, req Request, policy *rbac.Policy) (auth.Context, error) {
	ac := req.Auth
	if ac.Role != auth.RoleCooperativeAdmin || ac.CooperativeID != nil || !policy.RequiresCooperative(ac.Role) {
		return ac, nil
	}
	if e.resolver == nil {
		return ac, ErrCooperativeNotFound
	}

	tracker := req.Scope
	if tracker == nil {
		tracker = scope.NewTracker(e.resolver)
	}

	ctx, span := searchTracer.Start(ctx, "ResolveScope")
	defer span.End()

	id, err := tracker.Resolve(ctx, ac)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolution failed")
		return ac, err
	}
	if id == nil {
		return ac, ErrCooperativeNotFound
	}
	span.SetAttributes(attribute.String("cooperative_id", *id))
	return ac.WithCooperative(*id), nil
}

// runAdapter queries one category. Panics and errors are returned as *CategoryError.
func (e *Engine) runAdapter(ctx context.Context, a Adapter, d rbac.Decision, query string, limit int) (results []Result, err error) {
	start := time.Now()
	ctx, span := searchTracer.Start(ctx, "Adapter",
		trace.WithAttributes(
			attribute.String("category", string(a.Category)),
			attribute.String("scope", string(d.Scope)),
		),
	)
	defer span.End()

	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			if errors.Is(err, context.Canceled) {
				status = "canceled"
			}
			err = &CategoryError{Category: a.Category, Err: err}
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		} else {
			span.SetAttributes(attribute.Int("result_count", len(results)))
		}
		if e.metrics != nil {
			e.metrics.AdapterQueriesTotal.WithLabelValues(string(a.Category), status).Inc()
			e.metrics.AdapterDuration.WithLabelValues(string(a.Category)).Observe(time.Since(start).Seconds())
		}
	}()

	// Run recovers a panicking projection into an error
	err = async.Run(ctx, e.cfg.AdapterTimeout, func(ctx context.Context) error {
		q, err := a.Query(query, d, limit)
		if err != nil {
			return err
		}
		records, err := e.gw.Find(ctx, q)
		if err != nil {
			return err
		}

		if len(records) > limit {
			records = records[:limit]
		}
		results = make([]Result, 0, len(records))
		for _, r := range records {
			results = append(results, a.Project(r))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) observe(role, outcome string, start time.Time, total int) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchesTotal.WithLabelValues(role, outcome).Inc()
	e.metrics.SearchDuration.WithLabelValues(role).Observe(time.Since(start).Seconds())
	if outcome == "ok" || outcome == "partial" {
		e.metrics.SearchResults.WithLabelValues(role).Observe(float64(total))
	}
}
