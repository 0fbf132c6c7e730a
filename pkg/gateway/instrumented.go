package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/coopportal/coopsearch/pkg/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var gatewayTracer = otel.Tracer("coopsearch/gateway")

// Instrumented records a span and Prometheus metrics for every gateway call
type Instrumented struct {
	next    Gateway
	metrics *observability.Metrics
}

// NewInstrumented wraps next. metrics may be nil, in which case only spans are recorded.
func NewInstrumented(next Gateway, metrics *observability.Metrics) *Instrumented {
	return &Instrumented{next: next, metrics: metrics}
}

// Find implements Gateway
func (g *Instrumented) Find(ctx context.Context, q Query) ([]Record, error) {
	ctx, span := g.start(ctx, "gateway.Find", q)
	defer span.End()

	start := time.Now()
	recs, err := g.next.Find(ctx, q)
	g.observe(span, q.Table, "find", start, err)
	if err == nil {
		span.SetAttributes(attribute.Int("db.rows", len(recs)))
	}
	return recs, err
}

// Count implements Gateway
func (g *Instrumented) Count(ctx context.Context, q Query) (int, error) {
	ctx, span := g.start(ctx, "gateway.Count", q)
	defer span.End()

	start := time.Now()
	n, err := g.next.Count(ctx, q)
	g.observe(span, q.Table, "count", start, err)
	return n, err
}

func (g *Instrumented) start(ctx context.Context, name string, q Query) (context.Context, trace.Span) {
	return gatewayTracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.table", q.Table),
			attribute.Int("db.filters", len(q.Filters)),
			attribute.Int("db.limit", q.Limit),
			attribute.Bool("db.match", q.Match != nil),
		),
	)
}

func (g *Instrumented) observe(span trace.Span, table, op string, start time.Time, err error) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		status = "canceled"
	case errors.Is(err, ErrCircuitOpen):
		status = "rejected"
	default:
		status = "error"
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
	}

	if g.metrics == nil {
		return
	}
	g.metrics.GatewayOperationsTotal.WithLabelValues(table, op, status).Inc()
	g.metrics.GatewayOperationDuration.WithLabelValues(table, op).Observe(time.Since(start).Seconds())
}
