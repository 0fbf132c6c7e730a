package scope

import (
	"context"
	"errors"
	"fmt"

	"github.com/coopportal/coopsearch/pkg/auth"
	"github.com/coopportal/coopsearch/pkg/gateway"
	"github.com/coopportal/coopsearch/pkg/observability"
	"github.com/sirupsen/logrus"
)

// ErrUnresolved is returned when a scope has not been resolved and cannot be started
var ErrUnresolved = errors.New("cooperative scope unresolved")

// Resolver finds the cooperative a caller is scoped to. A nil id with a nil error means
// the caller has no cooperative.
type Resolver interface {
	Resolve(ctx context.Context, ac auth.Context) (*string, error)
}

// ResolverFunc adapts a function to Resolver
type ResolverFunc func(ctx context.Context, ac auth.Context) (*string, error)

// Resolve implements Resolver
func (f ResolverFunc) Resolve(ctx context.Context, ac auth.Context) (*string, error) {
	return f(ctx, ac)
}

// Tables and columns read during resolution
const (
	MembersTable      = "cooperative_members"
	CooperativesTable = "cooperatives"
)

// Source labels how a scope was resolved
const (
	SourceMembership = "membership"
	SourceTenant     = "tenant"
	SourceNone       = "none"
)

// GatewayResolver resolves scopes through the data gateway
type GatewayResolver struct {
	gw      gateway.Gateway
	logger  logrus.FieldLogger
	metrics *observability.Metrics
}

// NewGatewayResolver creates a resolver. metrics may be nil.
func NewGatewayResolver(gw gateway.Gateway, logger logrus.FieldLogger, metrics *observability.Metrics) *GatewayResolver {
	return &GatewayResolver{gw: gw, logger: logger, metrics: metrics}
}

// Resolve looks up the caller's membership, then a cooperative in the caller's tenant.
// Lookup errors are returned rather than treated as "not found".
func (r *GatewayResolver) Resolve(ctx context.Context, ac auth.Context) (*string, error) {
	userID := ac.User()
	if userID == "" {
		return nil, fmt.Errorf("%w: no user id", ErrUnresolved)
	}
	logger := r.logger.WithField("user_id", userID)

	id, err := r.first(ctx, gateway.Query{
		Table:   MembersTable,
		Columns: []string{"cooperative_id"},
		Filters: []gateway.Filter{gateway.Eq("user_id", userID)},
		Limit:   1,
	}, "cooperative_id")
	if err != nil {
		return nil, fmt.Errorf("failed to look up membership: %w", err)
	}
	if id != "" {
		r.record(SourceMembership)
		logger.WithField("cooperative_id", id).Debug("cooperative scope resolved from membership")
		return &id, nil
	}

	if tenant := ac.Tenant(); tenant != "" {
		id, err = r.first(ctx, gateway.Query{
			Table:   CooperativesTable,
			Columns: []string{"id"},
			Filters: []gateway.Filter{gateway.Eq("tenant_id", tenant)},
			Limit:   1,
		}, "id")
		if err != nil {
			return nil, fmt.Errorf("failed to look up tenant cooperative: %w", err)
		}
		if id != "" {
			r.record(SourceTenant)
			logger.WithField("cooperative_id", id).Debug("cooperative scope resolved from tenant")
			return &id, nil
		}
	}

	r.record(SourceNone)
	logger.Info("no cooperative found for cooperative admin")
	return nil, nil
}

func (r *GatewayResolver) first(ctx context.Context, q gateway.Query, column string) (string, error) {
	recs, err := r.gw.Find(ctx, q)
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return "", nil
	}
	return recs[0].String(column), nil
}

func (r *GatewayResolver) record(source string) {
	if r.metrics != nil {
		r.metrics.ScopeResolutionsTotal.WithLabelValues(source).Inc()
	}
}
