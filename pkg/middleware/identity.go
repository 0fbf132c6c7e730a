package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/coopportal/coopsearch/pkg/auth"
	"github.com/coopportal/coopsearch/pkg/contextkeys"
	"github.com/coopportal/coopsearch/pkg/httputil"
)

// Identity headers written by the upstream session provider
const (
	HeaderUserID        = "X-Portal-User-ID"
	HeaderRole          = "X-Portal-Role"
	HeaderTenantID      = "X-Portal-Tenant-ID"
	HeaderCooperativeID = "X-Portal-Cooperative-ID"
)

// ErrMissingIdentity is returned when a request carries no portal role
var ErrMissingIdentity = errors.New("missing portal identity")

// IdentityMiddleware builds an auth.Context from the portal identity headers
type IdentityMiddleware struct {
	optional bool // If true, allow requests without identity headers
}

// NewIdentityMiddleware creates a new identity middleware
func NewIdentityMiddleware(optional bool) *IdentityMiddleware {
	return &IdentityMiddleware{optional: optional}
}

// Handler wraps an HTTP handler with identity extraction. Missing identity is a 401,
// a malformed one a 400.
func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, err := ParseIdentity(r.Header)
		switch {
		case errors.Is(err, ErrMissingIdentity):
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, err.Error())
			return
		case err != nil:
			httputil.WriteBadRequest(w, err.Error())
			return
		}

		ctx := contextkeys.WithAuth(r.Context(), ac)
		if ac.UserID != nil {
			ctx = contextkeys.WithUserID(ctx, *ac.UserID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ParseIdentity reads and validates the identity headers
func ParseIdentity(h http.Header) (auth.Context, error) {
	roleHeader := strings.TrimSpace(h.Get(HeaderRole))
	if roleHeader == "" {
		return auth.Context{}, ErrMissingIdentity
	}

	role, err := auth.ParseRole(roleHeader)
	if err != nil {
		return auth.Context{}, err
	}

	ac := auth.Context{
		Role:          role,
		UserID:        auth.String(strings.TrimSpace(h.Get(HeaderUserID))),
		TenantID:      auth.String(strings.TrimSpace(h.Get(HeaderTenantID))),
		CooperativeID: auth.String(strings.TrimSpace(h.Get(HeaderCooperativeID))),
	}
	if err := ac.Validate(); err != nil {
		return auth.Context{}, err
	}
	return ac, nil
}

// GetAuthContext extracts the caller's auth context from the request
func GetAuthContext(r *http.Request) (auth.Context, bool) {
	ac, ok := r.Context().Value(contextkeys.AuthKey).(auth.Context)
	return ac, ok
}
