// Package middleware provides the portal-facing HTTP middleware: caller identity
// and rate limiting.
//
// # Identity
//
// The portal's session layer authenticates users and forwards who they are in
// trusted headers. IdentityMiddleware turns them into an auth.Context:
//
//	X-Portal-Role:            required, one of the seven portal roles
//	X-Portal-User-ID:         optional
//	X-Portal-Tenant-ID:       optional
//	X-Portal-Cooperative-ID:  optional
//
// A request without a role is rejected with 401, a malformed one with 400.
// Handlers read the result with GetAuthContext.
//
// # Rate Limiting
//
// RateLimitMiddleware accepts any Limiter. Two are provided:
//
//	limiter := middleware.NewRateLimiter(cfg, nil)                       // per instance
//	limiter := middleware.NewDistributedRateLimiter(rdb, cfg, "")         // shared via redis
//	router.Use(middleware.NewRateLimitMiddleware(limiter, logger, metrics).Handler)
//
// Requests are keyed by portal user id, or by client address when the session
// layer sent none. A limiter error is logged and the request is let through.
package middleware
