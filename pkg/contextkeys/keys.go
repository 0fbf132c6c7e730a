// Package contextkeys defines the request context keys shared between the HTTP
// middleware and the packages that read them.
//
//	ctx = contextkeys.WithAuth(ctx, authCtx)
//	authCtx, ok := ctx.Value(contextkeys.AuthKey).(auth.Context)
//
// Values are stored untyped so this package stays free of domain imports; readers
// assert the documented type.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey holds the caller's auth.Context.
	// Set by middleware.IdentityMiddleware.
	AuthKey Key = "auth_context"

	// RequestIDKey holds the request id string.
	// Set by httputil.RequestIDMiddleware.
	RequestIDKey Key = "request_id"

	// UserIDKey holds the caller's user id string, when the portal supplied one.
	// Set by middleware.IdentityMiddleware.
	UserIDKey Key = "user_id"

	// LoggerKey holds the request-scoped logrus.FieldLogger.
	// Set by httputil.LoggingMiddleware.
	LoggerKey Key = "logger"
)

// WithAuth adds the authorization context to the context
func WithAuth(ctx context.Context, authCtx interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, authCtx)
}

// WithRequestID adds the request id to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds the user id to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID returns the request id, or "" when none was set
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// GetUserID returns the user id, or "" when none was set
func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(UserIDKey).(string)
	return id
}
