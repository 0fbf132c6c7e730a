// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteBadRequest(w, "limit must be between 1 and 50")
//	httputil.WriteNotFound(w, "cooperative not found", "cooperative_not_found")
//	httputil.WriteBadGateway(w, "search failed")
//
// Every error body has the shape {"error": "...", "code": "..."}.
//
// # Request Parsing
//
//	limit, ok := httputil.ParseQueryIntOrError(w, r, "limit", 5, 1, 50)
//	if !ok {
//		return // 400 already written
//	}
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.CORSMiddleware([]string{"https://portal.example.org"}),
//	)(router)
//
// LoggingMiddleware stores a request-scoped logrus entry in the context; handlers
// retrieve it with observability.FromContext.
//
// # Related Packages
//
//   - pkg/middleware: portal identity and rate limiting
package httputil
