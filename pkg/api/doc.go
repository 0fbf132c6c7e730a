// Package api serves the federated search over HTTP and websockets.
//
// # Endpoints
//
//	GET /api/v1/search?q=&limit=      one search, grouped by category with highlight segments
//	GET /api/v1/search/categories     categories the caller's role may search
//	GET /api/v1/search/live?limit=    websocket typeahead backed by a debounced search.Session
//	GET /healthz, /readyz, /metrics   when a health checker / gatherer is configured
//
// Every /api/v1 route requires the portal identity headers (see pkg/middleware) and
// is rate limited when a limiter is configured.
//
// # Errors
//
//	400  malformed identity, limit out of range, invalid request
//	401  no identity
//	404  {"error":"cooperative not found","code":"cooperative_not_found"}
//	429  rate limited
//	502  every category failed; details name each failure
//	500  anything else
//
// A search where only some categories failed is still a 200; the failed categories
// are listed under "failures".
//
// # Live search protocol
//
// Client frames are {"query": "..."}. Server frames are LiveMessage values: a
// "snapshot" with loading=true when a search starts, then a "snapshot" with the
// results, each tagged with the search generation. Malformed client frames get an
// "error" message and are otherwise ignored.
package api
