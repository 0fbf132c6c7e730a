// Package scope resolves which cooperative a COOPERATIVE_ADMIN caller is scoped to.
//
// A cooperative admin's cooperative id is not part of the session; it is looked up:
// first through the caller's membership record, then through a cooperative registered
// under the caller's tenant. When neither exists the scope resolves to nil and the
// caller sees a "cooperative not found" state instead of search results.
//
// A Tracker holds the resolution state for one search session:
//
//	Unresolved -> Resolving -> Resolved(id) | Resolved(nil)
//
// Resolved is terminal for the tracker's lifetime. A failed lookup returns the tracker
// to Unresolved so the next search retries. Callers block in Wait while Resolving,
// which keeps scoped queries from running with an undefined scope.
//
// CachedResolver adds an in-process LRU and an optional shared redis layer in front of
// the lookups.
package scope
