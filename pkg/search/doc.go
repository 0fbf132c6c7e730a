// Package search implements the role-scoped federated search across the portal's
// entity tables.
//
// # Overview
//
// A search fans one query out to eight per-entity adapters (cooperatives, applications,
// users, complaints, amendments, auditors, trainers and official searches), each of
// which applies the visibility decision from the rbac policy before it touches the
// data gateway. Results are joined into a fixed-shape CategorizedResults record with
// at most MaxPerCategory entries per category.
//
// # Failure handling
//
// Adapter failures are contained: the category degrades to empty, the error is kept in
// Results.Failures and the search continues. Only when every adapter that ran failed
// does Search return an AggregateError.
//
// A COOPERATIVE_ADMIN without a cooperative id has its scope resolved through a
// scope.Tracker before any adapter runs. When no cooperative can be found Search
// returns ErrCooperativeNotFound and no entity query is issued.
//
// # Usage
//
//	engine := search.NewEngine(gw, policies, resolver, search.DefaultConfig(), logger, metrics)
//	results, err := engine.Search(ctx, search.Request{
//		Query: "Nyeri Dairy",
//		Auth:  auth.Context{Role: auth.RoleCountyAdmin, TenantID: auth.String("county-42")},
//	})
//
// # Live search
//
// Session wraps an engine for interactive callers. Type restarts a quiet-period timer,
// only the latest query fires, and responses from superseded searches are discarded:
//
//	session := engine.NewSession(ac, search.SessionConfig{})
//	defer session.Close()
//	session.Type("Nye")
//	for snap := range session.Updates() {
//		render(snap)
//	}
package search
