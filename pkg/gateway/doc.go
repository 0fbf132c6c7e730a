// Package gateway defines the Data Access Gateway: the read-only query contract the
// search engine uses to reach the portal's relational store.
//
// A Query names a table, the columns to project, an optional case-insensitive substring
// Match over a set of fields, equality / membership Filters and a row Limit. Count runs
// the same predicates in count-only mode.
//
//	recs, err := gw.Find(ctx, gateway.Query{
//		Table:   "cooperatives",
//		Columns: []string{"id", "name", "registration_number"},
//		Match:   &gateway.Match{Term: "nyeri", Fields: []string{"name", "registration_number"}},
//		Filters: []gateway.Filter{gateway.Eq("tenant_id", "county-42")},
//		Limit:   5,
//	})
//
// Implementations live in sub-packages (sqlstore for database/sql, gatewaytest for an
// in-memory fake). NewBreaker and NewInstrumented wrap any Gateway with per-table circuit
// breaking and metrics/tracing.
package gateway
