// Package rbac decides which search categories a portal role may see and how each
// category is scoped for that role.
//
// # Overview
//
// The portal's authorization rules for search used to live as boolean checks scattered
// across each query. Here they are one matrix keyed by (role, category), which keeps the
// policy auditable and testable without a database.
//
// # Categories
//
//	CategoryCooperative     - registered cooperatives
//	CategoryApplication     - registration applications
//	CategoryUser            - portal user profiles
//	CategoryComplaint       - complaints lodged against cooperatives
//	CategoryAmendment       - by-law amendment requests
//	CategoryAuditor         - public auditor directory
//	CategoryTrainer         - public trainer directory
//	CategoryOfficialSearch  - official search requests
//
// # Scopes
//
// A visible category is further restricted by a scope kind:
//
//	ScopeNone               - no restriction
//	ScopeTenant             - record.tenant_id = caller tenant
//	ScopeTenantCooperatives - record.cooperative_id belongs to a cooperative of the caller's tenant
//	ScopeCooperative        - record.cooperative_id (or cooperatives.id) = caller cooperative
//	ScopeOwnUser            - record owner = caller user id
//
// A scope that needs a value the caller does not have hides the category. Falling back to
// an unscoped query is never allowed.
//
// # Usage Example
//
//	policy := rbac.DefaultPolicy()
//	d := policy.Decide(rbac.CategoryComplaint, authCtx)
//	if !d.Visible {
//		return nil // d.Reason says why
//	}
//	// apply d.Scope with d.Value
//
// Policies can be loaded from YAML and hot reloaded:
//
//	store := rbac.NewStore(rbac.DefaultPolicy())
//	go store.Watch(ctx, "/etc/coopsearch/policy.yaml", logger)
//
// # Related Packages
//
//   - pkg/auth: roles and authorization context
//   - pkg/search: applies decisions to per-category queries
package rbac
