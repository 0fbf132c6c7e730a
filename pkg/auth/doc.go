// Package auth defines portal roles and the authorization context attached to every search.
//
// # Overview
//
// Authentication itself is delegated to the portal's session provider. By the time a request
// reaches this service the provider has already established who the caller is; this package
// only models that outcome so the search engine can scope its queries.
//
// # Roles
//
//	RoleSuperAdmin       - national administrators, unscoped
//	RoleCountyAdmin      - county (tenant) administrators
//	RoleCountyOfficer    - county cooperative officers, same visibility as county admins
//	RoleCooperativeAdmin - officials of a single cooperative
//	RoleAuditor          - certified auditors
//	RoleTrainer          - accredited trainers
//	RoleCitizen          - members of the public
//
// # Authorization Context
//
//	ctx := auth.Context{
//		Role:     auth.RoleCountyAdmin,
//		TenantID: auth.String("county-42"),
//		UserID:   auth.String("8c1f..."),
//	}
//	if err := ctx.Validate(); err != nil {
//		return err // errors.Is(err, auth.ErrInvalidContext)
//	}
//
// A Context is a value type and is never mutated once a search starts. WithCooperative
// returns a copy carrying a resolved cooperative scope.
//
// # Related Packages
//
//   - pkg/rbac: what each role may see
//   - pkg/scope: cooperative scope resolution for cooperative admins
//   - pkg/middleware: builds a Context from trusted identity headers
package auth
