package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Role represents a portal role
type Role string

const (
	RoleSuperAdmin       Role = "SUPER_ADMIN"
	RoleCountyAdmin      Role = "COUNTY_ADMIN"
	RoleCountyOfficer    Role = "COUNTY_OFFICER"
	RoleCooperativeAdmin Role = "COOPERATIVE_ADMIN"
	RoleAuditor          Role = "AUDITOR"
	RoleTrainer          Role = "TRAINER"
	RoleCitizen          Role = "CITIZEN"
)

var (
	// ErrInvalidRole is returned when a role string does not name a portal role
	ErrInvalidRole = errors.New("invalid role")

	// ErrInvalidContext is returned when an authorization context is incomplete for its role
	ErrInvalidContext = errors.New("invalid authorization context")
)

// AllRoles returns every role in declaration order
func AllRoles() []Role {
	return []Role{
		RoleSuperAdmin,
		RoleCountyAdmin,
		RoleCountyOfficer,
		RoleCooperativeAdmin,
		RoleAuditor,
		RoleTrainer,
		RoleCitizen,
	}
}

// ParseRole parses a role name. Case and separators ("-", "_", " ") are ignored,
// so "county-admin", "County Admin" and "COUNTY_ADMIN" are equivalent.
func ParseRole(s string) (Role, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	for _, r := range AllRoles() {
		if string(r) == normalized {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	for _, known := range AllRoles() {
		if r == known {
			return true
		}
	}
	return false
}

// IsCountyLevel reports whether the role is scoped to a single tenant
func (r Role) IsCountyLevel() bool {
	return r == RoleCountyAdmin || r == RoleCountyOfficer
}

// Context is the caller's authorization context for one search
type Context struct {
	Role          Role    `json:"role" validate:"required,oneof=SUPER_ADMIN COUNTY_ADMIN COUNTY_OFFICER COOPERATIVE_ADMIN AUDITOR TRAINER CITIZEN"`
	TenantID      *string `json:"tenant_id,omitempty" validate:"omitnil,min=1,max=128"`
	CooperativeID *string `json:"cooperative_id,omitempty" validate:"omitnil,min=1,max=128"`
	UserID        *string `json:"user_id,omitempty" validate:"omitnil,min=1,max=128"`
}

// Tenant returns the tenant id or "" when absent
func (c Context) Tenant() string {
	return deref(c.TenantID)
}

// Cooperative returns the cooperative id or "" when absent
func (c Context) Cooperative() string {
	return deref(c.CooperativeID)
}

// User returns the user id or "" when absent
func (c Context) User() string {
	return deref(c.UserID)
}

// WithCooperative returns a copy of the context scoped to the given cooperative
func (c Context) WithCooperative(cooperativeID string) Context {
	c.CooperativeID = String(cooperativeID)
	return c
}

// String returns a pointer to s, or nil when s is empty
func String(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
