package rbac

import (
	"fmt"

	"github.com/coopportal/coopsearch/pkg/auth"
)

// Category is one of the fixed entity types a search result can belong to
type Category string

const (
	CategoryCooperative    Category = "cooperative"
	CategoryApplication    Category = "application"
	CategoryUser           Category = "user"
	CategoryComplaint      Category = "complaint"
	CategoryAmendment      Category = "amendment"
	CategoryAuditor        Category = "auditor"
	CategoryTrainer        Category = "trainer"
	CategoryOfficialSearch Category = "official_search"
)

// Categories returns all categories in display order
func Categories() []Category {
	return []Category{
		CategoryCooperative,
		CategoryApplication,
		CategoryUser,
		CategoryComplaint,
		CategoryAmendment,
		CategoryAuditor,
		CategoryTrainer,
		CategoryOfficialSearch,
	}
}

// ParseCategory parses a category name
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category: %q", s)
}

// ScopeKind describes how a visible category is restricted for a role
type ScopeKind string

const (
	ScopeNone               ScopeKind = "none"
	ScopeTenant             ScopeKind = "tenant"
	ScopeTenantCooperatives ScopeKind = "tenant_cooperatives"
	ScopeCooperative        ScopeKind = "cooperative"
	ScopeOwnUser            ScopeKind = "own_user"
)

// ParseScopeKind parses a scope kind name
func ParseScopeKind(s string) (ScopeKind, error) {
	switch ScopeKind(s) {
	case ScopeNone, ScopeTenant, ScopeTenantCooperatives, ScopeCooperative, ScopeOwnUser:
		return ScopeKind(s), nil
	case "":
		return ScopeNone, nil
	}
	return "", fmt.Errorf("unknown scope kind: %q", s)
}

// Rule is the visibility rule for one category
type Rule struct {
	Hidden []auth.Role             `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Scopes map[auth.Role]ScopeKind `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

// HiddenFor reports whether the role may not see the category at all
func (r Rule) HiddenFor(role auth.Role) bool {
	for _, h := range r.Hidden {
		if h == role {
			return true
		}
	}
	return false
}

// ScopeFor returns the scope kind applied to the role
func (r Rule) ScopeFor(role auth.Role) ScopeKind {
	if kind, ok := r.Scopes[role]; ok {
		return kind
	}
	return ScopeNone
}

// Decision is the outcome of evaluating the policy for one category
type Decision struct {
	Category Category  `json:"category"`
	Visible  bool      `json:"visible"`
	Scope    ScopeKind `json:"scope"`
	Value    string    `json:"value,omitempty"` // tenant, cooperative or user id the scope binds to
	Reason   string    `json:"reason,omitempty"`
}
