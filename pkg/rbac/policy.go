package rbac

import (
	"fmt"

	"github.com/coopportal/coopsearch/pkg/auth"
)

// Policy maps every category to its visibility rule
type Policy struct {
	rules map[Category]Rule
}

// NewPolicy creates a policy from explicit rules. Categories without a rule are hidden from everyone.
func NewPolicy(rules map[Category]Rule) *Policy {
	p := &Policy{rules: make(map[Category]Rule, len(rules))}
	for c, r := range rules {
		p.rules[c] = cloneRule(r)
	}
	return p
}

// DefaultPolicy returns the portal's built-in search visibility rules
func DefaultPolicy() *Policy {
	county := func(kind ScopeKind) map[auth.Role]ScopeKind {
		return map[auth.Role]ScopeKind{
			auth.RoleCountyAdmin:   kind,
			auth.RoleCountyOfficer: kind,
		}
	}

	cooperatives := county(ScopeTenant)
	cooperatives[auth.RoleCooperativeAdmin] = ScopeCooperative

	applications := county(ScopeTenant)
	applications[auth.RoleCooperativeAdmin] = ScopeCooperative

	complaints := county(ScopeTenantCooperatives)
	complaints[auth.RoleCooperativeAdmin] = ScopeCooperative

	amendments := county(ScopeTenantCooperatives)
	amendments[auth.RoleCooperativeAdmin] = ScopeCooperative

	return NewPolicy(map[Category]Rule{
		CategoryCooperative: {
			Scopes: cooperatives,
		},
		CategoryApplication: {
			Hidden: []auth.Role{auth.RoleCitizen, auth.RoleAuditor, auth.RoleTrainer},
			Scopes: applications,
		},
		CategoryUser: {
			Hidden: []auth.Role{auth.RoleCitizen, auth.RoleCooperativeAdmin, auth.RoleAuditor, auth.RoleTrainer},
			Scopes: county(ScopeTenant),
		},
		CategoryComplaint: {
			Hidden: []auth.Role{auth.RoleCitizen, auth.RoleAuditor, auth.RoleTrainer},
			Scopes: complaints,
		},
		CategoryAmendment: {
			Hidden: []auth.Role{auth.RoleCitizen, auth.RoleAuditor, auth.RoleTrainer},
			Scopes: amendments,
		},
		CategoryAuditor: {},
		CategoryTrainer: {},
		CategoryOfficialSearch: {
			Hidden: []auth.Role{auth.RoleCooperativeAdmin},
			Scopes: map[auth.Role]ScopeKind{
				auth.RoleCitizen: ScopeOwnUser,
			},
		},
	})
}

// Rule returns the rule for a category
func (p *Policy) Rule(c Category) (Rule, bool) {
	r, ok := p.rules[c]
	if !ok {
		return Rule{}, false
	}
	return cloneRule(r), true
}

// Decide evaluates whether the caller may see a category and how it is scoped
func (p *Policy) Decide(c Category, ctx auth.Context) Decision {
	d := Decision{Category: c, Scope: ScopeNone}

	rule, ok := p.rules[c]
	if !ok {
		d.Reason = "no rule for category"
		return d
	}
	if rule.HiddenFor(ctx.Role) {
		d.Reason = fmt.Sprintf("hidden for role %s", ctx.Role)
		return d
	}

	d.Scope = rule.ScopeFor(ctx.Role)
	switch d.Scope {
	case ScopeNone:
	case ScopeTenant, ScopeTenantCooperatives:
		d.Value = ctx.Tenant()
	case ScopeCooperative:
		d.Value = ctx.Cooperative()
	case ScopeOwnUser:
		d.Value = ctx.User()
	default:
		d.Reason = fmt.Sprintf("unsupported scope %s", d.Scope)
		return d
	}

	if d.Scope != ScopeNone && d.Value == "" {
		d.Reason = fmt.Sprintf("missing %s scope", scopeSubject(d.Scope))
		return d
	}

	d.Visible = true
	return d
}

// DecideAll evaluates every category in display order
func (p *Policy) DecideAll(ctx auth.Context) []Decision {
	decisions := make([]Decision, 0, len(p.rules))
	for _, c := range Categories() {
		decisions = append(decisions, p.Decide(c, ctx))
	}
	return decisions
}

// RequiresCooperative reports whether any category visible to the role is scoped to a cooperative
func (p *Policy) RequiresCooperative(role auth.Role) bool {
	for _, rule := range p.rules {
		if rule.HiddenFor(role) {
			continue
		}
		if rule.ScopeFor(role) == ScopeCooperative {
			return true
		}
	}
	return false
}

// VisibleCategories returns the categories a role can ever see, in display order
func (p *Policy) VisibleCategories(role auth.Role) []Category {
	var visible []Category
	for _, c := range Categories() {
		rule, ok := p.rules[c]
		if ok && !rule.HiddenFor(role) {
			visible = append(visible, c)
		}
	}
	return visible
}

func scopeSubject(kind ScopeKind) string {
	switch kind {
	case ScopeTenant, ScopeTenantCooperatives:
		return "tenant"
	case ScopeCooperative:
		return "cooperative"
	case ScopeOwnUser:
		return "user"
	}
	return string(kind)
}

func cloneRule(r Rule) Rule {
	out := Rule{}
	if len(r.Hidden) > 0 {
		out.Hidden = append([]auth.Role(nil), r.Hidden...)
	}
	if len(r.Scopes) > 0 {
		out.Scopes = make(map[auth.Role]ScopeKind, len(r.Scopes))
		for role, kind := range r.Scopes {
			out.Scopes[role] = kind
		}
	}
	return out
}
