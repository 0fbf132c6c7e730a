package search

import (
	"fmt"

	"github.com/coopportal/coopsearch/pkg/gateway"
	"github.com/coopportal/coopsearch/pkg/rbac"
)

// Adapter describes how one category is queried and projected into results
type Adapter struct {
	Category rbac.Category
	Table    string
	Columns  []string
	Fields   []string // matched case-insensitively against the query

	// Columns each scope kind filters on. An empty column means the adapter cannot
	// express that scope and the category fails rather than running unscoped.
	TenantColumn      string
	CooperativeColumn string
	OwnerColumn       string

	Project func(gateway.Record) Result
}

// Query builds the gateway query for term under decision d
func (a Adapter) Query(term string, d rbac.Decision, limit int) (gateway.Query, error) {
	q := gateway.Query{
		Table:   a.Table,
		Columns: a.Columns,
		Match:   &gateway.Match{Term: term, Fields: a.Fields},
		Limit:   limit,
	}

	switch d.Scope {
	case rbac.ScopeNone:
		return q, nil
	case rbac.ScopeTenant:
		if a.TenantColumn == "" {
			break
		}
		q.Filters = append(q.Filters, gateway.Eq(a.TenantColumn, d.Value))
		return q, nil
	case rbac.ScopeTenantCooperatives:
		if a.CooperativeColumn == "" {
			break
		}
		q.Filters = append(q.Filters, gateway.InSubquery(a.CooperativeColumn, gateway.Query{
			Table:   cooperativesTable,
			Columns: []string{"id"},
			Filters: []gateway.Filter{gateway.Eq("tenant_id", d.Value)},
		}))
		return q, nil
	case rbac.ScopeCooperative:
		if a.CooperativeColumn == "" {
			break
		}
		q.Filters = append(q.Filters, gateway.Eq(a.CooperativeColumn, d.Value))
		return q, nil
	case rbac.ScopeOwnUser:
		if a.OwnerColumn == "" {
			break
		}
		q.Filters = append(q.Filters, gateway.Eq(a.OwnerColumn, d.Value))
		return q, nil
	}

	return gateway.Query{}, fmt.Errorf("%s cannot be scoped by %s", a.Category, d.Scope)
}

const cooperativesTable = "cooperatives"

// DefaultAdapters returns the adapters for every category, keyed by category
func DefaultAdapters() map[rbac.Category]Adapter {
	adapters := []Adapter{
		{
			Category:          rbac.CategoryCooperative,
			Table:             cooperativesTable,
			Columns:           []string{"id", "name", "registration_number", "status", "cooperative_type", "tenant_id"},
			Fields:            []string{"name", "registration_number"},
			TenantColumn:      "tenant_id",
			CooperativeColumn: "id",
			Project: func(r gateway.Record) Result {
				return Result{
					ID:         r.String("id"),
					Type:       rbac.CategoryCooperative,
					Title:      r.String("name"),
					Subtitle:   r.String("registration_number"),
					Metadata:   metadata(r, "status", "cooperative_type"),
					NavigateTo: "/cooperatives/" + r.String("id"),
				}
			},
		},
		{
			Category:          rbac.CategoryApplication,
			Table:             "cooperative_applications",
			Columns:           []string{"id", "proposed_name", "application_number", "status", "created_at"},
			Fields:            []string{"proposed_name", "application_number"},
			TenantColumn:      "tenant_id",
			CooperativeColumn: "cooperative_id",
			OwnerColumn:       "applicant_id",
			Project: func(r gateway.Record) Result {
				return Result{
					ID:         r.String("id"),
					Type:       rbac.CategoryApplication,
					Title:      r.String("proposed_name"),
					Subtitle:   r.String("application_number"),
					Metadata:   metadata(r, "status", "created_at"),
					NavigateTo: "/applications/" + r.String("id"),
				}
			},
		},
		{
			Category:     rbac.CategoryUser,
			Table:        "profiles",
			Columns:      []string{"id", "full_name", "email", "phone", "role"},
			Fields:       []string{"full_name", "email", "phone", "id_number"},
			TenantColumn: "tenant_id",
			OwnerColumn:  "id",
			Project: func(r gateway.Record) Result {
				return Result{
					ID:         r.String("id"),
					Type:       rbac.CategoryUser,
					Title:      r.String("full_name"),
					Subtitle:   r.String("email"),
					Metadata:   metadata(r, "phone", "role"),
					NavigateTo: "/users/" + r.String("id"),
				}
			},
		},
		{
			Category:          rbac.CategoryComplaint,
			Table:             "complaints",
			Columns:           []string{"id", "complaint_number", "subject", "status", "priority"},
			Fields:            []string{"complaint_number", "subject"},
			CooperativeColumn: "cooperative_id",
			OwnerColumn:       "complainant_id",
			Project: func(r gateway.Record) Result {
				return Result{
					ID:         r.String("id"),
					Type:       rbac.CategoryComplaint,
					Title:      r.String("subject"),
					Subtitle:   r.String("complaint_number"),
					Metadata:   metadata(r, "status", "priority"),
					NavigateTo: "/complaints/" + r.String("id"),
				}
			},
		},
		{
			Category:          rbac.CategoryAmendment,
			Table:             "amendment_requests",
			Columns:           []string{"id", "request_number", "amendment_type", "status"},
			Fields:            []string{"request_number"},
			CooperativeColumn: "cooperative_id",
			Project: func(r gateway.Record) Result {
				return Result{
					ID:         r.String("id"),
					Type:       rbac.CategoryAmendment,
					Title:      r.String("request_number"),
					Subtitle:   r.String("amendment_type"),
					Metadata:   metadata(r, "status"),
					NavigateTo: "/amendments/" + r.String("id"),
				}
			},
		},
		{
			Category: rbac.CategoryAuditor,
			Table:    "auditors",
			Columns:  []string{"id", "full_name", "certifying_body", "certification_number", "status"},
			Fields:   []string{"full_name", "certifying_body"},
			Project: func(r gateway.Record) Result {
				return Result{
					ID:         r.String("id"),
					Type:       rbac.CategoryAuditor,
					Title:      r.String("full_name"),
					Subtitle:   r.String("certifying_body"),
					Metadata:   metadata(r, "certification_number", "status"),
					NavigateTo: "/auditors/" + r.String("id"),
				}
			},
		},
		{
			Category: rbac.CategoryTrainer,
			Table:    "trainers",
			Columns:  []string{"id", "full_name", "institution", "specialization", "status"},
			Fields:   []string{"full_name", "institution"},
			Project: func(r gateway.Record) Result {
				return Result{
					ID:         r.String("id"),
					Type:       rbac.CategoryTrainer,
					Title:      r.String("full_name"),
					Subtitle:   r.String("institution"),
					Metadata:   metadata(r, "specialization", "status"),
					NavigateTo: "/trainers/" + r.String("id"),
				}
			},
		},
		{
			Category:          rbac.CategoryOfficialSearch,
			Table:             "official_searches",
			Columns:           []string{"id", "search_number", "requester_name", "purpose", "status"},
			Fields:            []string{"search_number", "requester_name"},
			CooperativeColumn: "cooperative_id",
			OwnerColumn:       "user_id",
			Project: func(r gateway.Record) Result {
				return Result{
					ID:         r.String("id"),
					Type:       rbac.CategoryOfficialSearch,
					Title:      r.String("search_number"),
					Subtitle:   r.String("requester_name"),
					Metadata:   metadata(r, "purpose", "status"),
					NavigateTo: "/official-searches/" + r.String("id"),
				}
			},
		},
	}

	out := make(map[rbac.Category]Adapter, len(adapters))
	for _, a := range adapters {
		out[a.Category] = a
	}
	return out
}

// metadata collects the non-empty values of columns
func metadata(r gateway.Record, columns ...string) map[string]any {
	md := make(map[string]any, len(columns))
	for _, c := range columns {
		if v := r.String(c); v != "" {
			md[c] = v
		}
	}
	if len(md) == 0 {
		return nil
	}
	return md
}
