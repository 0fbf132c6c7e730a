package search

import (
	"github.com/coopportal/coopsearch/pkg/auth"
	"github.com/coopportal/coopsearch/pkg/rbac"
	"github.com/coopportal/coopsearch/pkg/scope"
)

// Request is one search invocation
type Request struct {
	Query          string       `json:"query" validate:"max=256"`
	Auth           auth.Context `json:"auth" validate:"-"`
	MaxPerCategory int          `json:"max_per_category,omitempty" validate:"gte=0,lte=50"` // 0 uses the engine default

	// Scope carries a session's scope resolution across searches. A nil tracker
	// resolves per request.
	Scope *scope.Tracker `json:"-" validate:"-"`
}

// Result is a single search hit
type Result struct {
	ID         string         `json:"id"`
	Type       rbac.Category  `json:"type"`
	Title      string         `json:"title"`
	Subtitle   string         `json:"subtitle"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	NavigateTo string         `json:"navigate_to"`
}

// CategorizedResults holds one ordered slice per category
type CategorizedResults struct {
	Cooperatives     []Result `json:"cooperatives"`
	Applications     []Result `json:"applications"`
	Users            []Result `json:"users"`
	Complaints       []Result `json:"complaints"`
	Amendments       []Result `json:"amendments"`
	Auditors         []Result `json:"auditors"`
	Trainers         []Result `json:"trainers"`
	OfficialSearches []Result `json:"official_searches"`
}

// NewCategorizedResults returns a record with every category empty and non-nil
func NewCategorizedResults() CategorizedResults {
	var r CategorizedResults
	for _, c := range rbac.Categories() {
		*r.slot(c) = []Result{}
	}
	return r
}

// Get returns the results for a category
func (r *CategorizedResults) Get(c rbac.Category) []Result {
	if s := r.slot(c); s != nil {
		return *s
	}
	return nil
}

// Set replaces the results for a category
func (r *CategorizedResults) Set(c rbac.Category, results []Result) {
	if s := r.slot(c); s != nil {
		*s = results
	}
}

// Total sums the lengths of all categories
func (r *CategorizedResults) Total() int {
	n := 0
	for _, c := range rbac.Categories() {
		n += len(r.Get(c))
	}
	return n
}

func (r *CategorizedResults) slot(c rbac.Category) *[]Result {
	switch c {
	case rbac.CategoryCooperative:
		return &r.Cooperatives
	case rbac.CategoryApplication:
		return &r.Applications
	case rbac.CategoryUser:
		return &r.Users
	case rbac.CategoryComplaint:
		return &r.Complaints
	case rbac.CategoryAmendment:
		return &r.Amendments
	case rbac.CategoryAuditor:
		return &r.Auditors
	case rbac.CategoryTrainer:
		return &r.Trainers
	case rbac.CategoryOfficialSearch:
		return &r.OfficialSearches
	}
	return nil
}

// Results is the outcome of one search
type Results struct {
	Query      string             `json:"query"`
	Categories CategorizedResults `json:"categories"`
	TotalCount int                `json:"total_count"`

	// Failures holds the error message of every category whose adapter failed
	Failures            map[rbac.Category]string `json:"failures,omitempty"`
	CooperativeNotFound bool                     `json:"cooperative_not_found,omitempty"`
}

func newResults(query string) *Results {
	return &Results{
		Query:      query,
		Categories: NewCategorizedResults(),
	}
}
