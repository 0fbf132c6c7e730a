package search

import "github.com/coopportal/coopsearch/pkg/rbac"

var labels = map[rbac.Category]struct{ label, icon string }{
	rbac.CategoryCooperative:    {"Cooperatives", "building"},
	rbac.CategoryApplication:    {"Applications", "file-text"},
	rbac.CategoryUser:           {"Users", "users"},
	rbac.CategoryComplaint:      {"Complaints", "alert-triangle"},
	rbac.CategoryAmendment:      {"Amendments", "file-edit"},
	rbac.CategoryAuditor:        {"Auditors", "clipboard-check"},
	rbac.CategoryTrainer:        {"Trainers", "graduation-cap"},
	rbac.CategoryOfficialSearch: {"Official Searches", "search"},
}

// Label returns the display name of a category
func Label(c rbac.Category) string {
	if l, ok := labels[c]; ok {
		return l.label
	}
	return string(c)
}

// Icon returns the icon name shown next to a category
func Icon(c rbac.Category) string {
	if l, ok := labels[c]; ok {
		return l.icon
	}
	return "circle"
}
