package api

import (
	"github.com/coopportal/coopsearch/pkg/auth"
	"github.com/coopportal/coopsearch/pkg/rbac"
	"github.com/coopportal/coopsearch/pkg/search"
)

// SearchResponse is the body of GET /api/v1/search
type SearchResponse struct {
	Query               string                   `json:"query"`
	TotalCount          int                      `json:"total_count"`
	Categories          []CategoryGroup          `json:"categories"`
	Failures            map[rbac.Category]string `json:"failures,omitempty"`
	CooperativeNotFound bool                     `json:"cooperative_not_found,omitempty"`
}

// CategoryGroup is one non-empty category of results, in display order
type CategoryGroup struct {
	Category rbac.Category `json:"category"`
	Label    string        `json:"label"`
	Icon     string        `json:"icon"`
	Results  []ResultView  `json:"results"`
}

// ResultView is a result with its title and subtitle split for highlighting
type ResultView struct {
	search.Result
	TitleSegments    []search.Segment `json:"title_segments"`
	SubtitleSegments []search.Segment `json:"subtitle_segments,omitempty"`
}

// CategoryInfo describes a category the caller may search
type CategoryInfo struct {
	Category rbac.Category `json:"category"`
	Label    string        `json:"label"`
	Icon     string        `json:"icon"`
}

// CategoriesResponse is the body of GET /api/v1/search/categories
type CategoriesResponse struct {
	Role       auth.Role      `json:"role"`
	Categories []CategoryInfo `json:"categories"`
}

// LiveRequest is a message sent by a live search client
type LiveRequest struct {
	Query string `json:"query"`
}

// Live message types
const (
	LiveSnapshot = "snapshot"
	LiveError    = "error"
)

// LiveMessage is pushed to live search clients
type LiveMessage struct {
	Type       string `json:"type"`
	Loading    bool   `json:"loading"`
	Generation uint64 `json:"generation"`
	Error      string `json:"error,omitempty"`
	SearchResponse
}

func buildResponse(query string, categories search.CategorizedResults, failures map[rbac.Category]string, notFound bool) SearchResponse {
	resp := SearchResponse{
		Query:               query,
		Categories:          []CategoryGroup{},
		Failures:            failures,
		CooperativeNotFound: notFound,
	}

	for _, c := range rbac.Categories() {
		results := categories.Get(c)
		if len(results) == 0 {
			continue
		}
		group := CategoryGroup{
			Category: c,
			Label:    search.Label(c),
			Icon:     search.Icon(c),
			Results:  make([]ResultView, 0, len(results)),
		}
		for _, r := range results {
			group.Results = append(group.Results, ResultView{
				Result:           r,
				TitleSegments:    search.Highlight(r.Title, query),
				SubtitleSegments: search.Highlight(r.Subtitle, query),
			})
		}
		resp.TotalCount += len(results)
		resp.Categories = append(resp.Categories, group)
	}
	return resp
}

func snapshotMessage(snap search.Snapshot) LiveMessage {
	return LiveMessage{
		Type:           LiveSnapshot,
		Loading:        snap.Loading,
		Generation:     snap.Generation,
		Error:          snap.Err,
		SearchResponse: buildResponse(snap.Query, snap.Results, snap.Failures, snap.CooperativeNotFound),
	}
}
