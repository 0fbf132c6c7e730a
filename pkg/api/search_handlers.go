package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/coopportal/coopsearch/pkg/httputil"
	"github.com/coopportal/coopsearch/pkg/middleware"
	"github.com/coopportal/coopsearch/pkg/observability"
	"github.com/coopportal/coopsearch/pkg/search"
)

// maxLimit bounds the per-category result count a client may request
const maxLimit = 50

// search handles GET /api/v1/search
// Query parameters:
//   - q: search text; shorter than the minimum length returns empty results
//   - limit: max results per category (default: engine setting, max: 50)
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r)
	if !ok {
		httputil.WriteUnauthorized(w, middleware.ErrMissingIdentity.Error())
		return
	}

	limit, ok := httputil.ParseQueryIntOrError(w, r, "limit", s.engine.Config().MaxPerCategory, 1, maxLimit)
	if !ok {
		return
	}
	query := httputil.ParseQueryString(r, "q", "")

	res, err := s.engine.Search(r.Context(), search.Request{
		Query:          query,
		Auth:           ac,
		MaxPerCategory: limit,
	})
	if err != nil {
		s.writeSearchError(w, r, err)
		return
	}

	_ = httputil.WriteSuccess(w, buildResponse(res.Query, res.Categories, res.Failures, res.CooperativeNotFound))
}

func (s *Server) writeSearchError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.FromContext(r.Context())

	var agg *search.AggregateError
	switch {
	case errors.Is(err, search.ErrInvalidRequest):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, search.ErrCooperativeNotFound):
		httputil.WriteNotFound(w, search.ErrCooperativeNotFound.Error(), "cooperative_not_found")
	case errors.As(err, &agg):
		var details map[string]string
		if len(agg.Failures) > 0 {
			details = make(map[string]string, len(agg.Failures))
			for c, ferr := range agg.Failures {
				details[string(c)] = ferr.Error()
			}
		}
		httputil.WriteDetailedError(w, http.StatusBadGateway, err, details)
	case errors.Is(err, context.Canceled):
		// Client went away
		logger.Debug("Search canceled by client")
	default:
		logger.WithError(err).Error("Search failed")
		httputil.WriteInternalError(w, err)
	}
}

// listCategories handles GET /api/v1/search/categories
func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r)
	if !ok {
		httputil.WriteUnauthorized(w, middleware.ErrMissingIdentity.Error())
		return
	}

	visible := s.engine.Policy().VisibleCategories(ac.Role)
	resp := CategoriesResponse{
		Role:       ac.Role,
		Categories: make([]CategoryInfo, 0, len(visible)),
	}
	for _, c := range visible {
		resp.Categories = append(resp.Categories, CategoryInfo{
			Category: c,
			Label:    search.Label(c),
			Icon:     search.Icon(c),
		})
	}

	_ = httputil.WriteSuccess(w, resp)
}
