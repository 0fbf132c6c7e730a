package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopportal/coopsearch/pkg/auth"
	"github.com/coopportal/coopsearch/pkg/gateway"
	"github.com/coopportal/coopsearch/pkg/gateway/gatewaytest"
	"github.com/coopportal/coopsearch/pkg/httputil"
	"github.com/coopportal/coopsearch/pkg/middleware"
	"github.com/coopportal/coopsearch/pkg/observability"
	"github.com/coopportal/coopsearch/pkg/rbac"
	"github.com/coopportal/coopsearch/pkg/scope"
	"github.com/coopportal/coopsearch/pkg/search"
)

var portalTables = []string{
	"cooperatives", "cooperative_members", "cooperative_applications", "profiles",
	"complaints", "amendment_requests", "auditors", "trainers", "official_searches",
}

func newPortalGateway() *gatewaytest.Gateway {
	gw := gatewaytest.New()
	for _, table := range portalTables {
		gw.Insert(table)
	}
	return gw.
		Insert("cooperatives",
			gateway.Record{"id": "coop-1", "name": "Nyeri Dairy Farmers", "registration_number": "CS/2019/0042", "tenant_id": "county-42", "status": "active"},
			gateway.Record{"id": "coop-2", "name": "Nyeri Dairy Traders", "registration_number": "CS/2020/0107", "tenant_id": "county-7", "status": "active"},
			gateway.Record{"id": "coop-3", "name": "Othaya Coffee Growers", "registration_number": "CS/2015/0311", "tenant_id": "county-42", "status": "active"},
		).
		Insert("cooperative_members",
			gateway.Record{"id": "m-1", "user_id": "user-admin-3", "cooperative_id": "coop-3"},
		).
		Insert("cooperative_applications",
			gateway.Record{"id": "app-1", "proposed_name": "Nyeri Dairy Youth", "application_number": "APP-001", "tenant_id": "county-42"},
			gateway.Record{"id": "app-2", "proposed_name": "Nyeri Dairy Women", "application_number": "APP-002", "tenant_id": "county-7"},
		).
		Insert("complaints",
			gateway.Record{"id": "cmp-1", "complaint_number": "CMP-1001", "subject": "Nyeri Dairy late payments", "cooperative_id": "coop-1"},
			gateway.Record{"id": "cmp-2", "complaint_number": "CMP-1002", "subject": "Nyeri Dairy election dispute", "cooperative_id": "coop-2"},
		).
		Insert("auditors",
			gateway.Record{"id": "aud-1", "full_name": "Mary Wanjiru", "certifying_body": "ICPAK"},
		).
		Insert("trainers",
			gateway.Record{"id": "trn-1", "full_name": "John Kamau", "institution": "Co-operative University"},
		)
}

func newTestServer(gw gateway.Gateway, opts Options) *Server {
	resolver := scope.NewGatewayResolver(gw, observability.NopLogger(), nil)
	engine := search.NewEngine(gw, nil, resolver, search.DefaultConfig(), observability.NopLogger(), nil)
	return NewServer(engine, opts)
}

func identity(role auth.Role, user, tenant string) map[string]string {
	h := map[string]string{middleware.HeaderRole: string(role)}
	if user != "" {
		h[middleware.HeaderUserID] = user
	}
	if tenant != "" {
		h[middleware.HeaderTenantID] = tenant
	}
	return h
}

func get(h http.Handler, url string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", url, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeSearch(t *testing.T, w *httptest.ResponseRecorder) SearchResponse {
	t.Helper()
	var resp SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func groupIDs(resp SearchResponse) map[rbac.Category][]string {
	out := make(map[rbac.Category][]string)
	for _, g := range resp.Categories {
		for _, r := range g.Results {
			out[g.Category] = append(out[g.Category], r.ID)
		}
	}
	return out
}

func TestSearch_CountyAdmin(t *testing.T) {
	srv := newTestServer(newPortalGateway(), Options{})

	w := get(srv, "/api/v1/search?q=Nyeri+Dairy", identity(auth.RoleCountyAdmin, "u-1", "county-42"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeSearch(t, w)
	assert.Equal(t, "Nyeri Dairy", resp.Query)
	assert.Equal(t, 3, resp.TotalCount)
	assert.Empty(t, resp.Failures)
	assert.Equal(t, map[rbac.Category][]string{
		rbac.CategoryCooperative: {"coop-1"},
		rbac.CategoryApplication: {"app-1"},
		rbac.CategoryComplaint:   {"cmp-1"},
	}, groupIDs(resp))

	// Groups come in display order with their labels
	require.Len(t, resp.Categories, 3)
	first := resp.Categories[0]
	assert.Equal(t, rbac.CategoryCooperative, first.Category)
	assert.Equal(t, "Cooperatives", first.Label)
	assert.Equal(t, "building", first.Icon)
	assert.Equal(t, rbac.CategoryComplaint, resp.Categories[2].Category)

	coop := first.Results[0]
	assert.Equal(t, "/cooperatives/coop-1", coop.NavigateTo)
	assert.Equal(t, []search.Segment{
		{Text: "Nyeri Dairy", Match: true},
		{Text: " Farmers"},
	}, coop.TitleSegments)
}

func TestSearch_ShortQuery(t *testing.T) {
	gw := newPortalGateway()
	srv := newTestServer(gw, Options{})

	w := get(srv, "/api/v1/search?q=N", identity(auth.RoleSuperAdmin, "root", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"query":"N","total_count":0,"categories":[]}`, w.Body.String())
	assert.Empty(t, gw.Calls())
}

func TestSearch_RequestErrors(t *testing.T) {
	srv := newTestServer(newPortalGateway(), Options{})

	tests := []struct {
		name    string
		url     string
		headers map[string]string
		status  int
	}{
		{"no identity", "/api/v1/search?q=Nyeri", nil, http.StatusUnauthorized},
		{"unknown role", "/api/v1/search?q=Nyeri", map[string]string{middleware.HeaderRole: "MAYOR"}, http.StatusBadRequest},
		{"limit too small", "/api/v1/search?q=Nyeri&limit=0", identity(auth.RoleSuperAdmin, "root", ""), http.StatusBadRequest},
		{"limit too large", "/api/v1/search?q=Nyeri&limit=51", identity(auth.RoleSuperAdmin, "root", ""), http.StatusBadRequest},
		{"limit not a number", "/api/v1/search?q=Nyeri&limit=five", identity(auth.RoleSuperAdmin, "root", ""), http.StatusBadRequest},
		{"query too long", "/api/v1/search?q=" + strings.Repeat("a", 300), identity(auth.RoleSuperAdmin, "root", ""), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(srv, tt.url, tt.headers)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestSearch_Limit(t *testing.T) {
	srv := newTestServer(newPortalGateway(), Options{})

	w := get(srv, "/api/v1/search?q=Nyeri+Dairy&limit=1", identity(auth.RoleSuperAdmin, "root", ""))
	require.Equal(t, http.StatusOK, w.Code)

	for _, g := range decodeSearch(t, w).Categories {
		assert.Len(t, g.Results, 1, "category %s", g.Category)
	}
}

func TestSearch_CooperativeNotFound(t *testing.T) {
	gw := newPortalGateway()
	srv := newTestServer(gw, Options{})

	w := get(srv, "/api/v1/search?q=Nyeri", identity(auth.RoleCooperativeAdmin, "user-nobody", "county-99"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"cooperative not found","code":"cooperative_not_found"}`, w.Body.String())
	for _, call := range gw.Calls() {
		assert.Nil(t, call.Query.Match, "no entity query may run, got %s", call.Query.Table)
	}
}

func TestSearch_CooperativeAdminScoped(t *testing.T) {
	srv := newTestServer(newPortalGateway(), Options{})

	w := get(srv, "/api/v1/search?q=Othaya", identity(auth.RoleCooperativeAdmin, "user-admin-3", "county-42"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, map[rbac.Category][]string{
		rbac.CategoryCooperative: {"coop-3"},
	}, groupIDs(decodeSearch(t, w)))
}

func TestSearch_PartialFailure(t *testing.T) {
	gw := newPortalGateway()
	gw.FailTable("trainers", errors.New("connection reset"))
	srv := newTestServer(gw, Options{})

	w := get(srv, "/api/v1/search?q=Wanjiru", identity(auth.RoleSuperAdmin, "root", ""))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeSearch(t, w)
	assert.Equal(t, []string{"aud-1"}, groupIDs(resp)[rbac.CategoryAuditor])
	require.Contains(t, resp.Failures, rbac.CategoryTrainer)
	assert.Contains(t, resp.Failures[rbac.CategoryTrainer], "connection reset")
}

func TestSearch_AllCategoriesFail(t *testing.T) {
	gw := newPortalGateway()
	for _, table := range portalTables {
		gw.FailTable(table, errors.New("database is down"))
	}
	srv := newTestServer(gw, Options{})

	w := get(srv, "/api/v1/search?q=Nyeri", identity(auth.RoleSuperAdmin, "root", ""))
	require.Equal(t, http.StatusBadGateway, w.Code)

	var body httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "all 8 categories failed")
	assert.Len(t, body.Details, 8)
	assert.Contains(t, body.Details["trainer"], "database is down")
}

func TestListCategories(t *testing.T) {
	srv := newTestServer(newPortalGateway(), Options{})

	w := get(srv, "/api/v1/search/categories", identity(auth.RoleCitizen, "user-9", ""))
	require.Equal(t, http.StatusOK, w.Code)

	var resp CategoriesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, auth.RoleCitizen, resp.Role)

	var got []rbac.Category
	for _, c := range resp.Categories {
		got = append(got, c.Category)
	}
	assert.Equal(t, []rbac.Category{
		rbac.CategoryCooperative,
		rbac.CategoryAuditor,
		rbac.CategoryTrainer,
		rbac.CategoryOfficialSearch,
	}, got)
	assert.Equal(t, "Official Searches", resp.Categories[3].Label)
}

func TestRateLimiting(t *testing.T) {
	limiter := middleware.NewRateLimiter(&middleware.RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Minute,
	}, clock.NewMock())
	srv := newTestServer(newPortalGateway(), Options{Limiter: limiter})
	headers := identity(auth.RoleSuperAdmin, "root", "")

	assert.Equal(t, http.StatusOK, get(srv, "/api/v1/search?q=Nyeri", headers).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(srv, "/api/v1/search?q=Nyeri", headers).Code)
	assert.Equal(t, http.StatusOK, get(srv, "/api/v1/search?q=Nyeri", identity(auth.RoleSuperAdmin, "root-2", "")).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	srv := newTestServer(newPortalGateway(), Options{
		Metrics:  metrics,
		Gatherer: registry,
		Health:   observability.NewHealthChecker(nil, nil, "test"),
	})
	h := srv.Handler()

	assert.Equal(t, http.StatusOK, get(h, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, get(h, "/readyz", nil).Code)

	w := get(h, "/api/v1/search?q=Nyeri", identity(auth.RoleSuperAdmin, "root", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(httputil.RequestIDHeader))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/search", "200")))

	w = get(h, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "coopsearch_http_requests_total")
}

func TestHealthRoutesOptional(t *testing.T) {
	srv := newTestServer(newPortalGateway(), Options{})
	assert.Equal(t, http.StatusNotFound, get(srv, "/healthz", nil).Code)
	assert.Equal(t, http.StatusNotFound, get(srv, "/metrics", nil).Code)
}
