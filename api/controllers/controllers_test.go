package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/artisanmarket-backend/internal/products"
	"github.com/angelmondragon/artisanmarket-backend/internal/recommendations"
	"github.com/angelmondragon/artisanmarket-backend/internal/search"
	"github.com/angelmondragon/artisanmarket-backend/pkg/config"
	"github.com/angelmondragon/artisanmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
)

type stubSearch struct {
	last    search.Query
	results []search.Result
	err     error
}

func (s *stubSearch) Search(ctx context.Context, q search.Query) ([]search.Result, error) {
	s.last = q
	return s.results, s.err
}

type stubProducts struct {
	detail *products.Detail
	err    error
	lastID string
}

func (s *stubProducts) GetProductDetail(ctx context.Context, productID string) (*products.Detail, error) {
	s.lastID = productID
	return s.detail, s.err
}

type stubRecommendations struct {
	kind  enums.RecommendationKind
	seed  string
	limit int
	err   error
}

func (s *stubRecommendations) Recommend(ctx context.Context, kind enums.RecommendationKind, seedID string, limit int) (*recommendations.Set, error) {
	s.kind, s.seed, s.limit = kind, seedID, limit
	if s.err != nil {
		return nil, s.err
	}
	return &recommendations.Set{Kind: kind, SeedID: seedID, Items: []recommendations.Item{}, GeneratedAt: time.Now()}, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func withParams(req *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestSearchParsesQuery(t *testing.T) {
	svc := &stubSearch{results: []search.Result{{ProductID: "P001", Name: "Walnut Bowl", FusedScore: 1}}}
	handler := Search(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=+wooden+bowl+&category=Kitchen&min_price=10&max_price=49.99&mode=lexical&limit=5", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.last.Text != "wooden bowl" || svc.last.Mode != enums.SearchModeLexical || svc.last.Limit != 5 {
		t.Fatalf("unexpected query %+v", svc.last)
	}
	if svc.last.Filters.Category != "Kitchen" {
		t.Fatalf("unexpected category %q", svc.last.Filters.Category)
	}
	if svc.last.Filters.MaxPrice == nil || !svc.last.Filters.MaxPrice.Equal(decimal.RequireFromString("49.99")) {
		t.Fatalf("unexpected max price %v", svc.last.Filters.MaxPrice)
	}
	if svc.last.Filters.MinPrice == nil || !svc.last.Filters.MinPrice.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected min price %v", svc.last.Filters.MinPrice)
	}
}

func TestSearchDefaultsToCombinedMode(t *testing.T) {
	svc := &stubSearch{}
	handler := Search(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=bowl", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.last.Mode != enums.SearchModeCombined || svc.last.Limit != 0 {
		t.Fatalf("unexpected query %+v", svc.last)
	}
	var envelope struct {
		Data struct {
			Results []search.Result `json:"results"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Results == nil {
		t.Fatalf("empty results should encode as an empty list")
	}
}

func TestSearchRejectsBadInput(t *testing.T) {
	cases := []string{
		"/api/v1/search?q=bowl&mode=fuzzy",
		"/api/v1/search?q=bowl&limit=0",
		"/api/v1/search?q=bowl&max_price=cheap",
	}
	for _, target := range cases {
		svc := &stubSearch{}
		resp := httptest.NewRecorder()
		Search(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, target, nil))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", target, resp.Code)
		}
	}
}

func TestSearchTimeout(t *testing.T) {
	svc := &stubSearch{err: pkgerrors.Wrap(pkgerrors.CodeTimeout, context.DeadlineExceeded, "search")}
	resp := httptest.NewRecorder()
	Search(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=bowl", nil))
	if resp.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504 got %d", resp.Code)
	}
}

func TestProductDetail(t *testing.T) {
	svc := &stubProducts{detail: &products.Detail{ID: "P001", Name: "Walnut Bowl", Price: decimal.RequireFromString("45.00")}}
	req := withParams(httptest.NewRequest(http.MethodGet, "/api/v1/products/P001", nil), "id", "P001")
	resp := httptest.NewRecorder()
	ProductDetail(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastID != "P001" {
		t.Fatalf("unexpected product id %q", svc.lastID)
	}
}

func TestProductDetailNotFound(t *testing.T) {
	svc := &stubProducts{err: pkgerrors.New(pkgerrors.CodeNotFound, "product not found")}
	req := withParams(httptest.NewRequest(http.MethodGet, "/api/v1/products/P999", nil), "id", "P999")
	resp := httptest.NewRecorder()
	ProductDetail(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestProductDetailRejectsMalformedID(t *testing.T) {
	svc := &stubProducts{}
	req := withParams(httptest.NewRequest(http.MethodGet, "/api/v1/products/x", nil), "id", "P0 01")
	resp := httptest.NewRecorder()
	ProductDetail(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.lastID != "" {
		t.Fatalf("service should not be called")
	}
}

func TestRecommendations(t *testing.T) {
	svc := &stubRecommendations{}
	req := withParams(httptest.NewRequest(http.MethodGet, "/api/v1/recommendations/alsoBought/U001?limit=3", nil), "kind", "alsoBought", "seedId", "U001")
	resp := httptest.NewRecorder()
	Recommendations(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.kind != enums.RecommendationAlsoBought || svc.seed != "U001" || svc.limit != 3 {
		t.Fatalf("unexpected call kind=%s seed=%s limit=%d", svc.kind, svc.seed, svc.limit)
	}
}

func TestRecommendationsUnknownKind(t *testing.T) {
	svc := &stubRecommendations{}
	req := withParams(httptest.NewRequest(http.MethodGet, "/api/v1/recommendations/bestsellers/P001", nil), "kind", "bestsellers", "seedId", "P001")
	resp := httptest.NewRecorder()
	Recommendations(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.seed != "" {
		t.Fatalf("service should not be called")
	}
}

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	deps := map[string]Pinger{
		"postgres": stubPinger{},
		"redis":    stubPinger{},
	}
	resp := httptest.NewRecorder()
	HealthReady(cfg, deps, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestHealthReadyReportsFailures(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	deps := map[string]Pinger{
		"postgres": stubPinger{},
		"neo4j":    stubPinger{err: errors.New("connection refused")},
	}
	resp := httptest.NewRecorder()
	HealthReady(cfg, deps, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	var envelope struct {
		Error struct {
			Details struct {
				Failed []string `json:"failed"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Error.Details.Failed) != 1 || envelope.Error.Details.Failed[0] != "neo4j" {
		t.Fatalf("unexpected failures %v", envelope.Error.Details.Failed)
	}
}

func TestHealthLive(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	resp := httptest.NewRecorder()
	HealthLive(cfg).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("X-Artisan-Env") != "dev" {
		t.Fatalf("expected env header")
	}
}
