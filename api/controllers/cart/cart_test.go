package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/artisanmarket-backend/api/middleware"
	cartsvc "github.com/angelmondragon/artisanmarket-backend/internal/cart"
	"github.com/angelmondragon/artisanmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
)

type stubCartService struct {
	cart       *cartsvc.Cart
	err        error
	mutateErr  error
	lastUser   string
	lastProdID string
	lastQty    int
	removed    bool
	cleared    bool
}

func (s *stubCartService) AddItem(ctx context.Context, userID, productID string, qty int) error {
	s.lastUser, s.lastProdID, s.lastQty = userID, productID, qty
	return s.mutateErr
}

func (s *stubCartService) RemoveItem(ctx context.Context, userID, productID string) error {
	s.lastUser, s.lastProdID = userID, productID
	s.removed = true
	return s.mutateErr
}

func (s *stubCartService) UpdateQuantity(ctx context.Context, userID, productID string, qty int) error {
	s.lastUser, s.lastProdID, s.lastQty = userID, productID, qty
	return s.mutateErr
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (*cartsvc.Cart, error) {
	return s.cart, s.err
}

func (s *stubCartService) CartTotal(ctx context.Context, userID string) (decimal.Decimal, error) {
	if s.cart == nil {
		return decimal.Zero, s.err
	}
	return s.cart.Total, s.err
}

func (s *stubCartService) ClearCart(ctx context.Context, userID string) error {
	s.lastUser = userID
	s.cleared = true
	return s.mutateErr
}

func (s *stubCartService) CartExpiry(ctx context.Context, userID string) (time.Duration, error) {
	return 0, nil
}

func (s *stubCartService) State(ctx context.Context, userID string) (enums.CartStatus, error) {
	return enums.CartStatusActive, nil
}

func sampleCart() *cartsvc.Cart {
	return &cartsvc.Cart{
		UserID: "U001",
		Status: enums.CartStatusActive,
		Lines: []cartsvc.Line{{
			ProductID: "P001",
			Name:      "Walnut Bowl",
			Quantity:  2,
			UnitPrice: decimal.RequireFromString("45.00"),
			LineTotal: decimal.RequireFromString("90.00"),
		}},
		Total:     decimal.RequireFromString("90.00"),
		ExpiresIn: 24 * time.Hour,
	}
}

func withUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func withProductParam(req *http.Request, productID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("productId", productID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestCartFetchSuccess(t *testing.T) {
	handler := CartFetch(&stubCartService{cart: sampleCart()}, nil)

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil), "U001")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	var envelope struct {
		Data cartResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.UserID != "U001" || len(envelope.Data.Lines) != 1 {
		t.Fatalf("unexpected cart: %+v", envelope.Data)
	}
	if !envelope.Data.Total.Equal(decimal.RequireFromString("90.00")) {
		t.Fatalf("unexpected total %s", envelope.Data.Total)
	}
	if envelope.Data.ExpiresInSeconds != 86400 {
		t.Fatalf("unexpected expiry %d", envelope.Data.ExpiresInSeconds)
	}
}

func TestCartFetchMissingUser(t *testing.T) {
	handler := CartFetch(&stubCartService{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCartAddItemSuccess(t *testing.T) {
	svc := &stubCartService{cart: sampleCart()}
	handler := CartAddItem(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"product_id":"P001","quantity":2}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, withUser(req, "U001"))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastUser != "U001" || svc.lastProdID != "P001" || svc.lastQty != 2 {
		t.Fatalf("unexpected call user=%s product=%s qty=%d", svc.lastUser, svc.lastProdID, svc.lastQty)
	}
}

func TestCartAddItemRejectsZeroQuantity(t *testing.T) {
	svc := &stubCartService{cart: sampleCart()}
	handler := CartAddItem(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"product_id":"P001","quantity":0}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, withUser(req, "U001"))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.lastProdID != "" {
		t.Fatalf("service should not be called")
	}
}

func TestCartAddItemInsufficientStock(t *testing.T) {
	svc := &stubCartService{
		mutateErr: pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
			WithDetails(map[string]any{"product_id": "P003", "requested": 1, "available": 0}),
	}
	handler := CartAddItem(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"product_id":"P003","quantity":1}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, withUser(req, "U001"))

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Code != string(pkgerrors.CodeInsufficientStock) {
		t.Fatalf("unexpected code %s", envelope.Error.Code)
	}
	if envelope.Error.Details["product_id"] != "P003" {
		t.Fatalf("unexpected details %v", envelope.Error.Details)
	}
}

func TestCartUpdateItemZeroQuantityAllowed(t *testing.T) {
	svc := &stubCartService{cart: sampleCart()}
	handler := CartUpdateItem(svc, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/P001", strings.NewReader(`{"quantity":0}`))
	req = withProductParam(withUser(req, "U001"), "P001")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastProdID != "P001" || svc.lastQty != 0 {
		t.Fatalf("unexpected call product=%s qty=%d", svc.lastProdID, svc.lastQty)
	}
}

func TestCartUpdateItemRequiresQuantity(t *testing.T) {
	handler := CartUpdateItem(&stubCartService{}, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/P001", strings.NewReader(`{}`))
	req = withProductParam(withUser(req, "U001"), "P001")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCartRemoveItem(t *testing.T) {
	svc := &stubCartService{cart: &cartsvc.Cart{UserID: "U001", Status: enums.CartStatusEmpty, Total: decimal.Zero}}
	handler := CartRemoveItem(svc, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cart/items/P001", nil)
	req = withProductParam(withUser(req, "U001"), "P001")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !svc.removed || svc.lastProdID != "P001" {
		t.Fatalf("expected P001 removed")
	}
	var envelope struct {
		Data cartResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Lines == nil || len(envelope.Data.Lines) != 0 {
		t.Fatalf("expected empty line list, got %v", envelope.Data.Lines)
	}
}

func TestCartClearConflictWhileConverting(t *testing.T) {
	svc := &stubCartService{mutateErr: pkgerrors.New(pkgerrors.CodeConflict, "cart is being converted")}
	handler := CartClear(svc, nil)

	req := withUser(httptest.NewRequest(http.MethodDelete, "/api/v1/cart", nil), "U001")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestCartClearNoContent(t *testing.T) {
	svc := &stubCartService{}
	handler := CartClear(svc, nil)

	req := withUser(httptest.NewRequest(http.MethodDelete, "/api/v1/cart", nil), "U001")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", resp.Code)
	}
	if !svc.cleared {
		t.Fatalf("expected cart cleared")
	}
}
