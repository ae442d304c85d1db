package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/artisanmarket-backend/api/middleware"
	"github.com/angelmondragon/artisanmarket-backend/internal/catalog"
	ordersvc "github.com/angelmondragon/artisanmarket-backend/internal/orders"
	"github.com/angelmondragon/artisanmarket-backend/pkg/db/models"
	"github.com/angelmondragon/artisanmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
)

type stubOrderService struct {
	order      *models.Order
	list       []models.Order
	stats      *catalog.OrderStats
	err        error
	lastLimit  int
	lastCancel string
}

func (s *stubOrderService) ConvertToOrder(ctx context.Context, userID string) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubOrderService) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubOrderService) ListUserOrders(ctx context.Context, userID string, limit int) ([]models.Order, error) {
	s.lastLimit = limit
	return s.list, s.err
}

func (s *stubOrderService) CancelOrder(ctx context.Context, id uuid.UUID, userID string) (*models.Order, error) {
	s.lastCancel = userID + ":" + id.String()
	if s.err != nil {
		return nil, s.err
	}
	cancelled := *s.order
	cancelled.Status = enums.OrderStatusCancelled
	return &cancelled, nil
}

func (s *stubOrderService) OrderStats(ctx context.Context, userID string) (*catalog.OrderStats, error) {
	return s.stats, s.err
}

func (s *stubOrderService) PendingGraphWrites(ctx context.Context, limit int) ([]models.PendingGraphWrite, error) {
	return nil, nil
}

func (s *stubOrderService) DrainPendingGraphWrites(ctx context.Context, limit int) (ordersvc.DrainResult, error) {
	return ordersvc.DrainResult{}, nil
}

func sampleOrder(userID string) *models.Order {
	id := uuid.New()
	return &models.Order{
		ID:          id,
		UserID:      userID,
		Status:      enums.OrderStatusConfirmed,
		TotalAmount: decimal.RequireFromString("108.50"),
		Items: []models.OrderItem{
			{OrderID: id, ProductID: "P001", Position: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("45.00"), TotalPrice: decimal.RequireFromString("90.00")},
			{OrderID: id, ProductID: "P002", Position: 2, Quantity: 1, UnitPrice: decimal.RequireFromString("18.50"), TotalPrice: decimal.RequireFromString("18.50")},
		},
	}
}

func withUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func withIDParam(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestConvertCartCreated(t *testing.T) {
	order := sampleOrder("U001")
	handler := ConvertCart(&stubOrderService{order: order}, nil)

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil), "U001")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	var envelope struct {
		Data orderResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ID != order.ID || len(envelope.Data.Items) != 2 {
		t.Fatalf("unexpected order %+v", envelope.Data)
	}
	if !envelope.Data.TotalAmount.Equal(decimal.RequireFromString("108.50")) {
		t.Fatalf("unexpected total %s", envelope.Data.TotalAmount)
	}
}

func TestConvertCartEmpty(t *testing.T) {
	handler := ConvertCart(&stubOrderService{err: pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")}, nil)

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil), "U001")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestConvertCartCompensationFailure(t *testing.T) {
	err := pkgerrors.New(pkgerrors.CodeDependency, "order compensation failed").
		WithDetails(map[string]any{"step": "commit"})
	handler := ConvertCart(&stubOrderService{err: err}, nil)

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil), "U001")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestListOrdersDefaultsLimit(t *testing.T) {
	svc := &stubOrderService{list: []models.Order{*sampleOrder("U001")}}
	handler := ListOrders(svc, nil)

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil), "U001")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastLimit != defaultListLimit {
		t.Fatalf("expected default limit, got %d", svc.lastLimit)
	}
	var envelope struct {
		Data []orderResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data) != 1 {
		t.Fatalf("expected one order got %d", len(envelope.Data))
	}
}

func TestListOrdersRejectsBadLimit(t *testing.T) {
	handler := ListOrders(&stubOrderService{}, nil)

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/orders?limit=500", nil), "U001")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestGetOrderInvalidID(t *testing.T) {
	handler := GetOrder(&stubOrderService{}, nil)

	req := withIDParam(withUser(httptest.NewRequest(http.MethodGet, "/api/v1/orders/nope", nil), "U001"), "nope")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestGetOrderHidesOtherUsersOrders(t *testing.T) {
	order := sampleOrder("U002")
	handler := GetOrder(&stubOrderService{order: order}, nil)

	req := withIDParam(withUser(httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+order.ID.String(), nil), "U001"), order.ID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestGetOrderSuccess(t *testing.T) {
	order := sampleOrder("U001")
	handler := GetOrder(&stubOrderService{order: order}, nil)

	req := withIDParam(withUser(httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+order.ID.String(), nil), "U001"), order.ID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestCancelOrderReturnsCancelledOrder(t *testing.T) {
	order := sampleOrder("U001")
	svc := &stubOrderService{order: order}
	handler := CancelOrder(svc, nil)

	path := "/api/v1/orders/" + order.ID.String() + "/cancel"
	req := withIDParam(withUser(httptest.NewRequest(http.MethodPost, path, nil), "U001"), order.ID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastCancel != "U001:"+order.ID.String() {
		t.Fatalf("unexpected cancel call %q", svc.lastCancel)
	}
	var envelope struct {
		Data orderResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled status got %s", envelope.Data.Status)
	}
}

func TestCancelOrderConflict(t *testing.T) {
	order := sampleOrder("U001")
	handler := CancelOrder(&stubOrderService{order: order, err: pkgerrors.New(pkgerrors.CodeConflict, "order is cancelled")}, nil)

	req := withIDParam(withUser(httptest.NewRequest(http.MethodPost, "/api/v1/orders/x/cancel", nil), "U001"), order.ID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestCancelOrderRequiresUser(t *testing.T) {
	handler := CancelOrder(&stubOrderService{}, nil)

	req := withIDParam(httptest.NewRequest(http.MethodPost, "/api/v1/orders/x/cancel", nil), uuid.NewString())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestOrderStats(t *testing.T) {
	stats := &catalog.OrderStats{
		TotalOrders:  2,
		TotalSpent:   decimal.RequireFromString("137.50"),
		AverageOrder: decimal.RequireFromString("68.75"),
		TopProducts:  []catalog.ProductQuantity{{ProductID: "P002", Name: "Ceramic Mug", Quantity: 5}},
	}
	handler := OrderStats(&stubOrderService{stats: stats}, nil)

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/orders/stats", nil), "U001")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data catalog.OrderStats `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.TotalOrders != 2 || len(envelope.Data.TopProducts) != 1 {
		t.Fatalf("unexpected stats %+v", envelope.Data)
	}
	if !envelope.Data.AverageOrder.Equal(decimal.RequireFromString("68.75")) {
		t.Fatalf("unexpected average %s", envelope.Data.AverageOrder)
	}
}
