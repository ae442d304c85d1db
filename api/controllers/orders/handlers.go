package orders

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/artisanmarket-backend/api/middleware"
	"github.com/angelmondragon/artisanmarket-backend/api/responses"
	"github.com/angelmondragon/artisanmarket-backend/api/validators"
	ordersvc "github.com/angelmondragon/artisanmarket-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ConvertCart turns the caller's cart into a confirmed order.
func ConvertCart(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, svc, logg)
		if !ok {
			return
		}

		order, err := svc.ConvertToOrder(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}

func ListOrders(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, svc, logg)
		if !ok {
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", defaultListLimit, 1, maxListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records, err := svc.ListUserOrders(r.Context(), userID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]orderResponse, 0, len(records))
		for i := range records {
			out = append(out, newOrderResponse(&records[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// GetOrder returns one of the caller's orders. Orders owned by other users
// are reported as missing.
func GetOrder(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, svc, logg)
		if !ok {
			return
		}

		orderID, ok := parseOrderID(w, r, logg)
		if !ok {
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}

		order, err := svc.GetOrder(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if order.UserID != userID {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// CancelOrder cancels one of the caller's orders and restores its stock.
func CancelOrder(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, svc, logg)
		if !ok {
			return
		}
		orderID, ok := parseOrderID(w, r, logg)
		if !ok {
			return
		}

		order, err := svc.CancelOrder(r.Context(), orderID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func OrderStats(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, svc, logg)
		if !ok {
			return
		}

		stats, err := svc.OrderStats(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, stats)
	}
}

func parseOrderID(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id").
			WithDetails(map[string]any{"field": "id"}))
		return uuid.Nil, false
	}
	return orderID, true
}

func requireUser(w http.ResponseWriter, r *http.Request, svc ordersvc.Service, logg *logger.Logger) (string, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
		return "", false
	}
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user"))
		return "", false
	}
	return userID, true
}
