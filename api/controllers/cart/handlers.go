package cart

import (
	"context"
	"net/http"

	"github.com/angelmondragon/artisanmarket-backend/api/middleware"
	"github.com/angelmondragon/artisanmarket-backend/api/responses"
	"github.com/angelmondragon/artisanmarket-backend/api/validators"
	cartsvc "github.com/angelmondragon/artisanmarket-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
)

// CartFetch returns the priced cart for the caller.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, svc, logg)
		if !ok {
			return
		}
		writeCart(r.Context(), w, svc, logg, userID)
	}
}

// CartAddItem increments a line, creating it when absent.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, svc, logg)
		if !ok {
			return
		}

		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithProductID(ctx, payload.ProductID)
		}
		if err := svc.AddItem(ctx, userID, payload.ProductID, payload.Quantity); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		writeCart(ctx, w, svc, logg, userID)
	}
}

// CartUpdateItem sets a line quantity. Zero removes the line.
func CartUpdateItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, svc, logg)
		if !ok {
			return
		}

		var payload updateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productID, err := validators.ParsePathID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithProductID(ctx, productID)
		}
		if err := svc.UpdateQuantity(ctx, userID, productID, *payload.Quantity); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		writeCart(ctx, w, svc, logg, userID)
	}
}

func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, svc, logg)
		if !ok {
			return
		}

		productID, err := validators.ParsePathID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.RemoveItem(r.Context(), userID, productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(r.Context(), w, svc, logg, userID)
	}
}

func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, svc, logg)
		if !ok {
			return
		}

		if err := svc.ClearCart(r.Context(), userID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func requireUser(w http.ResponseWriter, r *http.Request, svc cartsvc.Service, logg *logger.Logger) (string, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
		return "", false
	}
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user"))
		return "", false
	}
	return userID, true
}

func writeCart(ctx context.Context, w http.ResponseWriter, svc cartsvc.Service, logg *logger.Logger, userID string) {
	record, err := svc.GetCart(ctx, userID)
	if err != nil {
		responses.WriteError(ctx, logg, w, err)
		return
	}
	responses.WriteSuccess(w, newCartResponse(record))
}
