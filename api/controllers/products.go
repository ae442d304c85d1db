package controllers

import (
	"net/http"

	"github.com/angelmondragon/artisanmarket-backend/api/responses"
	"github.com/angelmondragon/artisanmarket-backend/api/validators"
	"github.com/angelmondragon/artisanmarket-backend/internal/products"
	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
)

// ProductDetail returns the joined product read model.
func ProductDetail(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		productID, err := validators.ParsePathID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithProductID(ctx, productID)
		}

		detail, err := svc.GetProductDetail(ctx, productID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, detail)
	}
}
