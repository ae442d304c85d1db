package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/artisanmarket-backend/api/responses"
	"github.com/angelmondragon/artisanmarket-backend/api/validators"
	"github.com/angelmondragon/artisanmarket-backend/internal/recommendations"
	"github.com/angelmondragon/artisanmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
)

const maxRecommendationLimit = 50

func Recommendations(svc recommendations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recommendation service unavailable"))
			return
		}

		kind, err := enums.ParseRecommendationKind(chi.URLParam(r, "kind"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid recommendation kind").
				WithDetails(map[string]any{"field": "kind"}))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, maxRecommendationLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		seedID, err := validators.ParsePathID(r, "seedId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		set, err := svc.Recommend(r.Context(), kind, seedID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, set)
	}
}
