package controllers

import (
	"net/http"

	"github.com/angelmondragon/artisanmarket-backend/api/responses"
	"github.com/angelmondragon/artisanmarket-backend/api/validators"
	"github.com/angelmondragon/artisanmarket-backend/internal/catalog"
	"github.com/angelmondragon/artisanmarket-backend/internal/search"
	"github.com/angelmondragon/artisanmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
)

const (
	maxQueryLength    = 256
	maxCategoryLength = 64
	maxSearchLimit    = 50
)

// Search runs a fused product search.
func Search(svc search.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "search service unavailable"))
			return
		}

		query, err := parseSearchQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		results, err := svc.Search(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if results == nil {
			results = []search.Result{}
		}

		responses.WriteSuccess(w, map[string]any{
			"mode":    query.Mode,
			"results": results,
		})
	}
}

func parseSearchQuery(r *http.Request) (search.Query, error) {
	q := r.URL.Query()

	mode, err := enums.ParseSearchMode(q.Get("mode"))
	if err != nil {
		return search.Query{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid search mode").
			WithDetails(map[string]any{"field": "mode"})
	}
	limit, err := validators.ParseQueryInt(r, "limit", 0, 1, maxSearchLimit)
	if err != nil {
		return search.Query{}, err
	}
	minPrice, err := validators.ParseQueryDecimal(r, "min_price")
	if err != nil {
		return search.Query{}, err
	}
	maxPrice, err := validators.ParseQueryDecimal(r, "max_price")
	if err != nil {
		return search.Query{}, err
	}

	return search.Query{
		Text: validators.SanitizeString(q.Get("q"), maxQueryLength),
		Filters: catalog.Filters{
			Category: validators.SanitizeString(q.Get("category"), maxCategoryLength),
			MinPrice: minPrice,
			MaxPrice: maxPrice,
		},
		Mode:  mode,
		Limit: limit,
	}, nil
}
