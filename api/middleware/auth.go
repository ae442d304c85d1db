package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/artisanmarket-backend/api/responses"
	pkgAuth "github.com/angelmondragon/artisanmarket-backend/pkg/auth"
	"github.com/angelmondragon/artisanmarket-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
)

// Auth requires a valid access token and binds its subject to the request.
// Every /api/v1 route is per-user: carts, rate limits and alsoBought all key
// on the subject.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithUserID(r.Context(), claims.UserID)
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(raw, " ")
	if found && strings.EqualFold(scheme, "bearer") {
		raw = strings.TrimSpace(token)
	}
	return raw, raw != ""
}
