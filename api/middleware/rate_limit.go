package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/artisanmarket-backend/api/responses"
	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
)

// RateLimiter counts requests in a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, userID, action string, limit int, window time.Duration) (bool, error)
}

// RateLimitPolicy is a fixed window applied per user and action.
type RateLimitPolicy struct {
	action string
	window time.Duration
	limit  int
}

func NewRateLimitPolicy(action string, window time.Duration, limit int) RateLimitPolicy {
	return RateLimitPolicy{
		action: strings.ToLower(strings.TrimSpace(action)),
		window: window,
		limit:  limit,
	}
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && p.limit > 0 && p.action != ""
}

// RateLimit throttles authenticated requests with counters at rate:{userId}:{action}.
// It must run after Auth.
func RateLimit(policy RateLimitPolicy, limiter RateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || limiter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := UserIDFromContext(ctx)
			if userID == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user"))
				return
			}

			allowed, err := limiter.Allow(ctx, userID, policy.action, policy.limit, policy.window)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if !allowed {
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"action":         policy.action,
						"limit":          policy.limit,
						"window_seconds": int(policy.window.Seconds()),
					}), "rate_limit.blocked")
				}
				w.Header().Set("Retry-After", retryAfter(policy.window))
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func retryAfter(window time.Duration) string {
	seconds := int(window.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
