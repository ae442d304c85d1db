package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/artisanmarket-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/artisanmarket-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/artisanmarket-backend/api/controllers/orders"
	"github.com/angelmondragon/artisanmarket-backend/api/middleware"
	"github.com/angelmondragon/artisanmarket-backend/internal/cart"
	"github.com/angelmondragon/artisanmarket-backend/internal/orders"
	"github.com/angelmondragon/artisanmarket-backend/internal/products"
	"github.com/angelmondragon/artisanmarket-backend/internal/recommendations"
	"github.com/angelmondragon/artisanmarket-backend/internal/search"
	"github.com/angelmondragon/artisanmarket-backend/pkg/config"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
)

// RouterParams carries everything the HTTP surface is built from.
type RouterParams struct {
	Config          *config.Config
	Logger          *logger.Logger
	Gatherer        prometheus.Gatherer
	Dependencies    map[string]controllers.Pinger
	Limiter         middleware.RateLimiter
	Search          search.Service
	Products        products.Service
	Recommendations recommendations.Service
	Cart            cart.Service
	Orders          orders.Service
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.CORS(cfg.App.CORSOrigins),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Get("/health/live", controllers.HealthLive(cfg))
	r.Get("/health/ready", controllers.HealthReady(cfg, p.Dependencies, logg))

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	limit := func(action string) func(http.Handler) http.Handler {
		policy := middleware.NewRateLimitPolicy(action, cfg.RateLimit.Window, cfg.RateLimit.Requests)
		return middleware.RateLimit(policy, p.Limiter, logg)
	}

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(middleware.Auth(cfg.JWT, logg))

		v1.With(limit("search")).Get("/search", controllers.Search(p.Search, logg))
		v1.With(limit("products")).Get("/products/{id}", controllers.ProductDetail(p.Products, logg))
		v1.With(limit("recommendations")).Get("/recommendations/{kind}/{seedId}", controllers.Recommendations(p.Recommendations, logg))

		v1.Route("/cart", func(r chi.Router) {
			r.Use(limit("cart"))
			r.Get("/", cartcontrollers.CartFetch(p.Cart, logg))
			r.Delete("/", cartcontrollers.CartClear(p.Cart, logg))
			r.Post("/items", cartcontrollers.CartAddItem(p.Cart, logg))
			r.Put("/items/{productId}", cartcontrollers.CartUpdateItem(p.Cart, logg))
			r.Delete("/items/{productId}", cartcontrollers.CartRemoveItem(p.Cart, logg))
		})

		v1.Route("/orders", func(r chi.Router) {
			r.Use(limit("orders"))
			r.Post("/", ordercontrollers.ConvertCart(p.Orders, logg))
			r.Get("/", ordercontrollers.ListOrders(p.Orders, logg))
			r.Get("/stats", ordercontrollers.OrderStats(p.Orders, logg))
			r.Get("/{id}", ordercontrollers.GetOrder(p.Orders, logg))
			r.Post("/{id}/cancel", ordercontrollers.CancelOrder(p.Orders, logg))
		})
	})

	return r
}
