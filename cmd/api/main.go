package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/artisanmarket-backend/api/controllers"
	"github.com/angelmondragon/artisanmarket-backend/api/routes"
	"github.com/angelmondragon/artisanmarket-backend/internal/cache"
	"github.com/angelmondragon/artisanmarket-backend/internal/cart"
	"github.com/angelmondragon/artisanmarket-backend/internal/catalog"
	"github.com/angelmondragon/artisanmarket-backend/internal/documents"
	"github.com/angelmondragon/artisanmarket-backend/internal/graph"
	"github.com/angelmondragon/artisanmarket-backend/internal/orders"
	"github.com/angelmondragon/artisanmarket-backend/internal/products"
	"github.com/angelmondragon/artisanmarket-backend/internal/recommendations"
	"github.com/angelmondragon/artisanmarket-backend/internal/search"
	"github.com/angelmondragon/artisanmarket-backend/pkg/config"
	"github.com/angelmondragon/artisanmarket-backend/pkg/db"
	"github.com/angelmondragon/artisanmarket-backend/pkg/embedding"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
	"github.com/angelmondragon/artisanmarket-backend/pkg/metrics"
	"github.com/angelmondragon/artisanmarket-backend/pkg/migrate"
	"github.com/angelmondragon/artisanmarket-backend/pkg/mongo"
	"github.com/angelmondragon/artisanmarket-backend/pkg/neo4j"
	"github.com/angelmondragon/artisanmarket-backend/pkg/redis"
	"github.com/angelmondragon/artisanmarket-backend/pkg/retry"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	mongoClient, err := mongo.New(context.Background(), cfg.Mongo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap mongodb", err)
		os.Exit(1)
	}
	defer func() {
		if err := mongoClient.Close(context.Background()); err != nil {
			logg.Error(context.Background(), "error closing mongodb", err)
		}
	}()

	neo4jClient, err := neo4j.New(context.Background(), cfg.Neo4j, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap neo4j", err)
		os.Exit(1)
	}
	defer func() {
		if err := neo4jClient.Close(context.Background()); err != nil {
			logg.Error(context.Background(), "error closing neo4j", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient, map[string]migrate.Provisioner{
		"mongodb": mongoClient.EnsureIndexes,
		"neo4j":   neo4jClient.EnsureConstraints,
	}); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	embedder, err := embedding.NewHTTPEmbedder(cfg.Embedding)
	if err != nil {
		logg.Error(context.Background(), "failed to create embedder", err)
		os.Exit(1)
	}

	documentStore, err := documents.NewStore(mongoClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create document store", err)
		os.Exit(1)
	}
	graphStore, err := graph.NewStore(neo4jClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create graph store", err)
		os.Exit(1)
	}

	registry := prometheus.DefaultRegisterer
	queryMetrics := metrics.NewQueryMetrics(registry)
	layer, err := cache.NewLayer(redisClient, logg, metrics.NewCacheMetrics(registry))
	if err != nil {
		logg.Error(context.Background(), "failed to create cache layer", err)
		os.Exit(1)
	}

	relational := catalog.NewRepository(dbClient)
	vectorIndex := catalog.NewVectorIndex(dbClient)
	retryPolicy := retry.PolicyFromConfig(cfg.Retry)

	searchService, err := search.NewService(search.ServiceParams{
		Relational: relational,
		Vector:     vectorIndex,
		Embedder:   embedder,
		Cache:      layer,
		Logger:     logg,
		Metrics:    queryMetrics,
		Search:     cfg.Search,
		CacheTTL:   cfg.Cache,
		Retry:      retryPolicy,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create search service", err)
		os.Exit(1)
	}

	recommendationService, err := recommendations.NewService(recommendations.ServiceParams{
		Vector:  vectorIndex,
		Graph:   graphStore,
		Catalog: relational,
		Cache:   layer,
		Logger:  logg,
		Metrics: queryMetrics,
		Config:  cfg.Recommendations,
		TTL:     cfg.Cache.RecommendationTTL,
		Retry:   retryPolicy,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create recommendation service", err)
		os.Exit(1)
	}

	productService, err := products.NewService(products.ServiceParams{
		Relational: relational,
		Documents:  documentStore,
		Cache:      layer,
		Logger:     logg,
		TTL:        cfg.Cache.ProductTTL,
		Retry:      retryPolicy,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create product service", err)
		os.Exit(1)
	}

	cartService, err := cart.NewService(layer, relational, logg, cfg.Cart.TTL, retryPolicy)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Relational: relational,
		Queue:      orders.NewQueue(dbClient.DB()),
		Graph:      graphStore,
		DB:         dbClient,
		Cache:      layer,
		Logger:     logg,
		Metrics:    metrics.NewSagaMetrics(registry),
		Cart:       cfg.Cart,
		Reconciler: cfg.Reconciler,
		Retry:      retryPolicy,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:   cfg,
			Logger:   logg,
			Gatherer: prometheus.DefaultGatherer,
			Dependencies: map[string]controllers.Pinger{
				"postgres": dbClient,
				"redis":    layer,
				"mongodb":  documentStore,
				"neo4j":    graphStore,
			},
			Limiter:         layer,
			Search:          searchService,
			Products:        productService,
			Recommendations: recommendationService,
			Cart:            cartService,
			Orders:          orderService,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "api server shutdown failed", err)
	}
	logg.Info(shutdownCtx, "api server shutting down gracefully")
}
