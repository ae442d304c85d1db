package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/artisanmarket-backend/internal/cache"
	"github.com/angelmondragon/artisanmarket-backend/internal/catalog"
	"github.com/angelmondragon/artisanmarket-backend/internal/graph"
	"github.com/angelmondragon/artisanmarket-backend/internal/orders"
	"github.com/angelmondragon/artisanmarket-backend/pkg/config"
	"github.com/angelmondragon/artisanmarket-backend/pkg/db"
	"github.com/angelmondragon/artisanmarket-backend/pkg/instance"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
	"github.com/angelmondragon/artisanmarket-backend/pkg/metrics"
	"github.com/angelmondragon/artisanmarket-backend/pkg/migrate"
	"github.com/angelmondragon/artisanmarket-backend/pkg/neo4j"
	"github.com/angelmondragon/artisanmarket-backend/pkg/redis"
	"github.com/angelmondragon/artisanmarket-backend/pkg/retry"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "graph-reconciler"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "graph-reconciler"

	logg = logger.New(logger.Options{
		ServiceName: "graph-reconciler",
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
		"neo4j": neo4jClient.EnsureConstraints,
	}); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	graphStore, err := graph.NewStore(neo4jClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create graph store", err)
		os.Exit(1)
	}

	layer, err := cache.NewLayer(redisClient, logg, metrics.NewCacheMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		logg.Error(context.Background(), "failed to create cache layer", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Relational: catalog.NewRepository(dbClient),
		Queue:      orders.NewQueue(dbClient.DB()),
		Graph:      graphStore,
		DB:         dbClient,
		Cache:      layer,
		Logger:     logg,
		Metrics:    metrics.NewSagaMetrics(prometheus.DefaultRegisterer),
		Cart:       cfg.Cart,
		Reconciler: cfg.Reconciler,
		Retry:      retry.PolicyFromConfig(cfg.Retry),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:  cfg,
		Logger:  logg,
		DB:      dbClient,
		Graph:   graphStore,
		Orders:  orderService,
		Metrics: metrics.NewJobMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create graph reconciler", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "graph-reconciler",
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting graph reconciler")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "graph reconciler stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "graph reconciler shutting down gracefully")
}
