package migrate

import (
	"context"
	"fmt"
	"sort"

	"github.com/angelmondragon/artisanmarket-backend/pkg/config"
	"github.com/angelmondragon/artisanmarket-backend/pkg/db"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
)

// Provisioner prepares a non-relational store, e.g. Mongo indexes or Neo4j
// constraints. Implementations must be idempotent.
type Provisioner func(ctx context.Context) error

// MaybeRunDev applies the embedded goose migrations and then every
// provisioner, in name order, when the app runs in dev mode with
// auto-migrate enabled.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client, stores map[string]Provisioner) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "source": "embedded"})
	logg.Info(ctx, "running goose migrations (dev auto-run)")
	if err := RunEmbedded(ctx, sqlDB, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	return provision(ctx, logg, stores)
}

func provision(ctx context.Context, logg *logger.Logger, stores map[string]Provisioner) error {
	names := make([]string, 0, len(stores))
	for name := range stores {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if stores[name] == nil {
			continue
		}
		if err := stores[name](ctx); err != nil {
			return fmt.Errorf("provisioning %s: %w", name, err)
		}
		logg.Info(logg.WithField(ctx, "store", name), "store provisioned")
	}
	return nil
}
