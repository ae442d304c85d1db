package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/artisanmarket-backend/pkg/config"
	"github.com/angelmondragon/artisanmarket-backend/pkg/db"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
	"github.com/angelmondragon/artisanmarket-backend/pkg/migrate"
	"github.com/angelmondragon/artisanmarket-backend/pkg/mongo"
	"github.com/angelmondragon/artisanmarket-backend/pkg/neo4j"
)

type options struct {
	cmd      string
	dir      string
	name     string
	version  string
	embedded bool
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "command: up|down|status|version|create|validate|stores")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.BoolVar(&opts.embedded, "embedded", false, "use the migrations compiled into the binary")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fail(context.Background(), logg, "failed to load config", err)
	}

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"cmd":      opts.cmd,
		"dir":      opts.dir,
		"embedded": opts.embedded,
	})

	if err := run(ctx, cfg, logg, opts); err != nil {
		fail(ctx, logg, fmt.Sprintf("migrate %s failed", opts.cmd), err)
	}
	logg.Info(ctx, "migrate finished")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts options) error {
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return fmt.Errorf("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	case "validate":
		if opts.embedded {
			return migrate.ValidateFS(migrate.Embedded())
		}
		return migrate.ValidateDir(opts.dir)
	case "stores":
		return ensureStores(ctx, cfg, logg)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	switch opts.cmd {
	case "up", "down", "status":
		return goose(ctx, sqlDB, opts, opts.cmd)
	case "version":
		if opts.version == "" {
			return fmt.Errorf("missing -version for version command")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, opts.dir, opts.version)
	default:
		return fmt.Errorf("unknown -cmd value %q", opts.cmd)
	}
}

func goose(ctx context.Context, sqlDB *sql.DB, opts options, command string) error {
	if opts.embedded {
		return migrate.RunEmbedded(ctx, sqlDB, command)
	}
	return migrate.Run(ctx, sqlDB, opts.dir, command)
}

// ensureStores creates the MongoDB indexes and Neo4j constraints the read
// paths rely on. Both calls are idempotent.
func ensureStores(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	mongoClient, err := mongo.New(ctx, cfg.Mongo, logg)
	if err != nil {
		return err
	}
	defer mongoClient.Close(context.WithoutCancel(ctx))
	if err := mongoClient.EnsureIndexes(ctx); err != nil {
		return err
	}

	neo4jClient, err := neo4j.New(ctx, cfg.Neo4j, logg)
	if err != nil {
		return err
	}
	defer neo4jClient.Close(context.WithoutCancel(ctx))
	return neo4jClient.EnsureConstraints(ctx)
}

func fail(ctx context.Context, logg *logger.Logger, msg string, err error) {
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
