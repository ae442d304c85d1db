package migrate

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/angelmondragon/artisanmarket-backend/pkg/config"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := ValidateFS(Embedded()); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("on-disk migrations invalid: %v", err)
	}
}

func TestCatalogMigrationContainsSchema(t *testing.T) {
	content := readMigration(t, "*_create_catalog_tables.sql")
	checks := []string{
		"CREATE TABLE IF NOT EXISTS products",
		"CHECK (stock >= 0)",
		"REFERENCES categories(id)",
		"to_tsvector('english'",
		"DROP TABLE IF EXISTS products",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestEmbeddingMigrationUsesCosineIndex(t *testing.T) {
	content := readMigration(t, "*_create_product_embeddings.sql")
	for _, sub := range []string{"vector(384)", "vector_cosine_ops", "DROP TABLE IF EXISTS product_embeddings"} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPendingGraphWritesMigration(t *testing.T) {
	content := readMigration(t, "*_create_pending_graph_writes.sql")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS pending_graph_writes",
		"CHECK (status IN ('pending', 'done', 'dead'))",
		"WHERE status = 'pending'",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCancelledOrderStatusMigration(t *testing.T) {
	content := readMigration(t, "*_allow_cancelled_orders.sql")
	for _, sub := range []string{
		"CHECK (status IN ('pending', 'confirmed', 'failed', 'cancelled'))",
		"UPDATE orders SET status = 'failed' WHERE status = 'cancelled'",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestValidateFSRejectsBadFiles(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name": {
			"create_things.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"no down": {
			"20260101000000_x.sql": {Data: []byte("-- +goose Up\n")},
		},
		"unbalanced": {
			"20260101000000_x.sql": {Data: []byte("-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n")},
		},
		"duplicate": {
			"20260101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"20260101000000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
	}
	for name, fsys := range cases {
		if err := ValidateFS(fsys); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Seller Index!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_seller_index.sql") {
		t.Fatalf("unexpected migration name %s", path)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
	if _, err := CreateSQLMigration(dir, "!!!"); err == nil {
		t.Fatalf("expected error for empty sanitized name")
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := fs.Glob(Embedded(), pattern)
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := os.ReadFile(filepath.Join("migrations", matches[0]))
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestProvisionRunsStoresInNameOrder(t *testing.T) {
	var order []string
	record := func(name string) Provisioner {
		return func(context.Context) error {
			order = append(order, name)
			return nil
		}
	}

	err := provision(context.Background(), logger.Nop(), map[string]Provisioner{
		"neo4j":   record("neo4j"),
		"mongodb": record("mongodb"),
		"skipped": nil,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(order, ",") != "mongodb,neo4j" {
		t.Fatalf("unexpected provisioning order %v", order)
	}

	err = provision(context.Background(), logger.Nop(), map[string]Provisioner{
		"mongodb": func(context.Context) error { return errors.New("index build failed") },
	})
	if err == nil || !strings.Contains(err.Error(), "provisioning mongodb") {
		t.Fatalf("expected wrapped provisioning error, got %v", err)
	}
}

func TestMaybeRunDevSkipsOutsideDev(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.Env = "prod"
	cfg.FeatureFlags.AutoMigrate = true
	called := false
	err := MaybeRunDev(context.Background(), cfg, logger.Nop(), nil, map[string]Provisioner{
		"mongodb": func(context.Context) error { called = true; return nil },
	})
	if err != nil || called {
		t.Fatalf("expected no-op outside dev, err=%v called=%v", err, called)
	}
}
