package repo

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type ctxKey struct{}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	return conn
}

func TestBaseDBBindsContext(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), ctxKey{}, "U001")
	withCtx := base.DB(ctx)
	if withCtx.Statement == nil || withCtx.Statement.Context != ctx {
		t.Fatalf("expected context to flow through")
	}

	if base.DB(nil) != db {
		t.Fatalf("expected nil context to return raw connection")
	}
}

func TestBaseWithinPrefersTransaction(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)
	ctx := context.WithValue(context.Background(), ctxKey{}, "U001")

	err := db.Transaction(func(tx *gorm.DB) error {
		scoped := base.Within(ctx, tx)
		if scoped.Statement.ConnPool != tx.Statement.ConnPool {
			t.Fatalf("expected transaction connection to be used")
		}
		if scoped.Statement.Context != ctx {
			t.Fatalf("expected context to be bound to the transaction")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	if got := base.Within(ctx, nil); got.Statement.Context != ctx {
		t.Fatalf("expected base connection bound to context without a transaction")
	}
}
