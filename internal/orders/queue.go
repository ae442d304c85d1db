package orders

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/artisanmarket-backend/internal/repo"
	"github.com/angelmondragon/artisanmarket-backend/pkg/db"
	"github.com/angelmondragon/artisanmarket-backend/pkg/db/models"
	"github.com/angelmondragon/artisanmarket-backend/pkg/enums"
)

const maxErrorLength = 1000

// Queue persists the purchase edges that still have to reach the graph store.
type Queue interface {
	ListPending(ctx context.Context, limit int) ([]models.PendingGraphWrite, error)
	FetchPendingForUpdate(tx *gorm.DB, limit, maxAttempts int) ([]models.PendingGraphWrite, error)
	MarkDone(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
	MarkDoneTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkDeadTx(tx *gorm.DB, id uuid.UUID, err error) error
}

type queue struct {
	repo.Base
}

// NewQueue returns the pending_graph_writes repository.
func NewQueue(conn *gorm.DB) Queue {
	return &queue{Base: repo.NewBase(conn)}
}

func (q *queue) ListPending(ctx context.Context, limit int) ([]models.PendingGraphWrite, error) {
	var rows []models.PendingGraphWrite
	query := q.DB(ctx).
		Where("status = ?", enums.GraphWriteStatusPending).
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, db.Classify(err, "list pending graph writes")
	}
	return rows, nil
}

// FetchPendingForUpdate locks a batch of pending rows that still have attempts
// left. On Postgres concurrent reconcilers skip each other's rows.
func (q *queue) FetchPendingForUpdate(tx *gorm.DB, limit, maxAttempts int) ([]models.PendingGraphWrite, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	query := tx.Where("status = ?", enums.GraphWriteStatusPending)
	if maxAttempts > 0 {
		query = query.Where("attempt_count < ?", maxAttempts)
	}
	query = query.Order("created_at ASC").Order("id ASC").Limit(limit)
	if tx.Dialector != nil && tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}

	var rows []models.PendingGraphWrite
	if err := query.Find(&rows).Error; err != nil {
		return nil, db.Classify(err, "fetch pending graph writes")
	}
	return rows, nil
}

func (q *queue) MarkDone(ctx context.Context, id uuid.UUID) error {
	return q.update(ctx, nil, id, doneUpdates())
}

func (q *queue) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	return q.update(ctx, nil, id, failedUpdates(err))
}

func (q *queue) MarkDoneTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	return q.update(tx.Statement.Context, tx, id, doneUpdates())
}

func (q *queue) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	return q.update(tx.Statement.Context, tx, id, failedUpdates(err))
}

// MarkDeadTx parks a row for manual reconciliation.
func (q *queue) MarkDeadTx(tx *gorm.DB, id uuid.UUID, err error) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	updates := failedUpdates(err)
	updates["status"] = enums.GraphWriteStatusDead
	return q.update(tx.Statement.Context, tx, id, updates)
}

func (q *queue) update(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error {
	res := q.Within(ctx, tx).Model(&models.PendingGraphWrite{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return db.Classify(res.Error, fmt.Sprintf("update graph write %s", id))
	}
	return nil
}

func doneUpdates() map[string]any {
	return map[string]any{
		"status":       enums.GraphWriteStatusDone,
		"completed_at": time.Now().UTC(),
		"last_error":   nil,
	}
}

func failedUpdates(err error) map[string]any {
	return map[string]any{
		"last_error":    truncateError(err),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	}
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) <= maxErrorLength {
		return msg
	}
	cut := maxErrorLength
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
