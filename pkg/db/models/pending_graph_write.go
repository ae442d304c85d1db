package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/artisanmarket-backend/pkg/enums"
)

// PendingGraphWrite is a durable queue row for a PURCHASED edge. It is inserted
// in the same transaction as its order.
type PendingGraphWrite struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	OrderID      uuid.UUID              `gorm:"column:order_id;type:uuid;not null;index"`
	UserID       string                 `gorm:"column:user_id;type:varchar(10);not null"`
	ProductID    string                 `gorm:"column:product_id;type:varchar(10);not null"`
	Quantity     int                    `gorm:"column:quantity;not null"`
	PurchasedAt  time.Time              `gorm:"column:purchased_at;not null"`
	Status       enums.GraphWriteStatus `gorm:"column:status;type:varchar(20);not null;default:'pending';index"`
	AttemptCount int                    `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string                `gorm:"column:last_error"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time              `gorm:"column:updated_at;autoUpdateTime"`
	CompletedAt  *time.Time             `gorm:"column:completed_at"`
}

func (PendingGraphWrite) TableName() string {
	return "pending_graph_writes"
}

func (w *PendingGraphWrite) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
