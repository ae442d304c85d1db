package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/artisanmarket-backend/pkg/db/models"
)

// Filters narrows lexical and semantic candidates. Field order matches the
// alphabetical JSON keys so the encoded form is canonical.
type Filters struct {
	Category string           `json:"category,omitempty"`
	MaxPrice *decimal.Decimal `json:"max_price,omitempty"`
	MinPrice *decimal.Decimal `json:"min_price,omitempty"`
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return f.Category == "" && f.MinPrice == nil && f.MaxPrice == nil
}

// Validate rejects negative or inverted price bounds.
func (f Filters) Validate() error {
	if f.MinPrice != nil && f.MinPrice.IsNegative() {
		return fmt.Errorf("min_price must be non-negative")
	}
	if f.MaxPrice != nil && f.MaxPrice.IsNegative() {
		return fmt.Errorf("max_price must be non-negative")
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return fmt.Errorf("min_price must not exceed max_price")
	}
	return nil
}

// LexicalHit is a full-text candidate ranked by ts_rank (higher is better).
type LexicalHit struct {
	ProductID string  `gorm:"column:product_id"`
	Rank      float64 `gorm:"column:rank"`
}

// VectorHit is a semantic candidate ranked by cosine distance (lower is better).
type VectorHit struct {
	ProductID string  `gorm:"column:product_id"`
	Distance  float64 `gorm:"column:distance"`
}

// Listing is a product row joined with its category and seller names.
type Listing struct {
	models.Product
	CategoryName string `gorm:"column:category_name"`
	SellerName   string `gorm:"column:seller_name"`
}

// ProductQuantity is a product with the units bought across a user's orders.
type ProductQuantity struct {
	ProductID string `gorm:"column:product_id" json:"product_id"`
	Name      string `gorm:"column:name" json:"name"`
	Quantity  int64  `gorm:"column:quantity" json:"quantity"`
}

// OrderStats summarises a user's confirmed orders.
type OrderStats struct {
	TotalOrders  int64             `json:"total_orders"`
	TotalSpent   decimal.Decimal   `json:"total_spent"`
	AverageOrder decimal.Decimal   `json:"average_order_value"`
	LastOrderAt  *time.Time        `json:"last_order_at,omitempty"`
	TopProducts  []ProductQuantity `json:"top_products"`
}

// Relational is the PostgreSQL adapter for products, stock and orders.
type Relational interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	GetProducts(ctx context.Context, ids []string) (map[string]models.Product, error)
	GetListing(ctx context.Context, id string) (*Listing, error)
	FindByLexical(ctx context.Context, terms string, filters Filters, k int) ([]LexicalHit, error)
	ReserveStock(ctx context.Context, id string, qty int) error
	RollbackReservation(ctx context.Context, id string, qty int) error
	CommitOrder(ctx context.Context, order *models.Order, writes []models.PendingGraphWrite) (uuid.UUID, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string, limit int) ([]models.Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID, userID string) (*models.Order, error)
	OrderStats(ctx context.Context, userID string, top int) (*OrderStats, error)
	ProductsInCategories(ctx context.Context, categoryIDs []string, k int) ([]string, error)
	Ping(ctx context.Context) error
}

// VectorIndex is the pgvector adapter over product description embeddings.
type VectorIndex interface {
	FindByEmbedding(ctx context.Context, vector []float32, k int, filters *Filters) ([]VectorHit, error)
	GetEmbedding(ctx context.Context, productID string) ([]float32, error)
}
