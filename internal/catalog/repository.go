package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/artisanmarket-backend/internal/repo"
	"github.com/angelmondragon/artisanmarket-backend/pkg/db"
	"github.com/angelmondragon/artisanmarket-backend/pkg/db/models"
	"github.com/angelmondragon/artisanmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
)

const searchDocument = `to_tsvector('english', p.name || ' ' || coalesce(p.description, '') || ' ' || coalesce(p.tags, ''))`

type repository struct {
	repo.Base
	client *db.Client
}

// NewRepository builds the relational adapter on top of the shared GORM client.
func NewRepository(client *db.Client) Relational {
	return &repository{Base: repo.NewBase(client.DB()), client: client}
}

func (r *repository) Ping(ctx context.Context) error {
	return db.Classify(r.client.Ping(ctx), "ping postgres")
}

func (r *repository) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := r.DB(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, db.Classify(err, fmt.Sprintf("product %s", id))
	}
	return &product, nil
}

func (r *repository) GetProducts(ctx context.Context, ids []string) (map[string]models.Product, error) {
	out := make(map[string]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []models.Product
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, db.Classify(err, "load products")
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (r *repository) GetListing(ctx context.Context, id string) (*Listing, error) {
	var listing Listing
	res := r.DB(ctx).
		Table("products AS p").
		Select("p.*, c.name AS category_name, s.name AS seller_name").
		Joins("LEFT JOIN categories c ON c.id = p.category_id").
		Joins("LEFT JOIN sellers s ON s.id = p.seller_id").
		Where("p.id = ?", id).
		Limit(1).
		Scan(&listing)
	if res.Error != nil {
		return nil, db.Classify(res.Error, fmt.Sprintf("product %s", id))
	}
	if res.RowsAffected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found", id))
	}
	return &listing, nil
}

// FindByLexical ranks products whose name, description or tags match the terms.
func (r *repository) FindByLexical(ctx context.Context, terms string, filters Filters, k int) ([]LexicalHit, error) {
	terms = strings.TrimSpace(terms)
	if terms == "" || k <= 0 {
		return nil, nil
	}

	query := r.DB(ctx).
		Table("products AS p").
		Select("p.id AS product_id, ts_rank("+searchDocument+", plainto_tsquery('english', ?)) AS rank", terms).
		Where(searchDocument+" @@ plainto_tsquery('english', ?)", terms)
	query = applyFilters(query, filters)

	var hits []LexicalHit
	if err := query.Order("rank DESC").Order("p.id ASC").Limit(k).Scan(&hits).Error; err != nil {
		return nil, db.Classify(err, "lexical search")
	}
	return hits, nil
}

func applyFilters(query *gorm.DB, filters Filters) *gorm.DB {
	if filters.Category != "" {
		query = query.Joins("JOIN categories c ON c.id = p.category_id").Where("c.name = ?", filters.Category)
	}
	if filters.MinPrice != nil {
		query = query.Where("p.price >= ?", *filters.MinPrice)
	}
	if filters.MaxPrice != nil {
		query = query.Where("p.price <= ?", *filters.MaxPrice)
	}
	return query
}

// ReserveStock decrements stock only when enough units remain, so concurrent
// reservations can never drive stock negative.
func (r *repository) ReserveStock(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	res := r.DB(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return db.Classify(res.Error, fmt.Sprintf("reserve %s", id))
	}
	if res.RowsAffected == 1 {
		return nil
	}

	product, err := r.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("insufficient stock for %s", id)).
		WithDetails(map[string]any{
			"product_id": id,
			"requested":  qty,
			"available":  product.Stock,
		})
}

func (r *repository) RollbackReservation(ctx context.Context, id string, qty int) error {
	return restoreStock(r.DB(ctx), id, qty)
}

func restoreStock(conn *gorm.DB, id string, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	res := conn.
		Model(&models.Product{}).
		Where("id = ?", id).
		UpdateColumn("stock", gorm.Expr("stock + ?", qty))
	if res.Error != nil {
		return db.Classify(res.Error, fmt.Sprintf("release %s", id))
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found", id))
	}
	return nil
}

// CommitOrder writes the order, its items and the queued graph writes in one transaction.
func (r *repository) CommitOrder(ctx context.Context, order *models.Order, writes []models.PendingGraphWrite) (uuid.UUID, error) {
	if order == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range writes {
		writes[i].OrderID = order.ID
	}

	err := r.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		if len(writes) == 0 {
			return nil
		}
		return tx.Create(&writes).Error
	})
	if err != nil {
		return uuid.Nil, db.Classify(err, "commit order")
	}
	return order.ID, nil
}

func (r *repository) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, db.Classify(err, fmt.Sprintf("order %s", id))
	}
	return &order, nil
}

func (r *repository) ListOrdersByUser(ctx context.Context, userID string, limit int) ([]models.Order, error) {
	var orders []models.Order
	query := r.DB(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, db.Classify(err, "list orders")
	}
	return orders, nil
}

// CancelOrder moves a pending or confirmed order owned by userID to cancelled
// and puts its units back in stock, all in one transaction. Another user's
// order reads as not found.
func (r *repository) CancelOrder(ctx context.Context, id uuid.UUID, userID string) (*models.Order, error) {
	var order models.Order
	err := r.client.WithTx(ctx, func(tx *gorm.DB) error {
		err := tx.Preload("Items", func(tx *gorm.DB) *gorm.DB { return tx.Order("position ASC") }).
			Where("id = ? AND user_id = ?", id, userID).
			First(&order).Error
		if err != nil {
			return err
		}
		if !order.Status.Cancellable() {
			return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("order %s is %s", id, order.Status)).
				WithDetails(map[string]any{"order_id": id.String(), "status": order.Status})
		}

		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", id, order.Status).
			Update("status", enums.OrderStatusCancelled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("order %s changed concurrently", id))
		}
		for _, item := range order.Items {
			if err := restoreStock(tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		order.Status = enums.OrderStatusCancelled
		return nil
	})
	if err != nil {
		return nil, db.Classify(err, fmt.Sprintf("cancel order %s", id))
	}
	return &order, nil
}

// OrderStats aggregates a user's confirmed orders and their most bought products.
func (r *repository) OrderStats(ctx context.Context, userID string, top int) (*OrderStats, error) {
	var orders []models.Order
	err := r.DB(ctx).
		Select("id", "total_amount", "created_at").
		Where("user_id = ? AND status = ?", userID, enums.OrderStatusConfirmed).
		Find(&orders).Error
	if err != nil {
		return nil, db.Classify(err, "order stats")
	}

	stats := &OrderStats{
		TotalOrders:  int64(len(orders)),
		TotalSpent:   decimal.Zero,
		AverageOrder: decimal.Zero,
		TopProducts:  []ProductQuantity{},
	}
	if len(orders) == 0 {
		return stats, nil
	}
	for i := range orders {
		stats.TotalSpent = stats.TotalSpent.Add(orders[i].TotalAmount)
		if stats.LastOrderAt == nil || orders[i].CreatedAt.After(*stats.LastOrderAt) {
			last := orders[i].CreatedAt
			stats.LastOrderAt = &last
		}
	}
	stats.AverageOrder = stats.TotalSpent.Div(decimal.NewFromInt(stats.TotalOrders)).Round(2)

	if top <= 0 {
		return stats, nil
	}
	err = r.DB(ctx).
		Table("order_items AS oi").
		Select("oi.product_id AS product_id, p.name AS name, SUM(oi.quantity) AS quantity").
		Joins("JOIN orders o ON o.id = oi.order_id").
		Joins("JOIN products p ON p.id = oi.product_id").
		Where("o.user_id = ? AND o.status = ?", userID, enums.OrderStatusConfirmed).
		Group("oi.product_id, p.name").
		Order("quantity DESC").
		Order("oi.product_id ASC").
		Limit(top).
		Scan(&stats.TopProducts).Error
	if err != nil {
		return nil, db.Classify(err, "top ordered products")
	}
	return stats, nil
}

// ProductsInCategories lists up to k product ids from the given categories in id order.
func (r *repository) ProductsInCategories(ctx context.Context, categoryIDs []string, k int) ([]string, error) {
	if len(categoryIDs) == 0 || k <= 0 {
		return nil, nil
	}
	var ids []string
	err := r.DB(ctx).
		Model(&models.Product{}).
		Where("category_id IN ?", categoryIDs).
		Order("id ASC").
		Limit(k).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, db.Classify(err, "products in categories")
	}
	return ids, nil
}
