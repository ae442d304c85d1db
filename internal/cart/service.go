package cart

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/artisanmarket-backend/internal/cache"
	"github.com/angelmondragon/artisanmarket-backend/pkg/db/models"
	"github.com/angelmondragon/artisanmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
	"github.com/angelmondragon/artisanmarket-backend/pkg/retry"
)

const defaultTTL = 24 * time.Hour

type productLoader interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	GetProducts(ctx context.Context, ids []string) (map[string]models.Product, error)
}

// Service manages the Redis-backed cart snapshot.
type Service interface {
	AddItem(ctx context.Context, userID, productID string, qty int) error
	RemoveItem(ctx context.Context, userID, productID string) error
	UpdateQuantity(ctx context.Context, userID, productID string, qty int) error
	GetCart(ctx context.Context, userID string) (*Cart, error)
	CartTotal(ctx context.Context, userID string) (decimal.Decimal, error)
	ClearCart(ctx context.Context, userID string) error
	CartExpiry(ctx context.Context, userID string) (time.Duration, error)
	State(ctx context.Context, userID string) (enums.CartStatus, error)
}

type service struct {
	cache    *cache.Layer
	products productLoader
	logg     *logger.Logger
	ttl      time.Duration
	retry    retry.Policy
}

// NewService builds a cart service. A non-positive ttl defaults to 24h. Reads
// from the catalog and the cart hash are retried under policy; increments are not.
func NewService(layer *cache.Layer, products productLoader, logg *logger.Logger, ttl time.Duration, policy retry.Policy) (Service, error) {
	if layer == nil {
		return nil, fmt.Errorf("cache layer required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &service{cache: layer, products: products, logg: logg, ttl: ttl, retry: policy}, nil
}

func (s *service) product(ctx context.Context, id string) (*models.Product, error) {
	var product *models.Product
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		p, err := s.products.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		product = p
		return nil
	})
	return product, err
}

func (s *service) productsByID(ctx context.Context, ids []string) (map[string]models.Product, error) {
	var products map[string]models.Product
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		found, err := s.products.GetProducts(ctx, ids)
		if err != nil {
			return err
		}
		products = found
		return nil
	})
	return products, err
}

func (s *service) items(ctx context.Context, userID string) (map[string]int, error) {
	var items map[string]int
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		found, err := s.cache.CartItems(ctx, userID)
		if err != nil {
			return err
		}
		items = found
		return nil
	})
	return items, err
}

// AddItem adds qty units of a product. The cumulative quantity may never exceed
// stock; a racing add that overshoots is rolled back with a negative increment.
func (s *service) AddItem(ctx context.Context, userID, productID string, qty int) error {
	userID, productID = strings.TrimSpace(userID), strings.TrimSpace(productID)
	if err := validateIDs(userID, productID); err != nil {
		return err
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if err := s.ensureMutable(ctx, userID); err != nil {
		return err
	}

	product, err := s.product(ctx, productID)
	if err != nil {
		return err
	}
	items, err := s.items(ctx, userID)
	if err != nil {
		return err
	}
	if current := items[productID]; current+qty > product.Stock {
		return insufficientStock(productID, current+qty, product.Stock)
	}

	total, err := s.cache.CartIncr(ctx, userID, productID, qty)
	if err != nil {
		return err
	}
	if total > product.Stock {
		if err := s.undoIncrement(ctx, userID, productID, qty); err != nil {
			return err
		}
		return insufficientStock(productID, total, product.Stock)
	}
	return s.cache.CartTouch(ctx, userID, s.ttl)
}

func (s *service) undoIncrement(ctx context.Context, userID, productID string, qty int) error {
	left, err := s.cache.CartIncr(ctx, userID, productID, -qty)
	if err != nil {
		s.logg.Error(s.logg.WithProductID(s.logg.WithUserID(ctx, userID), productID), "failed to undo cart increment", err)
		return err
	}
	if left <= 0 {
		_, err = s.cache.CartRemove(ctx, userID, productID)
	}
	return err
}

// RemoveItem drops a product from the cart. Removing the last line empties the cart.
func (s *service) RemoveItem(ctx context.Context, userID, productID string) error {
	userID, productID = strings.TrimSpace(userID), strings.TrimSpace(productID)
	if err := validateIDs(userID, productID); err != nil {
		return err
	}
	if err := s.ensureMutable(ctx, userID); err != nil {
		return err
	}
	remaining, err := s.cache.CartRemove(ctx, userID, productID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return s.cache.CartTouch(ctx, userID, s.ttl)
	}
	return nil
}

// UpdateQuantity sets an absolute quantity. Zero or less removes the line.
func (s *service) UpdateQuantity(ctx context.Context, userID, productID string, qty int) error {
	if qty <= 0 {
		return s.RemoveItem(ctx, userID, productID)
	}
	userID, productID = strings.TrimSpace(userID), strings.TrimSpace(productID)
	if err := validateIDs(userID, productID); err != nil {
		return err
	}
	if err := s.ensureMutable(ctx, userID); err != nil {
		return err
	}
	product, err := s.product(ctx, productID)
	if err != nil {
		return err
	}
	if qty > product.Stock {
		return insufficientStock(productID, qty, product.Stock)
	}
	if err := s.cache.CartSet(ctx, userID, productID, qty); err != nil {
		return err
	}
	return s.cache.CartTouch(ctx, userID, s.ttl)
}

// GetCart prices the snapshot from the relational store. Lines are ordered by product id.
func (s *service) GetCart(ctx context.Context, userID string) (*Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	items, err := s.items(ctx, userID)
	if err != nil {
		return nil, err
	}
	status, err := s.status(ctx, userID, items)
	if err != nil {
		return nil, err
	}

	cart := &Cart{UserID: userID, Status: status, Lines: []Line{}, Total: decimal.Zero}
	if len(items) == 0 {
		return cart, nil
	}

	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	products, err := s.productsByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		line := Line{ProductID: id, Quantity: items[id], UnitPrice: decimal.Zero, LineTotal: decimal.Zero}
		if p, ok := products[id]; ok {
			line.Name = p.Name
			line.UnitPrice = p.Price
			line.LineTotal = p.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
			cart.Total = cart.Total.Add(line.LineTotal)
		} else {
			line.Unavailable = true
		}
		cart.Lines = append(cart.Lines, line)
	}

	ttl, err := s.cache.CartTTL(ctx, userID)
	if err != nil {
		return nil, err
	}
	cart.ExpiresIn = ttl
	return cart, nil
}

func (s *service) CartTotal(ctx context.Context, userID string) (decimal.Decimal, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return cart.Total, nil
}

func (s *service) ClearCart(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if err := s.ensureMutable(ctx, userID); err != nil {
		return err
	}
	return s.cache.ClearCart(ctx, userID)
}

// CartExpiry returns the remaining cart lifetime, zero when there is no cart.
func (s *service) CartExpiry(ctx context.Context, userID string) (time.Duration, error) {
	return s.cache.CartTTL(ctx, strings.TrimSpace(userID))
}

func (s *service) State(ctx context.Context, userID string) (enums.CartStatus, error) {
	userID = strings.TrimSpace(userID)
	items, err := s.items(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.status(ctx, userID, items)
}

func (s *service) status(ctx context.Context, userID string, items map[string]int) (enums.CartStatus, error) {
	converting, err := s.cache.IsConverting(ctx, userID)
	if err != nil {
		return "", err
	}
	switch {
	case converting:
		return enums.CartStatusConverting, nil
	case len(items) == 0:
		return enums.CartStatusEmpty, nil
	default:
		return enums.CartStatusActive, nil
	}
}

// ensureMutable rejects edits while the cart is being converted into an order.
func (s *service) ensureMutable(ctx context.Context, userID string) error {
	converting, err := s.cache.IsConverting(ctx, userID)
	if err != nil {
		return err
	}
	if converting {
		return pkgerrors.New(pkgerrors.CodeConflict, "cart is being checked out")
	}
	return nil
}

func validateIDs(userID, productID string) error {
	if userID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if productID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	return nil
}

func insufficientStock(productID string, requested, available int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("insufficient stock for %s", productID)).
		WithDetails(map[string]any{
			"product_id": productID,
			"requested":  requested,
			"available":  available,
		})
}
