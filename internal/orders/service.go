package orders

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/artisanmarket-backend/internal/cache"
	"github.com/angelmondragon/artisanmarket-backend/internal/catalog"
	"github.com/angelmondragon/artisanmarket-backend/internal/graph"
	"github.com/angelmondragon/artisanmarket-backend/pkg/config"
	"github.com/angelmondragon/artisanmarket-backend/pkg/db/models"
	"github.com/angelmondragon/artisanmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
	"github.com/angelmondragon/artisanmarket-backend/pkg/metrics"
	"github.com/angelmondragon/artisanmarket-backend/pkg/redis"
	"github.com/angelmondragon/artisanmarket-backend/pkg/retry"
)

const (
	defaultConvertingTTL = 2 * time.Minute
	defaultMaxAttempts   = 10
	defaultConcurrency   = 4
)

type relationalStore interface {
	GetProducts(ctx context.Context, ids []string) (map[string]models.Product, error)
	ReserveStock(ctx context.Context, id string, qty int) error
	RollbackReservation(ctx context.Context, id string, qty int) error
	CommitOrder(ctx context.Context, order *models.Order, writes []models.PendingGraphWrite) (uuid.UUID, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string, limit int) ([]models.Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID, userID string) (*models.Order, error)
	OrderStats(ctx context.Context, userID string, top int) (*catalog.OrderStats, error)
}

type purchaseRecorder interface {
	RecordPurchase(ctx context.Context, p graph.Purchase) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service converts carts into orders and keeps the purchase graph in step.
type Service interface {
	ConvertToOrder(ctx context.Context, userID string) (*models.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListUserOrders(ctx context.Context, userID string, limit int) ([]models.Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID, userID string) (*models.Order, error)
	OrderStats(ctx context.Context, userID string) (*catalog.OrderStats, error)
	PendingGraphWrites(ctx context.Context, limit int) ([]models.PendingGraphWrite, error)
	DrainPendingGraphWrites(ctx context.Context, limit int) (DrainResult, error)
}

type ServiceParams struct {
	Relational relationalStore
	Queue      Queue
	Graph      purchaseRecorder
	DB         txRunner
	Cache      *cache.Layer
	Logger     *logger.Logger
	Metrics    *metrics.SagaMetrics
	Cart       config.CartConfig
	Reconciler config.ReconcilerConfig
	Retry      retry.Policy
}

type service struct {
	relational    relationalStore
	queue         Queue
	graph         purchaseRecorder
	db            txRunner
	cache         *cache.Layer
	logg          *logger.Logger
	metrics       *metrics.SagaMetrics
	convertingTTL time.Duration
	maxAttempts   int
	concurrency   int
	retry         retry.Policy
}

func NewService(params ServiceParams) (Service, error) {
	if params.Relational == nil {
		return nil, fmt.Errorf("relational store required")
	}
	if params.Queue == nil {
		return nil, fmt.Errorf("graph write queue required")
	}
	if params.Graph == nil {
		return nil, fmt.Errorf("graph store required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Cache == nil {
		return nil, fmt.Errorf("cache layer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	convertingTTL := params.Cart.ConvertingTTL
	if convertingTTL <= 0 {
		convertingTTL = defaultConvertingTTL
	}
	maxAttempts := params.Reconciler.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	concurrency := params.Reconciler.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &service{
		relational:    params.Relational,
		queue:         params.Queue,
		graph:         params.Graph,
		db:            params.DB,
		cache:         params.Cache,
		logg:          params.Logger,
		metrics:       params.Metrics,
		convertingTTL: convertingTTL,
		maxAttempts:   maxAttempts,
		concurrency:   concurrency,
		retry:         params.Retry,
	}, nil
}

// ConvertToOrder turns the user's cart into a confirmed order. Stock is reserved
// line by line in ascending product id order and released in reverse if any
// later step fails. The purchase graph is updated after commit and never rolls
// the order back.
func (s *service) ConvertToOrder(ctx context.Context, userID string) (order *models.Order, err error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	ctx = s.logg.WithUserID(ctx, userID)
	defer func() {
		code := ""
		if err != nil {
			code = string(pkgerrors.CodeOf(err))
		}
		s.metrics.Conversion(code)
	}()

	won, err := s.cache.MarkConverting(ctx, userID, s.convertingTTL)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "checkout already in progress")
	}
	defer func() {
		if clearErr := s.cache.ClearConverting(context.WithoutCancel(ctx), userID); clearErr != nil {
			s.logg.Error(ctx, "failed to clear converting marker", clearErr)
		}
	}()

	var items map[string]int
	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		found, err := s.cache.CartItems(ctx, userID)
		if err != nil {
			return err
		}
		items = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}

	lines := sortedLines(items)
	order, err = s.price(ctx, userID, lines)
	if err != nil {
		return nil, err
	}

	reserved := make([]cartLine, 0, len(lines))
	for _, line := range lines {
		if err := s.reserve(ctx, line); err != nil {
			return nil, s.compensate(ctx, reserved, err, "reserve")
		}
		reserved = append(reserved, line)
	}

	purchasedAt := time.Now().UTC()
	writes := make([]models.PendingGraphWrite, 0, len(lines))
	for _, line := range lines {
		writes = append(writes, models.PendingGraphWrite{
			UserID:      userID,
			ProductID:   line.ProductID,
			Quantity:    line.Quantity,
			PurchasedAt: purchasedAt,
			Status:      enums.GraphWriteStatusPending,
		})
	}

	err = retry.DoIf(ctx, retry.Once(s.retry.BaseDelay), isConflict, func(ctx context.Context) error {
		_, err := s.relational.CommitOrder(ctx, order, writes)
		return err
	})
	if err != nil {
		return nil, s.compensate(ctx, reserved, err, "commit")
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	s.recordPurchases(ctx, order.ID, writes)
	s.invalidate(ctx, userID, lines)
	s.logg.Info(ctx, "order confirmed")
	return order, nil
}

// reserve retries a store-detected conflict once. Other failures are not
// retried because the decrement may already have been applied.
func (s *service) reserve(ctx context.Context, line cartLine) error {
	return retry.DoIf(ctx, retry.Once(s.retry.BaseDelay), isConflict, func(ctx context.Context) error {
		return s.relational.ReserveStock(ctx, line.ProductID, line.Quantity)
	})
}

func sortedLines(items map[string]int) []cartLine {
	lines := make([]cartLine, 0, len(items))
	for productID, qty := range items {
		lines = append(lines, cartLine{ProductID: productID, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines
}

func (s *service) price(ctx context.Context, userID string, lines []cartLine) (*models.Order, error) {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid quantity for %s", line.ProductID)).
				WithDetails(map[string]any{"product_id": line.ProductID, "requested": line.Quantity})
		}
		ids = append(ids, line.ProductID)
	}
	var products map[string]models.Product
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		found, err := s.relational.GetProducts(ctx, ids)
		if err != nil {
			return err
		}
		products = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:          uuid.New(),
		UserID:      userID,
		Status:      enums.OrderStatusConfirmed,
		TotalAmount: decimal.Zero,
		Items:       make([]models.OrderItem, 0, len(lines)),
	}
	for i, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found", line.ProductID)).
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		lineTotal := product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		order.Items = append(order.Items, models.OrderItem{
			ProductID:  line.ProductID,
			Position:   i + 1,
			Quantity:   line.Quantity,
			UnitPrice:  product.Price,
			TotalPrice: lineTotal,
		})
		order.TotalAmount = order.TotalAmount.Add(lineTotal)
	}
	return order, nil
}

// compensate releases reserved lines in reverse order. When every release
// succeeds the original cause is returned; otherwise the failure is surfaced
// as a dependency error listing what could not be released.
func (s *service) compensate(ctx context.Context, reserved []cartLine, cause error, step string) error {
	releaseCtx := context.WithoutCancel(ctx)
	var (
		errs     error
		failures []map[string]any
	)
	for i := len(reserved) - 1; i >= 0; i-- {
		line := reserved[i]
		if err := s.relational.RollbackReservation(releaseCtx, line.ProductID, line.Quantity); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("release %s: %w", line.ProductID, err))
			failures = append(failures, map[string]any{
				"product_id":        line.ProductID,
				"reserved_quantity": line.Quantity,
			})
		}
	}
	if len(reserved) > 0 {
		s.metrics.Compensation(errs == nil)
	}
	if errs == nil {
		return cause
	}

	s.logg.Error(s.logg.WithFields(ctx, map[string]any{
		"step":     step,
		"failures": failures,
		"cause":    cause.Error(),
	}), "order compensation failed", errs)
	return pkgerrors.Wrap(pkgerrors.CodeDependency, multierr.Append(cause, errs), "order compensation failed").
		WithDetails(map[string]any{
			"step":     step,
			"failures": failures,
		})
}

func (s *service) recordPurchases(ctx context.Context, orderID uuid.UUID, writes []models.PendingGraphWrite) {
	for _, w := range writes {
		err := s.graph.RecordPurchase(ctx, purchaseFrom(w, orderID))
		s.metrics.GraphWrite(err == nil)
		if err != nil {
			s.logg.Warn(s.logg.WithField(s.logg.WithProductID(ctx, w.ProductID), "error", err.Error()), "purchase edge deferred to reconciler")
			if markErr := s.queue.MarkFailed(ctx, w.ID, err); markErr != nil {
				s.logg.Error(ctx, "failed to record graph write failure", markErr)
			}
			continue
		}
		if markErr := s.queue.MarkDone(ctx, w.ID); markErr != nil {
			s.logg.Error(s.logg.WithProductID(ctx, w.ProductID), "failed to mark graph write done", markErr)
		}
	}
}

func (s *service) invalidate(ctx context.Context, userID string, lines []cartLine) {
	keys := []string{redis.CartKey(userID)}
	for _, line := range lines {
		keys = append(keys, redis.ProductKey(line.ProductID))
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		s.logg.Error(ctx, "failed to invalidate order cache keys", err)
	}

	prefixes := []string{
		redis.RecommendationPrefix(string(enums.RecommendationAlsoBought), userID),
		redis.RecommendationPrefix(string(enums.RecommendationCategoryAffinity), userID),
	}
	for _, line := range lines {
		prefixes = append(prefixes, redis.RecommendationPrefix(string(enums.RecommendationFrequentlyBoughtTogether), line.ProductID))
	}
	for _, prefix := range prefixes {
		if _, err := s.cache.InvalidatePrefix(ctx, prefix); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "prefix", prefix), "failed to invalidate recommendations")
		}
	}
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	return s.relational.GetOrder(ctx, id)
}

func (s *service) ListUserOrders(ctx context.Context, userID string, limit int) ([]models.Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.relational.ListOrdersByUser(ctx, userID, limit)
}

// CancelOrder cancels one of userID's pending or confirmed orders and restores
// its stock. Purchase edges already in the graph are kept.
func (s *service) CancelOrder(ctx context.Context, id uuid.UUID, userID string) (*models.Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	ctx = s.logg.WithOrderID(s.logg.WithUserID(ctx, userID), id.String())

	order, err := s.relational.CancelOrder(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		keys = append(keys, redis.ProductKey(item.ProductID))
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		s.logg.Error(ctx, "failed to invalidate cancelled order products", err)
	}
	s.logg.Info(ctx, "order cancelled")
	return order, nil
}

func (s *service) OrderStats(ctx context.Context, userID string) (*catalog.OrderStats, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	var stats *catalog.OrderStats
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		found, err := s.relational.OrderStats(ctx, userID, topStatsProducts)
		if err != nil {
			return err
		}
		stats = found
		return nil
	})
	return stats, err
}

func (s *service) PendingGraphWrites(ctx context.Context, limit int) ([]models.PendingGraphWrite, error) {
	return s.queue.ListPending(ctx, limit)
}

// DrainPendingGraphWrites replays one locked batch of queued purchase edges.
// Graph calls run concurrently; row updates happen in the batch transaction.
func (s *service) DrainPendingGraphWrites(ctx context.Context, limit int) (DrainResult, error) {
	var result DrainResult
	if limit <= 0 {
		return result, pkgerrors.New(pkgerrors.CodeValidation, "limit must be positive")
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.queue.FetchPendingForUpdate(tx, limit, s.maxAttempts)
		if err != nil {
			return err
		}
		result.Fetched = len(rows)
		if len(rows) == 0 {
			return nil
		}

		outcomes := make([]error, len(rows))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.concurrency)
		for i := range rows {
			g.Go(func() error {
				outcomes[i] = s.graph.RecordPurchase(gctx, purchaseFrom(rows[i], rows[i].OrderID))
				return nil
			})
		}
		_ = g.Wait()

		for i, row := range rows {
			rowErr := outcomes[i]
			if rowErr == nil {
				if err := s.queue.MarkDoneTx(tx, row.ID); err != nil {
					return err
				}
				result.Done++
				continue
			}

			fields := map[string]any{
				"graph_write_id": row.ID.String(),
				"order_id":       row.OrderID.String(),
				"attempt_count":  row.AttemptCount + 1,
				"error":          rowErr.Error(),
			}
			if row.AttemptCount+1 >= s.maxAttempts {
				s.logg.Warn(s.logg.WithFields(ctx, fields), "graph write parked for manual reconciliation")
				if err := s.queue.MarkDeadTx(tx, row.ID, rowErr); err != nil {
					return err
				}
				result.Dead++
				continue
			}
			s.logg.Warn(s.logg.WithFields(ctx, fields), "graph write failed")
			if err := s.queue.MarkFailedTx(tx, row.ID, rowErr); err != nil {
				return err
			}
			result.Failed++
		}
		return nil
	})
	if err != nil {
		return result, err
	}
	return result, nil
}

func purchaseFrom(w models.PendingGraphWrite, orderID uuid.UUID) graph.Purchase {
	return graph.Purchase{
		UserID:    w.UserID,
		ProductID: w.ProductID,
		OrderID:   orderID.String(),
		Quantity:  w.Quantity,
		Date:      w.PurchasedAt,
	}
}

func isConflict(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeConflict)
}
