package recommendations

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

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

type graphReader interface {
	CoPurchased(ctx context.Context, productID string, k int) ([]graph.Neighbor, error)
	AlsoBought(ctx context.Context, userID string, k int) ([]graph.Neighbor, error)
	SimilarTo(ctx context.Context, productID string, k int) ([]graph.Neighbor, error)
	PurchasedBy(ctx context.Context, userID string) ([]string, error)
	Trending(ctx context.Context, since time.Time, k int) ([]graph.Neighbor, error)
	PurchaseCounts(ctx context.Context, productIDs []string) ([]graph.Neighbor, error)
}

type catalogReader interface {
	GetProducts(ctx context.Context, ids []string) (map[string]models.Product, error)
	ProductsInCategories(ctx context.Context, categoryIDs []string, k int) ([]string, error)
}

// Service answers every recommendation query shape.
type Service interface {
	Recommend(ctx context.Context, kind enums.RecommendationKind, seedID string, limit int) (*Set, error)
}

// ServiceParams bundles the recommendation engine dependencies.
type ServiceParams struct {
	Vector  catalog.VectorIndex
	Graph   graphReader
	Catalog catalogReader
	Cache   *cache.Layer
	Logger  *logger.Logger
	Metrics *metrics.QueryMetrics
	Config  config.RecommendationsConfig
	TTL     time.Duration
	Retry   retry.Policy
}

type service struct {
	vector  catalog.VectorIndex
	graph   graphReader
	catalog catalogReader
	cache   *cache.Layer
	logg    *logger.Logger
	metrics *metrics.QueryMetrics
	timeout time.Duration
	ttl     time.Duration
	retry   retry.Policy
	now     func() time.Time
}

func NewService(p ServiceParams) (Service, error) {
	if p.Vector == nil {
		return nil, fmt.Errorf("vector index required")
	}
	if p.Graph == nil {
		return nil, fmt.Errorf("graph store required")
	}
	if p.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if p.Cache == nil {
		return nil, fmt.Errorf("cache layer required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	timeout := p.Config.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ttl := p.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &service{
		vector:  p.Vector,
		graph:   p.Graph,
		catalog: p.Catalog,
		cache:   p.Cache,
		logg:    p.Logger,
		metrics: p.Metrics,
		timeout: timeout,
		ttl:     ttl,
		retry:   p.Retry,
		now:     time.Now,
	}, nil
}

func (s *service) Recommend(ctx context.Context, kind enums.RecommendationKind, seedID string, limit int) (*Set, error) {
	if !kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown recommendation kind %q", kind))
	}
	seedID = strings.TrimSpace(seedID)
	if seedID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seed id is required")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := redis.RecommendationKey(string(kind), seedID, limit)
	set, _, err := cache.ReadThrough(ctx, s.cache, key, cache.FixedTTL[*Set](s.ttl), func(ctx context.Context) (*Set, error) {
		items, err := s.compute(ctx, kind, seedID, limit)
		if err != nil {
			return nil, err
		}
		return &Set{Kind: kind, SeedID: seedID, Items: items, GeneratedAt: s.now().UTC()}, nil
	})
	if err != nil && ctx.Err() != nil {
		err = pkgerrors.FromContext(ctx, "recommendations timed out")
	}

	code := ""
	if err != nil {
		code = string(pkgerrors.CodeOf(err))
	}
	s.metrics.Observe("recommendations", string(kind), code, time.Since(start))
	if err != nil {
		return nil, err
	}
	return set, nil
}

func (s *service) compute(ctx context.Context, kind enums.RecommendationKind, seedID string, limit int) ([]Item, error) {
	switch kind {
	case enums.RecommendationSimilar:
		return s.similar(ctx, seedID, limit)
	case enums.RecommendationAlsoBought:
		return s.alsoBought(ctx, seedID, limit)
	case enums.RecommendationTrending:
		return s.trending(ctx, seedID, limit)
	case enums.RecommendationCategory:
		return s.categoryPopular(ctx, seedID, limit)
	case enums.RecommendationCategoryAffinity:
		return s.categoryAffinity(ctx, seedID, limit)
	default:
		return s.boughtTogether(ctx, seedID, limit)
	}
}

// similar ranks by embedding distance and falls back to SIMILAR_TO edges when
// the seed has no embedding.
func (s *service) similar(ctx context.Context, productID string, limit int) ([]Item, error) {
	var vec []float32
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		v, err := s.vector.GetEmbedding(ctx, productID)
		vec = v
		return err
	})
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		s.logg.Debug(s.logg.WithProductID(ctx, productID), "no embedding, using graph similarity")
		return s.similarFromGraph(ctx, productID, limit)
	}
	if err != nil {
		return nil, err
	}

	var hits []catalog.VectorHit
	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		h, err := s.vector.FindByEmbedding(ctx, vec, limit+1, nil)
		hits = h
		return err
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ProductID < hits[j].ProductID
	})
	items := make([]Item, 0, limit)
	for _, h := range hits {
		if h.ProductID == productID {
			continue
		}
		items = append(items, Item{ProductID: h.ProductID, Score: 1 - h.Distance, Reason: enums.ReasonSimilarContent})
		if len(items) == limit {
			break
		}
	}
	return items, nil
}

func (s *service) similarFromGraph(ctx context.Context, productID string, limit int) ([]Item, error) {
	var neighbors []graph.Neighbor
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		n, err := s.graph.SimilarTo(ctx, productID, limit+1)
		neighbors = n
		return err
	})
	if err != nil {
		return nil, err
	}
	return toItems(neighbors, limit, enums.ReasonSimilarGraph, map[string]struct{}{productID: {}}), nil
}

// alsoBought loads co-purchase candidates and the user's own purchases in
// parallel and drops anything the user already owns.
func (s *service) alsoBought(ctx context.Context, userID string, limit int) ([]Item, error) {
	var (
		candidates []graph.Neighbor
		owned      []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return retry.Do(gctx, s.retry, func(ctx context.Context) error {
			n, err := s.graph.AlsoBought(ctx, userID, limit*2)
			candidates = n
			return err
		})
	})
	g.Go(func() error {
		return retry.Do(gctx, s.retry, func(ctx context.Context) error {
			ids, err := s.graph.PurchasedBy(ctx, userID)
			owned = ids
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	exclude := make(map[string]struct{}, len(owned))
	for _, id := range owned {
		exclude[id] = struct{}{}
	}
	return toItems(candidates, limit, enums.ReasonAlsoBought, exclude), nil
}

func (s *service) boughtTogether(ctx context.Context, productID string, limit int) ([]Item, error) {
	var neighbors []graph.Neighbor
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		n, err := s.graph.CoPurchased(ctx, productID, limit+1)
		neighbors = n
		return err
	})
	if err != nil {
		return nil, err
	}
	return toItems(neighbors, limit, enums.ReasonBoughtTogether, map[string]struct{}{productID: {}}), nil
}

// trending ranks products by purchases inside a window of days given as the seed.
func (s *service) trending(ctx context.Context, window string, limit int) ([]Item, error) {
	days, err := strconv.Atoi(window)
	if err != nil || days < 1 || days > maxTrendingDays {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("trending window must be between 1 and %d days", maxTrendingDays)).
			WithDetails(map[string]any{"field": "seedId"})
	}
	since := s.now().UTC().AddDate(0, 0, -days)

	var neighbors []graph.Neighbor
	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		n, err := s.graph.Trending(ctx, since, limit)
		neighbors = n
		return err
	})
	if err != nil {
		return nil, err
	}
	return toItems(neighbors, limit, enums.ReasonTrending, nil), nil
}

// categoryPopular ranks a category's products by distinct buyers, including
// products nobody has bought yet.
func (s *service) categoryPopular(ctx context.Context, categoryID string, limit int) ([]Item, error) {
	return s.popularIn(ctx, []string{categoryID}, nil, limit, enums.ReasonCategory)
}

// categoryAffinity finds the user's most purchased categories and recommends
// their most popular products the user does not own yet.
func (s *service) categoryAffinity(ctx context.Context, userID string, limit int) ([]Item, error) {
	var owned []string
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		ids, err := s.graph.PurchasedBy(ctx, userID)
		owned = ids
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(owned) == 0 {
		return []Item{}, nil
	}

	var products map[string]models.Product
	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		found, err := s.catalog.GetProducts(ctx, owned)
		products = found
		return err
	})
	if err != nil {
		return nil, err
	}

	exclude := make(map[string]struct{}, len(owned))
	counts := make(map[string]int)
	for _, id := range owned {
		exclude[id] = struct{}{}
		if p, ok := products[id]; ok && p.CategoryID != "" {
			counts[p.CategoryID]++
		}
	}
	return s.popularIn(ctx, topCategories(counts, affinityCategories), exclude, limit, enums.ReasonCategoryMatch)
}

func (s *service) popularIn(ctx context.Context, categoryIDs []string, exclude map[string]struct{}, limit int, reason enums.RecommendationReason) ([]Item, error) {
	if len(categoryIDs) == 0 {
		return []Item{}, nil
	}
	var candidates []string
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		ids, err := s.catalog.ProductsInCategories(ctx, categoryIDs, maxCategoryCandidates)
		candidates = ids
		return err
	})
	if err != nil {
		return nil, err
	}

	pool := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if _, skip := exclude[id]; !skip {
			pool = append(pool, id)
		}
	}
	if len(pool) == 0 {
		return []Item{}, nil
	}

	var counts []graph.Neighbor
	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		n, err := s.graph.PurchaseCounts(ctx, pool)
		counts = n
		return err
	})
	if err != nil {
		return nil, err
	}
	return toItems(counts, limit, reason, exclude), nil
}

// topCategories returns up to n category ids by count descending, then id ascending.
func topCategories(counts map[string]int, n int) []string {
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

// toItems sorts by score descending then id ascending, skips excluded ids and truncates.
func toItems(neighbors []graph.Neighbor, limit int, reason enums.RecommendationReason, exclude map[string]struct{}) []Item {
	sorted := append([]graph.Neighbor(nil), neighbors...)
	graph.SortNeighbors(sorted)

	items := make([]Item, 0, limit)
	for _, n := range sorted {
		if _, skip := exclude[n.ProductID]; skip {
			continue
		}
		items = append(items, Item{ProductID: n.ProductID, Score: n.Score, Reason: reason})
		if len(items) == limit {
			break
		}
	}
	return items
}
