package search

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/artisanmarket-backend/internal/cache"
	"github.com/angelmondragon/artisanmarket-backend/internal/catalog"
	"github.com/angelmondragon/artisanmarket-backend/pkg/config"
	"github.com/angelmondragon/artisanmarket-backend/pkg/db/models"
	"github.com/angelmondragon/artisanmarket-backend/pkg/embedding"
	"github.com/angelmondragon/artisanmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
	"github.com/angelmondragon/artisanmarket-backend/pkg/metrics"
	"github.com/angelmondragon/artisanmarket-backend/pkg/redis"
	"github.com/angelmondragon/artisanmarket-backend/pkg/retry"
)

type lexicalSource interface {
	FindByLexical(ctx context.Context, terms string, filters catalog.Filters, k int) ([]catalog.LexicalHit, error)
	GetProducts(ctx context.Context, ids []string) (map[string]models.Product, error)
}

type semanticSource interface {
	FindByEmbedding(ctx context.Context, vector []float32, k int, filters *catalog.Filters) ([]catalog.VectorHit, error)
}

// Service runs fused lexical and semantic product search.
type Service interface {
	Search(ctx context.Context, q Query) ([]Result, error)
}

// ServiceParams bundles the search engine dependencies.
type ServiceParams struct {
	Relational lexicalSource
	Vector     semanticSource
	Embedder   embedding.Embedder
	Cache      *cache.Layer
	Logger     *logger.Logger
	Metrics    *metrics.QueryMetrics
	Search     config.SearchConfig
	CacheTTL   config.CacheConfig
	Retry      retry.Policy
}

type service struct {
	relational  lexicalSource
	vector      semanticSource
	embedder    embedding.Embedder
	cache       *cache.Layer
	logg        *logger.Logger
	metrics     *metrics.QueryMetrics
	k           int
	lexWeight   float64
	semWeight   float64
	timeout     time.Duration
	ttl         time.Duration
	negativeTTL time.Duration
	retry       retry.Policy
}

// NewService validates dependencies and applies search defaults.
func NewService(p ServiceParams) (Service, error) {
	if p.Relational == nil {
		return nil, fmt.Errorf("relational store required")
	}
	if p.Vector == nil {
		return nil, fmt.Errorf("vector index required")
	}
	if p.Embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if p.Cache == nil {
		return nil, fmt.Errorf("cache layer required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	k := p.Search.CandidateK
	if k <= 0 {
		k = defaultK
	}
	lexWeight, semWeight := p.Search.LexicalWeight, p.Search.SemanticWeight
	if lexWeight+semWeight <= 0 {
		lexWeight, semWeight = 0.5, 0.5
	}
	timeout := p.Search.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ttl := p.CacheTTL.SearchTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	negativeTTL := p.CacheTTL.SearchNegativeTTL
	if negativeTTL <= 0 {
		negativeTTL = 5 * time.Minute
	}

	return &service{
		relational:  p.Relational,
		vector:      p.Vector,
		embedder:    p.Embedder,
		cache:       p.Cache,
		logg:        p.Logger,
		metrics:     p.Metrics,
		k:           k,
		lexWeight:   lexWeight,
		semWeight:   semWeight,
		timeout:     timeout,
		ttl:         ttl,
		negativeTTL: negativeTTL,
		retry:       p.Retry,
	}, nil
}

// Search returns up to limit products ranked by fused score. Results are cached
// under the query fingerprint; an empty result set uses the shorter negative TTL.
func (s *service) Search(ctx context.Context, q Query) ([]Result, error) {
	text := NormalizeText(q.Text)
	if text == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "query text is required")
	}
	if err := q.Filters.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	mode := q.Mode
	if mode == "" {
		mode = enums.SearchModeCombined
	}
	if !mode.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid search mode %q", mode))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > s.k {
		limit = s.k
	}

	fp, err := Fingerprint(text, q.Filters, mode, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fingerprint query")
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results, hit, err := cache.ReadThrough(ctx, s.cache, redis.SearchKey(fp), s.ttlFor, func(ctx context.Context) ([]Result, error) {
		return s.execute(ctx, text, q.Filters, mode, limit)
	})
	if err != nil && ctx.Err() != nil {
		err = pkgerrors.FromContext(ctx, "search timed out")
	}

	code := ""
	if err != nil {
		code = string(pkgerrors.CodeOf(err))
	}
	s.metrics.Observe("search", string(mode), code, time.Since(start))
	if err != nil {
		return nil, err
	}
	if hit {
		s.logg.Debug(s.logg.WithField(ctx, "fingerprint", fp), "search served from cache")
	}
	return results, nil
}

func (s *service) ttlFor(results []Result) time.Duration {
	if len(results) == 0 {
		return s.negativeTTL
	}
	return s.ttl
}

func (s *service) weights(mode enums.SearchMode) (float64, float64) {
	switch mode {
	case enums.SearchModeLexical:
		return 1, 0
	case enums.SearchModeSemantic:
		return 0, 1
	default:
		return s.lexWeight, s.semWeight
	}
}

// execute fans out to the sub-queries with non-zero weight, waits for both and
// fuses. Any sub-query failure fails the whole search.
func (s *service) execute(ctx context.Context, text string, filters catalog.Filters, mode enums.SearchMode, limit int) ([]Result, error) {
	wL, wS := s.weights(mode)

	var (
		lexical  []catalog.LexicalHit
		semantic []catalog.VectorHit
	)
	g, gctx := errgroup.WithContext(ctx)
	if wL > 0 {
		g.Go(func() error {
			return retry.Do(gctx, s.retry, func(ctx context.Context) error {
				hits, err := s.relational.FindByLexical(ctx, text, filters, s.k)
				if err != nil {
					return err
				}
				lexical = hits
				return nil
			})
		})
	}
	if wS > 0 {
		g.Go(func() error {
			return retry.Do(gctx, s.retry, func(ctx context.Context) error {
				vec, err := s.embedder.Embed(ctx, text)
				if err != nil {
					return err
				}
				var f *catalog.Filters
				if !filters.IsZero() {
					f = &filters
				}
				hits, err := s.vector.FindByEmbedding(ctx, vec, s.k, f)
				if err != nil {
					return err
				}
				semantic = hits
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := fuse(lexical, semantic, wL, wS)
	if len(fused) == 0 {
		return []Result{}, nil
	}

	ids := make([]string, len(fused))
	for i, r := range fused {
		ids[i] = r.ProductID
	}
	products, err := s.relational.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, limit)
	for _, r := range fused {
		p, ok := products[r.ProductID]
		if !ok {
			continue
		}
		r.Name = p.Name
		r.Price = p.Price
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
