package products

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/artisanmarket-backend/internal/cache"
	"github.com/angelmondragon/artisanmarket-backend/internal/catalog"
	"github.com/angelmondragon/artisanmarket-backend/internal/documents"
	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
	"github.com/angelmondragon/artisanmarket-backend/pkg/redis"
	"github.com/angelmondragon/artisanmarket-backend/pkg/retry"
)

const defaultTTL = time.Hour

type listingReader interface {
	GetListing(ctx context.Context, id string) (*catalog.Listing, error)
}

// Service serves product detail pages.
type Service interface {
	GetProductDetail(ctx context.Context, productID string) (*Detail, error)
}

type ServiceParams struct {
	Relational listingReader
	Documents  documents.Store
	Cache      *cache.Layer
	Logger     *logger.Logger
	TTL        time.Duration
	Retry      retry.Policy
}

type service struct {
	relational listingReader
	documents  documents.Store
	cache      *cache.Layer
	logg       *logger.Logger
	ttl        time.Duration
	retry      retry.Policy
}

func NewService(p ServiceParams) (Service, error) {
	if p.Relational == nil {
		return nil, fmt.Errorf("relational store required")
	}
	if p.Documents == nil {
		return nil, fmt.Errorf("document store required")
	}
	if p.Cache == nil {
		return nil, fmt.Errorf("cache layer required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	ttl := p.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &service{
		relational: p.Relational,
		documents:  p.Documents,
		cache:      p.Cache,
		logg:       p.Logger,
		ttl:        ttl,
		retry:      p.Retry,
	}, nil
}

// GetProductDetail reads the detail through product:{id}. Missing review or
// spec documents yield empty sections; a missing product is NotFound.
func (s *service) GetProductDetail(ctx context.Context, productID string) (*Detail, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	ctx = s.logg.WithProductID(ctx, productID)

	detail, _, err := cache.ReadThrough(ctx, s.cache, redis.ProductKey(productID), cache.FixedTTL[*Detail](s.ttl),
		func(ctx context.Context) (*Detail, error) {
			return s.load(ctx, productID)
		})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *service) load(ctx context.Context, productID string) (*Detail, error) {
	var listing *catalog.Listing
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		var err error
		listing, err = s.relational.GetListing(ctx, productID)
		return err
	})
	if err != nil {
		return nil, err
	}

	var (
		reviews []documents.Review
		specs   *documents.Specs
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return retry.Do(gctx, s.retry, func(ctx context.Context) error {
			var err error
			reviews, err = s.documents.GetReviews(ctx, productID)
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				reviews, err = nil, nil
			}
			return err
		})
	})
	g.Go(func() error {
		return retry.Do(gctx, s.retry, func(ctx context.Context) error {
			var err error
			specs, err = s.documents.GetSpecs(ctx, productID)
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				specs, err = nil, nil
			}
			return err
		})
	})
	if err := g.Wait(); err != nil {
		s.logg.Error(ctx, "failed to load product documents", err)
		return nil, err
	}

	return buildDetail(listing, reviews, specs), nil
}

func buildDetail(listing *catalog.Listing, reviews []documents.Review, specs *documents.Specs) *Detail {
	if reviews == nil {
		reviews = []documents.Review{}
	}
	tags := listing.TagList()
	if tags == nil {
		tags = []string{}
	}
	detail := &Detail{
		ID:            listing.ID,
		Name:          listing.Name,
		Description:   listing.Description,
		Price:         listing.Price,
		Stock:         listing.Stock,
		Tags:          tags,
		CategoryID:    listing.CategoryID,
		CategoryName:  listing.CategoryName,
		SellerID:      listing.SellerID,
		SellerName:    listing.SellerName,
		Reviews:       reviews,
		ReviewCount:   len(reviews),
		AverageRating: documents.AverageRating(reviews),
		Specs:         map[string]any{},
	}
	if specs != nil {
		detail.SpecCategory = specs.Category
		if specs.Specs != nil {
			detail.Specs = specs.Specs
		}
	}
	return detail
}
