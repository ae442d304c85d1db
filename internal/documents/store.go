package documents

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
	pkgmongo "github.com/angelmondragon/artisanmarket-backend/pkg/mongo"
)

// maxReviews bounds a single product's review fetch.
const maxReviews = 100

type collection interface {
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error)
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mongo.SingleResult
}

type pinger interface {
	Ping(ctx context.Context) error
}

type store struct {
	reviews collection
	specs   collection
	pinger  pinger
}

// NewStore builds the MongoDB-backed document store.
func NewStore(client *pkgmongo.Client) (Store, error) {
	if client == nil {
		return nil, fmt.Errorf("mongo client required")
	}
	return &store{
		reviews: client.Collection(pkgmongo.ReviewsCollection),
		specs:   client.Collection(pkgmongo.ProductSpecsCollection),
		pinger:  client,
	}, nil
}

// GetReviews returns a product's reviews, most helpful first. A product without
// reviews yields an empty slice rather than NotFound.
func (s *store) GetReviews(ctx context.Context, productID string) ([]Review, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "helpful_votes", Value: -1}, {Key: "created_at", Value: -1}}).
		SetLimit(maxReviews)
	cursor, err := s.reviews.Find(ctx, bson.M{"product_id": productID}, opts)
	if err != nil {
		return nil, pkgmongo.Classify(err, fmt.Sprintf("reviews for %s", productID))
	}
	defer cursor.Close(ctx)

	reviews := make([]Review, 0)
	if err := cursor.All(ctx, &reviews); err != nil {
		return nil, pkgmongo.Classify(err, fmt.Sprintf("decode reviews for %s", productID))
	}
	return reviews, nil
}

// GetSpecs returns the specification document or NotFound.
func (s *store) GetSpecs(ctx context.Context, productID string) (*Specs, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	var specs Specs
	if err := s.specs.FindOne(ctx, bson.M{"product_id": productID}).Decode(&specs); err != nil {
		return nil, pkgmongo.Classify(err, fmt.Sprintf("specs for %s", productID))
	}
	return &specs, nil
}

func (s *store) Ping(ctx context.Context) error {
	return pkgmongo.Classify(s.pinger.Ping(ctx), "ping mongo")
}
