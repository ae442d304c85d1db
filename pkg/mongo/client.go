package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/angelmondragon/artisanmarket-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
	"github.com/angelmondragon/artisanmarket-backend/pkg/logger"
)

const (
	ReviewsCollection      = "reviews"
	ProductSpecsCollection = "product_specs"
)

// Client wraps the shared MongoDB connection and the marketplace database.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB with the configured pool and verifies the primary is reachable.
func New(ctx context.Context, cfg config.MongoConfig, logg *logger.Logger) (*Client, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "mongo connection established")
	}
	return &Client{client: client, db: client.Database(cfg.Database)}, nil
}

// Collection returns a handle to the named collection.
func (c *Client) Collection(name string) *mongo.Collection {
	return c.db.Collection(name)
}

// EnsureIndexes creates the product_id lookups used by the document store.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	for _, name := range []string{ReviewsCollection, ProductSpecsCollection} {
		_, err := c.Collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "product_id", Value: 1}},
		})
		if err != nil {
			return fmt.Errorf("create %s index: %w", name, err)
		}
	}
	return nil
}

// Ping verifies the primary is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Classify maps a driver failure into the platform error taxonomy.
func Classify(err error, message string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, message)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, message)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, mongo.ErrClientDisconnected):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
	}
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) && serverErr.HasErrorLabel("RetryableWriteError") {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, message)
}
