package graph

import (
	"context"
	"time"
)

// Purchase is a single PURCHASED edge to record.
type Purchase struct {
	UserID    string
	ProductID string
	OrderID   string
	Quantity  int
	Date      time.Time
}

// Neighbor is a product reached from a seed with a graph score: a co-occurrence
// count for purchase traversals, the SIMILAR_TO weight otherwise.
type Neighbor struct {
	ProductID string
	Score     float64
}

// Store is the Neo4j adapter for purchase and similarity relationships.
type Store interface {
	RecordPurchase(ctx context.Context, p Purchase) error
	CoPurchased(ctx context.Context, productID string, k int) ([]Neighbor, error)
	AlsoBought(ctx context.Context, userID string, k int) ([]Neighbor, error)
	SimilarTo(ctx context.Context, productID string, k int) ([]Neighbor, error)
	PurchasedBy(ctx context.Context, userID string) ([]string, error)
	Trending(ctx context.Context, since time.Time, k int) ([]Neighbor, error)
	PurchaseCounts(ctx context.Context, productIDs []string) ([]Neighbor, error)
	Ping(ctx context.Context) error
}
