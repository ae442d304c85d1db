package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
	pkgneo4j "github.com/angelmondragon/artisanmarket-backend/pkg/neo4j"
)

const dateLayout = "2006-01-02"

// PURCHASED edges are keyed by order so a replayed write lands on the same edge.
const recordPurchaseQuery = `
MERGE (u:User {id: $user_id})
MERGE (p:Product {id: $product_id})
MERGE (u)-[r:PURCHASED {order_id: $order_id}]->(p)
ON CREATE SET r.quantity = $quantity, r.date = $date`

const coPurchasedQuery = `
MATCH (p:Product {id: $product_id})<-[:PURCHASED]-(u:User)-[:PURCHASED]->(other:Product)
WHERE other.id <> $product_id
WITH other, count(DISTINCT u) AS freq
RETURN other.id AS product_id, freq AS score
ORDER BY score DESC, product_id ASC
LIMIT $limit`

const alsoBoughtQuery = `
MATCH (u:User {id: $user_id})-[:PURCHASED]->(:Product)<-[:PURCHASED]-(other:User)-[:PURCHASED]->(rec:Product)
WHERE other <> u AND NOT (u)-[:PURCHASED]->(rec)
WITH rec, count(DISTINCT other) AS freq
RETURN rec.id AS product_id, freq AS score
ORDER BY score DESC, product_id ASC
LIMIT $limit`

const similarToQuery = `
MATCH (p:Product {id: $product_id})-[r:SIMILAR_TO]->(s:Product)
RETURN s.id AS product_id, coalesce(r.score, 0.0) AS score
ORDER BY score DESC, product_id ASC
LIMIT $limit`

const purchasedByQuery = `
MATCH (u:User {id: $user_id})-[:PURCHASED]->(p:Product)
RETURN DISTINCT p.id AS product_id
ORDER BY product_id ASC`

// Dates are stored as YYYY-MM-DD strings, so lexical comparison is chronological.
const trendingQuery = `
MATCH (:User)-[r:PURCHASED]->(p:Product)
WHERE r.date >= $since
WITH p, count(r) AS recent
RETURN p.id AS product_id, recent AS score
ORDER BY score DESC, product_id ASC
LIMIT $limit`

const purchaseCountsQuery = `
UNWIND $product_ids AS pid
OPTIONAL MATCH (p:Product {id: pid})<-[:PURCHASED]-(u:User)
WITH pid, count(DISTINCT u) AS buyers
RETURN pid AS product_id, buyers AS score`

type runner interface {
	Read(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error)
	Write(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error)
	Ping(ctx context.Context) error
}

type store struct {
	db runner
}

// NewStore builds the graph adapter over a Neo4j client.
func NewStore(client *pkgneo4j.Client) (Store, error) {
	if client == nil {
		return nil, fmt.Errorf("neo4j client required")
	}
	return &store{db: client}, nil
}

// RecordPurchase merges the user, product and PURCHASED edge for one order line.
func (s *store) RecordPurchase(ctx context.Context, p Purchase) error {
	if strings.TrimSpace(p.UserID) == "" || strings.TrimSpace(p.ProductID) == "" || strings.TrimSpace(p.OrderID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user, product and order ids are required")
	}
	if p.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	params := map[string]any{
		"user_id":    p.UserID,
		"product_id": p.ProductID,
		"order_id":   p.OrderID,
		"quantity":   int64(p.Quantity),
		"date":       p.Date.UTC().Format(dateLayout),
	}
	if _, err := s.db.Write(ctx, recordPurchaseQuery, params); err != nil {
		return pkgneo4j.Classify(err, fmt.Sprintf("record purchase %s/%s", p.OrderID, p.ProductID))
	}
	return nil
}

// CoPurchased counts distinct buyers of productID who also bought each other product.
func (s *store) CoPurchased(ctx context.Context, productID string, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}
	records, err := s.db.Read(ctx, coPurchasedQuery, map[string]any{"product_id": productID, "limit": int64(k)})
	if err != nil {
		return nil, pkgneo4j.Classify(err, fmt.Sprintf("co-purchased for %s", productID))
	}
	return neighborsFrom(records)
}

// AlsoBought ranks products bought by users who share a purchase with userID,
// excluding anything userID already owns.
func (s *store) AlsoBought(ctx context.Context, userID string, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}
	records, err := s.db.Read(ctx, alsoBoughtQuery, map[string]any{"user_id": userID, "limit": int64(k)})
	if err != nil {
		return nil, pkgneo4j.Classify(err, fmt.Sprintf("also bought for %s", userID))
	}
	return neighborsFrom(records)
}

func (s *store) SimilarTo(ctx context.Context, productID string, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}
	records, err := s.db.Read(ctx, similarToQuery, map[string]any{"product_id": productID, "limit": int64(k)})
	if err != nil {
		return nil, pkgneo4j.Classify(err, fmt.Sprintf("similar to %s", productID))
	}
	return neighborsFrom(records)
}

// PurchasedBy returns the distinct product ids userID has bought.
func (s *store) PurchasedBy(ctx context.Context, userID string) ([]string, error) {
	records, err := s.db.Read(ctx, purchasedByQuery, map[string]any{"user_id": userID})
	if err != nil {
		return nil, pkgneo4j.Classify(err, fmt.Sprintf("purchases of %s", userID))
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		id, _, err := neo4j.GetRecordValue[string](rec, "product_id")
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode purchased product")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Trending counts PURCHASED edges dated on or after since.
func (s *store) Trending(ctx context.Context, since time.Time, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}
	params := map[string]any{"since": since.UTC().Format(dateLayout), "limit": int64(k)}
	records, err := s.db.Read(ctx, trendingQuery, params)
	if err != nil {
		return nil, pkgneo4j.Classify(err, "trending products")
	}
	return neighborsFrom(records)
}

// PurchaseCounts returns the distinct buyer count of every requested product,
// zero for products nobody bought.
func (s *store) PurchaseCounts(ctx context.Context, productIDs []string) ([]Neighbor, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	records, err := s.db.Read(ctx, purchaseCountsQuery, map[string]any{"product_ids": productIDs})
	if err != nil {
		return nil, pkgneo4j.Classify(err, "purchase counts")
	}
	return neighborsFrom(records)
}

func (s *store) Ping(ctx context.Context) error {
	return pkgneo4j.Classify(s.db.Ping(ctx), "ping neo4j")
}

func neighborsFrom(records []*neo4j.Record) ([]Neighbor, error) {
	out := make([]Neighbor, 0, len(records))
	for _, rec := range records {
		id, _, err := neo4j.GetRecordValue[string](rec, "product_id")
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode neighbor id")
		}
		raw, _ := rec.Get("score")
		score, err := toFloat(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("decode score for %s", id))
		}
		out = append(out, Neighbor{ProductID: id, Score: score})
	}
	SortNeighbors(out)
	return out, nil
}

// SortNeighbors orders by score descending, then product id ascending.
func SortNeighbors(ns []Neighbor) {
	sort.SliceStable(ns, func(i, j int) bool {
		if ns[i].Score != ns[j].Score {
			return ns[i].Score > ns[j].Score
		}
		return ns[i].ProductID < ns[j].ProductID
	})
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected score type %T", v)
	}
}
