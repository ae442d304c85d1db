package catalog

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/angelmondragon/artisanmarket-backend/internal/repo"
	"github.com/angelmondragon/artisanmarket-backend/pkg/db"
	"github.com/angelmondragon/artisanmarket-backend/pkg/db/models"
	"github.com/angelmondragon/artisanmarket-backend/pkg/embedding"
	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
)

type vectorIndex struct {
	repo.Base
}

// NewVectorIndex builds the pgvector adapter. Embeddings live next to the
// relational tables so filters can join products directly.
func NewVectorIndex(client *db.Client) VectorIndex {
	return &vectorIndex{Base: repo.NewBase(client.DB())}
}

// FindByEmbedding returns the k nearest products by cosine distance, ascending.
func (v *vectorIndex) FindByEmbedding(ctx context.Context, vector []float32, k int, filters *Filters) ([]VectorHit, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(vector) != embedding.Dimension {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("query vector has %d dimensions, want %d", len(vector), embedding.Dimension))
	}
	query := pgvector.NewVector(vector)

	tx := v.DB(ctx).
		Table("product_embeddings AS pe").
		Select("pe.product_id AS product_id, pe.description_embedding <=> ?::vector AS distance", query).
		Joins("JOIN products p ON p.id = pe.product_id")
	if filters != nil {
		tx = applyFilters(tx, *filters)
	}

	var hits []VectorHit
	if err := tx.Order("distance ASC").Order("pe.product_id ASC").Limit(k).Scan(&hits).Error; err != nil {
		return nil, db.Classify(err, "semantic search")
	}
	return hits, nil
}

func (v *vectorIndex) GetEmbedding(ctx context.Context, productID string) ([]float32, error) {
	var row models.ProductEmbedding
	err := v.DB(ctx).Where("product_id = ?", productID).First(&row).Error
	if err != nil {
		return nil, db.Classify(err, fmt.Sprintf("embedding for %s", productID))
	}
	return row.Embedding.Slice(), nil
}
