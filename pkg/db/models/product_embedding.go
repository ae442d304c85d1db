package models

import "github.com/pgvector/pgvector-go"

// ProductEmbedding stores the description embedding used for semantic search.
type ProductEmbedding struct {
	ProductID string          `gorm:"column:product_id;type:varchar(10);primaryKey"`
	Embedding pgvector.Vector `gorm:"column:description_embedding;type:vector(384)"`
}
