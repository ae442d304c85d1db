package search

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/artisanmarket-backend/internal/catalog"
	"github.com/angelmondragon/artisanmarket-backend/pkg/enums"
)

const (
	defaultLimit = 10
	defaultK     = 50
)

// Query is a single search request.
type Query struct {
	Text    string
	Filters catalog.Filters
	Mode    enums.SearchMode
	Limit   int
}

// Sources records which sub-queries produced a result.
type Sources struct {
	Lexical  bool `json:"lexical"`
	Semantic bool `json:"semantic"`
}

// Result is one fused search hit. Raw scores are nil when the product was not
// returned by that sub-query.
type Result struct {
	ProductID          string          `json:"product_id"`
	Name               string          `json:"name"`
	Price              decimal.Decimal `json:"price"`
	LexicalScore       *float64        `json:"lexical_score,omitempty"`
	SemanticScore      *float64        `json:"semantic_score,omitempty"`
	NormalizedLexical  float64         `json:"normalized_lexical"`
	NormalizedSemantic float64         `json:"normalized_semantic"`
	FusedScore         float64         `json:"fused_score"`
	Sources            Sources         `json:"sources"`
}
