package products

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/artisanmarket-backend/internal/documents"
)

// Detail is the product page read model: the relational listing joined with
// its review and specification documents.
type Detail struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	Price         decimal.Decimal    `json:"price"`
	Stock         int                `json:"stock"`
	Tags          []string           `json:"tags"`
	CategoryID    string             `json:"category_id,omitempty"`
	CategoryName  string             `json:"category_name,omitempty"`
	SellerID      string             `json:"seller_id,omitempty"`
	SellerName    string             `json:"seller_name,omitempty"`
	Reviews       []documents.Review `json:"reviews"`
	ReviewCount   int                `json:"review_count"`
	AverageRating float64            `json:"average_rating"`
	SpecCategory  string             `json:"spec_category,omitempty"`
	Specs         map[string]any     `json:"specs"`
}
