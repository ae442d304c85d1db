package cart

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/artisanmarket-backend/pkg/enums"
)

// Line is one priced cart entry.
type Line struct {
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
	Unavailable bool            `json:"unavailable,omitempty"`
}

// Cart is the priced view of a user's cart snapshot.
type Cart struct {
	UserID    string           `json:"user_id"`
	Status    enums.CartStatus `json:"status"`
	Lines     []Line           `json:"lines"`
	Total     decimal.Decimal  `json:"total"`
	ExpiresIn time.Duration    `json:"expires_in"`
}
