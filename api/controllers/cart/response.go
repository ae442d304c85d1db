package cart

import (
	"github.com/shopspring/decimal"

	cartsvc "github.com/angelmondragon/artisanmarket-backend/internal/cart"
	"github.com/angelmondragon/artisanmarket-backend/pkg/enums"
)

type cartResponse struct {
	UserID           string           `json:"user_id"`
	Status           enums.CartStatus `json:"status"`
	Lines            []cartsvc.Line   `json:"lines"`
	Total            decimal.Decimal  `json:"total"`
	ExpiresInSeconds int64            `json:"expires_in_seconds"`
}

func newCartResponse(c *cartsvc.Cart) cartResponse {
	if c == nil {
		return cartResponse{Lines: []cartsvc.Line{}, Total: decimal.Zero}
	}
	lines := c.Lines
	if lines == nil {
		lines = []cartsvc.Line{}
	}
	return cartResponse{
		UserID:           c.UserID,
		Status:           c.Status,
		Lines:            lines,
		Total:            c.Total,
		ExpiresInSeconds: int64(c.ExpiresIn.Seconds()),
	}
}
