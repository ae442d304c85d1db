package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/artisanmarket-backend/pkg/db/models"
	"github.com/angelmondragon/artisanmarket-backend/pkg/enums"
)

type orderItemResponse struct {
	ProductID  string          `json:"product_id"`
	Position   int             `json:"position"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

type orderResponse struct {
	ID          uuid.UUID           `json:"id"`
	UserID      string              `json:"user_id"`
	Status      enums.OrderStatus   `json:"status"`
	TotalAmount decimal.Decimal     `json:"total_amount"`
	Items       []orderItemResponse `json:"items"`
	CreatedAt   time.Time           `json:"created_at"`
}

func newOrderResponse(o *models.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResponse{
			ProductID:  item.ProductID,
			Position:   item.Position,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.TotalPrice,
		})
	}
	return orderResponse{
		ID:          o.ID,
		UserID:      o.UserID,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		Items:       items,
		CreatedAt:   o.CreatedAt,
	}
}
