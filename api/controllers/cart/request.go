package cart

type addItemRequest struct {
	ProductID string `json:"product_id" validate:"required,entityid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0"`
}
