package validation

// OrderItemPayload is one purchase-time line snapshot. The checkout
// collaborator computed these at session time; this core only verifies they
// are internally consistent, never re-prices them.
type OrderItemPayload struct {
	StrainID          string `json:"strain_id" validate:"required"`
	StrainName        string `json:"strain_name" validate:"required"`
	Grams             int64  `json:"grams" validate:"required,min=1"`
	PricePerGramCents int64  `json:"price_per_gram_cents" validate:"required,min=1"`
	LineTotalCents    int64  `json:"line_total_cents" validate:"required,min=1"`
}

// CreateOrderRequest is the payload for POST /orders.
type CreateOrderRequest struct {
	Email      string             `json:"email" validate:"omitempty,email"`
	Items      []OrderItemPayload `json:"items" validate:"required,min=1,dive"`
	TotalCents int64              `json:"total_cents" validate:"required,min=1"`
	PaymentRef string             `json:"payment_ref,omitempty"`
}

// UpdateOrderStatusRequest is the payload for POST /admin/orders/:id/status.
type UpdateOrderStatusRequest struct {
	Target string `json:"target" validate:"required,oneof=PENDING PAID FULFILLED CANCELLED"`
}

// PaymentWebhookRequest is the payload the payment collaborator posts when a
// checkout session completes.
type PaymentWebhookRequest struct {
	OrderID    string `json:"order_id" validate:"required"`
	PaymentRef string `json:"payment_ref" validate:"required"`
}
