package validation

// LineIn is a single requested order line.
type LineIn struct {
	ItemID string `json:"itemId" validate:"required"`
	Qty    int    `json:"qty" validate:"required,min=1"` // must be >= 1
}

// CreateOrderRequest is the payload for POST /orders/intent.
type CreateOrderRequest struct {
	CustomerName  string   `json:"customerName,omitempty" validate:"omitempty,max=200"`
	CustomerEmail string   `json:"customerEmail,omitempty" validate:"omitempty,email"`
	Lines         []LineIn `json:"lines" validate:"required,min=1,dive"` // at least one line
}

// FinalizeRequest is the payload for POST /orders/:id/finalize.
// camelCase matches the frontend JSON exactly.
type FinalizeRequest struct {
	PaymentIntentID string `json:"paymentIntentId" validate:"required"`
}
