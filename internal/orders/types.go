package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses
const (
	StatusDraft          = "draft"
	StatusPendingPayment = "pending_payment"
	StatusPaid           = "paid"
	StatusFailed         = "failed"
)

// OrderLine is a raw requested line before pricing.
type OrderLine struct {
	ItemID string `json:"itemId"`
	Qty    int    `json:"qty"`
}

// PricedLine is a line after the pricing engine resolved and priced it.
// JSON tags match the shape persisted in the orders.lines jsonb column.
type PricedLine struct {
	ItemID    string          `json:"itemId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Qty       int             `json:"qty"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// Amounts holds the order totals, each rounded to 2 decimal places exactly once.
type Amounts struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}

// Order represents a row in the orders table.
// Lifecycle: draft -> pending_payment -> paid, with draft|pending_payment -> failed
// as the alternate terminal path. Nothing leaves paid or failed.
type Order struct {
	ID              string
	Status          string
	CustomerName    string
	CustomerEmail   string
	Lines           []PricedLine
	Amounts         Amounts
	PaymentProvider string
	PaymentIntentID string
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ItemIDs returns the distinct item ids referenced by the order's lines,
// sorted lexicographically. Every finalize transaction locks item rows in
// exactly this order so that two orders sharing items can never deadlock.
func (o *Order) ItemIDs() []string {
	return sortedDistinctItemIDs(o.Lines)
}
