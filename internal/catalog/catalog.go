package catalog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Item is a sellable catalog entry. RemainingQty is the single shared mutable
// field in the system; it is only ever decremented inside a finalize
// transaction holding the item's row lock.
type Item struct {
	ID           string
	Name         string
	UnitPrice    decimal.NullDecimal // null or <= 0 means not sellable
	Active       bool
	RemainingQty int
	UpdatedAt    time.Time
}

// Sellable reports whether the item can be priced at all.
func (it Item) Sellable() bool {
	return it.Active && it.UnitPrice.Valid && it.UnitPrice.Decimal.IsPositive()
}

// Reader is the read-only catalog access used by pricing. Snapshots are taken
// without locks; stock truth is re-checked under lock at finalize time.
type Reader interface {
	GetItemsByIDs(ctx context.Context, ids []string) (map[string]Item, error)
}
