package orders

import (
	"context"
	"sort"
	"time"

	"github.com/AkasshP/Deliops-Backend/internal/catalog"
)

// Ledger is the persistent order store. It is the only owner of order rows;
// item quantity is owned by the catalog and is only touched through a Tx.
type Ledger interface {
	// InsertDraft persists a fresh draft order. A draft insert has no
	// concurrency hazard: it is a single new row.
	InsertDraft(ctx context.Context, o *Order) error

	// AttachIntent records the payment intent on a draft and moves it to
	// pending_payment.
	AttachIntent(ctx context.Context, orderID, provider, intentID string, at time.Time) error

	// Get fetches an order by id. Returns (nil, nil) if not found.
	Get(ctx context.Context, orderID string) (*Order, error)

	// List returns up to limit orders, newest first.
	List(ctx context.Context, limit int) ([]*Order, error)

	// Begin opens the transaction used by Finalize. Every lock taken through
	// the returned Tx is released on Commit or Rollback.
	Begin(ctx context.Context) (Tx, error)
}

// Tx exposes the row-locking primitives Finalize needs. Lock acquisition
// order is the caller's responsibility (see Order.ItemIDs).
type Tx interface {
	// OrderForUpdate reads the order row under an exclusive row lock.
	// Returns (nil, nil) if the order does not exist.
	OrderForUpdate(ctx context.Context, orderID string) (*Order, error)

	// ItemForUpdate reads an item row under an exclusive row lock.
	// Returns (nil, nil) if the item does not exist.
	ItemForUpdate(ctx context.Context, itemID string) (*catalog.Item, error)

	// DecrementItemQty subtracts qty from the item's remaining quantity.
	// Callers must hold the item's row lock and have verified stock first.
	DecrementItemQty(ctx context.Context, itemID string, qty int, at time.Time) error

	// SetOrderStatus updates the locked order's status and updated_at.
	SetOrderStatus(ctx context.Context, orderID, status, failureReason string, at time.Time) error

	Commit() error
	Rollback() error
}

func sortedDistinctItemIDs(lines []PricedLine) []string {
	seen := map[string]struct{}{}
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ItemID]; ok {
			continue
		}
		seen[l.ItemID] = struct{}{}
		ids = append(ids, l.ItemID)
	}
	sort.Strings(ids)
	return ids
}
