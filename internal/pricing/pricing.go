// Package pricing computes order totals from a point-in-time catalog snapshot.
//
// All monetary values are rounded to 2 decimal places using round-half-up
// (decimal.Round, half away from zero). Each field is rounded exactly once:
// per-line totals are rounded, the subtotal is their exact sum, and the tax is
// rounded once from the exact subtotal*rate product.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/AkasshP/Deliops-Backend/internal/catalog"
	"github.com/AkasshP/Deliops-Backend/internal/orders"
)

var (
	// ErrNoLines is returned for an empty line list.
	ErrNoLines = errors.New("order has no lines")
	// ErrItemUnavailable is returned when a line references a missing or inactive item.
	ErrItemUnavailable = errors.New("item unavailable")
	// ErrItemNotPriced is returned when an item has no positive unit price.
	ErrItemNotPriced = errors.New("item has no price")
	// ErrInvalidQuantity is returned for a non-positive requested quantity.
	ErrInvalidQuantity = errors.New("invalid quantity")
)

const moneyPlaces = 2

// Engine prices order lines against a catalog snapshot. It has no side
// effects and takes no locks; stock truth is re-checked at finalize time.
type Engine struct {
	taxRate  decimal.Decimal
	currency string
}

// NewEngine returns an engine with the deployment's flat tax rate and currency.
func NewEngine(taxRate decimal.Decimal, currency string) *Engine {
	return &Engine{taxRate: taxRate, currency: currency}
}

// Price resolves and prices the requested lines against the given snapshot.
// The snapshot map is keyed by item id (see catalog.Reader.GetItemsByIDs).
func (e *Engine) Price(lines []orders.OrderLine, items map[string]catalog.Item) ([]orders.PricedLine, orders.Amounts, error) {
	if len(lines) == 0 {
		return nil, orders.Amounts{}, ErrNoLines
	}

	priced := make([]orders.PricedLine, 0, len(lines))
	subtotal := decimal.Zero
	for _, l := range lines {
		if l.Qty <= 0 {
			return nil, orders.Amounts{}, fmt.Errorf("%w: item %s qty %d", ErrInvalidQuantity, l.ItemID, l.Qty)
		}
		it, ok := items[l.ItemID]
		if !ok || !it.Active {
			return nil, orders.Amounts{}, fmt.Errorf("%w: %s", ErrItemUnavailable, l.ItemID)
		}
		if !it.UnitPrice.Valid || !it.UnitPrice.Decimal.IsPositive() {
			return nil, orders.Amounts{}, fmt.Errorf("%w: %s", ErrItemNotPriced, l.ItemID)
		}

		unit := it.UnitPrice.Decimal
		lineTotal := unit.Mul(decimal.NewFromInt(int64(l.Qty))).Round(moneyPlaces)
		priced = append(priced, orders.PricedLine{
			ItemID:    it.ID,
			Name:      it.Name,
			UnitPrice: unit,
			Qty:       l.Qty,
			LineTotal: lineTotal,
		})
		subtotal = subtotal.Add(lineTotal)
	}

	tax := subtotal.Mul(e.taxRate).Round(moneyPlaces)
	amounts := orders.Amounts{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
		Currency: e.currency,
	}
	return priced, amounts, nil
}
