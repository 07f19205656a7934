// Package lifecycle orchestrates the order state machine: draft creation,
// payment-intent issuance, and the atomic finalize-and-decrement step. It is
// the only writer allowed to decrement item quantity, and only inside the
// finalize transaction.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/AkasshP/Deliops-Backend/internal/catalog"
	"github.com/AkasshP/Deliops-Backend/internal/orders"
	"github.com/AkasshP/Deliops-Backend/internal/payments"
)

// Business errors. These are terminal for the operation: the system never
// retries them on its own.
var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrIntentOrderMismatch = errors.New("payment intent does not belong to this order")
	ErrPaymentNotSucceeded = errors.New("payment intent not succeeded")
	ErrInsufficientStock   = errors.New("insufficient stock")
)

// CustomerInfo is the optional customer data attached at creation.
type CustomerInfo struct {
	Name  string
	Email string
}

// CreateResult is returned to the caller so payment can be completed
// out-of-band against the gateway.
type CreateResult struct {
	OrderID      string
	ClientSecret string
	Total        decimal.Decimal
}

// Pricer computes priced lines and totals from a catalog snapshot.
type Pricer interface {
	Price(lines []orders.OrderLine, items map[string]catalog.Item) ([]orders.PricedLine, orders.Amounts, error)
}

// Counter records business metrics. Implementations must be fast; emission
// failures stay inside the implementation.
type Counter interface {
	Count(ctx context.Context, name string, value float64)
}

// Manager owns all order consistency guarantees.
type Manager struct {
	ledger  orders.Ledger
	catalog catalog.Reader
	pricer  Pricer
	gateway payments.Gateway
	metrics Counter
	log     *zap.Logger
	nowFunc func() time.Time
	newID   func() string
}

// Config groups the manager's dependencies. Metrics may be nil.
type Config struct {
	Ledger  orders.Ledger
	Catalog catalog.Reader
	Pricer  Pricer
	Gateway payments.Gateway
	Metrics Counter
	Logger  *zap.Logger
}

// NewManager wires a manager from its collaborators.
func NewManager(cfg Config) *Manager {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		ledger:  cfg.Ledger,
		catalog: cfg.Catalog,
		pricer:  cfg.Pricer,
		gateway: cfg.Gateway,
		metrics: cfg.Metrics,
		log:     log,
		nowFunc: time.Now,
		newID:   newOrderID,
	}
}

// CreateOrder prices the requested lines, persists a draft, opens a payment
// intent for the total and moves the order to pending_payment. Nothing is
// reserved: stock is only checked and decremented at Finalize time.
//
// If the gateway call fails the draft row deliberately survives so operators
// can inspect orphaned drafts; it is never auto-cleaned.
func (m *Manager) CreateOrder(ctx context.Context, customer CustomerInfo, lines []orders.OrderLine) (*CreateResult, error) {
	ids := make([]string, 0, len(lines))
	seen := map[string]struct{}{}
	for _, l := range lines {
		if _, ok := seen[l.ItemID]; ok {
			continue
		}
		seen[l.ItemID] = struct{}{}
		ids = append(ids, l.ItemID)
	}
	items, err := m.catalog.GetItemsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load catalog snapshot: %w", err)
	}

	priced, amounts, err := m.pricer.Price(lines, items)
	if err != nil {
		return nil, err
	}

	now := m.nowFunc().UTC()
	order := &orders.Order{
		ID:            m.newID(),
		Status:        orders.StatusDraft,
		CustomerName:  customer.Name,
		CustomerEmail: customer.Email,
		Lines:         priced,
		Amounts:       amounts,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := m.ledger.InsertDraft(ctx, order); err != nil {
		return nil, fmt.Errorf("insert draft: %w", err)
	}

	intent, err := m.gateway.CreateIntent(ctx, minorUnits(amounts.Total), amounts.Currency,
		map[string]string{"orderId": order.ID})
	if err != nil {
		m.log.Warn("payment intent creation failed; draft order left for reconciliation",
			zap.String("order_id", order.ID), zap.Error(err))
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	if err := m.ledger.AttachIntent(ctx, order.ID, payments.Provider, intent.ID, m.nowFunc().UTC()); err != nil {
		return nil, fmt.Errorf("attach payment intent: %w", err)
	}

	m.count(ctx, "OrderCreated", 1)
	m.log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("intent_id", intent.ID),
		zap.String("total", amounts.Total.StringFixed(2)))

	return &CreateResult{
		OrderID:      order.ID,
		ClientSecret: intent.ClientSecret,
		Total:        amounts.Total,
	}, nil
}

// Finalize verifies the payment with the gateway, then atomically re-checks
// stock, decrements it and marks the order paid. Repeating the call after
// success is a no-op that still returns success.
func (m *Manager) Finalize(ctx context.Context, orderID, intentID string) error {
	intent, err := m.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return fmt.Errorf("retrieve payment intent: %w", err)
	}
	if intent.Metadata["orderId"] != orderID {
		return fmt.Errorf("%w: intent %s", ErrIntentOrderMismatch, intentID)
	}
	if intent.Status != payments.StatusSucceeded {
		return fmt.Errorf("%w: status %q", ErrPaymentNotSucceeded, intent.Status)
	}

	tx, err := m.ledger.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin finalize transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	order, err := tx.OrderForUpdate(ctx, orderID)
	if err != nil {
		return fmt.Errorf("lock order row: %w", err)
	}
	if order == nil {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if order.Status == orders.StatusPaid {
		// Duplicate confirmation (webhook redelivery, client retry): the
		// decrement already happened exactly once.
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		committed = true
		m.log.Info("finalize on already-paid order", zap.String("order_id", orderID))
		return nil
	}
	if order.Status == orders.StatusFailed {
		return fmt.Errorf("order %s is failed and requires manual resolution", orderID)
	}

	// Lock every referenced item row in sorted-id order. The fixed global
	// ordering is what makes concurrent finalizes over shared items
	// deadlock-free.
	remaining := map[string]int{}
	names := map[string]string{}
	for _, id := range order.ItemIDs() {
		item, err := tx.ItemForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("lock item row: %w", err)
		}
		if item == nil {
			return fmt.Errorf("item missing: %s", id)
		}
		remaining[id] = item.RemainingQty
		names[id] = item.Name
	}

	now := m.nowFunc().UTC()
	for _, line := range order.Lines {
		if remaining[line.ItemID] < line.Qty {
			m.count(ctx, "InsufficientStock", 1)
			return fmt.Errorf("%w: %s", ErrInsufficientStock, names[line.ItemID])
		}
		if err := tx.DecrementItemQty(ctx, line.ItemID, line.Qty, now); err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		remaining[line.ItemID] -= line.Qty
	}

	if err := tx.SetOrderStatus(ctx, orderID, orders.StatusPaid, "", now); err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true

	m.count(ctx, "OrderFinalized", 1)
	m.log.Info("order finalized", zap.String("order_id", orderID), zap.String("intent_id", intentID))
	return nil
}

// MarkFailed is the out-of-band reconciliation path: it moves a
// draft/pending_payment order to the terminal failed state (e.g. when a
// webhook observes insufficient stock after payment settled). A paid order is
// never touched; the money already moved and resolution is manual.
func (m *Manager) MarkFailed(ctx context.Context, orderID, reason string) error {
	tx, err := m.ledger.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	order, err := tx.OrderForUpdate(ctx, orderID)
	if err != nil {
		return fmt.Errorf("lock order row: %w", err)
	}
	if order == nil {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	switch order.Status {
	case orders.StatusPaid:
		m.log.Warn("refusing to fail a paid order", zap.String("order_id", orderID), zap.String("reason", reason))
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		committed = true
		return nil
	case orders.StatusFailed:
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		committed = true
		return nil
	}

	if err := tx.SetOrderStatus(ctx, orderID, orders.StatusFailed, reason, m.nowFunc().UTC()); err != nil {
		return fmt.Errorf("mark order failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true

	m.log.Warn("order marked failed", zap.String("order_id", orderID), zap.String("reason", reason))
	return nil
}

func (m *Manager) count(ctx context.Context, name string, v float64) {
	if m.metrics != nil {
		m.metrics.Count(ctx, name, v)
	}
}

// minorUnits converts a decimal amount to integer cents, round-half-up.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// newOrderID produces an opaque 24-char id (uuid4 hex prefix), matching the
// id shape the rest of the stack expects.
func newOrderID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}
