package lifecycle

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AkasshP/Deliops-Backend/internal/catalog"
	"github.com/AkasshP/Deliops-Backend/internal/orders"
	"github.com/AkasshP/Deliops-Backend/internal/payments"
)

// memLedger is an in-memory Ledger whose transactions take real per-row
// mutexes, so tests exercise the same blocking behavior as FOR UPDATE row
// locks: writes are applied under the lock and undone on rollback.
type memLedger struct {
	mu       sync.Mutex
	orders   map[string]*orders.Order
	items    map[string]*catalog.Item
	rowLocks map[string]*sync.Mutex
}

func newMemLedger(items ...catalog.Item) *memLedger {
	l := &memLedger{
		orders:   map[string]*orders.Order{},
		items:    map[string]*catalog.Item{},
		rowLocks: map[string]*sync.Mutex{},
	}
	for i := range items {
		it := items[i]
		l.items[it.ID] = &it
	}
	return l
}

func (l *memLedger) lockFor(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.rowLocks[key]
	if !ok {
		m = &sync.Mutex{}
		l.rowLocks[key] = m
	}
	return m
}

func (l *memLedger) InsertDraft(ctx context.Context, o *orders.Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *o
	l.orders[o.ID] = &cp
	return nil
}

func (l *memLedger) AttachIntent(ctx context.Context, orderID, provider, intentID string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	o := l.orders[orderID]
	o.PaymentProvider = provider
	o.PaymentIntentID = intentID
	o.Status = orders.StatusPendingPayment
	o.UpdatedAt = at
	return nil
}

func (l *memLedger) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[orderID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (l *memLedger) List(ctx context.Context, limit int) ([]*orders.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*orders.Order, 0, len(l.orders))
	for _, o := range l.orders {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *memLedger) Begin(ctx context.Context) (orders.Tx, error) {
	return &memTx{l: l}, nil
}

// GetItemsByIDs makes memLedger double as the catalog.Reader snapshot source.
func (l *memLedger) GetItemsByIDs(ctx context.Context, ids []string) (map[string]catalog.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := map[string]catalog.Item{}
	for _, id := range ids {
		if it, ok := l.items[id]; ok {
			out[id] = *it
		}
	}
	return out, nil
}

func (l *memLedger) itemQty(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.items[id].RemainingQty
}

func (l *memLedger) orderStatus(id string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.orders[id].Status
}

type memTx struct {
	l    *memLedger
	held []*sync.Mutex
	undo []func()
	done bool
}

func (t *memTx) OrderForUpdate(ctx context.Context, orderID string) (*orders.Order, error) {
	t.l.mu.Lock()
	_, ok := t.l.orders[orderID]
	t.l.mu.Unlock()
	if !ok {
		return nil, nil
	}

	m := t.l.lockFor("order/" + orderID)
	m.Lock()
	t.held = append(t.held, m)

	t.l.mu.Lock()
	defer t.l.mu.Unlock()
	cp := *t.l.orders[orderID]
	return &cp, nil
}

func (t *memTx) ItemForUpdate(ctx context.Context, itemID string) (*catalog.Item, error) {
	t.l.mu.Lock()
	_, ok := t.l.items[itemID]
	t.l.mu.Unlock()
	if !ok {
		return nil, nil
	}

	m := t.l.lockFor("item/" + itemID)
	m.Lock()
	t.held = append(t.held, m)

	t.l.mu.Lock()
	defer t.l.mu.Unlock()
	cp := *t.l.items[itemID]
	return &cp, nil
}

func (t *memTx) DecrementItemQty(ctx context.Context, itemID string, qty int, at time.Time) error {
	t.l.mu.Lock()
	defer t.l.mu.Unlock()
	it := t.l.items[itemID]
	prevQty, prevAt := it.RemainingQty, it.UpdatedAt
	it.RemainingQty -= qty
	it.UpdatedAt = at
	t.undo = append(t.undo, func() {
		it.RemainingQty = prevQty
		it.UpdatedAt = prevAt
	})
	return nil
}

func (t *memTx) SetOrderStatus(ctx context.Context, orderID, status, failureReason string, at time.Time) error {
	t.l.mu.Lock()
	defer t.l.mu.Unlock()
	o := t.l.orders[orderID]
	prevStatus, prevReason, prevAt := o.Status, o.FailureReason, o.UpdatedAt
	o.Status = status
	o.FailureReason = failureReason
	o.UpdatedAt = at
	t.undo = append(t.undo, func() {
		o.Status = prevStatus
		o.FailureReason = prevReason
		o.UpdatedAt = prevAt
	})
	return nil
}

func (t *memTx) Commit() error {
	t.finish(false)
	return nil
}

func (t *memTx) Rollback() error {
	t.finish(true)
	return nil
}

func (t *memTx) finish(rollback bool) {
	if t.done {
		return
	}
	t.done = true
	if rollback {
		t.l.mu.Lock()
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		t.l.mu.Unlock()
	}
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i].Unlock()
	}
	t.held = nil
	t.undo = nil
}

// fakeGateway is an in-memory payments.Gateway.
type fakeGateway struct {
	mu        sync.Mutex
	intents   map[string]*payments.Intent
	createErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: map[string]*payments.Intent{}}
}

func (g *fakeGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	md := map[string]string{}
	for k, v := range metadata {
		md[k] = v
	}
	in := &payments.Intent{
		ID:           "pi_" + md["orderId"],
		ClientSecret: "pi_" + md["orderId"] + "_secret",
		Status:       "requires_payment_method",
		Metadata:     md,
	}
	g.intents[in.ID] = in
	return copyIntent(in), nil
}

func (g *fakeGateway) RetrieveIntent(ctx context.Context, intentID string) (*payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.intents[intentID]
	if !ok {
		return nil, payments.ErrGatewayUnavailable
	}
	return copyIntent(in), nil
}

func (g *fakeGateway) succeed(intentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[intentID].Status = payments.StatusSucceeded
}

func (g *fakeGateway) inject(in *payments.Intent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[in.ID] = in
}

func copyIntent(in *payments.Intent) *payments.Intent {
	cp := *in
	cp.Metadata = map[string]string{}
	for k, v := range in.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}
