package order

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/product"
)

// --- In-memory store ---

// memStore implements Repository and Tx against plain maps. InTx snapshots
// the state before running fn and restores it when fn fails, matching the
// rollback contract of the real implementation.
type memStore struct {
	mu       sync.Mutex
	products map[string]*memProduct
	carts    map[string][]memLine
	orders   map[string]*Order
	history  map[string][]HistoryEntry

	// product IDs for which DecrementStock reports a conflict, simulating a
	// concurrent checkout winning the row between read and write.
	conflictOn map[string]struct{}
}

type memProduct struct {
	name  string
	price decimal.Decimal
	stock int
}

type memLine struct {
	productID string
	quantity  int
}

func newMemStore() *memStore {
	return &memStore{
		products:   make(map[string]*memProduct),
		carts:      make(map[string][]memLine),
		orders:     make(map[string]*Order),
		history:    make(map[string][]HistoryEntry),
		conflictOn: make(map[string]struct{}),
	}
}

func (m *memStore) addProduct(id, name, price string, stock int) {
	m.products[id] = &memProduct{name: name, price: decimal.RequireFromString(price), stock: stock}
}

func (m *memStore) addCartLine(userID, productID string, qty int) {
	m.carts[userID] = append(m.carts[userID], memLine{productID: productID, quantity: qty})
}

func (m *memStore) stock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].stock
}

func (m *memStore) snapshot() (map[string]*memProduct, map[string][]memLine, map[string]*Order, map[string][]HistoryEntry) {
	products := make(map[string]*memProduct, len(m.products))
	for id, p := range m.products {
		cp := *p
		products[id] = &cp
	}
	carts := make(map[string][]memLine, len(m.carts))
	for u, lines := range m.carts {
		carts[u] = append([]memLine(nil), lines...)
	}
	orders := make(map[string]*Order, len(m.orders))
	for id, o := range m.orders {
		cp := *o
		cp.Items = append([]Item(nil), o.Items...)
		orders[id] = &cp
	}
	history := make(map[string][]HistoryEntry, len(m.history))
	for id, entries := range m.history {
		history[id] = append([]HistoryEntry(nil), entries...)
	}
	return products, carts, orders, history
}

func (m *memStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	products, carts, orders, history := m.snapshot()
	if err := fn(m); err != nil {
		m.products, m.carts, m.orders, m.history = products, carts, orders, history
		return err
	}
	return nil
}

func (m *memStore) GetByID(_ context.Context, orderID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	for i := len(m.history[orderID]) - 1; i >= 0; i-- {
		cp.History = append(cp.History, m.history[orderID][i])
	}
	return &cp, nil
}

func (m *memStore) ListByUser(_ context.Context, userID string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Order
	for _, o := range m.orders {
		if o.UserID != userID {
			continue
		}
		cp := *o
		cp.Items = append([]Item(nil), o.Items...)
		if entries := m.history[o.ID]; len(entries) > 0 {
			cp.History = []HistoryEntry{entries[len(entries)-1]}
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Tx methods. InTx already holds the lock when these run.

func (m *memStore) CartLines(_ context.Context, userID string) ([]CheckoutLine, error) {
	var out []CheckoutLine
	for _, l := range m.carts[userID] {
		p := m.products[l.productID]
		out = append(out, CheckoutLine{
			ProductID:   l.productID,
			ProductName: p.name,
			Quantity:    l.quantity,
			UnitPrice:   p.price,
			Stock:       p.stock,
		})
	}
	return out, nil
}

func (m *memStore) InsertOrder(_ context.Context, o *Order) error {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	m.orders[o.ID] = &cp
	return nil
}

func (m *memStore) AppendHistory(_ context.Context, e HistoryEntry) error {
	m.history[e.OrderID] = append(m.history[e.OrderID], e)
	return nil
}

func (m *memStore) DecrementStock(_ context.Context, productID string, qty int) error {
	if _, ok := m.conflictOn[productID]; ok {
		return ErrStockConflict
	}
	p := m.products[productID]
	if p.stock < qty {
		return ErrStockConflict
	}
	p.stock -= qty
	return nil
}

func (m *memStore) IncrementStock(_ context.Context, productID string, qty int) error {
	m.products[productID].stock += qty
	return nil
}

func (m *memStore) ClearCart(_ context.Context, userID string) error {
	m.carts[userID] = nil
	return nil
}

func (m *memStore) OrderForUpdate(_ context.Context, orderID string) (*Order, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	return &cp, nil
}

func (m *memStore) SetStatus(_ context.Context, orderID string, st Status) error {
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.Status = st
	return nil
}

// --- Helpers ---

func newTestService(store *memStore) *Service {
	svc := NewService(store)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var calls int
	// Monotonic clock so history ordering by timestamp is deterministic.
	svc.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}
	return svc
}

// --- Checkout ---

func TestCheckout(t *testing.T) {
	store := newMemStore()
	store.addProduct("p1", "Widget", "4.25", 5)
	store.addProduct("p2", "Gadget", "11.50", 2)
	store.addCartLine("u1", "p1", 2)
	store.addCartLine("u1", "p2", 1)
	svc := newTestService(store)

	o, err := svc.Checkout(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, "u1", o.UserID)
	assert.Equal(t, StatusPending, o.Status)
	assert.True(t, decimal.RequireFromString("20.00").Equal(o.Total), "total = %s", o.Total)
	require.Len(t, o.Items, 2)
	assert.True(t, decimal.RequireFromString("4.25").Equal(o.Items[0].Price))
	assert.Equal(t, 2, o.Items[0].Quantity)

	assert.Equal(t, 3, store.stock("p1"))
	assert.Equal(t, 1, store.stock("p2"))
	assert.Empty(t, store.carts["u1"], "cart must be emptied")

	stored, err := store.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, stored.History, 1)
	assert.Equal(t, StatusPending, stored.History[0].Status)
	assert.Equal(t, noteCreated, stored.History[0].Note)
}

func TestCheckout_EmptyCart(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	_, err := svc.Checkout(context.Background(), "u1")
	require.ErrorIs(t, err, ErrCartEmpty)
}

func TestCheckout_InsufficientStock(t *testing.T) {
	store := newMemStore()
	store.addProduct("p1", "Widget", "4.25", 1)
	store.addCartLine("u1", "p1", 3)
	svc := newTestService(store)

	_, err := svc.Checkout(context.Background(), "u1")

	var isErr *product.InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, "p1", isErr.ProductID)

	// Nothing may change when checkout fails.
	assert.Equal(t, 1, store.stock("p1"))
	assert.Len(t, store.carts["u1"], 1)
	assert.Empty(t, store.orders)
}

func TestCheckout_DecrementConflict(t *testing.T) {
	store := newMemStore()
	store.addProduct("p1", "Widget", "4.25", 5)
	store.addProduct("p2", "Gadget", "11.50", 5)
	store.addCartLine("u1", "p1", 1)
	store.addCartLine("u1", "p2", 1)
	store.conflictOn["p2"] = struct{}{}
	svc := newTestService(store)

	_, err := svc.Checkout(context.Background(), "u1")

	var isErr *product.InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, "p2", isErr.ProductID)

	// The p1 decrement that succeeded before the conflict must roll back.
	assert.Equal(t, 5, store.stock("p1"))
	assert.Len(t, store.carts["u1"], 2)
	assert.Empty(t, store.orders)
	assert.Empty(t, store.history)
}

func TestCheckout_TotalRounding(t *testing.T) {
	store := newMemStore()
	store.addProduct("p1", "Widget", "3.333", 10)
	store.addCartLine("u1", "p1", 3)
	svc := newTestService(store)

	o, err := svc.Checkout(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("10.00").Equal(o.Total), "total = %s", o.Total)
}

func TestCheckout_Concurrent_NoOversell(t *testing.T) {
	const (
		users = 10
		stock = 3
	)

	store := newMemStore()
	store.addProduct("p1", "Widget", "9.99", stock)
	for i := 0; i < users; i++ {
		store.addCartLine(userN(i), "p1", 1)
	}
	svc := newTestService(store)

	var wg sync.WaitGroup
	results := make([]error, users)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Checkout(context.Background(), userN(i))
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var isErr *product.InsufficientStockError
		require.ErrorAs(t, err, &isErr)
		rejected++
	}

	assert.Equal(t, stock, succeeded)
	assert.Equal(t, users-stock, rejected)
	assert.Equal(t, 0, store.stock("p1"))
	assert.Len(t, store.orders, stock)
}

func userN(i int) string {
	return "user-" + string(rune('a'+i))
}

// --- Cancel ---

func TestCancel_OwnerPending(t *testing.T) {
	store := newMemStore()
	store.addProduct("p1", "Widget", "4.25", 5)
	store.addCartLine("u1", "p1", 2)
	svc := newTestService(store)

	o, err := svc.Checkout(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 3, store.stock("p1"))

	cancelled, err := svc.Cancel(context.Background(), o.ID, "u1", false)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, 5, store.stock("p1"), "reserved stock must be restored")
	require.Len(t, cancelled.History, 2)
	assert.Equal(t, StatusCancelled, cancelled.History[0].Status, "newest entry first")
	assert.Equal(t, noteCancelledByUser, cancelled.History[0].Note)
}

func TestCancel_OwnerNonPending(t *testing.T) {
	store := newMemStore()
	store.addProduct("p1", "Widget", "4.25", 5)
	store.addCartLine("u1", "p1", 1)
	svc := newTestService(store)

	o, err := svc.Checkout(context.Background(), "u1")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(context.Background(), o.ID, StatusShipped, "")
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), o.ID, "u1", false)

	var trErr *TransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, StatusShipped, trErr.From)
	assert.Equal(t, 4, store.stock("p1"), "stock stays reserved")
}

func TestCancel_OtherUser(t *testing.T) {
	store := newMemStore()
	store.addProduct("p1", "Widget", "4.25", 5)
	store.addCartLine("u1", "p1", 1)
	svc := newTestService(store)

	o, err := svc.Checkout(context.Background(), "u1")
	require.NoError(t, err)

	// Another user's order reads as missing, not as forbidden.
	_, err = svc.Cancel(context.Background(), o.ID, "u2", false)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCancel_AdminNonPending(t *testing.T) {
	store := newMemStore()
	store.addProduct("p1", "Widget", "4.25", 5)
	store.addCartLine("u1", "p1", 2)
	svc := newTestService(store)

	o, err := svc.Checkout(context.Background(), "u1")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(context.Background(), o.ID, StatusProcessing, "")
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), o.ID, "someone-else", true)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, 5, store.stock("p1"))
	assert.Equal(t, noteCancelledAdmin, cancelled.History[0].Note)
}

func TestCancel_Delivered(t *testing.T) {
	store := newMemStore()
	store.addProduct("p1", "Widget", "4.25", 5)
	store.addCartLine("u1", "p1", 1)
	svc := newTestService(store)

	o, err := svc.Checkout(context.Background(), "u1")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(context.Background(), o.ID, StatusDelivered, "")
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), o.ID, "u1", true)

	var trErr *TransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, StatusDelivered, trErr.From)
}

func TestCancel_Missing(t *testing.T) {
	svc := newTestService(newMemStore())

	_, err := svc.Cancel(context.Background(), "nope", "u1", false)
	require.ErrorIs(t, err, ErrNotFound)
}

// --- UpdateStatus ---

func TestUpdateStatus(t *testing.T) {
	store := newMemStore()
	store.addProduct("p1", "Widget", "4.25", 5)
	store.addCartLine("u1", "p1", 1)
	svc := newTestService(store)

	o, err := svc.Checkout(context.Background(), "u1")
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(context.Background(), o.ID, StatusProcessing, "picked up by warehouse")
	require.NoError(t, err)

	assert.Equal(t, StatusProcessing, updated.Status)
	require.Len(t, updated.History, 2)
	assert.Equal(t, StatusProcessing, updated.History[0].Status)
	assert.Equal(t, "picked up by warehouse", updated.History[0].Note)
	assert.Equal(t, 4, store.stock("p1"), "forward transitions never touch stock")
}

func TestUpdateStatus_Illegal(t *testing.T) {
	store := newMemStore()
	store.addProduct("p1", "Widget", "4.25", 5)
	store.addCartLine("u1", "p1", 1)
	svc := newTestService(store)

	o, err := svc.Checkout(context.Background(), "u1")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(context.Background(), o.ID, StatusDelivered, "")
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), o.ID, StatusShipped, "")

	var trErr *TransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, StatusDelivered, trErr.From)
	assert.Equal(t, StatusShipped, trErr.To)
}

func TestUpdateStatus_CancelRestoresStock(t *testing.T) {
	store := newMemStore()
	store.addProduct("p1", "Widget", "4.25", 5)
	store.addCartLine("u1", "p1", 3)
	svc := newTestService(store)

	o, err := svc.Checkout(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 2, store.stock("p1"))

	updated, err := svc.UpdateStatus(context.Background(), o.ID, StatusCancelled, "")
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, updated.Status)
	assert.Equal(t, 5, store.stock("p1"))
	assert.Equal(t, noteCancelledAdmin, updated.History[0].Note)
}

// --- Get / ListForUser ---

func TestGet_Ownership(t *testing.T) {
	store := newMemStore()
	store.addProduct("p1", "Widget", "4.25", 5)
	store.addCartLine("u1", "p1", 1)
	svc := newTestService(store)

	o, err := svc.Checkout(context.Background(), "u1")
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), o.ID, "u1", false)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = svc.Get(context.Background(), o.ID, "u2", false)
	require.ErrorIs(t, err, ErrNotFound)

	got, err = svc.Get(context.Background(), o.ID, "admin-1", true)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
}

func TestListForUser(t *testing.T) {
	store := newMemStore()
	store.addProduct("p1", "Widget", "4.25", 50)
	store.addCartLine("u1", "p1", 1)
	store.addCartLine("u2", "p1", 2)
	svc := newTestService(store)

	first, err := svc.Checkout(context.Background(), "u1")
	require.NoError(t, err)
	_, err = svc.Checkout(context.Background(), "u2")
	require.NoError(t, err)

	store.addCartLine("u1", "p1", 1)
	second, err := svc.Checkout(context.Background(), "u1")
	require.NoError(t, err)

	orders, err := svc.ListForUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID, "newest first")
	assert.Equal(t, first.ID, orders[1].ID)
	require.Len(t, orders[0].History, 1, "listing carries the latest history entry only")
}
