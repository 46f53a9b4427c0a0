package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

// Notes written to the audit trail by the service itself.
const (
	noteCreated         = "Order created"
	noteCancelledByUser = "Order cancelled by user"
	noteCancelledAdmin  = "Order cancelled by admin"
)

// Service owns the order lifecycle: turning a cart into an order inside one
// transaction, and applying status transitions with their stock side effects.
type Service struct {
	orders Repository
	now    func() time.Time
}

// NewService creates an order Service backed by the given repository.
func NewService(orders Repository) *Service {
	return &Service{
		orders: orders,
		now:    time.Now,
	}
}

// Checkout converts the user's cart into a PENDING order. Within a single
// transaction it snapshots the cart lines into order items, appends the
// initial history entry, reserves stock, and empties the cart. Any failure,
// including losing a stock race to a concurrent checkout, rolls back the
// whole set.
func (s *Service) Checkout(ctx context.Context, userID string) (*Order, error) {
	var created *Order

	err := s.orders.InTx(ctx, func(tx Tx) error {
		lines, err := tx.CartLines(ctx, userID)
		if err != nil {
			return errors.Wrap(err, "read cart")
		}
		if len(lines) == 0 {
			return ErrCartEmpty
		}

		// Advisory pre-check so the common failure produces a precise error
		// before any write. The decrement below remains authoritative.
		for _, l := range lines {
			if l.Stock < l.Quantity {
				return &product.InsufficientStockError{ProductID: l.ProductID, ProductName: l.ProductName}
			}
		}

		now := s.now()
		o := &Order{
			ID:        uuid.New().String(),
			UserID:    userID,
			Status:    StatusPending,
			CreatedAt: now,
			Items:     make([]Item, len(lines)),
		}

		total := decimal.Zero
		for i, l := range lines {
			o.Items[i] = Item{
				ID:        uuid.New().String(),
				OrderID:   o.ID,
				ProductID: l.ProductID,
				Quantity:  l.Quantity,
				Price:     l.UnitPrice,
			}
			total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
		}
		o.Total = total.Round(2)

		if err := tx.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		if err := tx.AppendHistory(ctx, HistoryEntry{
			ID:        uuid.New().String(),
			OrderID:   o.ID,
			Status:    StatusPending,
			Note:      noteCreated,
			CreatedAt: now,
		}); err != nil {
			return errors.Wrap(err, "append history")
		}

		for _, l := range lines {
			if err := tx.DecrementStock(ctx, l.ProductID, l.Quantity); err != nil {
				if errors.Is(err, ErrStockConflict) {
					return &product.InsufficientStockError{ProductID: l.ProductID, ProductName: l.ProductName}
				}
				return errors.Wrapf(err, "reserve stock for %s", l.ProductID)
			}
		}

		if err := tx.ClearCart(ctx, userID); err != nil {
			return errors.Wrap(err, "clear cart")
		}

		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Cancel moves an order to CANCELLED and returns the reserved stock. Owners
// may cancel only while the order is still PENDING; admins may cancel from
// any non-terminal state. The restored quantities come from the order's own
// item snapshot, never from current catalog state.
func (s *Service) Cancel(ctx context.Context, orderID, userID string, asAdmin bool) (*Order, error) {
	err := s.orders.InTx(ctx, func(tx Tx) error {
		o, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !asAdmin && o.UserID != userID {
			return ErrNotFound
		}

		if !asAdmin && o.Status != StatusPending {
			return &TransitionError{From: o.Status, To: StatusCancelled}
		}
		if !o.Status.CanTransitionTo(StatusCancelled) {
			return &TransitionError{From: o.Status, To: StatusCancelled}
		}

		note := noteCancelledByUser
		if asAdmin {
			note = noteCancelledAdmin
		}
		return s.cancelLocked(ctx, tx, o, note)
	})
	if err != nil {
		return nil, err
	}
	return s.orders.GetByID(ctx, orderID)
}

// UpdateStatus applies an admin-driven transition. Setting CANCELLED goes
// through the same stock restoration as an owner cancellation.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, target Status, note string) (*Order, error) {
	err := s.orders.InTx(ctx, func(tx Tx) error {
		o, err := tx.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Status.CanTransitionTo(target) {
			return &TransitionError{From: o.Status, To: target}
		}

		if target == StatusCancelled {
			if note == "" {
				note = noteCancelledAdmin
			}
			return s.cancelLocked(ctx, tx, o, note)
		}

		if err := tx.SetStatus(ctx, orderID, target); err != nil {
			return errors.Wrap(err, "set status")
		}
		return tx.AppendHistory(ctx, HistoryEntry{
			ID:        uuid.New().String(),
			OrderID:   orderID,
			Status:    target,
			Note:      note,
			CreatedAt: s.now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.orders.GetByID(ctx, orderID)
}

// cancelLocked performs the cancellation writes for an order already locked
// by the surrounding transaction.
func (s *Service) cancelLocked(ctx context.Context, tx Tx, o *Order, note string) error {
	for _, item := range o.Items {
		if err := tx.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			return errors.Wrapf(err, "restore stock for %s", item.ProductID)
		}
	}
	if err := tx.SetStatus(ctx, o.ID, StatusCancelled); err != nil {
		return errors.Wrap(err, "set status")
	}
	return tx.AppendHistory(ctx, HistoryEntry{
		ID:        uuid.New().String(),
		OrderID:   o.ID,
		Status:    StatusCancelled,
		Note:      note,
		CreatedAt: s.now(),
	})
}

// Get returns one order with its full history. Non-admin callers only see
// their own orders; everything else reads as not found.
func (s *Service) Get(ctx context.Context, orderID, userID string, asAdmin bool) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !asAdmin && o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListForUser returns the caller's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID)
}
