package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, user_id, total, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4, $5)`

	insertHistorySQL = `INSERT INTO order_history (id, order_id, status, note, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	// The stock guard lives in this statement: zero rows affected means the
	// product no longer holds the requested quantity.
	decrementStockSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 AND stock >= $2`

	incrementStockSQL = `UPDATE products SET stock = stock + $2 WHERE id = $1`

	checkoutCartLinesSQL = `SELECT ci.product_id, p.name, ci.quantity, p.price, p.stock
		FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		JOIN products p ON p.id = ci.product_id
		WHERE c.user_id = $1
		ORDER BY ci.id`

	clearUserCartSQL = `DELETE FROM cart_items
		WHERE cart_id IN (SELECT id FROM carts WHERE user_id = $1)`

	getOrderForUpdateSQL = `SELECT id, user_id, total, status, created_at
		FROM orders WHERE id = $1 FOR UPDATE`

	getOrderSQL = `SELECT id, user_id, total, status, created_at
		FROM orders WHERE id = $1`

	listOrdersByUserSQL = `SELECT id, user_id, total, status, created_at
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id`

	getOrderItemsSQL = `SELECT id, order_id, product_id, quantity, price
		FROM order_items WHERE order_id = $1 ORDER BY id`

	getOrderItemsForSQL = `SELECT id, order_id, product_id, quantity, price
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`

	getOrderHistorySQL = `SELECT id, order_id, status, note, created_at
		FROM order_history WHERE order_id = $1 ORDER BY created_at DESC, id DESC`

	latestHistoryForSQL = `SELECT DISTINCT ON (order_id) id, order_id, status, note, created_at
		FROM order_history WHERE order_id = ANY($1)
		ORDER BY order_id, created_at DESC, id DESC`

	setOrderStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// InTx runs fn inside one database transaction; any error from fn rolls the
// transaction back.
func (r *OrderRepository) InTx(ctx context.Context, fn func(tx order.Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&orderTx{tx: tx})
	})
}

// GetByID returns an order with its items and full history.
func (r *OrderRepository) GetByID(ctx context.Context, orderID string) (*order.Order, error) {
	o, err := scanOrderRow(r.pool.QueryRow(ctx, getOrderSQL, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", orderID, err)
	}

	rows, err := r.pool.Query(ctx, getOrderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting order items: %w", err)
	}
	if o.Items, err = pgx.CollectRows(rows, scanOrderItem); err != nil {
		return nil, fmt.Errorf("getting order items: %w", err)
	}

	rows, err = r.pool.Query(ctx, getOrderHistorySQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting order history: %w", err)
	}
	if o.History, err = pgx.CollectRows(rows, scanHistoryEntry); err != nil {
		return nil, fmt.Errorf("getting order history: %w", err)
	}

	return o, nil
}

// ListByUser returns the user's orders with items and only the latest
// history entry per order.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Order, error) {
		o, err := scanOrderRow(row)
		if err != nil {
			return order.Order{}, err
		}
		return *o, nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	byID := make(map[string]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	rows, err = r.pool.Query(ctx, getOrderItemsForSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	for _, item := range items {
		o := byID[item.OrderID]
		o.Items = append(o.Items, item)
	}

	rows, err = r.pool.Query(ctx, latestHistoryForSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("listing order history: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanHistoryEntry)
	if err != nil {
		return nil, fmt.Errorf("listing order history: %w", err)
	}
	for _, e := range entries {
		o := byID[e.OrderID]
		o.History = append(o.History, e)
	}

	return orders, nil
}

// orderTx adapts a pgx.Tx to the order.Tx unit-of-work interface.
type orderTx struct {
	tx pgx.Tx
}

var _ order.Tx = (*orderTx)(nil)

func (t *orderTx) CartLines(ctx context.Context, userID string) ([]order.CheckoutLine, error) {
	rows, err := t.tx.Query(ctx, checkoutCartLinesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("reading cart lines: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.CheckoutLine, error) {
		var l order.CheckoutLine
		err := row.Scan(&l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice, &l.Stock)
		return l, err
	})
}

func (t *orderTx) InsertOrder(ctx context.Context, o *order.Order) error {
	_, err := t.tx.Exec(ctx, insertOrderSQL, o.ID, o.UserID, o.Total, string(o.Status), o.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting order %q: %w", o.ID, err)
	}
	for _, item := range o.Items {
		_, err = t.tx.Exec(ctx, insertOrderItemSQL, item.ID, item.OrderID, item.ProductID, item.Quantity, item.Price)
		if err != nil {
			return fmt.Errorf("inserting order item for %q: %w", item.ProductID, err)
		}
	}
	return nil
}

func (t *orderTx) AppendHistory(ctx context.Context, e order.HistoryEntry) error {
	_, err := t.tx.Exec(ctx, insertHistorySQL, e.ID, e.OrderID, string(e.Status), e.Note, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending order history: %w", err)
	}
	return nil
}

func (t *orderTx) DecrementStock(ctx context.Context, productID string, qty int) error {
	tag, err := t.tx.Exec(ctx, decrementStockSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("decrementing stock for %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrStockConflict
	}
	return nil
}

func (t *orderTx) IncrementStock(ctx context.Context, productID string, qty int) error {
	if _, err := t.tx.Exec(ctx, incrementStockSQL, productID, qty); err != nil {
		return fmt.Errorf("incrementing stock for %q: %w", productID, err)
	}
	return nil
}

func (t *orderTx) ClearCart(ctx context.Context, userID string) error {
	if _, err := t.tx.Exec(ctx, clearUserCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart for user %q: %w", userID, err)
	}
	return nil
}

func (t *orderTx) OrderForUpdate(ctx context.Context, orderID string) (*order.Order, error) {
	o, err := scanOrderRow(t.tx.QueryRow(ctx, getOrderForUpdateSQL, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("locking order %q: %w", orderID, err)
	}

	rows, err := t.tx.Query(ctx, getOrderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting order items: %w", err)
	}
	if o.Items, err = pgx.CollectRows(rows, scanOrderItem); err != nil {
		return nil, fmt.Errorf("getting order items: %w", err)
	}
	return o, nil
}

func (t *orderTx) SetStatus(ctx context.Context, orderID string, st order.Status) error {
	if _, err := t.tx.Exec(ctx, setOrderStatusSQL, orderID, string(st)); err != nil {
		return fmt.Errorf("updating order status: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrderRow(row rowScanner) (*order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.Total, &status, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = order.Status(status)
	return &o, nil
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var item order.Item
	err := row.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price)
	return item, err
}

func scanHistoryEntry(row pgx.CollectableRow) (order.HistoryEntry, error) {
	var (
		e      order.HistoryEntry
		status string
	)
	err := row.Scan(&e.ID, &e.OrderID, &status, &e.Note, &e.CreatedAt)
	e.Status = order.Status(status)
	return e, err
}
