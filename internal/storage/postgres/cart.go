package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
)

const (
	getCartByUserSQL = `SELECT id, user_id FROM carts WHERE user_id = $1`

	createCartSQL = `INSERT INTO carts (id, user_id) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`

	getCartLinesSQL = `SELECT ci.id, ci.cart_id, ci.product_id, p.name, ci.quantity, p.price, p.stock
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.id`

	setCartLineSQL = `INSERT INTO cart_items (id, cart_id, product_id, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`

	updateCartLineSQL = `UPDATE cart_items SET quantity = $3
		WHERE cart_id = $1 AND id = $2`

	deleteCartLineSQL = `DELETE FROM cart_items WHERE cart_id = $1 AND id = $2`

	clearCartSQL = `DELETE FROM cart_items WHERE cart_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. All line
// statements are scoped by cart ID, so cross-user access degenerates to
// zero affected rows and surfaces as cart.ErrNotFound.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// GetByUser returns the user's cart with its lines joined against the
// current catalog.
func (r *CartRepository) GetByUser(ctx context.Context, userID string) (*cart.Cart, error) {
	var c cart.Cart
	err := r.pool.QueryRow(ctx, getCartByUserSQL, userID).Scan(&c.ID, &c.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("getting cart for user %q: %w", userID, err)
	}

	rows, err := r.pool.Query(ctx, getCartLinesSQL, c.ID)
	if err != nil {
		return nil, fmt.Errorf("getting cart lines: %w", err)
	}
	c.Lines, err = pgx.CollectRows(rows, scanCartLine)
	if err != nil {
		return nil, fmt.Errorf("getting cart lines: %w", err)
	}
	return &c, nil
}

// Create persists an empty cart for a user.
func (r *CartRepository) Create(ctx context.Context, c *cart.Cart) error {
	if _, err := r.pool.Exec(ctx, createCartSQL, c.ID, c.UserID); err != nil {
		return fmt.Errorf("creating cart for user %q: %w", c.UserID, err)
	}
	return nil
}

// SetLine inserts a cart line or replaces the quantity of the existing line
// for the same product.
func (r *CartRepository) SetLine(ctx context.Context, lineID, cartID, productID string, quantity int) error {
	if _, err := r.pool.Exec(ctx, setCartLineSQL, lineID, cartID, productID, quantity); err != nil {
		return fmt.Errorf("setting cart line: %w", err)
	}
	return nil
}

// UpdateLineQuantity replaces the quantity of a line within the given cart.
func (r *CartRepository) UpdateLineQuantity(ctx context.Context, cartID, lineID string, quantity int) error {
	tag, err := r.pool.Exec(ctx, updateCartLineSQL, cartID, lineID, quantity)
	if err != nil {
		return fmt.Errorf("updating cart line %q: %w", lineID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}

// DeleteLine removes a line from the given cart.
func (r *CartRepository) DeleteLine(ctx context.Context, cartID, lineID string) error {
	tag, err := r.pool.Exec(ctx, deleteCartLineSQL, cartID, lineID)
	if err != nil {
		return fmt.Errorf("deleting cart line %q: %w", lineID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}

// Clear removes all lines from the given cart.
func (r *CartRepository) Clear(ctx context.Context, cartID string) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, cartID); err != nil {
		return fmt.Errorf("clearing cart %q: %w", cartID, err)
	}
	return nil
}

func scanCartLine(row pgx.CollectableRow) (cart.Line, error) {
	var l cart.Line
	err := row.Scan(&l.ID, &l.CartID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice, &l.Stock)
	return l, err
}
