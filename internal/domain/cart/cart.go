package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for cart operations.
var (
	// ErrNotFound covers both a genuinely missing cart line and a line owned
	// by another user's cart. The two cases are deliberately
	// indistinguishable so line IDs cannot be probed across users.
	ErrNotFound = errors.New("cart item not found")

	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// Cart holds a user's pending selection. There is at most one cart per user;
// it is created lazily and emptied in place after checkout, never deleted.
type Cart struct {
	ID     string
	UserID string
	Lines  []Line
}

// Line is a single product selection in a cart. UnitPrice and Stock are the
// catalog values at read time, included for display; they are advisory and
// re-checked at checkout.
type Line struct {
	ID          string
	CartID      string
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	Stock       int
}

// LineByProduct returns the line holding productID, or nil.
func (c *Cart) LineByProduct(productID string) *Line {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return &c.Lines[i]
		}
	}
	return nil
}

// Repository defines persistence operations for carts and their lines.
// Line mutations are scoped by cart ID, so a lookup with the wrong cart
// behaves exactly like a missing line.
type Repository interface {
	GetByUser(ctx context.Context, userID string) (*Cart, error)
	Create(ctx context.Context, c *Cart) error
	SetLine(ctx context.Context, lineID, cartID, productID string, quantity int) error
	UpdateLineQuantity(ctx context.Context, cartID, lineID string, quantity int) error
	DeleteLine(ctx context.Context, cartID, lineID string) error
	Clear(ctx context.Context, cartID string) error
}
