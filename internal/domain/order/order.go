package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for order operations.
var (
	// ErrNotFound covers both a missing order and an order owned by a
	// different user, so order IDs cannot be probed across accounts.
	ErrNotFound = errors.New("order not found")

	// ErrCartEmpty is returned by checkout when the cart has no lines.
	ErrCartEmpty = errors.New("cart is empty")

	// ErrStockConflict is reported by a Tx when a conditional stock decrement
	// affects no rows, meaning a concurrent checkout won the remaining units.
	ErrStockConflict = errors.New("stock decrement conflict")
)

// Order is a placed order. Identity, total, and items are immutable after
// creation; only Status may change, and every change appends a history entry.
type Order struct {
	ID        string
	UserID    string
	Total     decimal.Decimal
	Status    Status
	CreatedAt time.Time
	Items     []Item
	History   []HistoryEntry
}

// Item is an order line frozen at checkout time. Price is the unit price the
// customer saw; later catalog price changes never touch it.
type Item struct {
	ID        string
	OrderID   string
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}

// HistoryEntry is one row of the append-only audit trail. The newest entry's
// status always equals the order's current status.
type HistoryEntry struct {
	ID        string
	OrderID   string
	Status    Status
	Note      string
	CreatedAt time.Time
}

// CheckoutLine is a cart line joined with its product, read inside the
// checkout transaction.
type CheckoutLine struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	Stock       int
}

// Tx is the set of operations available inside one atomic unit of work.
// Implementations must guarantee that either every call made through a Tx is
// committed or none is.
type Tx interface {
	// CartLines reads the user's cart lines with current product price and
	// stock.
	CartLines(ctx context.Context, userID string) ([]CheckoutLine, error)
	// InsertOrder persists an order together with its items.
	InsertOrder(ctx context.Context, o *Order) error
	// AppendHistory adds one audit trail entry.
	AppendHistory(ctx context.Context, e HistoryEntry) error
	// DecrementStock subtracts qty from a product's stock as a single
	// conditional statement. It returns ErrStockConflict when the product
	// does not hold qty units anymore.
	DecrementStock(ctx context.Context, productID string, qty int) error
	// IncrementStock returns qty units to a product's stock.
	IncrementStock(ctx context.Context, productID string, qty int) error
	// ClearCart removes every cart line of the user, keeping the cart row.
	ClearCart(ctx context.Context, userID string) error
	// OrderForUpdate loads an order with its items and locks the order row
	// for the remainder of the transaction. Returns ErrNotFound when absent.
	OrderForUpdate(ctx context.Context, orderID string) (*Order, error)
	// SetStatus updates the order's status column.
	SetStatus(ctx context.Context, orderID string, st Status) error
}

// Repository defines persistence operations for orders.
type Repository interface {
	// InTx runs fn inside a single database transaction. A non-nil error
	// from fn rolls back every mutation made through the Tx.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	// GetByID returns an order with items and its full history, newest
	// history entry first.
	GetByID(ctx context.Context, orderID string) (*Order, error)
	// ListByUser returns the user's orders with items and the most recent
	// history entry only, newest order first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}
