package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/product"
)

// Service implements the cart store: one lazily created cart per user with
// merge-on-add lines. Stock checks here are advisory and fail fast with a
// friendly error; the authoritative check happens inside the checkout
// transaction.
type Service struct {
	carts    Repository
	products product.Repository
}

// NewService creates a cart Service with the required dependencies.
func NewService(carts Repository, products product.Repository) *Service {
	return &Service{
		carts:    carts,
		products: products,
	}
}

// Get returns the user's cart with its lines, creating an empty cart if none
// exists yet.
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.carts.GetByUser(ctx, userID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "get cart")
	}

	c = &Cart{ID: uuid.New().String(), UserID: userID}
	if err := s.carts.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create cart")
	}
	return c, nil
}

// AddLine puts quantity units of a product into the user's cart. Adding a
// product that is already in the cart merges quantities instead of creating
// a second line.
func (s *Service) AddLine(ctx context.Context, userID, productID string, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	total := quantity
	lineID := uuid.New().String()
	if existing := c.LineByProduct(productID); existing != nil {
		total += existing.Quantity
		lineID = existing.ID
	}
	if p.Stock < total {
		return nil, &product.InsufficientStockError{ProductID: p.ID, ProductName: p.Name}
	}

	if err := s.carts.SetLine(ctx, lineID, c.ID, productID, total); err != nil {
		return nil, errors.Wrap(err, "set cart line")
	}
	return s.carts.GetByUser(ctx, userID)
}

// UpdateLine replaces the quantity of an existing line. A line belonging to
// another user's cart is reported as ErrNotFound.
func (s *Service) UpdateLine(ctx context.Context, userID, lineID string, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	c, err := s.carts.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var target *Line
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			target = &c.Lines[i]
			break
		}
	}
	if target == nil {
		return nil, ErrNotFound
	}

	p, err := s.products.GetByID(ctx, target.ProductID)
	if err != nil {
		return nil, err
	}
	if p.Stock < quantity {
		return nil, &product.InsufficientStockError{ProductID: p.ID, ProductName: p.Name}
	}

	if err := s.carts.UpdateLineQuantity(ctx, c.ID, lineID, quantity); err != nil {
		return nil, err
	}
	return s.carts.GetByUser(ctx, userID)
}

// RemoveLine deletes a single line from the user's cart.
func (s *Service) RemoveLine(ctx context.Context, userID, lineID string) (*Cart, error) {
	c, err := s.carts.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.carts.DeleteLine(ctx, c.ID, lineID); err != nil {
		return nil, err
	}
	return s.carts.GetByUser(ctx, userID)
}

// Clear removes every line from the user's cart, keeping the cart row itself.
func (s *Service) Clear(ctx context.Context, userID string) error {
	c, err := s.carts.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return s.carts.Clear(ctx, c.ID)
}
