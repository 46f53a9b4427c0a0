// Package handler exposes the storefront REST API over chi.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

// CartService is the cart store surface the handler depends on.
type CartService interface {
	Get(ctx context.Context, userID string) (*cart.Cart, error)
	AddLine(ctx context.Context, userID, productID string, quantity int) (*cart.Cart, error)
	UpdateLine(ctx context.Context, userID, lineID string, quantity int) (*cart.Cart, error)
	RemoveLine(ctx context.Context, userID, lineID string) (*cart.Cart, error)
	Clear(ctx context.Context, userID string) error
}

// OrderService is the order lifecycle surface the handler depends on.
type OrderService interface {
	Checkout(ctx context.Context, userID string) (*order.Order, error)
	Cancel(ctx context.Context, orderID, userID string, asAdmin bool) (*order.Order, error)
	UpdateStatus(ctx context.Context, orderID string, target order.Status, note string) (*order.Order, error)
	Get(ctx context.Context, orderID, userID string, asAdmin bool) (*order.Order, error)
	ListForUser(ctx context.Context, userID string) ([]order.Order, error)
}

// Handler routes HTTP requests to the domain services.
type Handler struct {
	products product.Repository
	carts    CartService
	orders   OrderService
	auth     *Authenticator
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(products product.Repository, carts CartService, orders OrderService, auth *Authenticator) *Handler {
	return &Handler{
		products: products,
		carts:    carts,
		orders:   orders,
		auth:     auth,
	}
}

// Routes returns the /api router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/products", h.ListProducts)
	r.Get("/products/{id}", h.GetProduct)

	r.Group(func(r chi.Router) {
		r.Use(h.auth.Middleware())

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddCartItem)
			r.Put("/items/{id}", h.UpdateCartItem)
			r.Delete("/items/{id}", h.RemoveCartItem)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.Checkout)
			r.Get("/", h.ListOrders)
			r.Get("/{id}", h.GetOrder)
			r.Post("/{id}/cancel", h.CancelOrder)
			r.With(RequireAdmin).Patch("/{id}/status", h.UpdateOrderStatus)
		})
	})

	return r
}
