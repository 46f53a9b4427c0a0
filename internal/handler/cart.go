package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/cart"
)

type cartResponse struct {
	ID     string             `json:"id"`
	UserID string             `json:"userId"`
	Items  []cartItemResponse `json:"items"`
}

type cartItemResponse struct {
	ID          string  `json:"id"`
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Stock       int     `json:"stock"`
}

type addCartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

func toCartResponse(c *cart.Cart) cartResponse {
	resp := cartResponse{
		ID:     c.ID,
		UserID: c.UserID,
		Items:  make([]cartItemResponse, len(c.Lines)),
	}
	for i, l := range c.Lines {
		resp.Items[i] = cartItemResponse{
			ID:          l.ID,
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice.InexactFloat64(),
			Stock:       l.Stock,
		}
	}
	return resp
}

// GetCart returns the caller's cart, creating it on first read.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	c, err := h.carts.Get(r.Context(), id.UserID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(c))
}

// AddCartItem adds a product to the caller's cart, merging quantities for a
// product already present.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "productId is required")
		return
	}

	id, _ := IdentityFrom(r.Context())
	c, err := h.carts.AddLine(r.Context(), id.UserID, req.ProductID, req.Quantity)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(c))
}

// UpdateCartItem replaces a cart line's quantity.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateCartItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id, _ := IdentityFrom(r.Context())
	c, err := h.carts.UpdateLine(r.Context(), id.UserID, chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(c))
}

// RemoveCartItem deletes a single cart line.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	c, err := h.carts.RemoveLine(r.Context(), id.UserID, chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(c))
}

// ClearCart removes every line from the caller's cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	if err := h.carts.Clear(r.Context(), id.UserID); err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
