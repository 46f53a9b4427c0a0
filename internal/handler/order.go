package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/order"
)

type orderResponse struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"userId"`
	Total     float64                `json:"total"`
	Status    string                 `json:"status"`
	CreatedAt time.Time              `json:"createdAt"`
	Items     []orderItemResponse    `json:"items"`
	History   []orderHistoryResponse `json:"history,omitempty"`
}

type orderItemResponse struct {
	ID        string  `json:"id"`
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type orderHistoryResponse struct {
	Status    string    `json:"status"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

func toOrderResponse(o *order.Order) orderResponse {
	resp := orderResponse{
		ID:        o.ID,
		UserID:    o.UserID,
		Total:     o.Total.InexactFloat64(),
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
		Items:     make([]orderItemResponse, len(o.Items)),
		History:   make([]orderHistoryResponse, len(o.History)),
	}
	for i, item := range o.Items {
		resp.Items[i] = orderItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price.InexactFloat64(),
		}
	}
	for i, e := range o.History {
		resp.History[i] = orderHistoryResponse{
			Status:    string(e.Status),
			Note:      e.Note,
			CreatedAt: e.CreatedAt,
		}
	}
	return resp
}

// Checkout places an order from the caller's cart.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	o, err := h.orders.Checkout(r.Context(), id.UserID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toOrderResponse(o))
}

// ListOrders returns the caller's orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	orders, err := h.orders.ListForUser(r.Context(), id.UserID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	resp := make([]orderResponse, len(orders))
	for i := range orders {
		resp[i] = toOrderResponse(&orders[i])
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetOrder returns one order with its full history. Admins may read any
// order; everyone else only their own.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"), id.UserID, id.Role == auth.RoleAdmin)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

// CancelOrder cancels the caller's own pending order.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	o, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "id"), id.UserID, id.Role == auth.RoleAdmin)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

// UpdateOrderStatus applies an admin status transition.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	target, err := order.ParseStatus(req.Status)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), target, req.Note)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}
