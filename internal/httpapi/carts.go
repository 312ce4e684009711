package httpapi

import (
	"net/http"
	"time"

	"github.com/safar/go-rental-store/internal/apperr"
	"github.com/safar/go-rental-store/internal/models"
	"github.com/safar/go-rental-store/internal/service"
)

type AddItemRequestDTO struct {
	ProductID int64     `json:"product_id"`
	VariantID *int64    `json:"variant_id,omitempty"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Quantity  int       `json:"quantity"`
}

// UpdateItemRequestDTO changes the quantity, the rental window, or both.
type UpdateItemRequestDTO struct {
	Quantity  *int       `json:"quantity,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	customerID, ok := headerID(w, r, headerActorID)
	if !ok {
		return
	}

	cart, err := h.carts.GetCart(r.Context(), customerID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	customerID, ok := headerID(w, r, headerActorID)
	if !ok {
		return
	}
	var req AddItemRequestDTO
	if !decode(w, r, &req) {
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, apperr.CodeInvalidInput, "product_id must be positive")
		return
	}

	cart, err := h.carts.AddItem(r.Context(), service.AddItemRequest{
		CustomerID: customerID,
		ProductID:  req.ProductID,
		VariantID:  req.VariantID,
		Start:      req.StartDate,
		End:        req.EndDate,
		Quantity:   req.Quantity,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, cart)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	customerID, ok := headerID(w, r, headerActorID)
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}
	var req UpdateItemRequestDTO
	if !decode(w, r, &req) {
		return
	}
	if req.Quantity == nil && req.StartDate == nil && req.EndDate == nil {
		respondError(w, http.StatusBadRequest, apperr.CodeInvalidInput, "nothing to update")
		return
	}
	if (req.StartDate == nil) != (req.EndDate == nil) {
		respondError(w, http.StatusBadRequest, apperr.CodeInvalidInput, "start_date and end_date must be changed together")
		return
	}

	ctx := r.Context()
	var cart *models.Cart
	var err error
	if req.StartDate != nil {
		cart, err = h.carts.UpdateRentalPeriod(ctx, customerID, itemID, *req.StartDate, *req.EndDate)
	}
	if err == nil && req.Quantity != nil {
		cart, err = h.carts.UpdateItemQuantity(ctx, customerID, itemID, *req.Quantity)
	}
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	customerID, ok := headerID(w, r, headerActorID)
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}

	cart, err := h.carts.RemoveItem(r.Context(), customerID, itemID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	customerID, ok := headerID(w, r, headerActorID)
	if !ok {
		return
	}
	if err := h.carts.ClearCart(r.Context(), customerID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) validateCart(w http.ResponseWriter, r *http.Request) {
	customerID, ok := headerID(w, r, headerActorID)
	if !ok {
		return
	}

	result, err := h.carts.ValidateForCheckout(r.Context(), customerID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
