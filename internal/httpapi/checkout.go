package httpapi

import (
	"net/http"

	"github.com/safar/go-rental-store/internal/service"
)

type CompleteCheckoutRequestDTO struct {
	OrderRef   string `json:"order_ref"`
	PaymentRef string `json:"payment_ref"`
	Signature  string `json:"signature"`
}

func (h *Handler) startCheckout(w http.ResponseWriter, r *http.Request) {
	customerID, ok := headerID(w, r, headerActorID)
	if !ok {
		return
	}

	session, err := h.checkout.StartCheckout(r.Context(), customerID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, session)
}

func (h *Handler) completeCheckout(w http.ResponseWriter, r *http.Request) {
	customerID, ok := headerID(w, r, headerActorID)
	if !ok {
		return
	}
	var req CompleteCheckoutRequestDTO
	if !decode(w, r, &req) {
		return
	}

	result, err := h.checkout.CompleteCheckout(r.Context(), service.CompleteCheckoutRequest{
		CustomerID: customerID,
		OrderRef:   req.OrderRef,
		PaymentRef: req.PaymentRef,
		Signature:  req.Signature,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}
