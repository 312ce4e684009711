package httpapi

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/safar/go-rental-store/internal/apperr"
	"github.com/safar/go-rental-store/internal/models"
	"github.com/safar/go-rental-store/internal/service"
	"github.com/safar/go-rental-store/internal/store"
)

type ReasonRequestDTO struct {
	Reason string `json:"reason"`
}

type CompleteRentalRequestDTO struct {
	Reason         string          `json:"reason"`
	ReleaseDeposit bool            `json:"release_deposit"`
	PenaltyAmount  decimal.Decimal `json:"penalty_amount"`
	PenaltyReason  string          `json:"penalty_reason"`
}

type LateFeeRequestDTO struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

type TransitionRequestDTO struct {
	Status models.OrderStatus `json:"status"`
	Reason string             `json:"reason"`
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	filter := store.OrderFilter{
		Status: models.OrderStatus(r.URL.Query().Get("status")),
		Cursor: r.URL.Query().Get("cursor"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, apperr.CodeInvalidInput, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	switch {
	case r.Header.Get(headerVendorID) != "":
		vendorID, ok := headerID(w, r, headerVendorID)
		if !ok {
			return
		}
		filter.VendorID = &vendorID
	default:
		customerID, ok := headerID(w, r, headerActorID)
		if !ok {
			return
		}
		filter.CustomerID = &customerID
	}

	page, err := h.orders.ListOrders(r.Context(), filter)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// visibleOrder loads the order named in the path if the caller is its
// customer (X-Actor-ID) or its vendor (X-Vendor-ID).
func (h *Handler) visibleOrder(w http.ResponseWriter, r *http.Request) (*models.Order, bool) {
	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return nil, false
	}
	actor := r.Header.Get(headerActorID)
	vendor := r.Header.Get(headerVendorID)
	if actor == "" && vendor == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing X-Actor-ID or X-Vendor-ID header")
		return nil, false
	}

	order, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return nil, false
	}
	if actor == strconv.FormatInt(order.CustomerID, 10) || vendor == strconv.FormatInt(order.VendorID, 10) {
		return order, true
	}
	respondError(w, http.StatusForbidden, apperr.CodeNotOwner, "order is not visible to this caller")
	return nil, false
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.visibleOrder(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *Handler) orderHistory(w http.ResponseWriter, r *http.Request) {
	order, ok := h.visibleOrder(w, r)
	if !ok {
		return
	}
	history, err := h.orders.StatusHistory(r.Context(), order.ID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

func (h *Handler) orderCharges(w http.ResponseWriter, r *http.Request) {
	order, ok := h.visibleOrder(w, r)
	if !ok {
		return
	}
	charges, err := h.orders.Charges(r.Context(), order.ID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, charges)
}

func (h *Handler) approveOrder(w http.ResponseWriter, r *http.Request) {
	vendorID, orderID, ok := vendorAction(w, r)
	if !ok {
		return
	}
	var req ReasonRequestDTO
	if !decode(w, r, &req) {
		return
	}

	order, err := h.orders.ApproveOrder(r.Context(), orderID, vendorID, req.Reason)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *Handler) rejectOrder(w http.ResponseWriter, r *http.Request) {
	vendorID, orderID, ok := vendorAction(w, r)
	if !ok {
		return
	}
	var req ReasonRequestDTO
	if !decode(w, r, &req) {
		return
	}

	order, err := h.orders.RejectOrder(r.Context(), orderID, vendorID, req.Reason)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *Handler) completeRental(w http.ResponseWriter, r *http.Request) {
	vendorID, orderID, ok := vendorAction(w, r)
	if !ok {
		return
	}
	var req CompleteRentalRequestDTO
	if !decode(w, r, &req) {
		return
	}

	order, err := h.orders.CompleteRental(r.Context(), service.CompleteRentalRequest{
		OrderID:        orderID,
		VendorID:       vendorID,
		Reason:         req.Reason,
		ReleaseDeposit: req.ReleaseDeposit,
		PenaltyAmount:  req.PenaltyAmount,
		PenaltyReason:  req.PenaltyReason,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *Handler) applyLateFee(w http.ResponseWriter, r *http.Request) {
	vendorID, orderID, ok := vendorAction(w, r)
	if !ok {
		return
	}
	var req LateFeeRequestDTO
	if !decode(w, r, &req) {
		return
	}

	charge, err := h.orders.ApplyLateFee(r.Context(), orderID, vendorID, req.Amount, req.Reason)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, charge)
}

func (h *Handler) transitionOrder(w http.ResponseWriter, r *http.Request) {
	actorID, ok := headerID(w, r, headerActorID)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req TransitionRequestDTO
	if !decode(w, r, &req) {
		return
	}

	order, err := h.orders.TransitionOrderStatus(r.Context(), orderID, req.Status, actorID, req.Reason)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func vendorAction(w http.ResponseWriter, r *http.Request) (vendorID, orderID int64, ok bool) {
	if vendorID, ok = headerID(w, r, headerVendorID); !ok {
		return 0, 0, false
	}
	if orderID, ok = pathID(w, r, "orderID"); !ok {
		return 0, 0, false
	}
	return vendorID, orderID, true
}
