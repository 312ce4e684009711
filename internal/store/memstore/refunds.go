package memstore

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/safar/go-rental-store/internal/database"
	"github.com/safar/go-rental-store/internal/models"
)

var (
	errDuplicateOrderNumber   = errors.New("duplicate order number")
	errDuplicateInvoiceNumber = errors.New("duplicate invoice number")
	errOrderAlreadyInvoiced   = errors.New("order already invoiced")
)

func (r *repo) CreateRefund(_ context.Context, refund *models.Refund) error {
	defer r.enter()()
	st := r.state()

	now := r.clock()
	refund.ID = st.nextID()
	refund.CreatedAt, refund.UpdatedAt = now, now
	st.refunds[refund.ID] = *refund
	return nil
}

func (r *repo) UpdateRefund(_ context.Context, refund *models.Refund) error {
	defer r.enter()()
	st := r.state()

	existing, ok := st.refunds[refund.ID]
	if !ok {
		return database.ErrRefundNotFound
	}
	existing.Status = refund.Status
	existing.GatewayRefundID = refund.GatewayRefundID
	existing.Attempts = refund.Attempts
	existing.UpdatedAt = r.clock()
	st.refunds[refund.ID] = existing
	refund.UpdatedAt = existing.UpdatedAt
	return nil
}

func (r *repo) ListRefundsByStatus(_ context.Context, statuses []models.RefundStatus, limit int) ([]models.Refund, error) {
	defer r.enter()()

	want := make(map[models.RefundStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	var out []models.Refund
	for _, refund := range r.state().refunds {
		if want[refund.Status] {
			out = append(out, refund)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *repo) ClaimRefundsForRetry(_ context.Context, staleBefore, at time.Time, limit int) ([]models.Refund, error) {
	defer r.enter()()
	st := r.state()

	var out []models.Refund
	for _, refund := range st.refunds {
		stale := refund.Status == models.RefundStatusPending && !refund.UpdatedAt.After(staleBefore)
		if refund.Status == models.RefundStatusFailed || stale {
			out = append(out, refund)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Status = models.RefundStatusPending
		out[i].UpdatedAt = at
		st.refunds[out[i].ID] = out[i]
	}
	return out, nil
}

func (r *repo) ListRefundsByPayment(_ context.Context, paymentID string) ([]models.Refund, error) {
	defer r.enter()()

	var out []models.Refund
	for _, refund := range r.state().refunds {
		if refund.PaymentID == paymentID {
			out = append(out, refund)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *repo) CreateInvoice(_ context.Context, inv *models.Invoice) error {
	defer r.enter()()
	st := r.state()

	for _, existing := range st.invoices {
		if existing.InvoiceNumber == inv.InvoiceNumber {
			return errDuplicateInvoiceNumber
		}
		if existing.OrderID == inv.OrderID {
			return errOrderAlreadyInvoiced
		}
	}
	inv.ID = st.nextID()
	inv.CreatedAt = r.clock()
	st.invoices[inv.ID] = *inv
	return nil
}

func (r *repo) GetInvoice(_ context.Context, id int64) (*models.Invoice, error) {
	defer r.enter()()

	inv, ok := r.state().invoices[id]
	if !ok {
		return nil, database.ErrInvoiceNotFound
	}
	return &inv, nil
}

func (r *repo) GetInvoiceByOrder(_ context.Context, orderID int64) (*models.Invoice, error) {
	defer r.enter()()

	for _, inv := range r.state().invoices {
		if inv.OrderID == orderID {
			return &inv, nil
		}
	}
	return nil, database.ErrInvoiceNotFound
}

func (r *repo) FinalizeInvoice(_ context.Context, id int64, at time.Time) error {
	defer r.enter()()
	st := r.state()

	inv, ok := st.invoices[id]
	if !ok {
		return database.ErrInvoiceNotFound
	}
	if inv.Status == models.InvoiceStatusFinalized {
		return nil
	}
	inv.Status = models.InvoiceStatusFinalized
	inv.FinalizedAt = &at
	st.invoices[id] = inv
	return nil
}
