// Package invoice issues one invoice per order and finalizes it once the
// customer's checkout has settled.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/safar/go-rental-store/internal/apperr"
	"github.com/safar/go-rental-store/internal/database"
	"github.com/safar/go-rental-store/internal/models"
	"github.com/safar/go-rental-store/internal/store"
)

type Service struct {
	repo store.Repository
	log  zerolog.Logger
	now  func() time.Time
}

func NewService(repo store.Repository, log zerolog.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo: repo,
		log:  log.With().Str("component", "invoice").Logger(),
		now:  now,
	}
}

// GenerateInvoiceForOrder returns the order's invoice, creating a draft the
// first time. The amount is the rental total plus any charges; the deposit
// is refundable and not invoiced.
func (s *Service) GenerateInvoiceForOrder(ctx context.Context, orderID int64) (*models.Invoice, error) {
	const op = "invoice.GenerateInvoiceForOrder"

	existing, err := s.repo.GetInvoiceByOrder(ctx, orderID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, database.ErrInvoiceNotFound) {
		return nil, apperr.Internal(op, "look up invoice", err)
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, database.ErrOrderNotFound) {
			return nil, apperr.NotFound(op, fmt.Sprintf("order %d not found", orderID), err)
		}
		return nil, apperr.Internal(op, "load order", err)
	}
	charges, err := s.repo.ListCharges(ctx, orderID)
	if err != nil {
		return nil, apperr.Internal(op, "load order charges", err)
	}

	amount := order.TotalAmount
	for _, c := range charges {
		amount = amount.Add(c.Amount)
	}

	inv := &models.Invoice{
		InvoiceNumber: models.NewInvoiceNumber(s.now()),
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		Amount:        amount,
		Status:        models.InvoiceStatusDraft,
	}
	if err := s.repo.CreateInvoice(ctx, inv); err != nil {
		// A concurrent call may have won the per-order unique constraint.
		if existing, gerr := s.repo.GetInvoiceByOrder(ctx, orderID); gerr == nil {
			return existing, nil
		}
		return nil, apperr.Internal(op, "create invoice", err)
	}

	s.log.Info().
		Int64("order_id", order.ID).
		Str("invoice_number", inv.InvoiceNumber).
		Str("amount", inv.Amount.StringFixed(2)).
		Msg("invoice generated")
	return inv, nil
}

// FinalizeInvoice locks the invoice against further changes. Only the
// invoiced customer may finalize it; finalizing twice is a no-op.
func (s *Service) FinalizeInvoice(ctx context.Context, invoiceID, customerID int64) error {
	const op = "invoice.FinalizeInvoice"

	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, database.ErrInvoiceNotFound) {
			return apperr.NotFound(op, fmt.Sprintf("invoice %d not found", invoiceID), err)
		}
		return apperr.Internal(op, "load invoice", err)
	}
	if inv.CustomerID != customerID {
		return apperr.Authorization(op, fmt.Sprintf("invoice %d does not belong to customer %d", invoiceID, customerID))
	}
	if inv.Status == models.InvoiceStatusFinalized {
		return nil
	}

	if err := s.repo.FinalizeInvoice(ctx, invoiceID, s.now()); err != nil {
		return apperr.Internal(op, "finalize invoice", err)
	}
	s.log.Debug().Int64("invoice_id", invoiceID).Msg("invoice finalized")
	return nil
}
