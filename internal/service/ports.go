package service

import (
	"context"
	"time"

	"github.com/safar/go-rental-store/internal/models"
	"github.com/safar/go-rental-store/internal/notify"
)

// Notifier and Auditor are fire-and-forget collaborators: their errors are
// logged and never fail the operation that called them.
type Notifier interface {
	OrderCreated(ctx context.Context, order *models.Order) error
	OrderStatusChanged(ctx context.Context, order *models.Order, from models.OrderStatus, reason string) error
}

type Auditor interface {
	LogAction(ctx context.Context, entry notify.AuditEntry) error
}

type Invoicer interface {
	GenerateInvoiceForOrder(ctx context.Context, orderID int64) (*models.Invoice, error)
	FinalizeInvoice(ctx context.Context, invoiceID, customerID int64) error
}

// Clock returns the current time. Services default to time.Now.
type Clock func() time.Time

func clockOrNow(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}
