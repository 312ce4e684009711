// Package payment holds the payment gateway contract used by checkout and
// refunds, a circuit-breaking wrapper, and an in-process sandbox gateway.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount        = errors.New("payment amount must be positive")
	ErrUnknownOrder         = errors.New("unknown payment order")
	ErrUnknownPayment       = errors.New("unknown payment")
	ErrRefundExceedsCapture = errors.New("refund exceeds captured amount")
	ErrUnavailable          = errors.New("payment gateway unavailable")
)

// Handle is what the customer's client needs to complete a payment.
type Handle struct {
	OrderRef   string            `json:"order_ref"`
	Amount     decimal.Decimal   `json:"amount"`
	Currency   string            `json:"currency"`
	CustomerID int64             `json:"customer_id"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type Payment struct {
	ID         string          `json:"id"`
	OrderRef   string          `json:"order_ref"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	CapturedAt time.Time       `json:"captured_at"`
}

type RefundResult struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Status string          `json:"status"`
}

type Gateway interface {
	CreatePaymentOrder(ctx context.Context, amount decimal.Decimal, customerID int64, metadata map[string]string) (*Handle, error)
	// VerifyAndCapturePayment returns a nil Payment and nil error when the
	// signature does not match; errors are reserved for gateway failures.
	VerifyAndCapturePayment(ctx context.Context, orderRef, paymentRef, signature string) (*Payment, error)
	// InitiateRefund repeated with the same non-empty idempotencyKey returns
	// the first result and pays nothing more.
	InitiateRefund(ctx context.Context, paymentID, reason string, amount decimal.Decimal, note, idempotencyKey string) (*RefundResult, error)
}
