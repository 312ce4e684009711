package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sandbox is an in-process gateway for development and tests. Signatures are
// hex HMAC-SHA256 of "orderRef|paymentRef" under the sandbox secret.
type Sandbox struct {
	mu       sync.Mutex
	secret   []byte
	currency string
	orders   map[string]*Handle
	payments map[string]*Payment
	refunded map[string]decimal.Decimal
	byKey    map[string]*RefundResult
}

func NewSandbox(secret, currency string) *Sandbox {
	return &Sandbox{
		secret:   []byte(secret),
		currency: currency,
		orders:   make(map[string]*Handle),
		payments: make(map[string]*Payment),
		refunded: make(map[string]decimal.Decimal),
		byKey:    make(map[string]*RefundResult),
	}
}

func (s *Sandbox) Sign(orderRef, paymentRef string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(orderRef + "|" + paymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Sandbox) CreatePaymentOrder(_ context.Context, amount decimal.Decimal, customerID int64, metadata map[string]string) (*Handle, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	h := &Handle{
		OrderRef:   "order_" + shortID(),
		Amount:     amount,
		Currency:   s.currency,
		CustomerID: customerID,
		Metadata:   metadata,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[h.OrderRef] = h
	return h, nil
}

func (s *Sandbox) VerifyAndCapturePayment(_ context.Context, orderRef, paymentRef, signature string) (*Payment, error) {
	if !hmac.Equal([]byte(s.Sign(orderRef, paymentRef)), []byte(signature)) {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.orders[orderRef]
	if !ok {
		return nil, ErrUnknownOrder
	}
	if p, ok := s.payments[paymentRef]; ok {
		if p.OrderRef != orderRef {
			return nil, nil
		}
		return p, nil
	}

	p := &Payment{
		ID:         paymentRef,
		OrderRef:   orderRef,
		Amount:     h.Amount,
		Currency:   h.Currency,
		CapturedAt: time.Now().UTC(),
	}
	s.payments[paymentRef] = p
	return p, nil
}

func (s *Sandbox) InitiateRefund(_ context.Context, paymentID, reason string, amount decimal.Decimal, note, idempotencyKey string) (*RefundResult, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.byKey[idempotencyKey]; ok && idempotencyKey != "" {
		return prev, nil
	}

	p, ok := s.payments[paymentID]
	if !ok {
		return nil, ErrUnknownPayment
	}
	total := s.refunded[paymentID].Add(amount)
	if total.GreaterThan(p.Amount) {
		return nil, fmt.Errorf("%w: %s of %s", ErrRefundExceedsCapture, total, p.Amount)
	}
	s.refunded[paymentID] = total

	result := &RefundResult{ID: "rfnd_" + shortID(), Amount: amount, Status: "processed"}
	if idempotencyKey != "" {
		s.byKey[idempotencyKey] = result
	}
	return result, nil
}

// Refunded returns the total refunded against a payment.
func (s *Sandbox) Refunded(paymentID string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refunded[paymentID]
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}
