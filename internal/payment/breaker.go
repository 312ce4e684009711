package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// Breaker guards a Gateway with a circuit breaker. A rejected signature is a
// normal result and does not count as a failure.
type Breaker struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(next Gateway, threshold float64, timeout time.Duration, log zerolog.Logger) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Interval:    timeout,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("payment circuit breaker state changed")
		},
	})

	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) CreatePaymentOrder(ctx context.Context, amount decimal.Decimal, customerID int64, metadata map[string]string) (*Handle, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.CreatePaymentOrder(ctx, amount, customerID, metadata)
	})
	if err != nil {
		return nil, translate(err)
	}
	return result.(*Handle), nil
}

func (b *Breaker) VerifyAndCapturePayment(ctx context.Context, orderRef, paymentRef, signature string) (*Payment, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.VerifyAndCapturePayment(ctx, orderRef, paymentRef, signature)
	})
	if err != nil {
		return nil, translate(err)
	}
	return result.(*Payment), nil
}

func (b *Breaker) InitiateRefund(ctx context.Context, paymentID, reason string, amount decimal.Decimal, note, idempotencyKey string) (*RefundResult, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.InitiateRefund(ctx, paymentID, reason, amount, note, idempotencyKey)
	})
	if err != nil {
		return nil, translate(err)
	}
	return result.(*RefundResult), nil
}

func translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

var _ Gateway = (*Breaker)(nil)
var _ Gateway = (*Sandbox)(nil)
