package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSandboxCaptureAndRefund(t *testing.T) {
	ctx := context.Background()
	gw := NewSandbox("secret", "INR")

	h, err := gw.CreatePaymentOrder(ctx, decimal.NewFromInt(500), 9, map[string]string{"cart_id": "3"})
	require.NoError(t, err)
	assert.Equal(t, "INR", h.Currency)

	p, err := gw.VerifyAndCapturePayment(ctx, h.OrderRef, "pay_1", gw.Sign(h.OrderRef, "pay_1"))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(500)))

	again, err := gw.VerifyAndCapturePayment(ctx, h.OrderRef, "pay_1", gw.Sign(h.OrderRef, "pay_1"))
	require.NoError(t, err)
	assert.Equal(t, p, again)

	_, err = gw.InitiateRefund(ctx, "pay_1", "rejected", decimal.NewFromInt(300), "", "")
	require.NoError(t, err)
	_, err = gw.InitiateRefund(ctx, "pay_1", "rejected", decimal.NewFromInt(300), "", "")
	assert.ErrorIs(t, err, ErrRefundExceedsCapture)
	assert.True(t, gw.Refunded("pay_1").Equal(decimal.NewFromInt(300)))
}

func TestSandboxRefundIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	gw := NewSandbox("secret", "INR")

	h, err := gw.CreatePaymentOrder(ctx, decimal.NewFromInt(200), 9, nil)
	require.NoError(t, err)
	_, err = gw.VerifyAndCapturePayment(ctx, h.OrderRef, "pay_2", gw.Sign(h.OrderRef, "pay_2"))
	require.NoError(t, err)

	first, err := gw.InitiateRefund(ctx, "pay_2", "rejected", decimal.NewFromInt(100), "", "refund-7")
	require.NoError(t, err)
	again, err := gw.InitiateRefund(ctx, "pay_2", "rejected", decimal.NewFromInt(100), "", "refund-7")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, gw.Refunded("pay_2").Equal(decimal.NewFromInt(100)))

	_, err = gw.InitiateRefund(ctx, "pay_2", "rejected", decimal.NewFromInt(100), "", "refund-8")
	require.NoError(t, err)
	assert.True(t, gw.Refunded("pay_2").Equal(decimal.NewFromInt(200)))
}

func TestSandboxRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	gw := NewSandbox("secret", "INR")

	h, err := gw.CreatePaymentOrder(ctx, decimal.NewFromInt(10), 1, nil)
	require.NoError(t, err)

	p, err := gw.VerifyAndCapturePayment(ctx, h.OrderRef, "pay_1", "deadbeef")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSandboxRejectsNonPositiveAmount(t *testing.T) {
	_, err := NewSandbox("s", "INR").CreatePaymentOrder(context.Background(), decimal.Zero, 1, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

type failingGateway struct {
	calls int
}

func (f *failingGateway) CreatePaymentOrder(context.Context, decimal.Decimal, int64, map[string]string) (*Handle, error) {
	f.calls++
	return nil, errors.New("connection reset")
}

func (f *failingGateway) VerifyAndCapturePayment(context.Context, string, string, string) (*Payment, error) {
	f.calls++
	return nil, nil
}

func (f *failingGateway) InitiateRefund(context.Context, string, string, decimal.Decimal, string, string) (*RefundResult, error) {
	f.calls++
	return nil, errors.New("connection reset")
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	inner := &failingGateway{}
	b := NewBreaker(inner, 0.5, time.Minute, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := b.InitiateRefund(ctx, "pay_1", "r", decimal.NewFromInt(1), "", "")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.InitiateRefund(ctx, "pay_1", "r", decimal.NewFromInt(1), "", "")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, inner.calls)
}

func TestBreakerPassesRejectedSignatureThrough(t *testing.T) {
	b := NewBreaker(&failingGateway{}, 0.5, time.Minute, zerolog.Nop())

	for i := 0; i < 5; i++ {
		p, err := b.VerifyAndCapturePayment(context.Background(), "o", "p", "bad")
		require.NoError(t, err)
		assert.Nil(t, p)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}
