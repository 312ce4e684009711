package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/go-rental-store/internal/apperr"
	"github.com/safar/go-rental-store/internal/models"
	"github.com/safar/go-rental-store/internal/payment"
)

func (e *testEnv) pay(t *testing.T, customerID int64, paymentRef string) (*CheckoutSession, CompleteCheckoutRequest) {
	t.Helper()
	session, err := e.checkout.StartCheckout(context.Background(), customerID)
	require.NoError(t, err)

	ref := session.Payment.OrderRef
	return session, CompleteCheckoutRequest{
		CustomerID: customerID,
		OrderRef:   ref,
		PaymentRef: paymentRef,
		Signature:  e.gateway.Sign(ref, paymentRef),
	}
}

func TestCheckoutHappyPath(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tent, _ := e.seedProduct(t, productSpec{vendorID: 1, stock: 2, dailyRate: "25", deposit: "50"})
	stove, _ := e.seedProduct(t, productSpec{vendorID: 2, stock: 2, dailyRate: "10"})
	e.addToCart(t, 9, tent, 1)
	e.addToCart(t, 9, stove, 1)

	session, req := e.pay(t, 9, "pay_ok")
	assert.Equal(t, "140.00", session.Total.StringFixed(2))
	assert.Equal(t, "50.00", session.Deposit.StringFixed(2))
	assert.Equal(t, "190.00", session.Payment.Amount.StringFixed(2))

	result, err := e.checkout.CompleteCheckout(ctx, req)
	require.NoError(t, err)
	require.Len(t, result.Orders, 2)
	require.Len(t, result.Invoices, 2)
	for _, inv := range result.Invoices {
		assert.Equal(t, models.InvoiceStatusFinalized, inv.Status)
	}
	assert.Equal(t, "pay_ok", result.PaymentID)

	cart, err := e.carts.GetCart(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	replay, err := e.checkout.CompleteCheckout(ctx, req)
	require.NoError(t, err)
	require.Len(t, replay.Orders, 2)
	assert.Equal(t, result.Orders[0].ID, replay.Orders[0].ID)
	assert.True(t, e.gateway.Refunded("pay_ok").IsZero())
}

func TestStartCheckoutRejectsInvalidCart(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.checkout.StartCheckout(context.Background(), 9)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, []string{"cart is empty"}, appErr.Details)
}

type downGateway struct {
	payment.Gateway
}

func (downGateway) CreatePaymentOrder(context.Context, decimal.Decimal, int64, map[string]string) (*payment.Handle, error) {
	return nil, payment.ErrUnavailable
}

func TestStartCheckoutGatewayDown(t *testing.T) {
	e := newTestEnv(t)
	p, _ := e.seedProduct(t, productSpec{vendorID: 1, stock: 1})
	e.addToCart(t, 9, p, 1)

	checkout := NewCheckoutService(e.store, e.carts, e.orders, downGateway{e.gateway}, nil, zerolog.Nop(), nil, e.clock.Now)
	_, err := checkout.StartCheckout(context.Background(), 9)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.Equal(t, apperr.CodePaymentGateway, apperr.CodeOf(err))
}

func TestCompleteCheckoutBadSignature(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	p, _ := e.seedProduct(t, productSpec{vendorID: 1, stock: 1})
	e.addToCart(t, 9, p, 1)

	_, req := e.pay(t, 9, "pay_forged")
	req.Signature = "deadbeef"

	_, err := e.checkout.CompleteCheckout(ctx, req)
	require.Error(t, err)
	assert.Equal(t, apperr.CodePaymentVerificationFailed, apperr.CodeOf(err))

	cart, err := e.carts.GetCart(ctx, 9)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1, "cart is kept")

	orders, err := e.store.ListOrdersByPayment(ctx, "pay_forged")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCompleteCheckoutRefundsWhenBookingFails(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	p, _ := e.seedProduct(t, productSpec{vendorID: 1, stock: 1})

	e.addToCart(t, 21, p, 1)
	e.addToCart(t, 22, p, 1)
	_, winner := e.pay(t, 21, "pay_21")
	_, loser := e.pay(t, 22, "pay_22")

	_, err := e.checkout.CompleteCheckout(ctx, winner)
	require.NoError(t, err)

	_, err = e.checkout.CompleteCheckout(ctx, loser)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInventoryConflict, apperr.CodeOf(err))

	assert.Equal(t, "100.00", e.gateway.Refunded("pay_22").StringFixed(2))
	refunds, err := e.store.ListRefundsByPayment(ctx, "pay_22")
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Nil(t, refunds[0].OrderID)
	assert.Equal(t, models.RefundStatusSucceeded, refunds[0].Status)

	cart, err := e.carts.GetCart(ctx, 22)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1, "cart is kept")

	_, err = e.checkout.CompleteCheckout(ctx, loser)
	require.Error(t, err)
	assert.Equal(t, apperr.CodePaymentRefunded, apperr.CodeOf(err))
}

func TestCompleteCheckoutRefundsWhenCartChanged(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	p, _ := e.seedProduct(t, productSpec{vendorID: 1, stock: 3})
	e.addToCart(t, 9, p, 1)

	_, req := e.pay(t, 9, "pay_changed")
	e.addToCart(t, 9, p, 1)

	_, err := e.checkout.CompleteCheckout(ctx, req)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeCartChanged, apperr.CodeOf(err))
	assert.Equal(t, "100.00", e.gateway.Refunded("pay_changed").StringFixed(2))

	orders, err := e.store.ListOrdersByPayment(ctx, "pay_changed")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCheckoutRefundFailureIsQueued(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	p, _ := e.seedProduct(t, productSpec{vendorID: 1, stock: 3})
	e.addToCart(t, 9, p, 1)

	_, req := e.pay(t, 9, "pay_queued")
	e.addToCart(t, 9, p, 1)
	e.gateway.setFailRefunds(true)

	_, err := e.checkout.CompleteCheckout(ctx, req)
	require.Error(t, err)

	refunds, err := e.store.ListRefundsByPayment(ctx, "pay_queued")
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, models.RefundStatusFailed, refunds[0].Status)

	e.gateway.setFailRefunds(false)
	n, err := e.orders.RetryFailedRefunds(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "100.00", e.gateway.Refunded("pay_queued").StringFixed(2))
}
