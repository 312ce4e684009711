package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/safar/go-rental-store/internal/apperr"
	"github.com/safar/go-rental-store/internal/metrics"
	"github.com/safar/go-rental-store/internal/models"
	"github.com/safar/go-rental-store/internal/payment"
	"github.com/safar/go-rental-store/internal/store"
)

// CheckoutService drives payment around order creation: the customer pays
// for the whole cart once, and the captured payment is split into vendor
// orders or refunded in full.
type CheckoutService struct {
	store    store.Store
	carts    *CartService
	orders   *OrderService
	payments payment.Gateway
	invoices Invoicer
	log      zerolog.Logger
	metrics  *metrics.Metrics
	now      Clock
}

func NewCheckoutService(st store.Store, carts *CartService, orders *OrderService, payments payment.Gateway, invoices Invoicer, log zerolog.Logger, m *metrics.Metrics, now Clock) *CheckoutService {
	return &CheckoutService{
		store:    st,
		carts:    carts,
		orders:   orders,
		payments: payments,
		invoices: invoices,
		log:      log.With().Str("component", "checkout").Logger(),
		metrics:  m,
		now:      clockOrNow(now),
	}
}

type CheckoutSession struct {
	Payment *payment.Handle `json:"payment"`
	Total   decimal.Decimal `json:"total"`
	Deposit decimal.Decimal `json:"deposit"`
}

// StartCheckout validates the cart and opens a payment for the rental total
// plus deposits.
func (s *CheckoutService) StartCheckout(ctx context.Context, customerID int64) (*CheckoutSession, error) {
	const op = "CheckoutService.StartCheckout"

	validation, err := s.carts.ValidateForCheckout(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		return nil, apperr.Validation(op, "cart is not ready for checkout").WithDetails(validation.Messages()...)
	}

	cart, err := s.store.GetCart(ctx, customerID)
	if err != nil {
		return nil, apperr.Internal(op, "load cart", err)
	}
	groups, err := groupByVendor(ctx, s.store, cart)
	if err != nil {
		return nil, s.orders.wrap(op, err)
	}

	session := &CheckoutSession{}
	for _, g := range groups {
		total, deposit := g.totals()
		session.Total = session.Total.Add(total)
		session.Deposit = session.Deposit.Add(deposit)
	}

	handle, err := s.payments.CreatePaymentOrder(ctx, session.Total.Add(session.Deposit), customerID, map[string]string{
		"cart_id": fmt.Sprint(cart.ID),
		"vendors": fmt.Sprint(len(groups)),
	})
	if err != nil {
		return nil, apperr.Upstream(apperr.CodePaymentGateway, op, "could not open payment", err)
	}
	session.Payment = handle

	s.log.Info().
		Int64("customer_id", customerID).
		Str("order_ref", handle.OrderRef).
		Str("amount", handle.Amount.StringFixed(2)).
		Msg("checkout started")
	return session, nil
}

type CompleteCheckoutRequest struct {
	CustomerID int64
	OrderRef   string
	PaymentRef string
	Signature  string
}

type CheckoutResult struct {
	PaymentID string           `json:"payment_id"`
	Orders    []models.Order   `json:"orders"`
	Invoices  []models.Invoice `json:"invoices,omitempty"`
}

// CompleteCheckout captures the payment and converts the cart into orders.
// If the orders cannot be created the captured amount is refunded and the
// cart is left as it was.
func (s *CheckoutService) CompleteCheckout(ctx context.Context, req CompleteCheckoutRequest) (*CheckoutResult, error) {
	const op = "CheckoutService.CompleteCheckout"
	started := s.now()

	if req.OrderRef == "" || req.PaymentRef == "" || req.Signature == "" {
		return nil, apperr.Validation(op, "order_ref, payment_ref and signature are required")
	}

	pay, err := s.payments.VerifyAndCapturePayment(ctx, req.OrderRef, req.PaymentRef, req.Signature)
	if err != nil {
		return nil, apperr.Upstream(apperr.CodePaymentGateway, op, "payment capture failed", err)
	}
	if pay == nil {
		s.log.Warn().
			Int64("customer_id", req.CustomerID).
			Str("order_ref", req.OrderRef).
			Msg("payment verification failed")
		return nil, apperr.Upstream(apperr.CodePaymentVerificationFailed, op, "payment could not be verified", nil)
	}

	if err := s.ensureNotRefunded(ctx, op, pay.ID); err != nil {
		return nil, err
	}

	amount := pay.Amount
	orders, err := s.orders.createOrders(ctx, req.CustomerID, pay.ID, &amount)
	if err != nil {
		if !apperr.Is(err, apperr.KindAuthorization) {
			s.refundPayment(ctx, pay, err)
		}
		return nil, err
	}

	result := &CheckoutResult{PaymentID: pay.ID, Orders: orders}
	for _, order := range orders {
		inv, err := s.invoice(ctx, &order)
		if err != nil {
			s.log.Warn().Err(err).Int64("order_id", order.ID).Msg("invoice generation failed")
			continue
		}
		result.Invoices = append(result.Invoices, *inv)
	}

	s.carts.Invalidate(ctx, req.CustomerID)
	s.metrics.RecordCheckout(s.now().Sub(started))
	return result, nil
}

func (s *CheckoutService) invoice(ctx context.Context, order *models.Order) (*models.Invoice, error) {
	if s.invoices == nil {
		return nil, errors.New("no invoicer configured")
	}
	inv, err := s.invoices.GenerateInvoiceForOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if err := s.invoices.FinalizeInvoice(ctx, inv.ID, order.CustomerID); err != nil {
		return inv, nil
	}
	inv.Status = models.InvoiceStatusFinalized
	return inv, nil
}

// ensureNotRefunded refuses to build orders on a payment that a failed
// checkout has already queued for a full refund.
func (s *CheckoutService) ensureNotRefunded(ctx context.Context, op, paymentID string) error {
	refunds, err := s.store.ListRefundsByPayment(ctx, paymentID)
	if err != nil {
		return apperr.Internal(op, "look up refunds for payment", err)
	}
	for _, r := range refunds {
		if r.OrderID == nil {
			return apperr.Conflict(apperr.CodePaymentRefunded, op,
				fmt.Sprintf("payment %s was refunded after a failed checkout", paymentID))
		}
	}
	return nil
}

// refundPayment returns the whole captured amount after order creation
// failed. The refund is recorded first so RetryFailedRefunds can pick it up
// if the gateway call fails.
func (s *CheckoutService) refundPayment(ctx context.Context, pay *payment.Payment, cause error) {
	log := s.log.With().Str("payment_id", pay.ID).Str("amount", pay.Amount.StringFixed(2)).Logger()

	refund := &models.Refund{
		PaymentID: pay.ID,
		Amount:    pay.Amount,
		Reason:    "checkout failed: " + cause.Error(),
		Note:      "order ref " + pay.OrderRef,
		Status:    models.RefundStatusPending,
	}
	if err := s.store.CreateRefund(ctx, refund); err != nil {
		log.Error().Err(err).Msg("could not record checkout refund, refunding directly")
		if _, rerr := s.payments.InitiateRefund(ctx, pay.ID, refund.Reason, refund.Amount, refund.Note, "checkout-"+pay.ID); rerr != nil {
			log.Error().Err(rerr).Msg("checkout refund failed and is not recorded")
			return
		}
		s.metrics.RecordRefund(string(models.RefundStatusSucceeded))
		return
	}

	if _, err := s.orders.processRefund(ctx, refund); err != nil {
		log.Error().Err(err).Int64("refund_id", refund.ID).Msg("checkout refund failed, queued for retry")
		return
	}
	log.Info().Int64("refund_id", refund.ID).Msg("checkout refunded after order creation failed")
}
