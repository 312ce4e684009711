package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/safar/go-rental-store/internal/models"
	"github.com/safar/go-rental-store/internal/store"
)

// Pending refunds younger than this are assumed to be in flight.
const refundInFlightWindow = 5 * time.Minute

// queueRefund records a pending refund for order inside tx. Zero amounts
// queue nothing.
func queueRefund(ctx context.Context, tx store.Repository, order *models.Order, amount decimal.Decimal, reason string) (*models.Refund, error) {
	if !amount.IsPositive() {
		return nil, nil
	}
	orderID := order.ID
	refund := &models.Refund{
		PaymentID: order.PaymentID,
		OrderID:   &orderID,
		Amount:    amount,
		Reason:    reason,
		Note:      "order " + order.OrderNumber,
		Status:    models.RefundStatusPending,
	}
	if err := tx.CreateRefund(ctx, refund); err != nil {
		return nil, fmt.Errorf("queue refund for order %d: %w", order.ID, err)
	}
	return refund, nil
}

// settleRefund runs a refund queued by an order operation and returns the
// order as it stands afterwards.
func (s *OrderService) settleRefund(ctx context.Context, order *models.Order, refund *models.Refund) *models.Order {
	if refund == nil {
		return order
	}
	moved, err := s.processRefund(ctx, refund)
	if err != nil || moved == nil {
		return order
	}
	return moved
}

// processRefund asks the gateway for the refund and records the outcome. When
// a rejection refund succeeds the order moves from Rejected to Refunded; the
// moved order is returned in that case.
func (s *OrderService) processRefund(ctx context.Context, refund *models.Refund) (*models.Order, error) {
	log := s.log.With().
		Int64("refund_id", refund.ID).
		Str("payment_id", refund.PaymentID).
		Str("amount", refund.Amount.StringFixed(2)).
		Logger()

	refund.Attempts++
	result, err := s.payments.InitiateRefund(ctx, refund.PaymentID, refund.Reason, refund.Amount, refund.Note, refundKey(refund))
	if err != nil {
		s.metrics.RecordRefund(string(models.RefundStatusFailed))
		log.Error().Err(err).Int("attempts", refund.Attempts).Msg("refund failed")

		refund.Status = models.RefundStatusFailed
		if uerr := s.store.UpdateRefund(ctx, refund); uerr != nil {
			log.Error().Err(uerr).Msg("could not record failed refund")
		}
		return nil, err
	}

	refund.Status = models.RefundStatusSucceeded
	refund.GatewayRefundID = result.ID
	s.metrics.RecordRefund(string(models.RefundStatusSucceeded))

	var moved *models.Order
	var from models.OrderStatus
	err = s.store.WithTx(ctx, func(tx store.Repository) error {
		moved = nil
		if err := tx.UpdateRefund(ctx, refund); err != nil {
			return err
		}
		if refund.OrderID == nil {
			return nil
		}

		order, err := tx.GetOrderForUpdate(ctx, *refund.OrderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusRejected {
			return nil
		}
		from = order.Status
		if err := s.transition(ctx, tx, order, models.OrderStatusRefunded, SystemActor, "refund "+result.ID+" processed"); err != nil {
			return err
		}
		moved = order
		return nil
	})
	if err != nil {
		// The gateway has paid out; only the bookkeeping is behind.
		log.Error().Err(err).Str("gateway_refund_id", result.ID).Msg("refund succeeded but could not be recorded")
		return nil, err
	}

	log.Info().Str("gateway_refund_id", result.ID).Msg("refund processed")
	if moved != nil {
		s.emitTransition(ctx, moved, from, SystemActor, "order.refund", "refund "+result.ID+" processed")
	}
	return moved, nil
}

// RetryFailedRefunds retries failed refunds and pending refunds that have
// been idle past the in-flight window. Refunds are claimed before the gateway
// is called, so overlapping sweeps never pay the same refund twice. It
// returns how many succeeded.
func (s *OrderService) RetryFailedRefunds(ctx context.Context, limit int) (int, error) {
	if limit < 1 {
		limit = s.cfg.RefundBatchSize
	}

	now := s.now()
	var refunds []models.Refund
	err := s.store.WithTx(ctx, func(tx store.Repository) error {
		var err error
		refunds, err = tx.ClaimRefundsForRetry(ctx, now.Add(-refundInFlightWindow), now, limit)
		return err
	})
	if err != nil {
		return 0, s.wrap("OrderService.RetryFailedRefunds", err)
	}

	succeeded := 0
	for i := range refunds {
		if _, err := s.processRefund(ctx, &refunds[i]); err != nil {
			continue
		}
		succeeded++
	}

	s.metrics.RecordSweep("refund_retry", succeeded)
	return succeeded, nil
}

// refundKey identifies a refund row to the gateway across retries.
func refundKey(r *models.Refund) string {
	return "refund-" + strconv.FormatInt(r.ID, 10)
}
