package service

import (
	"context"

	"github.com/safar/go-rental-store/internal/apperr"
	"github.com/safar/go-rental-store/internal/models"
	"github.com/safar/go-rental-store/internal/store"
)

// ProcessAutoApprovals activates Auto_Approved orders in batches. Orders that
// changed under the sweep are skipped, so a second run moves nothing.
func (s *OrderService) ProcessAutoApprovals(ctx context.Context) (int, error) {
	const op = "OrderService.ProcessAutoApprovals"
	const reason = "auto-approval activation"

	total := 0
	for {
		var moved []*models.Order
		claimed := 0
		err := s.store.WithTx(ctx, func(tx store.Repository) error {
			moved = nil
			ids, err := tx.ClaimOrdersByStatus(ctx, models.OrderStatusAutoApproved, s.now(), s.cfg.SweepBatchSize)
			if err != nil {
				return err
			}
			claimed = len(ids)

			for _, id := range ids {
				order, err := tx.GetOrderForUpdate(ctx, id)
				if err != nil {
					return err
				}
				err = s.transition(ctx, tx, order, models.OrderStatusActiveRental, SystemActor, reason)
				if apperr.Is(err, apperr.KindConflict) {
					s.log.Debug().Int64("order_id", id).Msg("order changed during auto-approval, skipping")
					continue
				}
				if err != nil {
					return err
				}
				moved = append(moved, order)
			}
			return nil
		})
		if err != nil {
			s.log.Error().Err(err).Int("activated", total).Msg("auto-approval sweep failed")
			return total, s.wrap(op, err)
		}

		for _, order := range moved {
			s.emitTransition(ctx, order, models.OrderStatusAutoApproved, SystemActor, "order.auto_approve", reason)
		}
		total += len(moved)

		if claimed < s.cfg.SweepBatchSize || len(moved) == 0 {
			break
		}
	}

	s.metrics.RecordSweep("auto_approval", total)
	if total > 0 {
		s.log.Info().Int("activated", total).Msg("auto-approval sweep finished")
	}
	return total, nil
}

// ProcessDocumentTimeouts rejects and refunds orders that have waited for
// vendor approval past the document deadline. Each batch is claimed and
// rejected in one transaction; refunds go to the gateway after it commits.
func (s *OrderService) ProcessDocumentTimeouts(ctx context.Context) (int, error) {
	const op = "OrderService.ProcessDocumentTimeouts"
	const reason = "verification documents not received before deadline"

	total := 0
	for {
		var cancelled []*models.Order
		var refunds []*models.Refund
		claimed := 0
		deadline := s.now().Add(-s.cfg.DocumentDeadline)
		err := s.store.WithTx(ctx, func(tx store.Repository) error {
			cancelled, refunds = nil, nil
			ids, err := tx.ClaimOrdersByStatus(ctx, models.OrderStatusPendingVendorApproval, deadline, s.cfg.SweepBatchSize)
			if err != nil {
				return err
			}
			claimed = len(ids)

			for _, id := range ids {
				order, err := tx.GetOrderForUpdate(ctx, id)
				if err != nil {
					return err
				}
				refund, err := s.rejectForTimeout(ctx, tx, order, reason, true)
				if apperr.Is(err, apperr.KindConflict) {
					s.log.Debug().Int64("order_id", id).Msg("order changed during document timeout sweep, skipping")
					continue
				}
				if err != nil {
					return err
				}
				cancelled = append(cancelled, order)
				refunds = append(refunds, refund)
			}
			return nil
		})
		if err != nil {
			s.log.Error().Err(err).Int("cancelled", total).Msg("document timeout sweep failed")
			return total, s.wrap(op, err)
		}

		for i, order := range cancelled {
			s.emitTransition(ctx, order, models.OrderStatusPendingVendorApproval, SystemActor, "order.document_timeout", reason)
			s.settleRefund(ctx, order, refunds[i])
		}
		total += len(cancelled)

		if claimed < s.cfg.SweepBatchSize || len(cancelled) == 0 {
			break
		}
	}

	s.metrics.RecordSweep("document_timeout", total)
	if total > 0 {
		s.log.Info().Int("cancelled", total).Msg("document timeout sweep finished")
	}
	return total, nil
}
