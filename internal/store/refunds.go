package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/safar/go-rental-store/internal/database"
	"github.com/safar/go-rental-store/internal/models"
)

func (s *Queries) CreateRefund(ctx context.Context, r *models.Refund) error {
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO refunds (payment_id, order_id, amount, reason, note, status, gateway_refund_id, attempts)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		 RETURNING id, created_at, updated_at`,
		r.PaymentID, r.OrderID, r.Amount, r.Reason, r.Note, r.Status, r.GatewayRefundID, r.Attempts,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create refund: %w", err)
	}
	return nil
}

func (s *Queries) UpdateRefund(ctx context.Context, r *models.Refund) error {
	err := s.q.QueryRowContext(ctx,
		`UPDATE refunds
		 SET status = $1, gateway_refund_id = NULLIF($2, ''), attempts = $3, updated_at = NOW()
		 WHERE id = $4
		 RETURNING updated_at`,
		r.Status, r.GatewayRefundID, r.Attempts, r.ID,
	).Scan(&r.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return database.ErrRefundNotFound
		}
		return fmt.Errorf("update refund: %w", err)
	}
	return nil
}

// ListRefundsByStatus returns the oldest refunds in any of statuses.
func (s *Queries) ListRefundsByStatus(ctx context.Context, statuses []models.RefundStatus, limit int) ([]models.Refund, error) {
	values := make([]string, len(statuses))
	for i, st := range statuses {
		values[i] = string(st)
	}
	return s.queryRefunds(ctx, refundSelect().
		Where(sq.Eq{"status": values}).
		OrderBy("created_at", "id").
		Limit(uint64(limit)))
}

func (s *Queries) ListRefundsByPayment(ctx context.Context, paymentID string) ([]models.Refund, error) {
	return s.queryRefunds(ctx, refundSelect().
		Where(sq.Eq{"payment_id": paymentID}).
		OrderBy("id"))
}

func (s *Queries) ClaimRefundsForRetry(ctx context.Context, staleBefore, at time.Time, limit int) ([]models.Refund, error) {
	rows, err := s.q.QueryContext(ctx,
		`UPDATE refunds
		 SET status = 'pending', updated_at = $2
		 WHERE id IN (
		     SELECT id
		     FROM refunds
		     WHERE status = 'failed' OR (status = 'pending' AND updated_at <= $1)
		     ORDER BY created_at, id
		     LIMIT $3
		     FOR UPDATE SKIP LOCKED)
		 RETURNING `+strings.Join(refundColumns, ", "),
		staleBefore, at, limit)
	if err != nil {
		return nil, fmt.Errorf("claim refunds: %w", err)
	}
	defer rows.Close()

	refunds, err := scanRefunds(rows)
	if err != nil {
		return nil, err
	}
	sort.Slice(refunds, func(i, j int) bool { return refunds[i].ID < refunds[j].ID })
	return refunds, nil
}

var refundColumns = []string{
	"id", "payment_id", "order_id", "amount", "reason", "note", "status",
	"COALESCE(gateway_refund_id, '')", "attempts", "created_at", "updated_at",
}

func refundSelect() sq.SelectBuilder {
	return psql.Select(refundColumns...).From("refunds")
}

func (s *Queries) queryRefunds(ctx context.Context, b sq.SelectBuilder) ([]models.Refund, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list refunds: %w", err)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	defer rows.Close()
	return scanRefunds(rows)
}

func scanRefunds(rows *sql.Rows) ([]models.Refund, error) {
	var out []models.Refund
	for rows.Next() {
		var r models.Refund
		var orderID sql.NullInt64
		err := rows.Scan(
			&r.ID,
			&r.PaymentID,
			&orderID,
			&r.Amount,
			&r.Reason,
			&r.Note,
			&r.Status,
			&r.GatewayRefundID,
			&r.Attempts,
			&r.CreatedAt,
			&r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan refund: %w", err)
		}
		if orderID.Valid {
			id := orderID.Int64
			r.OrderID = &id
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
