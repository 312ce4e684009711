package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"github.com/safar/go-rental-store/internal/database"
	"github.com/safar/go-rental-store/internal/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var orderColumns = []string{
	"id", "order_number", "customer_id", "vendor_id", "payment_id", "status", "total_amount",
	"deposit_amount", "deposit_released_amount", "penalty_amount", "penalty_reason",
	"completed_at", "created_at", "updated_at", "version",
}

func scanOrder(row rowScanner) (*models.Order, error) {
	o := &models.Order{}
	var deposit, released, penalty decimal.NullDecimal
	var penaltyReason sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.CustomerID,
		&o.VendorID,
		&o.PaymentID,
		&o.Status,
		&o.TotalAmount,
		&deposit,
		&released,
		&penalty,
		&penaltyReason,
		&completedAt,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.Version,
	)
	if err != nil {
		return nil, err
	}
	o.DepositAmount = nullDecimalPtr(deposit)
	o.DepositReleasedAmount = nullDecimalPtr(released)
	o.PenaltyAmount = nullDecimalPtr(penalty)
	o.PenaltyReason = penaltyReason.String
	if completedAt.Valid {
		t := completedAt.Time
		o.CompletedAt = &t
	}
	return o, nil
}

func nullDecimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func (s *Queries) CreateRentalPeriod(ctx context.Context, p *models.RentalPeriod) error {
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO rental_periods (start_at, end_at, duration_value, duration_unit)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		p.StartDateTime, p.EndDateTime, p.DurationValue, p.DurationUnit).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("create rental period: %w", err)
	}
	return nil
}

func (s *Queries) CreateOrder(ctx context.Context, order *models.Order) error {
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO orders (order_number, customer_id, vendor_id, payment_id, status, total_amount,
		                     deposit_amount, created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW(), 1)
		 RETURNING id, created_at, updated_at, version`,
		order.OrderNumber, order.CustomerID, order.VendorID, order.PaymentID, order.Status,
		order.TotalAmount, order.DepositAmount,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt, &order.Version)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (s *Queries) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	item.RecomputeTotal()
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO order_items (order_id, product_id, variant_id, rental_period_id, quantity, unit_price, total_price)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		item.OrderID, item.ProductID, item.VariantID, item.RentalPeriodID, item.Quantity,
		item.UnitPrice, item.TotalPrice,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("create order item: %w", err)
	}
	return nil
}

func (s *Queries) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return s.getOrder(ctx, id, false)
}

// GetOrderForUpdate row-locks the order until the transaction ends.
func (s *Queries) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return s.getOrder(ctx, id, true)
}

func (s *Queries) getOrder(ctx context.Context, id int64, forUpdate bool) (*models.Order, error) {
	qb := psql.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"id": id})
	if forUpdate {
		qb = qb.Suffix("FOR UPDATE")
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get order: %w", err)
	}

	order, err := scanOrder(s.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if order.Items, err = s.listOrderItems(ctx, id); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Queries) listOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, order_id, product_id, variant_id, rental_period_id, quantity, unit_price, total_price, created_at
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		var variantID sql.NullInt64
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&variantID,
			&item.RentalPeriodID,
			&item.Quantity,
			&item.UnitPrice,
			&item.TotalPrice,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if variantID.Valid {
			v := variantID.Int64
			item.VariantID = &v
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

// ListOrders pages newest first by (created_at, id). Items are not loaded.
func (s *Queries) ListOrders(ctx context.Context, filter OrderFilter) (*OrderPage, error) {
	cursorData, err := DecodeCursor(filter.Cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	limit := ClampLimit(filter.Limit)

	qb := psql.Select(orderColumns...).
		From("orders").
		Where(sq.Expr("(created_at, id) < (?, ?)", cursorData.CreatedAt, cursorData.ID)).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit + 1))
	if filter.CustomerID != nil {
		qb = qb.Where(sq.Eq{"customer_id": *filter.CustomerID})
	}
	if filter.VendorID != nil {
		qb = qb.Where(sq.Eq{"vendor_id": *filter.VendorID})
	}
	if filter.Status != "" {
		qb = qb.Where(sq.Eq{"status": filter.Status})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list orders: %w", err)
	}

	orders, err := s.queryOrders(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	return &OrderPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func (s *Queries) ListOrdersByPayment(ctx context.Context, paymentID string) ([]models.Order, error) {
	query, args, err := psql.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"payment_id": paymentID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list orders by payment: %w", err)
	}
	return s.queryOrders(ctx, query, args...)
}

func (s *Queries) queryOrders(ctx context.Context, query string, args ...interface{}) ([]models.Order, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return orders, nil
}

func (s *Queries) ClaimOrdersByStatus(ctx context.Context, status models.OrderStatus, createdAtOrBefore time.Time, limit int) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id
		 FROM orders
		 WHERE status = $1 AND created_at <= $2
		 ORDER BY created_at, id
		 LIMIT $3
		 FOR UPDATE SKIP LOCKED`,
		status, createdAtOrBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("claim orders: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ids, nil
}

func (s *Queries) CompareAndSetStatus(ctx context.Context, orderID int64, from, to models.OrderStatus, at time.Time) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1, updated_at = $2, version = version + 1
		 WHERE id = $3 AND status = $4`,
		to, at, orderID, from)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		if _, err := s.GetOrder(ctx, orderID); err != nil {
			return err
		}
		return database.ErrStatusConflict
	}
	return nil
}

func (s *Queries) InsertStatusChange(ctx context.Context, change *models.StatusChange) error {
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO order_status_history (order_id, from_status, to_status, actor_id, reason)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		change.OrderID, change.FromStatus, change.ToStatus, change.ActorID, change.Reason,
	).Scan(&change.ID, &change.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert status change: %w", err)
	}
	return nil
}

func (s *Queries) ListStatusChanges(ctx context.Context, orderID int64) ([]models.StatusChange, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, order_id, from_status, to_status, actor_id, reason, created_at
		 FROM order_status_history
		 WHERE order_id = $1
		 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list status changes: %w", err)
	}
	defer rows.Close()

	var out []models.StatusChange
	for rows.Next() {
		var c models.StatusChange
		if err := rows.Scan(&c.ID, &c.OrderID, &c.FromStatus, &c.ToStatus, &c.ActorID, &c.Reason, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (s *Queries) InsertCharge(ctx context.Context, charge *models.OrderCharge) error {
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO order_charges (order_id, kind, amount, reason)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		charge.OrderID, charge.Kind, charge.Amount, charge.Reason,
	).Scan(&charge.ID, &charge.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert charge: %w", err)
	}
	return nil
}

func (s *Queries) ListCharges(ctx context.Context, orderID int64) ([]models.OrderCharge, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, order_id, kind, amount, reason, created_at
		 FROM order_charges
		 WHERE order_id = $1
		 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list charges: %w", err)
	}
	defer rows.Close()

	var out []models.OrderCharge
	for rows.Next() {
		var c models.OrderCharge
		if err := rows.Scan(&c.ID, &c.OrderID, &c.Kind, &c.Amount, &c.Reason, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan charge: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// SettleDeposit records the deposit outcome of a completed rental. Only the
// fields set in the settlement are written.
func (s *Queries) SettleDeposit(ctx context.Context, orderID int64, settlement DepositSettlement) error {
	ub := psql.Update("orders").
		Set("completed_at", settlement.CompletedAt).
		Set("updated_at", settlement.CompletedAt).
		Where(sq.Eq{"id": orderID})
	if settlement.ReleasedAmount != nil {
		ub = ub.Set("deposit_released_amount", *settlement.ReleasedAmount)
	}
	if settlement.PenaltyAmount != nil {
		ub = ub.Set("penalty_amount", *settlement.PenaltyAmount).
			Set("penalty_reason", settlement.PenaltyReason)
	}

	query, args, err := ub.ToSql()
	if err != nil {
		return fmt.Errorf("build settle deposit: %w", err)
	}

	result, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("settle deposit: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrOrderNotFound
	}
	return nil
}
