package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/safar/go-rental-store/internal/database"
	"github.com/safar/go-rental-store/internal/models"
)

const lockColumns = `id, variant_id, order_id, order_item_id, quantity, start_at, end_at, status, created_at, released_at`

func scanLock(row rowScanner) (*models.InventoryLock, error) {
	l := &models.InventoryLock{}
	var itemID sql.NullInt64
	var releasedAt sql.NullTime
	err := row.Scan(
		&l.ID,
		&l.VariantID,
		&l.OrderID,
		&itemID,
		&l.Quantity,
		&l.StartDate,
		&l.EndDate,
		&l.Status,
		&l.CreatedAt,
		&releasedAt,
	)
	if err != nil {
		return nil, err
	}
	if itemID.Valid {
		id := itemID.Int64
		l.OrderItemID = &id
	}
	if releasedAt.Valid {
		t := releasedAt.Time
		l.ReleasedAt = &t
	}
	return l, nil
}

// SumActiveLocked totals the quantity of active locks on the variant whose
// window overlaps [start, end).
func (s *Queries) SumActiveLocked(ctx context.Context, variantID int64, start, end time.Time) (int, error) {
	var total int
	err := s.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity), 0)
		 FROM inventory_locks
		 WHERE variant_id = $1
		   AND status = 'active'
		   AND start_at < $3
		   AND end_at > $2`,
		variantID, start, end).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum active locks: %w", err)
	}
	return total, nil
}

func (s *Queries) CreateInventoryLock(ctx context.Context, lock *models.InventoryLock) error {
	if lock.Status == "" {
		lock.Status = models.LockStatusActive
	}
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO inventory_locks (variant_id, order_id, order_item_id, quantity, start_at, end_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		lock.VariantID, lock.OrderID, lock.OrderItemID, lock.Quantity, lock.StartDate, lock.EndDate, lock.Status,
	).Scan(&lock.ID, &lock.CreatedAt)
	if err != nil {
		return fmt.Errorf("create inventory lock: %w", err)
	}
	return nil
}

func (s *Queries) GetInventoryLock(ctx context.Context, id int64) (*models.InventoryLock, error) {
	l, err := scanLock(s.q.QueryRowContext(ctx,
		`SELECT `+lockColumns+` FROM inventory_locks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrLockNotFound
		}
		return nil, fmt.Errorf("get inventory lock: %w", err)
	}
	return l, nil
}

func (s *Queries) ReleaseLock(ctx context.Context, id int64, at time.Time) (bool, error) {
	result, err := s.q.ExecContext(ctx,
		`UPDATE inventory_locks
		 SET status = 'released', released_at = $2
		 WHERE id = $1 AND status = 'active'`, id, at)
	if err != nil {
		return false, fmt.Errorf("release lock: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	if _, err := s.GetInventoryLock(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Queries) ReleaseOrderLocks(ctx context.Context, orderID int64, at time.Time) (int, error) {
	result, err := s.q.ExecContext(ctx,
		`UPDATE inventory_locks
		 SET status = 'released', released_at = $2
		 WHERE order_id = $1 AND status = 'active'`, orderID, at)
	if err != nil {
		return 0, fmt.Errorf("release order locks: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return int(n), nil
}

func (s *Queries) ListOrderLocks(ctx context.Context, orderID int64) ([]models.InventoryLock, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+lockColumns+` FROM inventory_locks WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order locks: %w", err)
	}
	defer rows.Close()

	var out []models.InventoryLock
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inventory lock: %w", err)
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// ReleaseExpiredLocks releases active locks whose window has ended and whose
// order can no longer use them.
func (s *Queries) ReleaseExpiredLocks(ctx context.Context, now time.Time) (int, error) {
	result, err := s.q.ExecContext(ctx,
		`UPDATE inventory_locks l
		 SET status = 'released', released_at = $1
		 FROM orders o
		 WHERE l.order_id = o.id
		   AND l.status = 'active'
		   AND l.end_at <= $1
		   AND o.status IN ('Completed', 'Rejected', 'Refunded')`, now)
	if err != nil {
		return 0, fmt.Errorf("release expired locks: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return int(n), nil
}
