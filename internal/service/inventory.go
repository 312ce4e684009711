package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/safar/go-rental-store/internal/apperr"
	"github.com/safar/go-rental-store/internal/database"
	"github.com/safar/go-rental-store/internal/metrics"
	"github.com/safar/go-rental-store/internal/models"
	"github.com/safar/go-rental-store/internal/store"
)

// InventoryLocks answers availability questions and owns the
// check-then-create booking sequence.
type InventoryLocks struct {
	store   store.Store
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     Clock
}

func NewInventoryLocks(st store.Store, log zerolog.Logger, m *metrics.Metrics, now Clock) *InventoryLocks {
	return &InventoryLocks{
		store:   st,
		log:     log.With().Str("component", "inventory").Logger(),
		metrics: m,
		now:     clockOrNow(now),
	}
}

// IsAvailable reports whether quantity more units of the variant fit in
// [start, end). Any lookup failure is reported as unavailable.
func (l *InventoryLocks) IsAvailable(ctx context.Context, variantID int64, start, end time.Time, quantity int) bool {
	ok, err := available(ctx, l.store, variantID, start, end, quantity)
	if err != nil {
		l.log.Error().Err(err).Int64("variant_id", variantID).Msg("availability check failed, treating as unavailable")
		return false
	}
	return ok
}

func available(ctx context.Context, repo store.Repository, variantID int64, start, end time.Time, quantity int) (bool, error) {
	variant, err := repo.GetVariant(ctx, variantID)
	if err != nil {
		return false, err
	}
	return fits(ctx, repo, variant, start, end, quantity)
}

func fits(ctx context.Context, repo store.Repository, variant *models.Variant, start, end time.Time, quantity int) (bool, error) {
	if !variant.IsActive {
		return false, nil
	}
	locked, err := repo.SumActiveLocked(ctx, variant.ID, start, end)
	if err != nil {
		return false, err
	}
	return locked+quantity <= variant.StockQuantity, nil
}

// Reserve checks availability and creates the lock inside tx. The variant row
// is locked first so concurrent bookings of the same variant serialize.
func (l *InventoryLocks) Reserve(ctx context.Context, tx store.Repository, lock *models.InventoryLock) error {
	const op = "InventoryLocks.Reserve"

	variant, err := tx.LockVariant(ctx, lock.VariantID)
	if err != nil {
		if errors.Is(err, database.ErrVariantNotFound) {
			return apperr.NotFound(op, fmt.Sprintf("variant %d not found", lock.VariantID), err)
		}
		return fmt.Errorf("lock variant %d: %w", lock.VariantID, err)
	}

	ok, err := fits(ctx, tx, variant, lock.StartDate, lock.EndDate, lock.Quantity)
	if err != nil {
		return fmt.Errorf("check availability of variant %d: %w", lock.VariantID, err)
	}
	if !ok {
		l.metrics.RecordInventoryConflict()
		return apperr.Conflict(apperr.CodeInventoryConflict, op,
			fmt.Sprintf("variant %d is not available from %s to %s",
				lock.VariantID, lock.StartDate.Format(time.RFC3339), lock.EndDate.Format(time.RFC3339)))
	}

	lock.Status = models.LockStatusActive
	return tx.CreateInventoryLock(ctx, lock)
}

// Release marks a lock released. Releasing an already released lock is a no-op.
func (l *InventoryLocks) Release(ctx context.Context, lockID int64) error {
	changed, err := l.store.ReleaseLock(ctx, lockID, l.now())
	if err != nil {
		if errors.Is(err, database.ErrLockNotFound) {
			return apperr.NotFound("InventoryLocks.Release", fmt.Sprintf("lock %d not found", lockID), err)
		}
		return fmt.Errorf("release lock %d: %w", lockID, err)
	}
	if changed {
		l.log.Debug().Int64("lock_id", lockID).Msg("inventory lock released")
	}
	return nil
}

func (l *InventoryLocks) releaseForOrder(ctx context.Context, tx store.Repository, orderID int64) error {
	n, err := tx.ReleaseOrderLocks(ctx, orderID, l.now())
	if err != nil {
		return fmt.Errorf("release locks of order %d: %w", orderID, err)
	}
	l.log.Debug().Int64("order_id", orderID).Int("released", n).Msg("order inventory released")
	return nil
}

// ReleaseExpired frees locks whose window has ended and whose order no
// longer holds inventory.
func (l *InventoryLocks) ReleaseExpired(ctx context.Context) (int, error) {
	n, err := l.store.ReleaseExpiredLocks(ctx, l.now())
	if err != nil {
		return 0, fmt.Errorf("release expired locks: %w", err)
	}
	l.metrics.RecordSweep("expired_locks", n)
	return n, nil
}
