package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/safar/go-rental-store/internal/database"
	"github.com/safar/go-rental-store/internal/models"
)

func (r *repo) SumActiveLocked(_ context.Context, variantID int64, start, end time.Time) (int, error) {
	defer r.enter()()

	total := 0
	for _, l := range r.state().locks {
		if l.VariantID == variantID && l.IsActive() && l.Overlaps(start, end) {
			total += l.Quantity
		}
	}
	return total, nil
}

func (r *repo) CreateInventoryLock(_ context.Context, lock *models.InventoryLock) error {
	defer r.enter()()
	st := r.state()

	if _, ok := st.orders[lock.OrderID]; !ok {
		return database.ErrOrderNotFound
	}
	if lock.Status == "" {
		lock.Status = models.LockStatusActive
	}
	lock.ID = st.nextID()
	lock.CreatedAt = r.clock()
	st.locks[lock.ID] = *lock
	return nil
}

func (r *repo) GetInventoryLock(_ context.Context, id int64) (*models.InventoryLock, error) {
	defer r.enter()()

	l, ok := r.state().locks[id]
	if !ok {
		return nil, database.ErrLockNotFound
	}
	return &l, nil
}

func (r *repo) ReleaseLock(_ context.Context, id int64, at time.Time) (bool, error) {
	defer r.enter()()
	st := r.state()

	l, ok := st.locks[id]
	if !ok {
		return false, database.ErrLockNotFound
	}
	if !l.IsActive() {
		return false, nil
	}
	release(&l, at)
	st.locks[id] = l
	return true, nil
}

func (r *repo) ReleaseOrderLocks(_ context.Context, orderID int64, at time.Time) (int, error) {
	defer r.enter()()
	st := r.state()

	n := 0
	for id, l := range st.locks {
		if l.OrderID == orderID && l.IsActive() {
			release(&l, at)
			st.locks[id] = l
			n++
		}
	}
	return n, nil
}

func (r *repo) ListOrderLocks(_ context.Context, orderID int64) ([]models.InventoryLock, error) {
	defer r.enter()()

	var out []models.InventoryLock
	for _, l := range r.state().locks {
		if l.OrderID == orderID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *repo) ReleaseExpiredLocks(_ context.Context, now time.Time) (int, error) {
	defer r.enter()()
	st := r.state()

	n := 0
	for id, l := range st.locks {
		if !l.IsActive() || l.EndDate.After(now) {
			continue
		}
		if o, ok := st.orders[l.OrderID]; !ok || o.Status.HoldsInventory() {
			continue
		}
		release(&l, now)
		st.locks[id] = l
		n++
	}
	return n, nil
}

func release(l *models.InventoryLock, at time.Time) {
	l.Status = models.LockStatusReleased
	l.ReleasedAt = &at
}
