package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/safar/go-rental-store/internal/database"
	"github.com/safar/go-rental-store/internal/models"
	"github.com/safar/go-rental-store/internal/store"
)

func (r *repo) CreateRentalPeriod(_ context.Context, p *models.RentalPeriod) error {
	defer r.enter()()
	st := r.state()

	p.ID = st.nextID()
	st.rentalPeriods[p.ID] = *p
	return nil
}

func (r *repo) CreateOrder(_ context.Context, order *models.Order) error {
	defer r.enter()()
	st := r.state()

	for _, o := range st.orders {
		if o.OrderNumber == order.OrderNumber {
			return errDuplicateOrderNumber
		}
	}

	now := r.clock()
	order.ID = st.nextID()
	order.CreatedAt, order.UpdatedAt, order.Version = now, now, 1
	stored := *order
	stored.Items = nil
	st.orders[order.ID] = stored
	return nil
}

func (r *repo) CreateOrderItem(_ context.Context, item *models.OrderItem) error {
	defer r.enter()()
	st := r.state()

	if _, ok := st.orders[item.OrderID]; !ok {
		return database.ErrOrderNotFound
	}
	item.RecomputeTotal()
	item.ID = st.nextID()
	item.CreatedAt = r.clock()
	st.orderItems[item.ID] = *item
	return nil
}

func (r *repo) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	defer r.enter()()
	return r.getOrder(id)
}

func (r *repo) GetOrderForUpdate(_ context.Context, id int64) (*models.Order, error) {
	defer r.enter()()
	return r.getOrder(id)
}

func (r *repo) getOrder(id int64) (*models.Order, error) {
	st := r.state()
	o, ok := st.orders[id]
	if !ok {
		return nil, database.ErrOrderNotFound
	}

	for _, item := range st.orderItems {
		if item.OrderID == id {
			o.Items = append(o.Items, item)
		}
	}
	sort.Slice(o.Items, func(i, j int) bool { return o.Items[i].ID < o.Items[j].ID })
	return &o, nil
}

func (r *repo) ListOrders(_ context.Context, filter store.OrderFilter) (*store.OrderPage, error) {
	defer r.enter()()

	cursor, err := store.DecodeCursor(filter.Cursor)
	if err != nil {
		return nil, err
	}
	limit := store.ClampLimit(filter.Limit)

	orders := []models.Order{}
	for _, o := range r.state().orders {
		if filter.CustomerID != nil && o.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.VendorID != nil && o.VendorID != *filter.VendorID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if !before(o, cursor) {
			continue
		}
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})

	page := &store.OrderPage{Items: orders}
	if len(orders) > limit {
		page.Items = orders[:limit]
		page.HasMore = true
		last := page.Items[limit-1]
		page.NextCursor = store.EncodeCursor(store.OrderCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

func before(o models.Order, c store.OrderCursor) bool {
	if o.CreatedAt.Equal(c.CreatedAt) {
		return o.ID < c.ID
	}
	return o.CreatedAt.Before(c.CreatedAt)
}

func (r *repo) ListOrdersByPayment(_ context.Context, paymentID string) ([]models.Order, error) {
	defer r.enter()()

	out := []models.Order{}
	for _, o := range r.state().orders {
		if o.PaymentID == paymentID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *repo) ClaimOrdersByStatus(_ context.Context, status models.OrderStatus, createdAtOrBefore time.Time, limit int) ([]int64, error) {
	defer r.enter()()

	var matched []models.Order
	for _, o := range r.state().orders {
		if o.Status == status && !o.CreatedAt.After(createdAtOrBefore) {
			matched = append(matched, o)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}

	ids := make([]int64, len(matched))
	for i, o := range matched {
		ids[i] = o.ID
	}
	return ids, nil
}

func (r *repo) CompareAndSetStatus(_ context.Context, orderID int64, from, to models.OrderStatus, at time.Time) error {
	defer r.enter()()
	st := r.state()

	o, ok := st.orders[orderID]
	if !ok {
		return database.ErrOrderNotFound
	}
	if o.Status != from {
		return database.ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = at
	o.Version++
	st.orders[orderID] = o
	return nil
}

func (r *repo) InsertStatusChange(_ context.Context, change *models.StatusChange) error {
	defer r.enter()()
	st := r.state()

	change.ID = st.nextID()
	change.CreatedAt = r.clock()
	st.history = append(st.history, *change)
	return nil
}

func (r *repo) ListStatusChanges(_ context.Context, orderID int64) ([]models.StatusChange, error) {
	defer r.enter()()

	var out []models.StatusChange
	for _, c := range r.state().history {
		if c.OrderID == orderID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *repo) InsertCharge(_ context.Context, charge *models.OrderCharge) error {
	defer r.enter()()
	st := r.state()

	if _, ok := st.orders[charge.OrderID]; !ok {
		return database.ErrOrderNotFound
	}
	charge.ID = st.nextID()
	charge.CreatedAt = r.clock()
	st.charges = append(st.charges, *charge)
	return nil
}

func (r *repo) ListCharges(_ context.Context, orderID int64) ([]models.OrderCharge, error) {
	defer r.enter()()

	var out []models.OrderCharge
	for _, c := range r.state().charges {
		if c.OrderID == orderID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *repo) SettleDeposit(_ context.Context, orderID int64, settlement store.DepositSettlement) error {
	defer r.enter()()
	st := r.state()

	o, ok := st.orders[orderID]
	if !ok {
		return database.ErrOrderNotFound
	}
	completedAt := settlement.CompletedAt
	o.CompletedAt = &completedAt
	o.UpdatedAt = completedAt
	if settlement.ReleasedAmount != nil {
		v := *settlement.ReleasedAmount
		o.DepositReleasedAmount = &v
	}
	if settlement.PenaltyAmount != nil {
		v := *settlement.PenaltyAmount
		o.PenaltyAmount = &v
		o.PenaltyReason = settlement.PenaltyReason
	}
	st.orders[orderID] = o
	return nil
}
