// Package memstore is an in-memory store.Store. Units of work are serialized
// behind one mutex and roll back by restoring a snapshot, which gives the
// same all-or-nothing and no-overbooking guarantees as the Postgres backend.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/safar/go-rental-store/internal/models"
	"github.com/safar/go-rental-store/internal/store"
)

type state struct {
	seq int64

	products      map[int64]models.Product
	variants      map[int64]models.Variant
	pricing       []models.Pricing
	carts         map[int64]models.Cart
	cartItems     map[int64]models.CartItem
	rentalPeriods map[int64]models.RentalPeriod
	orders        map[int64]models.Order
	orderItems    map[int64]models.OrderItem
	locks         map[int64]models.InventoryLock
	history       []models.StatusChange
	charges       []models.OrderCharge
	refunds       map[int64]models.Refund
	invoices      map[int64]models.Invoice
}

func newState() *state {
	return &state{
		products:      map[int64]models.Product{},
		variants:      map[int64]models.Variant{},
		carts:         map[int64]models.Cart{},
		cartItems:     map[int64]models.CartItem{},
		rentalPeriods: map[int64]models.RentalPeriod{},
		orders:        map[int64]models.Order{},
		orderItems:    map[int64]models.OrderItem{},
		locks:         map[int64]models.InventoryLock{},
		refunds:       map[int64]models.Refund{},
		invoices:      map[int64]models.Invoice{},
	}
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *state) clone() *state {
	return &state{
		seq:           s.seq,
		products:      cloneMap(s.products),
		variants:      cloneMap(s.variants),
		pricing:       append([]models.Pricing(nil), s.pricing...),
		carts:         cloneMap(s.carts),
		cartItems:     cloneMap(s.cartItems),
		rentalPeriods: cloneMap(s.rentalPeriods),
		orders:        cloneMap(s.orders),
		orderItems:    cloneMap(s.orderItems),
		locks:         cloneMap(s.locks),
		history:       append([]models.StatusChange(nil), s.history...),
		charges:       append([]models.OrderCharge(nil), s.charges...),
		refunds:       cloneMap(s.refunds),
		invoices:      cloneMap(s.invoices),
	}
}

func cloneMap[V any](m map[int64]V) map[int64]V {
	out := make(map[int64]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type Store struct {
	repo

	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// repo carries the Repository methods. Outside WithTx every call takes the
// store mutex; inside it the mutex is already held.
type repo struct {
	s    *Store
	inTx bool
}

func New() *Store {
	s := &Store{st: newState(), now: time.Now}
	s.repo = repo{s: s}
	return s
}

// SetClock replaces the timestamp source. Used by tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&repo{s: s, inTx: true}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (r *repo) enter() func() {
	if r.inTx {
		return func() {}
	}
	r.s.mu.Lock()
	return r.s.mu.Unlock
}

func (r *repo) state() *state {
	return r.s.st
}

func (r *repo) clock() time.Time {
	return r.s.now()
}

var _ store.Store = (*Store)(nil)
