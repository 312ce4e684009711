package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the rental core collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	OrdersCreated      *prometheus.CounterVec
	StatusTransitions  *prometheus.CounterVec
	InventoryConflicts prometheus.Counter
	Refunds            *prometheus.CounterVec
	CheckoutDuration   prometheus.Histogram
	SweepTransitions   *prometheus.CounterVec
	CartCacheLookups   *prometheus.CounterVec
}

// New registers the collectors on reg. Tests pass a fresh registry so
// repeated construction does not collide on the default one.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OrdersCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rental_orders_created_total",
			Help: "Orders created from paid carts, by initial status",
		}, []string{"status"}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rental_order_transitions_total",
			Help: "Applied order status transitions",
		}, []string{"from", "to"}),
		InventoryConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "rental_inventory_conflicts_total",
			Help: "Bookings refused because the variant was not available",
		}),
		Refunds: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rental_refunds_total",
			Help: "Refund attempts by outcome",
		}, []string{"outcome"}),
		CheckoutDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rental_checkout_duration_seconds",
			Help:    "Time spent converting a captured payment into orders",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5},
		}),
		SweepTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rental_sweep_transitions_total",
			Help: "Orders moved by scheduled sweeps",
		}, []string{"sweep"}),
		CartCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rental_cart_cache_lookups_total",
			Help: "Cart cache lookups by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) RecordOrderCreated(status string) {
	if m == nil {
		return
	}
	m.OrdersCreated.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordInventoryConflict() {
	if m == nil {
		return
	}
	m.InventoryConflicts.Inc()
}

func (m *Metrics) RecordRefund(outcome string) {
	if m == nil {
		return
	}
	m.Refunds.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordCheckout(duration time.Duration) {
	if m == nil {
		return
	}
	m.CheckoutDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordSweep(sweep string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.SweepTransitions.WithLabelValues(sweep).Add(float64(n))
}

func (m *Metrics) RecordCartCache(result string) {
	if m == nil {
		return
	}
	m.CartCacheLookups.WithLabelValues(result).Inc()
}
