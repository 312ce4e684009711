package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/safar/go-rental-store/internal/invoice"
	"github.com/safar/go-rental-store/internal/metrics"
	"github.com/safar/go-rental-store/internal/models"
	"github.com/safar/go-rental-store/internal/notify"
	"github.com/safar/go-rental-store/internal/payment"
	"github.com/safar/go-rental-store/internal/store/memstore"
)

var (
	testNow   = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	rentStart = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	rentEnd   = time.Date(2026, 6, 5, 0, 0, 0, 0, time.UTC)
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeNotifier struct {
	mu      sync.Mutex
	created []int64
	changes []string
}

func (n *fakeNotifier) OrderCreated(_ context.Context, order *models.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, order.ID)
	return nil
}

func (n *fakeNotifier) OrderStatusChanged(_ context.Context, order *models.Order, from models.OrderStatus, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, string(from)+"->"+string(order.Status))
	return nil
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []notify.AuditEntry
	fail    bool
}

func (a *fakeAuditor) LogAction(_ context.Context, entry notify.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return errors.New("audit sink down")
	}
	a.entries = append(a.entries, entry)
	return nil
}

func (a *fakeAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Action
	}
	return out
}

// flakyGateway fails refunds while failRefunds is set.
type flakyGateway struct {
	*payment.Sandbox
	mu          sync.Mutex
	failRefunds bool
}

func (g *flakyGateway) setFailRefunds(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failRefunds = v
}

func (g *flakyGateway) InitiateRefund(ctx context.Context, paymentID, reason string, amount decimal.Decimal, note, idempotencyKey string) (*payment.RefundResult, error) {
	g.mu.Lock()
	fail := g.failRefunds
	g.mu.Unlock()
	if fail {
		return nil, payment.ErrUnavailable
	}
	return g.Sandbox.InitiateRefund(ctx, paymentID, reason, amount, note, idempotencyKey)
}

type testEnv struct {
	store    *memstore.Store
	clock    *testClock
	gateway  *flakyGateway
	notifier *fakeNotifier
	auditor  *fakeAuditor
	metrics  *metrics.Metrics
	locks    *InventoryLocks
	carts    *CartService
	orders   *OrderService
	checkout *CheckoutService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := &testClock{now: testNow}
	st := memstore.New()
	st.SetClock(clock.Now)

	log := zerolog.Nop()
	m := metrics.New(prometheus.NewRegistry())
	gw := &flakyGateway{Sandbox: payment.NewSandbox("test-secret", "INR")}
	notifier := &fakeNotifier{}
	auditor := &fakeAuditor{}

	locks := NewInventoryLocks(st, log, m, clock.Now)
	carts := NewCartService(st, nil, log, m, clock.Now)
	orders := NewOrderService(OrderServiceDeps{
		Store:    st,
		Locks:    locks,
		Payments: gw,
		Notifier: notifier,
		Auditor:  auditor,
		Log:      log,
		Metrics:  m,
		Now:      clock.Now,
		Config:   OrderConfig{SweepBatchSize: 2, RefundBatchSize: 10, DocumentDeadline: 48 * time.Hour},
	})
	invoices := invoice.NewService(st, log, clock.Now)
	checkout := NewCheckoutService(st, carts, orders, gw, invoices, log, m, clock.Now)

	return &testEnv{
		store:    st,
		clock:    clock,
		gateway:  gw,
		notifier: notifier,
		auditor:  auditor,
		metrics:  m,
		locks:    locks,
		carts:    carts,
		orders:   orders,
		checkout: checkout,
	}
}

type productSpec struct {
	vendorID     int64
	stock        int
	verification bool
	deposit      string
	dailyRate    string
}

func (e *testEnv) seedProduct(t *testing.T, spec productSpec) (*models.Product, *models.Variant) {
	t.Helper()
	ctx := context.Background()

	if spec.deposit == "" {
		spec.deposit = "0"
	}
	if spec.dailyRate == "" {
		spec.dailyRate = "25"
	}

	p := &models.Product{
		VendorID:             spec.vendorID,
		SKU:                  "SKU",
		Name:                 "Camera",
		IsActive:             true,
		VerificationRequired: spec.verification,
		DepositAmount:        decimal.RequireFromString(spec.deposit),
	}
	require.NoError(t, e.store.CreateProduct(ctx, p))

	v := &models.Variant{ProductID: p.ID, SKU: "SKU-STD", Name: "standard", StockQuantity: spec.stock, IsDefault: true, IsActive: true}
	require.NoError(t, e.store.CreateVariant(ctx, v))

	require.NoError(t, e.store.CreatePricing(ctx, &models.Pricing{
		ProductID:    p.ID,
		DurationUnit: models.DurationDaily,
		Rate:         decimal.RequireFromString(spec.dailyRate),
	}))
	return p, v
}

func (e *testEnv) addToCart(t *testing.T, customerID int64, product *models.Product, quantity int) *models.Cart {
	t.Helper()
	cart, err := e.carts.AddItem(context.Background(), AddItemRequest{
		CustomerID: customerID,
		ProductID:  product.ID,
		Start:      rentStart,
		End:        rentEnd,
		Quantity:   quantity,
	})
	require.NoError(t, err)
	return cart
}

// capture opens and captures a sandbox payment, returning its id.
func (e *testEnv) capture(t *testing.T, customerID int64, amount decimal.Decimal, paymentRef string) string {
	t.Helper()
	ctx := context.Background()

	h, err := e.gateway.CreatePaymentOrder(ctx, amount, customerID, nil)
	require.NoError(t, err)
	p, err := e.gateway.VerifyAndCapturePayment(ctx, h.OrderRef, paymentRef, e.gateway.Sign(h.OrderRef, paymentRef))
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.ID
}

// placeOrder books one product for customerID through a captured payment.
func (e *testEnv) placeOrder(t *testing.T, customerID int64, product *models.Product, paymentRef string) *models.Order {
	t.Helper()
	cart := e.addToCart(t, customerID, product, 1)

	due := cart.Subtotal().Add(product.DepositAmount)
	paymentID := e.capture(t, customerID, due, paymentRef)

	orders, err := e.orders.CreateOrdersFromCart(context.Background(), customerID, paymentID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	return &orders[0]
}

func (e *testEnv) activeLocks(t *testing.T, orderID int64) int {
	t.Helper()
	locks, err := e.store.ListOrderLocks(context.Background(), orderID)
	require.NoError(t, err)
	n := 0
	for _, l := range locks {
		if l.IsActive() {
			n++
		}
	}
	return n
}
