package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/safar/go-rental-store/internal/database"
	"github.com/safar/go-rental-store/internal/models"
)

func setupPostgres(t *testing.T) *Postgres {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests are skipped in -short mode")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:14-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.PingContext(ctx))

	require.NoError(t, database.RunMigrations(db, "../../migrations", database.MigrateUp))

	return NewPostgres(db, 10)
}

func pgSeedVariant(t *testing.T, p *Postgres, sku string, stock int) *models.Variant {
	t.Helper()
	ctx := context.Background()

	prod := &models.Product{VendorID: 7, SKU: sku, Name: "Kayak", IsActive: true, DepositAmount: decimal.NewFromInt(50)}
	require.NoError(t, p.CreateProduct(ctx, prod))
	v := &models.Variant{ProductID: prod.ID, SKU: sku + "-STD", Name: "Standard", StockQuantity: stock, IsDefault: true, IsActive: true}
	require.NoError(t, p.CreateVariant(ctx, v))
	require.NoError(t, p.CreatePricing(ctx, &models.Pricing{
		ProductID: prod.ID, DurationUnit: models.DurationDaily, Rate: decimal.NewFromInt(40),
	}))
	return v
}

func pgSeedOrder(t *testing.T, p *Postgres, n int, status models.OrderStatus) *models.Order {
	t.Helper()
	o := &models.Order{
		OrderNumber: fmt.Sprintf("ORD-PG-%04d", n),
		CustomerID:  1,
		VendorID:    7,
		PaymentID:   fmt.Sprintf("pay_pg_%d", n),
		Status:      status,
		TotalAmount: decimal.NewFromInt(160),
	}
	require.NoError(t, p.CreateOrder(context.Background(), o))
	return o
}

var errNoRoom = errors.New("no room")

func TestPostgresBookingNeverOverbooks(t *testing.T) {
	p := setupPostgres(t)
	ctx := context.Background()

	const stock = 2
	v := pgSeedVariant(t, p, "KAYAK", stock)
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 4)

	concurrency := 6
	orders := make([]*models.Order, concurrency)
	for i := range orders {
		orders[i] = pgSeedOrder(t, p, i+1, models.OrderStatusPaymentSuccessful)
	}

	var wg sync.WaitGroup
	results := make(chan error, concurrency)
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(order *models.Order) {
			defer wg.Done()
			results <- p.WithTx(ctx, func(tx Repository) error {
				variant, err := tx.LockVariant(ctx, v.ID)
				if err != nil {
					return err
				}
				locked, err := tx.SumActiveLocked(ctx, v.ID, start, end)
				if err != nil {
					return err
				}
				if locked+1 > variant.StockQuantity {
					return errNoRoom
				}
				return tx.CreateInventoryLock(ctx, &models.InventoryLock{
					VariantID: v.ID, OrderID: order.ID, Quantity: 1, StartDate: start, EndDate: end,
				})
			})
		}(orders[i])
	}
	wg.Wait()
	close(results)

	booked := 0
	for err := range results {
		if err == nil {
			booked++
		}
	}

	locked, err := p.SumActiveLocked(ctx, v.ID, start, end)
	require.NoError(t, err)
	assert.Equal(t, booked, locked)
	assert.LessOrEqual(t, locked, stock)
	assert.Positive(t, booked)
}

func TestPostgresLockWindowsAreHalfOpen(t *testing.T) {
	p := setupPostgres(t)
	ctx := context.Background()
	v := pgSeedVariant(t, p, "SUP", 1)
	order := pgSeedOrder(t, p, 1, models.OrderStatusAutoApproved)

	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 4)
	lock := &models.InventoryLock{VariantID: v.ID, OrderID: order.ID, Quantity: 1, StartDate: start, EndDate: end}
	require.NoError(t, p.CreateInventoryLock(ctx, lock))
	assert.Equal(t, models.LockStatusActive, lock.Status)

	n, err := p.SumActiveLocked(ctx, v.ID, end, end.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = p.SumActiveLocked(ctx, v.ID, start.Add(-time.Hour), start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	released, err := p.ReleaseOrderLocks(ctx, order.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	changed, err := p.ReleaseLock(ctx, lock.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestPostgresStatusCompareAndSet(t *testing.T) {
	p := setupPostgres(t)
	ctx := context.Background()
	order := pgSeedOrder(t, p, 1, models.OrderStatusPendingVendorApproval)

	now := time.Now()
	require.NoError(t, p.CompareAndSetStatus(ctx, order.ID, models.OrderStatusPendingVendorApproval, models.OrderStatusAutoApproved, now))
	err := p.CompareAndSetStatus(ctx, order.ID, models.OrderStatusPendingVendorApproval, models.OrderStatusRejected, now)
	assert.ErrorIs(t, err, database.ErrStatusConflict)

	err = p.CompareAndSetStatus(ctx, 9999, models.OrderStatusPendingVendorApproval, models.OrderStatusRejected, now)
	assert.ErrorIs(t, err, database.ErrOrderNotFound)

	require.NoError(t, p.InsertStatusChange(ctx, &models.StatusChange{
		OrderID: order.ID, FromStatus: models.OrderStatusPendingVendorApproval, ToStatus: models.OrderStatusAutoApproved, ActorID: 7, Reason: "looks good",
	}))
	history, err := p.ListStatusChanges(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "looks good", history[0].Reason)

	got, err := p.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusAutoApproved, got.Status)
	assert.Equal(t, 2, got.Version)
}

func TestPostgresClaimSkipsLockedRows(t *testing.T) {
	p := setupPostgres(t)
	ctx := context.Background()
	first := pgSeedOrder(t, p, 1, models.OrderStatusPendingVendorApproval)
	second := pgSeedOrder(t, p, 2, models.OrderStatusPendingVendorApproval)
	pgSeedOrder(t, p, 3, models.OrderStatusActiveRental)

	claimed := make(chan struct{})
	done := make(chan struct{})
	var once sync.Once
	signal := func() { once.Do(func() { close(claimed) }) }
	go func() {
		defer signal()
		_ = p.WithTx(ctx, func(tx Repository) error {
			ids, err := tx.ClaimOrdersByStatus(ctx, models.OrderStatusPendingVendorApproval, time.Now(), 1)
			if err != nil {
				return err
			}
			assert.Equal(t, []int64{first.ID}, ids)
			signal()
			<-done
			return nil
		})
	}()

	<-claimed
	ids, err := p.ClaimOrdersByStatus(ctx, models.OrderStatusPendingVendorApproval, time.Now(), 10)
	close(done)
	require.NoError(t, err)
	assert.Equal(t, []int64{second.ID}, ids)

	ids, err = p.ClaimOrdersByStatus(ctx, models.OrderStatusPendingVendorApproval, first.CreatedAt.Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestPostgresListOrdersPaginates(t *testing.T) {
	p := setupPostgres(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		pgSeedOrder(t, p, i, models.OrderStatusAutoApproved)
	}

	vendor := int64(7)
	page, err := p.ListOrders(ctx, OrderFilter{VendorID: &vendor, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)

	seen := map[int64]bool{}
	for _, o := range page.Items {
		seen[o.ID] = true
	}
	for page.HasMore {
		page, err = p.ListOrders(ctx, OrderFilter{VendorID: &vendor, Limit: 2, Cursor: page.NextCursor})
		require.NoError(t, err)
		for _, o := range page.Items {
			assert.False(t, seen[o.ID], "order %d returned twice", o.ID)
			seen[o.ID] = true
		}
	}
	assert.Len(t, seen, 5)
}

func TestPostgresDepositRefundAndInvoice(t *testing.T) {
	p := setupPostgres(t)
	ctx := context.Background()
	order := pgSeedOrder(t, p, 1, models.OrderStatusCompleted)

	released := decimal.NewFromInt(30)
	penalty := decimal.NewFromInt(20)
	completedAt := time.Date(2026, 6, 5, 10, 0, 0, 0, time.UTC)
	require.NoError(t, p.SettleDeposit(ctx, order.ID, DepositSettlement{
		ReleasedAmount: &released, PenaltyAmount: &penalty, PenaltyReason: "scratched hull", CompletedAt: completedAt,
	}))

	got, err := p.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DepositReleasedAmount)
	assert.True(t, released.Equal(*got.DepositReleasedAmount))
	assert.Equal(t, "scratched hull", got.PenaltyReason)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, completedAt.Equal(*got.CompletedAt))

	refund := &models.Refund{PaymentID: order.PaymentID, OrderID: &order.ID, Amount: released, Reason: "deposit", Status: models.RefundStatusPending}
	require.NoError(t, p.CreateRefund(ctx, refund))
	refund.Status = models.RefundStatusFailed
	refund.Attempts = 1
	require.NoError(t, p.UpdateRefund(ctx, refund))

	failed, err := p.ListRefundsByStatus(ctx, []models.RefundStatus{models.RefundStatusFailed}, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].Attempts)

	byPayment, err := p.ListRefundsByPayment(ctx, order.PaymentID)
	require.NoError(t, err)
	assert.Len(t, byPayment, 1)

	now := time.Now()
	claimed, err := p.ClaimRefundsForRetry(ctx, now.Add(-5*time.Minute), now, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, models.RefundStatusPending, claimed[0].Status)

	claimed, err = p.ClaimRefundsForRetry(ctx, now.Add(-5*time.Minute), now, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed, "a just-claimed refund is in flight")

	inv := &models.Invoice{InvoiceNumber: "INV-PG-1", OrderID: order.ID, CustomerID: 1, Amount: order.TotalAmount, Status: models.InvoiceStatusDraft}
	require.NoError(t, p.CreateInvoice(ctx, inv))
	require.NoError(t, p.FinalizeInvoice(ctx, inv.ID, completedAt))

	stored, err := p.GetInvoiceByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusFinalized, stored.Status)
	require.NotNil(t, stored.FinalizedAt)
}

func TestPostgresUpdateStockOptimistic(t *testing.T) {
	p := setupPostgres(t)
	ctx := context.Background()
	v := pgSeedVariant(t, p, "TENT", 3)

	require.NoError(t, p.UpdateStockOptimistic(ctx, v.ID, 5, v.Version))
	err := p.UpdateStockOptimistic(ctx, v.ID, 6, v.Version)
	assert.ErrorIs(t, err, database.ErrOptimisticLockFailed)

	got, err := p.GetVariant(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.StockQuantity)
}
