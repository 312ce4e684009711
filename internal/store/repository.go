package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/safar/go-rental-store/internal/models"
)

// Repository is the persistence contract of the rental core. Every method
// runs against whatever handle the implementation is bound to: the pool for
// plain reads, or the open transaction inside Store.WithTx.
type Repository interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetVariant(ctx context.Context, id int64) (*models.Variant, error)
	GetDefaultVariant(ctx context.Context, productID int64) (*models.Variant, error)
	// LockVariant takes a row lock on the variant for the rest of the
	// transaction. All bookings of one variant serialize on it.
	LockVariant(ctx context.Context, id int64) (*models.Variant, error)
	ListPricing(ctx context.Context, productID int64) ([]models.Pricing, error)

	GetOrCreateCart(ctx context.Context, customerID int64) (*models.Cart, error)
	GetCart(ctx context.Context, customerID int64) (*models.Cart, error)
	AddCartItem(ctx context.Context, item *models.CartItem) error
	UpdateCartItem(ctx context.Context, item *models.CartItem) error
	DeleteCartItem(ctx context.Context, cartID, itemID int64) error
	ClearCart(ctx context.Context, cartID int64) error

	SumActiveLocked(ctx context.Context, variantID int64, start, end time.Time) (int, error)
	CreateInventoryLock(ctx context.Context, lock *models.InventoryLock) error
	GetInventoryLock(ctx context.Context, id int64) (*models.InventoryLock, error)
	// ReleaseLock reports whether the lock moved from active to released.
	ReleaseLock(ctx context.Context, id int64, at time.Time) (bool, error)
	ReleaseOrderLocks(ctx context.Context, orderID int64, at time.Time) (int, error)
	ListOrderLocks(ctx context.Context, orderID int64) ([]models.InventoryLock, error)
	ReleaseExpiredLocks(ctx context.Context, now time.Time) (int, error)

	CreateRentalPeriod(ctx context.Context, p *models.RentalPeriod) error
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) (*OrderPage, error)
	ListOrdersByPayment(ctx context.Context, paymentID string) ([]models.Order, error)
	// ClaimOrdersByStatus returns ids of orders in status, skipping rows
	// other transactions hold locked. Only orders created at or before
	// createdAtOrBefore are returned.
	ClaimOrdersByStatus(ctx context.Context, status models.OrderStatus, createdAtOrBefore time.Time, limit int) ([]int64, error)
	// CompareAndSetStatus moves the order to `to` only if it is still in
	// `from`; otherwise it returns database.ErrStatusConflict.
	CompareAndSetStatus(ctx context.Context, orderID int64, from, to models.OrderStatus, at time.Time) error
	InsertStatusChange(ctx context.Context, change *models.StatusChange) error
	ListStatusChanges(ctx context.Context, orderID int64) ([]models.StatusChange, error)
	InsertCharge(ctx context.Context, charge *models.OrderCharge) error
	ListCharges(ctx context.Context, orderID int64) ([]models.OrderCharge, error)
	SettleDeposit(ctx context.Context, orderID int64, settlement DepositSettlement) error

	CreateRefund(ctx context.Context, refund *models.Refund) error
	UpdateRefund(ctx context.Context, refund *models.Refund) error
	ListRefundsByStatus(ctx context.Context, statuses []models.RefundStatus, limit int) ([]models.Refund, error)
	ListRefundsByPayment(ctx context.Context, paymentID string) ([]models.Refund, error)
	// ClaimRefundsForRetry marks failed refunds, and pending ones last touched
	// at or before staleBefore, as pending at `at` and returns them. A refund
	// is handed to one caller only until it goes stale again.
	ClaimRefundsForRetry(ctx context.Context, staleBefore, at time.Time, limit int) ([]models.Refund, error)

	CreateInvoice(ctx context.Context, invoice *models.Invoice) error
	GetInvoice(ctx context.Context, id int64) (*models.Invoice, error)
	GetInvoiceByOrder(ctx context.Context, orderID int64) (*models.Invoice, error)
	FinalizeInvoice(ctx context.Context, id int64, at time.Time) error
}

// Store is a Repository that can open a unit of work. fn may be invoked more
// than once when the backend retries serialization failures, so it must not
// perform side effects outside the repository.
type Store interface {
	Repository
	WithTx(ctx context.Context, fn func(tx Repository) error) error
}

type OrderFilter struct {
	CustomerID *int64
	VendorID   *int64
	Status     models.OrderStatus
	Cursor     string
	Limit      int
}

type OrderPage struct {
	Items      []models.Order `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
	HasMore    bool           `json:"has_more"`
}

type DepositSettlement struct {
	ReleasedAmount *decimal.Decimal
	PenaltyAmount  *decimal.Decimal
	PenaltyReason  string
	CompletedAt    time.Time
}
