package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID                   int64           `json:"id"`
	VendorID             int64           `json:"vendor_id"`
	SKU                  string          `json:"sku"`
	Name                 string          `json:"name"`
	Description          string          `json:"description,omitempty"`
	IsActive             bool            `json:"is_active"`
	VerificationRequired bool            `json:"verification_required"`
	DepositAmount        decimal.Decimal `json:"deposit_amount"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	Version              int             `json:"version"`
}

// Variant is the unit inventory is tracked against.
type Variant struct {
	ID            int64     `json:"id"`
	ProductID     int64     `json:"product_id"`
	SKU           string    `json:"sku"`
	Name          string    `json:"name"`
	StockQuantity int       `json:"stock_quantity"`
	IsDefault     bool      `json:"is_default"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Version       int       `json:"version"`
}

// Pricing is a rate per duration unit. A nil VariantID applies to every
// variant of the product.
type Pricing struct {
	ID           int64           `json:"id"`
	ProductID    int64           `json:"product_id"`
	VariantID    *int64          `json:"variant_id,omitempty"`
	DurationUnit DurationUnit    `json:"duration_unit"`
	Rate         decimal.Decimal `json:"rate"`
	CreatedAt    time.Time       `json:"created_at"`
}

type Cart struct {
	ID         int64      `json:"id"`
	CustomerID int64      `json:"customer_id"`
	Items      []CartItem `json:"items"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Subtotal sums the item subtotals.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func (c *Cart) FindItem(itemID int64) (*CartItem, bool) {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return &c.Items[i], true
		}
	}
	return nil, false
}

type CartItem struct {
	ID           int64           `json:"id"`
	CartID       int64           `json:"cart_id"`
	ProductID    int64           `json:"product_id"`
	VariantID    int64           `json:"variant_id"`
	VendorID     int64           `json:"vendor_id"`
	Quantity     int             `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	StartDate    time.Time       `json:"start_date"`
	EndDate      time.Time       `json:"end_date"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (i CartItem) Subtotal() decimal.Decimal {
	return i.PricePerUnit.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID                    int64            `json:"id"`
	OrderNumber           string           `json:"order_number"`
	CustomerID            int64            `json:"customer_id"`
	VendorID              int64            `json:"vendor_id"`
	PaymentID             string           `json:"payment_id"`
	Status                OrderStatus      `json:"status"`
	TotalAmount           decimal.Decimal  `json:"total_amount"`
	DepositAmount         *decimal.Decimal `json:"deposit_amount,omitempty"`
	DepositReleasedAmount *decimal.Decimal `json:"deposit_released_amount,omitempty"`
	PenaltyAmount         *decimal.Decimal `json:"penalty_amount,omitempty"`
	PenaltyReason         string           `json:"penalty_reason,omitempty"`
	CompletedAt           *time.Time       `json:"completed_at,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
	Version               int              `json:"version"`
	Items                 []OrderItem      `json:"items,omitempty"`
}

// CanTransitionTo consults the legal transition table for the current status.
func (o *Order) CanTransitionTo(next OrderStatus) bool {
	return CanTransition(o.Status, next)
}

type OrderItem struct {
	ID             int64           `json:"id"`
	OrderID        int64           `json:"order_id"`
	ProductID      int64           `json:"product_id"`
	VariantID      *int64          `json:"variant_id,omitempty"`
	RentalPeriodID int64           `json:"rental_period_id"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	CreatedAt      time.Time       `json:"created_at"`
}

// RecomputeTotal keeps TotalPrice equal to UnitPrice x Quantity.
func (i *OrderItem) RecomputeTotal() {
	i.TotalPrice = i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type LockStatus string

const (
	LockStatusActive   LockStatus = "active"
	LockStatusReleased LockStatus = "released"
)

type InventoryLock struct {
	ID          int64      `json:"id"`
	VariantID   int64      `json:"variant_id"`
	OrderID     int64      `json:"order_id"`
	OrderItemID *int64     `json:"order_item_id,omitempty"`
	Quantity    int        `json:"quantity"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     time.Time  `json:"end_date"`
	Status      LockStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ReleasedAt  *time.Time `json:"released_at,omitempty"`
}

// Overlaps applies the half-open window test against [start, end).
func (l *InventoryLock) Overlaps(start, end time.Time) bool {
	return Overlaps(l.StartDate, l.EndDate, start, end)
}

func (l *InventoryLock) IsActive() bool {
	return l.Status == LockStatusActive
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Windows that only touch at an endpoint do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

type StatusChange struct {
	ID         int64       `json:"id"`
	OrderID    int64       `json:"order_id"`
	FromStatus OrderStatus `json:"from_status"`
	ToStatus   OrderStatus `json:"to_status"`
	ActorID    int64       `json:"actor_id"`
	Reason     string      `json:"reason"`
	CreatedAt  time.Time   `json:"created_at"`
}

const ChargeKindLateFee = "late_fee"

type OrderCharge struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	Kind      string          `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"created_at"`
}

type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusSucceeded RefundStatus = "succeeded"
	RefundStatusFailed    RefundStatus = "failed"
)

// Refund tracks a refund request against a payment. OrderID is nil when the
// whole payment is refunded after a failed checkout.
type Refund struct {
	ID              int64           `json:"id"`
	PaymentID       string          `json:"payment_id"`
	OrderID         *int64          `json:"order_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Reason          string          `json:"reason"`
	Note            string          `json:"note,omitempty"`
	Status          RefundStatus    `json:"status"`
	GatewayRefundID string          `json:"gateway_refund_id,omitempty"`
	Attempts        int             `json:"attempts"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusFinalized InvoiceStatus = "finalized"
)

type Invoice struct {
	ID            int64           `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	OrderID       int64           `json:"order_id"`
	CustomerID    int64           `json:"customer_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        InvoiceStatus   `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	FinalizedAt   *time.Time      `json:"finalized_at,omitempty"`
}

// PaidAmount is what the customer paid for this order: rental total plus deposit.
func (o *Order) PaidAmount() decimal.Decimal {
	if o.DepositAmount == nil {
		return o.TotalAmount
	}
	return o.TotalAmount.Add(*o.DepositAmount)
}
