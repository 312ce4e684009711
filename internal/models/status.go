package models

type OrderStatus string

const (
	OrderStatusPaymentSuccessful     OrderStatus = "Payment_Successful"
	OrderStatusPendingVendorApproval OrderStatus = "Pending_Vendor_Approval"
	OrderStatusAutoApproved          OrderStatus = "Auto_Approved"
	OrderStatusActiveRental          OrderStatus = "Active_Rental"
	OrderStatusCompleted             OrderStatus = "Completed"
	OrderStatusRejected              OrderStatus = "Rejected"
	OrderStatusRefunded              OrderStatus = "Refunded"
)

// validNext is the single legal-transition table. Every status mutation,
// including admin overrides, is checked against it.
var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPaymentSuccessful:     {OrderStatusPendingVendorApproval: true, OrderStatusAutoApproved: true},
	OrderStatusPendingVendorApproval: {OrderStatusActiveRental: true, OrderStatusRejected: true},
	OrderStatusAutoApproved:          {OrderStatusActiveRental: true},
	OrderStatusActiveRental:          {OrderStatusCompleted: true},
	OrderStatusRejected:              {OrderStatusRefunded: true},
	OrderStatusCompleted:             {},
	OrderStatusRefunded:              {},
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

func (s OrderStatus) IsValid() bool {
	_, ok := validNext[s]
	return ok
}

func (s OrderStatus) IsTerminal() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}

// AllStatuses lists every status in lifecycle order.
func AllStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPaymentSuccessful,
		OrderStatusPendingVendorApproval,
		OrderStatusAutoApproved,
		OrderStatusActiveRental,
		OrderStatusCompleted,
		OrderStatusRejected,
		OrderStatusRefunded,
	}
}

// HoldsInventory reports whether an order in this status still needs its
// inventory locks.
func (s OrderStatus) HoldsInventory() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusRejected, OrderStatusRefunded:
		return false
	}
	return true
}
