package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionMatchesTable(t *testing.T) {
	legal := map[OrderStatus][]OrderStatus{
		OrderStatusPaymentSuccessful:     {OrderStatusPendingVendorApproval, OrderStatusAutoApproved},
		OrderStatusPendingVendorApproval: {OrderStatusActiveRental, OrderStatusRejected},
		OrderStatusAutoApproved:          {OrderStatusActiveRental},
		OrderStatusActiveRental:          {OrderStatusCompleted},
		OrderStatusRejected:              {OrderStatusRefunded},
		OrderStatusCompleted:             nil,
		OrderStatusRefunded:              nil,
	}

	for _, from := range AllStatuses() {
		for _, to := range AllStatuses() {
			want := false
			for _, s := range legal[from] {
				if s == to {
					want = true
				}
			}

			order := &Order{Status: from}
			assert.Equal(t, want, order.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, OrderStatusCompleted.IsTerminal())
	assert.True(t, OrderStatusRefunded.IsTerminal())
	assert.False(t, OrderStatusRejected.IsTerminal())
	assert.False(t, OrderStatus("Shipped").IsTerminal())
}

func TestUnknownStatusHasNoTransitions(t *testing.T) {
	assert.False(t, OrderStatus("Pending_Documents").IsValid())
	assert.False(t, CanTransition("Pending_Documents", OrderStatusRejected))
}

func TestHoldsInventory(t *testing.T) {
	assert.True(t, OrderStatusPendingVendorApproval.HoldsInventory())
	assert.True(t, OrderStatusActiveRental.HoldsInventory())
	assert.False(t, OrderStatusRejected.HoldsInventory())
	assert.False(t, OrderStatusCompleted.HoldsInventory())
	assert.False(t, OrderStatusRefunded.HoldsInventory())
}
