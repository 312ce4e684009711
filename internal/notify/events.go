// Package notify publishes order events to Kafka and writes the audit trail.
package notify

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/safar/go-rental-store/internal/models"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// Event is the envelope written to the orders topic. Messages are keyed by
// order id so all events of one order land on one partition.
type Event struct {
	ID          string             `json:"id"`
	Type        string             `json:"type"`
	OccurredAt  time.Time          `json:"occurred_at"`
	OrderID     int64              `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	CustomerID  int64              `json:"customer_id"`
	VendorID    int64              `json:"vendor_id"`
	Status      models.OrderStatus `json:"status"`
	FromStatus  models.OrderStatus `json:"from_status,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	Total       string             `json:"total_amount,omitempty"`
}

func newEvent(eventType string, order *models.Order) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		OccurredAt:  time.Now().UTC(),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		VendorID:    order.VendorID,
		Status:      order.Status,
	}
}

func (e Event) message() (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(e.OrderID, 10)),
		Value: value,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(e.ID)},
		},
	}, nil
}
