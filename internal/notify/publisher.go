package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/safar/go-rental-store/internal/models"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Publisher sends order notifications as Kafka events.
type Publisher struct {
	w   MessageWriter
	log zerolog.Logger
}

func NewPublisher(w MessageWriter, log zerolog.Logger) *Publisher {
	return &Publisher{w: w, log: log.With().Str("component", "notify").Logger()}
}

func (p *Publisher) OrderCreated(ctx context.Context, order *models.Order) error {
	e := newEvent(EventOrderCreated, order)
	e.Total = order.TotalAmount.StringFixed(2)
	return p.publish(ctx, e)
}

func (p *Publisher) OrderStatusChanged(ctx context.Context, order *models.Order, from models.OrderStatus, reason string) error {
	e := newEvent(EventOrderStatusChanged, order)
	e.FromStatus = from
	e.Reason = reason
	return p.publish(ctx, e)
}

func (p *Publisher) publish(ctx context.Context, e Event) error {
	msg, err := e.message()
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s event for order %d: %w", e.Type, e.OrderID, err)
	}

	p.log.Debug().
		Str("event_id", e.ID).
		Str("event_type", e.Type).
		Int64("order_id", e.OrderID).
		Msg("event published")
	return nil
}

func (p *Publisher) Close() error {
	return p.w.Close()
}

// LogNotifier writes notifications to the log when Kafka is disabled.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) OrderCreated(_ context.Context, order *models.Order) error {
	n.log.Info().
		Int64("order_id", order.ID).
		Str("order_number", order.OrderNumber).
		Int64("vendor_id", order.VendorID).
		Str("status", string(order.Status)).
		Msg("order created")
	return nil
}

func (n *LogNotifier) OrderStatusChanged(_ context.Context, order *models.Order, from models.OrderStatus, reason string) error {
	n.log.Info().
		Int64("order_id", order.ID).
		Str("from", string(from)).
		Str("to", string(order.Status)).
		Str("reason", reason).
		Msg("order status changed")
	return nil
}
