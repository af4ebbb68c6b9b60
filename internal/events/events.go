// Package events wires order lifecycle messages through RabbitMQ: a topic
// exchange for placement and status changes, and a notification queue
// consumed by the subscriber mode.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"cafeteria-system/internal/common/logger"
	"cafeteria-system/internal/connections/rabbitmq"
	"cafeteria-system/internal/domain"
)

const (
	Exchange          = "orders_topic"
	NotificationQueue = "notifications.q"

	createdKeyFmt = "orders.created.%s"
	statusKeyFmt  = "orders.status.%s"
)

// DeclareTopology declares the exchange and the notification queue. Safe
// to call from every mode; declarations are idempotent.
func DeclareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", Exchange, err)
	}
	if _, err := ch.QueueDeclare(NotificationQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", NotificationQueue, err)
	}
	if err := ch.QueueBind(NotificationQueue, "orders.#", Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", NotificationQueue, err)
	}
	return nil
}

// Publisher pushes order events to the exchange.
type Publisher struct {
	client *rabbitmq.Client
}

func NewPublisher(client *rabbitmq.Client) *Publisher { return &Publisher{client: client} }

func (p *Publisher) OrderCreated(ctx context.Context, order domain.Order) error {
	msg := domain.OrderCreatedMessage{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		TokenNumber: order.TokenNumber,
		OutletID:    order.OutletID,
		TotalAmount: order.TotalAmount,
		Status:      order.Status,
		CreatedAt:   order.CreatedAt,
	}
	return p.publish(ctx, fmt.Sprintf(createdKeyFmt, order.OutletID), msg)
}

func (p *Publisher) StatusChanged(ctx context.Context, order domain.Order, old domain.Status) error {
	msg := domain.StatusChangedMessage{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		TokenNumber: order.TokenNumber,
		OutletID:    order.OutletID,
		OldStatus:   old,
		NewStatus:   order.Status,
		ChangedAt:   time.Now().UTC(),
	}
	return p.publish(ctx, fmt.Sprintf(statusKeyFmt, order.OutletID), msg)
}

func (p *Publisher) publish(ctx context.Context, key string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.client.Publish(ctx, Exchange, key, body)
}

// Subscriber consumes order events and logs them; "ready" transitions are
// the customer-facing pickup notifications.
type Subscriber struct {
	client *rabbitmq.Client
	lg     *logger.Logger
}

func NewSubscriber(client *rabbitmq.Client, lg *logger.Logger) *Subscriber {
	return &Subscriber{client: client, lg: lg}
}

func (s *Subscriber) Run(ctx context.Context) error {
	deliveries, err := s.client.Consume(NotificationQueue, "notification-subscriber", 1)
	if err != nil {
		return fmt.Errorf("consume %s: %w", NotificationQueue, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			s.handle(d)
		}
	}
}

func (s *Subscriber) handle(d amqp.Delivery) {
	var msg domain.StatusChangedMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		s.lg.Error("notification_decode_failed", err, map[string]any{"routing_key": d.RoutingKey})
		_ = d.Nack(false, false)
		return
	}
	fields := map[string]any{
		"order_number": msg.OrderNumber,
		"token_number": msg.TokenNumber,
		"outlet_id":    msg.OutletID,
		"routing_key":  d.RoutingKey,
	}
	switch {
	case msg.NewStatus == domain.StatusReady:
		fields["status"] = msg.NewStatus
		s.lg.Info("order_ready_for_pickup", fields)
	case msg.NewStatus != "":
		fields["old_status"] = msg.OldStatus
		fields["new_status"] = msg.NewStatus
		s.lg.Info("order_status_changed", fields)
	default:
		s.lg.Info("order_created", fields)
	}
	_ = d.Ack(false)
}
