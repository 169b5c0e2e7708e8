package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"settlement-service/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// SettlementEventsQueue carries every protocol event for downstream
// consumers (dashboards, notification service).
const SettlementEventsQueue = "settlement_events"

// ProtocolPublisher publishes protocol events to RabbitMQ.
type ProtocolPublisher struct {
	conn              *RabbitMQConnection
	messagesPublished int64
	messagesFailed    int64
}

func NewProtocolPublisher(conn *RabbitMQConnection) *ProtocolPublisher {
	return &ProtocolPublisher{conn: conn}
}

// Publish declares the durable queue and publishes the event as a
// persistent JSON message.
func (p *ProtocolPublisher) Publish(ctx context.Context, event models.ProtocolEvent) error {
	_, err := p.conn.Channel.QueueDeclare(
		SettlementEventsQueue, // queue name
		true,                  // durable
		false,                 // delete when unused
		false,                 // exclusive
		false,                 // no-wait
		nil,                   // arguments
	)
	if err != nil {
		p.messagesFailed++
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.messagesFailed++
		return fmt.Errorf("failed to marshal protocol event: %w", err)
	}

	err = p.conn.Channel.PublishWithContext(
		ctx,
		"",                    // exchange
		SettlementEventsQueue, // routing key (queue name)
		false,                 // mandatory
		false,                 // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		p.messagesFailed++
		return fmt.Errorf("failed to publish protocol event: %w", err)
	}

	p.messagesPublished++
	return nil
}
