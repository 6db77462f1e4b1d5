package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Overseer/internal/domain"
)

// Publisher публикует события выполнений в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// PublishEvent публикует событие в обменник overseer.events
// с ключом маршрутизации event.<kind>.
func (p *Publisher) PublishEvent(ctx context.Context, ev domain.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	routingKey := EventRoutingKey(string(ev.Kind))

	return p.conn.withChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			ExchangeEvents, // exchange
			routingKey,     // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    uuid.New().String(),
				Timestamp:    time.Now(),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", ExchangeEvents, routingKey, err)
		}

		p.logger.Debug("событие опубликовано",
			"routing_key", routingKey,
			"exec_id", ev.ExecID,
		)

		return nil
	})
}
