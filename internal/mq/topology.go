package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Имена объектов топологии.
const (
	// ExchangeEvents — topic-обменник, в который публикуются все
	// события выполнений.
	ExchangeEvents = "overseer.events"

	// QueueObservers — очередь для сторонних наблюдателей,
	// привязанная ко всем ключам event.#.
	QueueObservers = "events.observers"

	// bindingPattern — шаблон привязки очереди наблюдателей.
	bindingPattern = "event.#"
)

// declareTopology объявляет обменник, очередь и привязку.
// Идемпотентно: вызывается при каждом подключении.
func declareTopology(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		ExchangeEvents, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeEvents, err)
	}

	_, err = ch.QueueDeclare(
		QueueObservers, // name
		true,           // durable
		false,          // delete when unused
		false,          // exclusive
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueObservers, err)
	}

	err = ch.QueueBind(
		QueueObservers, // queue name
		bindingPattern, // routing key
		ExchangeEvents, // exchange
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", QueueObservers, ExchangeEvents, err)
	}

	return nil
}

// EventRoutingKey возвращает ключ маршрутизации для события:
// event.<kind>, например event.loop.completed.
func EventRoutingKey(kind string) string {
	return "event." + kind
}
