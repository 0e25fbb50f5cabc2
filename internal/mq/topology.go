package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// ExchangeJobs — обменник событий задач.
const ExchangeJobs Exchange = "cronkeeper.jobs"

// Шаблоны подписки.
const (
	// RoutingKeyAllJobs — все события job.*.
	RoutingKeyAllJobs RoutingKey = "job.#"
)

// DeclareTopology объявляет обменник событий; подходит как
// ConnectionConfig.OnConnect. Очереди объявляют сами подписчики.
func DeclareTopology(ch *amqp.Channel) error {
	return declareExchanges(ch)
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeJobs, amqp.ExchangeTopic},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareWatchQueue создаёт эксклюзивную очередь с именем от брокера
// и привязывает её к обменнику задач. Очередь исчезает вместе с соединением.
func declareWatchQueue(ch *amqp.Channel, pattern RoutingKey) (Queue, error) {
	if err := declareExchanges(ch); err != nil {
		return "", err
	}

	q, err := ch.QueueDeclare(
		"",    // name (генерирует брокер)
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return "", fmt.Errorf("declare watch queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,               // queue name
		string(pattern),      // routing key
		string(ExchangeJobs), // exchange
		false,                // no-wait
		nil,                  // arguments
	)
	if err != nil {
		return "", fmt.Errorf("bind queue %s to %s: %w", q.Name, ExchangeJobs, err)
	}

	return Queue(q.Name), nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  cronkeeper RabbitMQ topology:

    cronkeeper.jobs (topic)
    ├── routing: job.created | job.updated | job.deleted
    │            job.enabled | job.disabled | job.imported
    └── amq.gen-* [binding: job.#, exclusive, auto-delete]
            Consumer: cronctl watch
  `
}
