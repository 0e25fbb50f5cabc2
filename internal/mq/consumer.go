package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/cronkeeper/internal/domain"
)

// Handler — функция обработки события.
// Ошибка логируется; очередь наблюдателя без подтверждений, повтора нет.
type Handler func(ctx context.Context, event domain.JobEvent) error

// Consumer читает события задач из эксклюзивной очереди.
type Consumer struct {
	conn    *Connection
	logger  *slog.Logger
	pattern RoutingKey
	handler Handler

	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Pattern — шаблон routing key (по умолчанию job.#).
	Pattern RoutingKey

	// Handler — обработчик событий.
	Handler Handler
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	pattern := cfg.Pattern
	if pattern == "" {
		pattern = RoutingKeyAllJobs
	}

	return &Consumer{
		conn:    conn,
		logger:  logger,
		pattern: pattern,
		handler: cfg.Handler,
	}
}

// Start запускает потребление и блокируется до отмены ctx.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	return c.consume(ctx)
}

// consume — основной цикл потребления.
// После переподключения очередь объявляется заново: эксклюзивная
// очередь живёт не дольше соединения.
func (c *Consumer) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deliveries, err := c.setupConsume(ctx)
		if err != nil {
			c.logger.Error("failed to setup consume", "pattern", c.pattern, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.Lost():
				return c.conn.Err()
			case <-c.conn.Reconnected():
				c.logger.Info("reconnected, restarting consumer", "pattern", c.pattern)
				continue
			}
		}

		if err := c.processDeliveries(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, reconnecting", "pattern", c.pattern)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.Lost():
				return c.conn.Err()
			case <-c.conn.Reconnected():
				continue
			}
		}
	}
}

// setupConsume объявляет очередь и начинает потребление.
func (c *Consumer) setupConsume(ctx context.Context) (<-chan amqp.Delivery, error) {
	var deliveries <-chan amqp.Delivery

	err := c.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		queue, err := declareWatchQueue(ch, c.pattern)
		if err != nil {
			return err
		}

		deliveries, err = ch.Consume(
			string(queue), // queue
			"",            // consumer tag (auto-generated)
			true,          // auto-ack
			true,          // exclusive
			false,         // no-local
			false,         // no-wait
			nil,           // args
		)
		if err != nil {
			return fmt.Errorf("consume: %w", err)
		}

		c.logger.Info("consumer started", "queue", queue, "pattern", c.pattern)
		return nil
	})

	return deliveries, err
}

// processDeliveries обрабатывает сообщения из канала.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}

			c.handleDelivery(ctx, raw.Body)
		}
	}
}

// handleDelivery обрабатывает одно сообщение.
func (c *Consumer) handleDelivery(ctx context.Context, body []byte) {
	event, msgID, err := DecodeEvent(body)
	if err != nil {
		c.logger.Error("failed to decode message", "error", err, "body", string(body))
		return
	}

	c.logger.Debug("received message", "message_id", msgID, "type", event.Type)

	if err := c.handler(ctx, event); err != nil {
		c.logger.Error("handler failed",
			"message_id", msgID,
			"type", event.Type,
			"error", err,
		)
	}
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

// DecodeEvent разбирает конверт и возвращает событие и ID сообщения.
func DecodeEvent(body []byte) (domain.JobEvent, string, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return domain.JobEvent{}, "", fmt.Errorf("unmarshal message: %w", err)
	}
	if msg.Type == "" {
		return domain.JobEvent{}, msg.ID, fmt.Errorf("message %s has no type", msg.ID)
	}

	job, err := ParsePayload[domain.Job](&msg)
	if err != nil {
		return domain.JobEvent{}, msg.ID, err
	}

	return domain.JobEvent{Type: msg.Type, Job: job, OccurredAt: msg.Timestamp}, msg.ID, nil
}

// ParsePayload парсит payload сообщения в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	// После json.Unmarshal payload — map[string]any
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}

	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}

	return result, nil
}
