package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/cronkeeper/internal/telemetry"
)

// ErrNoChannel — канал ещё не открыт или соединение потеряно.
var ErrNoChannel = errors.New("amqp channel not available")

// ErrGaveUp — политика переподключения исчерпана.
var ErrGaveUp = errors.New("amqp reconnect attempts exhausted")

// ReconnectPolicy — сколько и как часто пытаться восстановить соединение.
type ReconnectPolicy struct {
	// MaxAttempts — 0 означает без ограничения.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DaemonPolicy — cronkeeperd публикует события, пока работает,
// и не сдаётся: события без брокера просто теряются.
var DaemonPolicy = ReconnectPolicy{BaseDelay: time.Second, MaxDelay: 30 * time.Second}

// WatchPolicy — cronctl watch после нескольких неудач завершается с ошибкой.
var WatchPolicy = ReconnectPolicy{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}

// Delay — пауза перед попыткой attempt (с 1), удваивается до MaxDelay.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	return min(d, p.MaxDelay)
}

// Exhausted сообщает, что попытка attempt уже не разрешена.
func (p ReconnectPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt > p.MaxAttempts
}

// ConnectionConfig — параметры соединения.
type ConnectionConfig struct {
	URL string
	// Name показывается в management UI как connection_name.
	Name   string
	Policy ReconnectPolicy
	// OnConnect вызывается на свежем канале после каждого (пере)подключения,
	// например чтобы заново объявить обменник.
	OnConnect func(ch *amqp.Channel) error
	Logger    *slog.Logger
}

// Connection — AMQP соединение с одним каналом и переподключением
// по ReconnectPolicy.
type Connection struct {
	cfg    ConnectionConfig
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	err     error

	closeOnce   sync.Once
	closedCh    chan struct{}
	lostCh      chan struct{}
	reconnectCh chan struct{}
}

// NewConnection подключается к брокеру. Первая попытка не повторяется:
// недоступный брокер при старте — ошибка вызывающего.
func NewConnection(cfg ConnectionConfig) (*Connection, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connection{
		cfg:         cfg,
		logger:      logger.With("connection_name", cfg.Name),
		closedCh:    make(chan struct{}),
		lostCh:      make(chan struct{}),
		reconnectCh: make(chan struct{}, 1),
	}

	notify, err := c.connect()
	if err != nil {
		return nil, err
	}
	go c.supervise(notify)

	return c, nil
}

// connect открывает соединение и канал и выполняет OnConnect.
func (c *Connection) connect() (chan *amqp.Error, error) {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(c.cfg.Name)

	conn, err := amqp.DialConfig(c.cfg.URL, amqp.Config{
		Heartbeat:  10 * time.Second,
		Locale:     "en_US",
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if c.cfg.OnConnect != nil {
		if err := c.cfg.OnConnect(ch); err != nil {
			conn.Close()
			return nil, err
		}
	}

	c.mu.Lock()
	select {
	case <-c.closedCh:
		// Close успел раньше
		c.mu.Unlock()
		conn.Close()
		return nil, amqp.ErrClosed
	default:
	}
	c.conn, c.channel, c.err = conn, ch, nil
	c.mu.Unlock()

	c.logger.Info("connected to RabbitMQ")
	return conn.NotifyClose(make(chan *amqp.Error, 1)), nil
}

// supervise ждёт разрыва и переподключается, пока позволяет политика.
func (c *Connection) supervise(notify chan *amqp.Error) {
	for {
		select {
		case <-c.closedCh:
			return
		case amqpErr := <-notify:
			if amqpErr != nil {
				c.logger.Warn("connection lost", "error", amqpErr)
			}
		}

		c.mu.Lock()
		c.channel = nil
		c.mu.Unlock()

		next, ok := c.reconnect()
		if !ok {
			return
		}
		notify = next
	}
}

func (c *Connection) reconnect() (chan *amqp.Error, bool) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if c.cfg.Policy.Exhausted(attempt) {
			c.giveUp(lastErr)
			return nil, false
		}

		delay := c.cfg.Policy.Delay(attempt)
		c.logger.Info("reconnecting", "attempt", attempt, "delay", delay)
		select {
		case <-c.closedCh:
			return nil, false
		case <-time.After(delay):
		}

		notify, err := c.connect()
		telemetry.AMQPReconnectsTotal.WithLabelValues(c.cfg.Name, telemetry.Result(err)).Inc()
		if err != nil {
			lastErr = err
			c.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
			continue
		}

		select {
		case c.reconnectCh <- struct{}{}:
		default:
		}
		return notify, true
	}
}

func (c *Connection) giveUp(lastErr error) {
	err := ErrGaveUp
	if lastErr != nil {
		err = fmt.Errorf("%w: %w", ErrGaveUp, lastErr)
	}
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()

	c.logger.Error("giving up on RabbitMQ", "error", err)
	close(c.lostCh)
}

// Reconnected срабатывает после каждого успешного переподключения.
func (c *Connection) Reconnected() <-chan struct{} {
	return c.reconnectCh
}

// Lost закрывается, когда политика исчерпана; причина — в Err.
func (c *Connection) Lost() <-chan struct{} {
	return c.lostCh
}

// Err возвращает причину потери соединения.
func (c *Connection) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// WithChannel выполняет fn на текущем канале.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	if ch == nil || ch.IsClosed() {
		return ErrNoChannel
	}
	return fn(ch)
}

// Close закрывает канал и соединение. Повторный вызов ничего не делает.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closedCh)

		c.mu.Lock()
		defer c.mu.Unlock()

		var errs []error
		if c.channel != nil {
			if cerr := c.channel.Close(); cerr != nil && !errors.Is(cerr, amqp.ErrClosed) {
				errs = append(errs, fmt.Errorf("close channel: %w", cerr))
			}
		}
		if c.conn != nil {
			if cerr := c.conn.Close(); cerr != nil && !errors.Is(cerr, amqp.ErrClosed) {
				errs = append(errs, fmt.Errorf("close connection: %w", cerr))
			}
		}
		c.channel, c.conn = nil, nil
		err = errors.Join(errs...)
	})
	return err
}
