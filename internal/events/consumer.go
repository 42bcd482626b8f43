package events

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/charlesng35/fanout/internal/services"
	apperrors "github.com/charlesng35/fanout/pkg/errors"
	"github.com/charlesng35/fanout/pkg/logger"
)

// LedgerEventHandler dispatches one ledger change.
type LedgerEventHandler interface {
	DispatchLedgerEvent(ctx context.Context, event services.LedgerEvent) error
}

// AMQPSettings represents the settings that we require in order to consume ledger changes.
type AMQPSettings struct {
	URI          string
	ExchangeName string
	ExchangeType string
	QueueName    string
	RoutingKey   string
	Prefetch     int
}

// Consumer reads ledger change notifications from an AMQP queue.
type Consumer struct {
	settings AMQPSettings
	handler  LedgerEventHandler
	log      *zap.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	done    chan struct{}
}

// NewConsumer creates a consumer. Call Start to connect.
func NewConsumer(settings AMQPSettings, handler LedgerEventHandler) (*Consumer, error) {
	if handler == nil {
		return nil, errors.New("events consumer: handler is required")
	}
	if strings.TrimSpace(settings.URI) == "" {
		return nil, errors.New("events consumer: amqp uri is required")
	}
	if strings.TrimSpace(settings.QueueName) == "" {
		return nil, errors.New("events consumer: queue name is required")
	}
	if settings.ExchangeType == "" {
		settings.ExchangeType = amqp.ExchangeTopic
	}
	if settings.Prefetch <= 0 {
		settings.Prefetch = 16
	}
	return &Consumer{
		settings: settings,
		handler:  handler,
		log:      logger.WithModule("events"),
		done:     make(chan struct{}),
	}, nil
}

// Start connects, declares the topology and consumes until ctx is cancelled or Close is called.
func (c *Consumer) Start(ctx context.Context) error {
	wrapMsg := "unable to start the ledger change consumer"

	conn, err := amqp.Dial(c.settings.URI)
	if err != nil {
		return pkgerrors.Wrap(err, wrapMsg)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return pkgerrors.Wrap(err, wrapMsg)
	}

	deliveries, err := c.declare(channel)
	if err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return pkgerrors.Wrap(err, wrapMsg)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.mu.Unlock()

	c.log.Info("consuming ledger changes",
		zap.String("queue", c.settings.QueueName),
		zap.String("exchange", c.settings.ExchangeName),
	)

	go c.consume(ctx, deliveries)
	return nil
}

func (c *Consumer) declare(channel *amqp.Channel) (<-chan amqp.Delivery, error) {
	s := c.settings
	if s.ExchangeName != "" {
		if err := channel.ExchangeDeclare(s.ExchangeName, s.ExchangeType, true, false, false, false, nil); err != nil {
			return nil, pkgerrors.Wrap(err, "declare exchange")
		}
	}
	if _, err := channel.QueueDeclare(s.QueueName, true, false, false, false, nil); err != nil {
		return nil, pkgerrors.Wrap(err, "declare queue")
	}
	if s.ExchangeName != "" {
		if err := channel.QueueBind(s.QueueName, s.RoutingKey, s.ExchangeName, false, nil); err != nil {
			return nil, pkgerrors.Wrap(err, "bind queue")
		}
	}
	if err := channel.Qos(s.Prefetch, 0, false); err != nil {
		return nil, pkgerrors.Wrap(err, "set prefetch")
	}
	deliveries, err := channel.Consume(s.QueueName, "fanout-events", false, false, false, false, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "consume")
	}
	return deliveries, nil
}

func (c *Consumer) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case delivery, ok := <-deliveries:
			if !ok {
				c.log.Warn("ledger change channel closed")
				return
			}
			c.Process(ctx, delivery)
		}
	}
}

// Process handles one delivery and settles it: ack on success, reject without requeue for
// unrecoverable errors, nack with requeue otherwise.
func (c *Consumer) Process(ctx context.Context, delivery amqp.Delivery) {
	err := c.Handle(ctx, delivery.Body)

	var settleErr error
	switch {
	case err == nil:
		settleErr = delivery.Ack(false)
	case isUnrecoverable(err):
		c.log.Warn("dropping ledger change", zap.Error(err))
		settleErr = delivery.Reject(false)
	default:
		c.log.Error("ledger change failed, requeueing", zap.Error(err))
		settleErr = delivery.Nack(false, true)
	}
	if settleErr != nil {
		c.log.Error("settle delivery", zap.Uint64("tag", delivery.DeliveryTag), zap.Error(settleErr))
	}
}

// Handle decodes body and dispatches the ledger event it describes.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	event, err := DecodeChange(body)
	if err != nil {
		return err
	}
	if err := c.handler.DispatchLedgerEvent(ctx, event); err != nil {
		return classify(err)
	}
	return nil
}

// Close stops consuming and closes the connection.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return nil
	default:
		close(c.done)
	}

	var errs []error
	if c.channel != nil {
		errs = append(errs, c.channel.Close())
	}
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
	}
	return errors.Join(errs...)
}

// classify maps service errors onto the redelivery split. Client errors will fail the same
// way every time; everything else may succeed later.
func classify(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.StatusCode >= http.StatusBadRequest && appErr.StatusCode < http.StatusInternalServerError {
		return NewUnrecoverableError("%s", err)
	}
	return NewRecoverableError("%s", err)
}

func isUnrecoverable(err error) bool {
	var unrecoverable UnrecoverableError
	return errors.As(err, &unrecoverable)
}
