package queueclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// amqpChannel is the subset of *amqp.Channel used by AMQPClient.
type amqpChannel interface {
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple bool, requeue bool) error
	Close() error
}

// AMQPConfig configures an AMQPClient.
type AMQPConfig struct {
	// URI is the broker address, e.g. amqp://broker:5672. Credentials and vhost
	// given separately take precedence over any embedded in the URI.
	URI       string
	QueueName string
	VHost     string
	Username  string
	Password  string
}

// AMQPClient adapts a RabbitMQ (AMQP 0-9-1) queue to the peek-lock Client contract:
// basic.get without auto-ack holds the message, ack deletes it and nack with
// requeue releases it.
//
// Settling an unknown delivery tag closes the channel, so handles are tracked and
// a second settle is answered locally with ErrLockLost.
type AMQPClient struct {
	conn      *amqp.Connection
	queueName string
	logger    zerolog.Logger

	mu sync.Mutex
	ch amqpChannel
}

// NewAMQPClient dials the broker and opens a channel.
func NewAMQPClient(cfg AMQPConfig, logger zerolog.Logger) (*AMQPClient, error) {
	uri, err := amqp.ParseURI(cfg.URI)
	if err != nil {
		return nil, transportErr(OpConnect, cfg.QueueName, fmt.Errorf("invalid AMQP URI: %w", err))
	}
	if cfg.Username != "" {
		uri.Username = cfg.Username
	}
	if cfg.Password != "" {
		uri.Password = cfg.Password
	}
	if cfg.VHost != "" {
		uri.Vhost = cfg.VHost
	}

	conn, err := amqp.Dial(uri.String())
	if err != nil {
		return nil, transportErr(OpConnect, cfg.QueueName, fmt.Errorf("failed to connect to broker: %w", err))
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, transportErr(OpConnect, cfg.QueueName, fmt.Errorf("failed to open channel: %w", err))
	}

	c := newAMQPClient(ch, cfg.QueueName, logger)
	c.conn = conn
	return c, nil
}

func newAMQPClient(ch amqpChannel, queue string, logger zerolog.Logger) *AMQPClient {
	c := &AMQPClient{
		ch:        ch,
		queueName: queue,
		logger:    logger.With().Str("component", "AMQPClient").Str("queue", queue).Logger(),
	}
	c.logger.Info().Msg("AMQP queue client ready.")
	return c
}

// ReceiveLocked implements Client. basic.get does not block, so an empty queue
// returns immediately.
func (c *AMQPClient) ReceiveLocked(ctx context.Context) (*Message, *LockHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, transportErr(OpReceive, c.queueName, err)
	}

	c.mu.Lock()
	d, ok, err := c.ch.Get(c.queueName, false)
	c.mu.Unlock()
	if err != nil {
		return nil, nil, transportErr(OpReceive, c.queueName, err)
	}
	if !ok {
		return nil, nil, nil
	}

	id := d.MessageId
	if id == "" {
		// Delivery tags restart on every channel, so they cannot name a message.
		id = uuid.NewString()
	}
	props := make(map[string]any, len(d.Headers))
	for k, v := range d.Headers {
		props[k] = v
	}
	// AMQP only records whether a delivery is a redelivery, not how many times.
	count := 1
	if d.Redelivered {
		count = 2
	}

	msg := &Message{ID: id, Body: bytes.NewReader(d.Body), Properties: props, DeliveryCount: count}
	return msg, &LockHandle{messageID: id, tag: d.DeliveryTag}, nil
}

// Delete implements Client.
func (c *AMQPClient) Delete(_ context.Context, h *LockHandle) error {
	if !h.settle() {
		return transportErr(OpDelete, c.queueName, ErrLockLost)
	}
	c.mu.Lock()
	err := c.ch.Ack(h.tag, false)
	c.mu.Unlock()
	if err != nil {
		h.reopen()
		return transportErr(OpDelete, c.queueName, mapAMQPError(err))
	}
	return nil
}

// Unlock implements Client.
func (c *AMQPClient) Unlock(_ context.Context, h *LockHandle) error {
	if !h.settle() {
		return transportErr(OpUnlock, c.queueName, ErrLockLost)
	}
	c.mu.Lock()
	err := c.ch.Nack(h.tag, false, true)
	c.mu.Unlock()
	return transportErr(OpUnlock, c.queueName, mapAMQPError(err))
}

// Close implements Client.
func (c *AMQPClient) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	if c.ch != nil {
		errs = append(errs, c.ch.Close())
	}
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
	}
	return errors.Join(errs...)
}

// mapAMQPError treats a closed channel as a lost lock: the broker requeues every
// unacknowledged delivery when the channel goes away.
func mapAMQPError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("%w: %v", ErrLockLost, err)
	}
	return err
}
