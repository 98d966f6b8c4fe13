package queueclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog"
)

// serviceBusReceiver is the subset of *azservicebus.Receiver used by ServiceBusClient.
type serviceBusReceiver interface {
	ReceiveMessages(ctx context.Context, maxMessages int, options *azservicebus.ReceiveMessagesOptions) ([]*azservicebus.ReceivedMessage, error)
	CompleteMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.CompleteMessageOptions) error
	AbandonMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.AbandonMessageOptions) error
	Close(ctx context.Context) error
}

// ServiceBusConfig configures a ServiceBusClient with shared access key credentials.
type ServiceBusConfig struct {
	QueueName string
	Namespace string
	// RootURI is the service host suffix, e.g. ".servicebus.windows.net".
	RootURI        string
	KeyName        string
	Key            string
	ReceiveTimeout time.Duration
}

// ConnectionString renders the Service Bus connection string for the config.
func (c ServiceBusConfig) ConnectionString() string {
	host := strings.TrimSpace(c.RootURI)
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	host = strings.Trim(host, "./")
	return fmt.Sprintf("Endpoint=sb://%s.%s/;SharedAccessKeyName=%s;SharedAccessKey=%s",
		c.Namespace, host, c.KeyName, c.Key)
}

// ServiceBusClient adapts an Azure Service Bus queue receiver in PeekLock mode:
// CompleteMessage deletes and AbandonMessage unlocks.
type ServiceBusClient struct {
	client         *azservicebus.Client
	receiver       serviceBusReceiver
	queueName      string
	receiveTimeout time.Duration
	logger         zerolog.Logger
}

// NewServiceBusClient builds the Service Bus client and a PeekLock receiver. The
// SDK connects lazily on the first receive.
func NewServiceBusClient(cfg ServiceBusConfig, logger zerolog.Logger) (*ServiceBusClient, error) {
	client, err := azservicebus.NewClientFromConnectionString(cfg.ConnectionString(), nil)
	if err != nil {
		return nil, transportErr(OpConnect, cfg.QueueName, fmt.Errorf("failed to create service bus client: %w", err))
	}
	receiver, err := client.NewReceiverForQueue(cfg.QueueName, &azservicebus.ReceiverOptions{
		ReceiveMode: azservicebus.ReceiveModePeekLock,
	})
	if err != nil {
		_ = client.Close(context.Background())
		return nil, transportErr(OpConnect, cfg.QueueName, fmt.Errorf("failed to create receiver: %w", err))
	}

	c := newServiceBusClient(receiver, cfg, logger)
	c.client = client
	return c, nil
}

func newServiceBusClient(receiver serviceBusReceiver, cfg ServiceBusConfig, logger zerolog.Logger) *ServiceBusClient {
	timeout := cfg.ReceiveTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c := &ServiceBusClient{
		receiver:       receiver,
		queueName:      cfg.QueueName,
		receiveTimeout: timeout,
		logger:         logger.With().Str("component", "ServiceBusClient").Str("queue", cfg.QueueName).Logger(),
	}
	c.logger.Info().Str("namespace", cfg.Namespace).Msg("Service Bus queue client ready.")
	return c
}

// ReceiveLocked implements Client. It waits at most the configured receive timeout
// for a message; an empty wait is not an error.
func (c *ServiceBusClient) ReceiveLocked(ctx context.Context) (*Message, *LockHandle, error) {
	receiveCtx, cancel := context.WithTimeout(ctx, c.receiveTimeout)
	defer cancel()

	msgs, err := c.receiver.ReceiveMessages(receiveCtx, 1, nil)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, nil
		}
		return nil, nil, transportErr(OpReceive, c.queueName, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return nil, nil, nil
	}

	m := msgs[0]
	props := make(map[string]any, len(m.ApplicationProperties))
	for k, v := range m.ApplicationProperties {
		props[k] = v
	}
	msg := &Message{
		ID:            m.MessageID,
		Body:          bytes.NewReader(m.Body),
		Properties:    props,
		DeliveryCount: int(m.DeliveryCount),
	}
	return msg, &LockHandle{messageID: m.MessageID, native: m}, nil
}

// Delete implements Client.
func (c *ServiceBusClient) Delete(ctx context.Context, h *LockHandle) error {
	m, ok := h.native.(*azservicebus.ReceivedMessage)
	if !ok {
		return transportErr(OpDelete, c.queueName, fmt.Errorf("foreign lock handle for message %s", h.messageID))
	}
	if !h.settle() {
		return transportErr(OpDelete, c.queueName, ErrLockLost)
	}
	if err := c.receiver.CompleteMessage(ctx, m, nil); err != nil {
		h.reopen()
		return transportErr(OpDelete, c.queueName, mapServiceBusError(err))
	}
	return nil
}

// Unlock implements Client.
func (c *ServiceBusClient) Unlock(ctx context.Context, h *LockHandle) error {
	m, ok := h.native.(*azservicebus.ReceivedMessage)
	if !ok {
		return transportErr(OpUnlock, c.queueName, fmt.Errorf("foreign lock handle for message %s", h.messageID))
	}
	if !h.settle() {
		return transportErr(OpUnlock, c.queueName, ErrLockLost)
	}
	return transportErr(OpUnlock, c.queueName, mapServiceBusError(c.receiver.AbandonMessage(ctx, m, nil)))
}

// Close implements Client.
func (c *ServiceBusClient) Close(ctx context.Context) error {
	err := c.receiver.Close(ctx)
	if c.client != nil {
		err = errors.Join(err, c.client.Close(ctx))
	}
	return err
}

func mapServiceBusError(err error) error {
	if err == nil {
		return nil
	}
	var sbErr *azservicebus.Error
	if errors.As(err, &sbErr) && sbErr.Code == azservicebus.CodeLockLost {
		return fmt.Errorf("%w: %v", ErrLockLost, err)
	}
	return err
}
