package queueclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServiceBusReceiver struct {
	msgs           []*azservicebus.ReceivedMessage
	recvErr        error
	blockWhenEmpty bool

	completed   []string
	abandoned   []string
	completeErr error
	abandonErr  error
	closed      bool
}

func (f *fakeServiceBusReceiver) ReceiveMessages(ctx context.Context, _ int, _ *azservicebus.ReceiveMessagesOptions) ([]*azservicebus.ReceivedMessage, error) {
	if f.recvErr != nil {
		return nil, f.recvErr
	}
	if len(f.msgs) == 0 {
		if f.blockWhenEmpty {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return nil, nil
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return []*azservicebus.ReceivedMessage{m}, nil
}

func (f *fakeServiceBusReceiver) CompleteMessage(_ context.Context, m *azservicebus.ReceivedMessage, _ *azservicebus.CompleteMessageOptions) error {
	f.completed = append(f.completed, m.MessageID)
	return f.completeErr
}

func (f *fakeServiceBusReceiver) AbandonMessage(_ context.Context, m *azservicebus.ReceivedMessage, _ *azservicebus.AbandonMessageOptions) error {
	f.abandoned = append(f.abandoned, m.MessageID)
	return f.abandonErr
}

func (f *fakeServiceBusReceiver) Close(context.Context) error {
	f.closed = true
	return nil
}

func TestServiceBusConfig_ConnectionString(t *testing.T) {
	testCases := []struct {
		name    string
		rootURI string
	}{
		{"suffix with dot", ".servicebus.windows.net"},
		{"bare host", "servicebus.windows.net"},
		{"with scheme", "https://servicebus.windows.net/"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := ServiceBusConfig{Namespace: "acme", RootURI: tc.rootURI, KeyName: "owner", Key: "s3cret"}
			assert.Equal(t,
				"Endpoint=sb://acme.servicebus.windows.net/;SharedAccessKeyName=owner;SharedAccessKey=s3cret",
				cfg.ConnectionString())
		})
	}
}

func TestServiceBusClient_ReceiveLocked(t *testing.T) {
	// --- Arrange ---
	rcv := &fakeServiceBusReceiver{msgs: []*azservicebus.ReceivedMessage{{
		MessageID:             "42",
		Body:                  []byte("hello"),
		ApplicationProperties: map[string]any{"x": "1", "n": int64(2)},
		DeliveryCount:         4,
	}}}
	c := newServiceBusClient(rcv, ServiceBusConfig{QueueName: "orders"}, zerolog.Nop())

	// --- Act ---
	msg, h, err := c.ReceiveLocked(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "42", msg.ID)
	assert.Equal(t, "hello", readBody(t, msg))
	assert.Equal(t, map[string]any{"x": "1", "n": int64(2)}, msg.Properties)
	assert.Equal(t, 4, msg.DeliveryCount)
	assert.Equal(t, "42", h.MessageID())
}

func TestServiceBusClient_ReceiveTimeoutIsEmpty(t *testing.T) {
	rcv := &fakeServiceBusReceiver{blockWhenEmpty: true}
	c := newServiceBusClient(rcv, ServiceBusConfig{QueueName: "orders", ReceiveTimeout: 10 * time.Millisecond}, zerolog.Nop())

	msg, h, err := c.ReceiveLocked(context.Background())
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.Nil(t, h)
}

func TestServiceBusClient_ReceiveError(t *testing.T) {
	rcv := &fakeServiceBusReceiver{recvErr: &azservicebus.Error{Code: azservicebus.CodeUnauthorizedAccess}}
	c := newServiceBusClient(rcv, ServiceBusConfig{QueueName: "orders"}, zerolog.Nop())

	_, _, err := c.ReceiveLocked(context.Background())
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, OpReceive, terr.Op)
}

func TestServiceBusClient_CompleteThenAbandon(t *testing.T) {
	ctx := context.Background()
	rcv := &fakeServiceBusReceiver{msgs: []*azservicebus.ReceivedMessage{{MessageID: "1"}}}
	c := newServiceBusClient(rcv, ServiceBusConfig{QueueName: "orders"}, zerolog.Nop())
	_, h, err := c.ReceiveLocked(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Delete(ctx, h))
	err = c.Unlock(ctx, h)

	assert.ErrorIs(t, err, ErrLockLost)
	assert.Equal(t, []string{"1"}, rcv.completed)
	assert.Empty(t, rcv.abandoned)
}

func TestServiceBusClient_AbandonLockLost(t *testing.T) {
	ctx := context.Background()
	rcv := &fakeServiceBusReceiver{
		msgs:       []*azservicebus.ReceivedMessage{{MessageID: "1"}},
		abandonErr: &azservicebus.Error{Code: azservicebus.CodeLockLost},
	}
	c := newServiceBusClient(rcv, ServiceBusConfig{QueueName: "orders"}, zerolog.Nop())
	_, h, err := c.ReceiveLocked(ctx)
	require.NoError(t, err)

	err = c.Unlock(ctx, h)
	assert.ErrorIs(t, err, ErrLockLost)
	assert.Equal(t, []string{"1"}, rcv.abandoned)
}

func TestServiceBusClient_CompleteFailure(t *testing.T) {
	ctx := context.Background()
	rcv := &fakeServiceBusReceiver{
		msgs:        []*azservicebus.ReceivedMessage{{MessageID: "1"}},
		completeErr: errors.New("connection reset"),
	}
	c := newServiceBusClient(rcv, ServiceBusConfig{QueueName: "orders"}, zerolog.Nop())
	_, h, err := c.ReceiveLocked(ctx)
	require.NoError(t, err)

	err = c.Delete(ctx, h)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, OpDelete, terr.Op)
	assert.NotErrorIs(t, err, ErrLockLost)

	require.NoError(t, c.Unlock(ctx, h))
	assert.Equal(t, []string{"1"}, rcv.abandoned)
}

func TestServiceBusClient_Close(t *testing.T) {
	rcv := &fakeServiceBusReceiver{}
	c := newServiceBusClient(rcv, ServiceBusConfig{QueueName: "orders"}, zerolog.Nop())
	require.NoError(t, c.Close(context.Background()))
	assert.True(t, rcv.closed)
}
