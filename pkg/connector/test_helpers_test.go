package connector_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/illmade-knight/go-queueconnector/pkg/queueclient"
	"github.com/illmade-knight/go-queueconnector/pkg/types"
	"github.com/rs/zerolog"
)

// ====================================================================================
// Mocks shared by the connector tests. MockQueueClient wraps a real MemoryQueue so
// lock semantics are genuine, and records every call for protocol assertions.
// ====================================================================================

// MockQueueClient decorates a MemoryQueue with call recording and error injection.
type MockQueueClient struct {
	*queueclient.MemoryQueue

	mu         sync.Mutex
	calls      []string
	deletedIDs []string
	receiveErr error
	deleteErr  error
	unlockErr  error
}

func NewMockQueueClient() *MockQueueClient {
	return &MockQueueClient{MemoryQueue: queueclient.NewMemoryQueue("test-queue", time.Minute, zerolog.Nop())}
}

func (m *MockQueueClient) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *MockQueueClient) ReceiveLocked(ctx context.Context) (*queueclient.Message, *queueclient.LockHandle, error) {
	m.record("receive")
	if m.receiveErr != nil {
		return nil, nil, &queueclient.TransportError{Op: queueclient.OpReceive, Queue: "test-queue", Err: m.receiveErr}
	}
	return m.MemoryQueue.ReceiveLocked(ctx)
}

func (m *MockQueueClient) Delete(ctx context.Context, h *queueclient.LockHandle) error {
	m.record("delete")
	if m.deleteErr != nil {
		return &queueclient.TransportError{Op: queueclient.OpDelete, Queue: "test-queue", Err: m.deleteErr}
	}
	err := m.MemoryQueue.Delete(ctx, h)
	if err == nil {
		m.mu.Lock()
		m.deletedIDs = append(m.deletedIDs, h.MessageID())
		m.mu.Unlock()
	}
	return err
}

func (m *MockQueueClient) Unlock(ctx context.Context, h *queueclient.LockHandle) error {
	m.record("unlock")
	if m.unlockErr != nil {
		return &queueclient.TransportError{Op: queueclient.OpUnlock, Queue: "test-queue", Err: m.unlockErr}
	}
	return m.MemoryQueue.Unlock(ctx, h)
}

func (m *MockQueueClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockQueueClient) DeletedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.deletedIDs))
	copy(out, m.deletedIDs)
	return out
}

func (m *MockQueueClient) ResetCalls() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

// MockSubmitter records submitted events and can be told to fail.
type MockSubmitter struct {
	mu        sync.Mutex
	events    []types.Event
	failWith  error
	panicWith any
}

func (s *MockSubmitter) Submit(_ context.Context, ev types.Event) error {
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *MockSubmitter) SetFailure(err error) {
	s.mu.Lock()
	s.failWith = err
	s.mu.Unlock()
}

func (s *MockSubmitter) Events() []types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Event, len(s.events))
	copy(out, s.events)
	return out
}

// SubmittedIDs returns the source message IDs of successfully submitted events.
func (s *MockSubmitter) SubmittedIDs() []string {
	var ids []string
	for _, ev := range s.Events() {
		ids = append(ids, ev.SourceMessageID())
	}
	return ids
}

// failingReader fails on the first Read.
type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset while reading body") }

// bodyFailingClient hands out messages whose body cannot be read.
type bodyFailingClient struct {
	*MockQueueClient
}

func (b *bodyFailingClient) ReceiveLocked(ctx context.Context) (*queueclient.Message, *queueclient.LockHandle, error) {
	msg, h, err := b.MockQueueClient.ReceiveLocked(ctx)
	if msg != nil {
		msg.Body = failingReader{}
	}
	return msg, h, err
}
