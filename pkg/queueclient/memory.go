package queueclient

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MemoryQueue is an in-process peek-lock queue. It backs the "memory" transport and
// is used to exercise redelivery behaviour without a broker.
type MemoryQueue struct {
	name    string
	lockTTL time.Duration
	now     func() time.Time
	logger  zerolog.Logger

	mu       sync.Mutex
	messages []*memoryEntry
}

type memoryEntry struct {
	id            string
	body          []byte
	properties    map[string]any
	lockToken     string
	lockedUntil   time.Time
	deliveryCount int
}

// MemoryOption customises a MemoryQueue.
type MemoryOption func(*MemoryQueue)

// WithClock replaces the queue's time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(q *MemoryQueue) { q.now = now }
}

// NewMemoryQueue creates an empty queue whose locks last lockTTL.
func NewMemoryQueue(name string, lockTTL time.Duration, logger zerolog.Logger, opts ...MemoryOption) *MemoryQueue {
	q := &MemoryQueue{
		name:    name,
		lockTTL: lockTTL,
		now:     time.Now,
		logger:  logger.With().Str("component", "MemoryQueue").Str("queue", name).Logger(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Send appends a message to the queue.
func (q *MemoryQueue) Send(id string, body []byte, properties map[string]any) {
	b := make([]byte, len(body))
	copy(b, body)
	props := make(map[string]any, len(properties))
	for k, v := range properties {
		props[k] = v
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, &memoryEntry{id: id, body: b, properties: props})
}

// ReceiveLocked implements Client.
func (q *MemoryQueue) ReceiveLocked(ctx context.Context) (*Message, *LockHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, transportErr(OpReceive, q.name, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for _, e := range q.messages {
		if e.lockToken != "" && now.Before(e.lockedUntil) {
			continue
		}
		e.lockToken = uuid.NewString()
		e.lockedUntil = now.Add(q.lockTTL)
		e.deliveryCount++

		msg := &Message{
			ID:            e.id,
			Body:          bytes.NewReader(e.body),
			Properties:    copyProps(e.properties),
			DeliveryCount: e.deliveryCount,
		}
		return msg, &LockHandle{messageID: e.id, token: e.lockToken}, nil
	}
	return nil, nil, nil
}

// Delete implements Client.
func (q *MemoryQueue) Delete(_ context.Context, h *LockHandle) error {
	if !h.settle() {
		return transportErr(OpDelete, q.name, ErrLockLost)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.lockedIndex(h.token)
	if idx < 0 {
		return transportErr(OpDelete, q.name, ErrLockLost)
	}
	q.messages = append(q.messages[:idx], q.messages[idx+1:]...)
	q.logger.Debug().Str("msg_id", h.messageID).Msg("Message deleted.")
	return nil
}

// Unlock implements Client.
func (q *MemoryQueue) Unlock(_ context.Context, h *LockHandle) error {
	if !h.settle() {
		return transportErr(OpUnlock, q.name, ErrLockLost)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.lockedIndex(h.token)
	if idx < 0 {
		return transportErr(OpUnlock, q.name, ErrLockLost)
	}
	q.messages[idx].lockToken = ""
	q.messages[idx].lockedUntil = time.Time{}
	return nil
}

// Close implements Client.
func (q *MemoryQueue) Close(context.Context) error { return nil }

// ExpireLocks forces every held lock to expire, as if the lock timeout had elapsed.
func (q *MemoryQueue) ExpireLocks() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.messages {
		e.lockToken = ""
		e.lockedUntil = time.Time{}
	}
}

// Len returns the number of messages on the queue, locked or not.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// Locked returns the number of messages currently held under an unexpired lock.
func (q *MemoryQueue) Locked() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	n := 0
	for _, e := range q.messages {
		if e.lockToken != "" && now.Before(e.lockedUntil) {
			n++
		}
	}
	return n
}

// lockedIndex finds the message holding the given, still valid, lock token.
// Callers must hold q.mu.
func (q *MemoryQueue) lockedIndex(token string) int {
	now := q.now()
	for i, e := range q.messages {
		if e.lockToken == token {
			if !now.Before(e.lockedUntil) {
				return -1
			}
			return i
		}
	}
	return -1
}

func copyProps(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
