package queueclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ====================================================================================
// This file defines the transport-neutral contract used by the poll-cycle controller.
// Every adapter in this package receives in a peek-lock mode: a received message stays
// on the queue, invisible to other consumers, until it is deleted, unlocked, or its
// lock expires.
// ====================================================================================

// ErrLockLost is returned by Delete and Unlock when the lock referenced by the handle
// is no longer held, either because it was already settled or because it expired.
var ErrLockLost = errors.New("message lock lost or already settled")

// Client isolates all transport-specific behaviour behind three operations.
//
// A Client is not safe for concurrent poll cycles: it holds one connection context
// and the receive/unlock protocol assumes one in-flight message per cycle.
type Client interface {
	// ReceiveLocked pulls the next available message under a lock. It returns
	// (nil, nil, nil) when no message is currently available.
	ReceiveLocked(ctx context.Context) (*Message, *LockHandle, error)
	// Delete permanently removes the message referenced by the handle.
	Delete(ctx context.Context, h *LockHandle) error
	// Unlock releases the lock early so the message is immediately redeliverable.
	Unlock(ctx context.Context, h *LockHandle) error
	// Close releases the underlying connection.
	Close(ctx context.Context) error
}

// Message is a queue message received under a lock.
type Message struct {
	ID         string
	Body       io.Reader
	Properties map[string]any
	// DeliveryCount is the transport's delivery attempt counter, when it keeps one.
	DeliveryCount int
}

// LockHandle is the opaque reference returned with a locked message. It is only
// meaningful to the Client that issued it.
type LockHandle struct {
	messageID string
	token     string
	tag       uint64
	native    any

	mu      sync.Mutex
	settled bool
}

// MessageID returns the ID of the message the lock belongs to.
func (h *LockHandle) MessageID() string { return h.messageID }

// settle marks the handle as settled and reports whether it was still open.
func (h *LockHandle) settle() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.settled {
		return false
	}
	h.settled = true
	return true
}

// reopen reverts a settle whose transport call failed, so that a later Unlock can
// still release the lock.
func (h *LockHandle) reopen() {
	h.mu.Lock()
	h.settled = false
	h.mu.Unlock()
}

// Settled reports whether Delete or Unlock has already succeeded on this handle.
func (h *LockHandle) Settled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.settled
}

// TransportError reports a failed queue operation.
type TransportError struct {
	Op    string
	Queue string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("queue %s on %q failed: %v", e.Op, e.Queue, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Operation names used in TransportError.
const (
	OpConnect = "connect"
	OpReceive = "receive"
	OpDelete  = "delete"
	OpUnlock  = "unlock"
)

func transportErr(op, queue string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Queue: queue, Err: err}
}
