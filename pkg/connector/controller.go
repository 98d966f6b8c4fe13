package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/illmade-knight/go-queueconnector/pkg/queueclient"
	"github.com/illmade-knight/go-queueconnector/pkg/types"
	"github.com/rs/zerolog"
)

// Status tells the scheduler when to invoke Process again.
type Status int

const (
	// Ready means a message was processed; poll again immediately.
	Ready Status = iota
	// Backoff means no work was found; wait before polling again.
	Backoff
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "READY"
	case Backoff:
		return "BACKOFF"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Submitter is the downstream pipeline. Submit is synchronous: a nil error means
// the event has been durably handed off.
type Submitter interface {
	Submit(ctx context.Context, ev types.Event) error
}

// SubmitFunc adapts a plain function to the Submitter interface.
type SubmitFunc func(ctx context.Context, ev types.Event) error

// Submit calls f.
func (f SubmitFunc) Submit(ctx context.Context, ev types.Event) error { return f(ctx, ev) }

// ControllerConfig holds the controller's tunables.
type ControllerConfig struct {
	QueueName string
	// ReleaseTimeout bounds the unlock call that ends every cycle holding a lock.
	ReleaseTimeout time.Duration
}

// ControllerConfig derives the controller settings from the connector config.
func (c *Config) ControllerConfig() ControllerConfig {
	return ControllerConfig{QueueName: c.QueueName, ReleaseTimeout: c.ReleaseTimeout}
}

// Controller runs the receive -> submit -> delete/unlock poll cycle.
//
// A message is deleted only after the submitter accepted it, and every cycle that
// acquired a lock ends with an unlock attempt, so a message is never lost but may
// be delivered more than once. A Controller is not safe for concurrent calls to
// Process.
type Controller struct {
	client         queueclient.Client
	submitter      Submitter
	metrics        *Metrics
	releaseTimeout time.Duration
	logger         zerolog.Logger
}

// NewController creates a Controller. metrics may be nil.
func NewController(
	cfg ControllerConfig,
	client queueclient.Client,
	submitter Submitter,
	metrics *Metrics,
	logger zerolog.Logger,
) (*Controller, error) {
	if client == nil {
		return nil, errors.New("queue client cannot be nil")
	}
	if submitter == nil {
		return nil, errors.New("submitter cannot be nil")
	}
	if cfg.ReleaseTimeout <= 0 {
		cfg.ReleaseTimeout = 10 * time.Second
	}
	return &Controller{
		client:         client,
		submitter:      submitter,
		metrics:        metrics,
		releaseTimeout: cfg.ReleaseTimeout,
		logger:         logger.With().Str("component", "Controller").Str("queue", cfg.QueueName).Logger(),
	}, nil
}

// Process runs one poll cycle.
//
// It returns Backoff when no message was available and Ready once a message has
// been submitted and deleted. Any failure after the receive is returned as a
// *DeliveryError (with Backoff); the lock is released first so the message can be
// redelivered.
func (c *Controller) Process(ctx context.Context) (status Status, err error) {
	start := time.Now()
	defer func() { c.metrics.observeCycle(status, err, time.Since(start)) }()

	msg, handle, err := c.client.ReceiveLocked(ctx)
	if err != nil {
		return Backoff, &DeliveryError{Stage: StageReceive, Err: err}
	}
	if msg == nil {
		return Backoff, nil
	}
	if msg.ID == "" {
		// The lock is left to expire so the next receive reaches the messages behind
		// this one; the transport redelivers or dead-letters it.
		c.logger.Warn().Int("delivery_count", msg.DeliveryCount).Msg("Received message without an ID, leaving it locked until expiry.")
		return Backoff, nil
	}

	c.metrics.messageReceived()
	log := c.logger.With().Str("msg_id", msg.ID).Int("delivery_count", msg.DeliveryCount).Logger()
	log.Debug().Msg("Message received under lock.")

	deleted := false
	defer func() { c.release(ctx, msg.ID, handle, deleted) }()

	body, err := readBody(msg)
	if err != nil {
		return Backoff, &DeliveryError{
			MessageID: msg.ID,
			Stage:     StageReadBody,
			Err:       &BodyReadError{MessageID: msg.ID, Err: err},
		}
	}

	ev := types.NewEvent(msg.ID, body, msg.Properties)
	if err := c.submitter.Submit(ctx, ev); err != nil {
		return Backoff, &DeliveryError{MessageID: msg.ID, Stage: StageSubmit, Err: err}
	}
	c.metrics.eventSubmitted()
	log.Debug().Str("event_id", ev.ID()).Msg("Event submitted downstream.")

	if err := c.client.Delete(ctx, handle); err != nil {
		return Backoff, &DeliveryError{MessageID: msg.ID, Stage: StageDelete, Err: err}
	}
	deleted = true
	c.metrics.messageDeleted()
	log.Debug().Msg("Message deleted from queue.")

	return Ready, nil
}

// release makes the unlock attempt that terminates every cycle holding a lock. Its
// failure is logged, never returned, so it cannot mask an earlier error. After a
// successful delete the transport reports the lock as settled, which is expected.
func (c *Controller) release(ctx context.Context, msgID string, h *queueclient.LockHandle, deleted bool) {
	if h == nil {
		return
	}
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.releaseTimeout)
	defer cancel()

	err := c.client.Unlock(releaseCtx, h)
	switch {
	case err == nil:
		if deleted {
			c.logger.Debug().Str("msg_id", msgID).Msg("Unlock after delete accepted by transport.")
		} else {
			c.logger.Info().Str("msg_id", msgID).Msg("Undelivered message unlocked for redelivery.")
		}
	case deleted && errors.Is(err, queueclient.ErrLockLost):
		c.logger.Debug().Str("msg_id", msgID).Msg("Lock already settled by delete.")
	default:
		c.metrics.unlockFailed()
		c.logger.Error().Err(err).Str("msg_id", msgID).Msg("Error unlocking undelivered message from the queue.")
	}
}

func readBody(msg *queueclient.Message) ([]byte, error) {
	if msg.Body == nil {
		return []byte{}, nil
	}
	return io.ReadAll(msg.Body)
}
