package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-queueconnector/pkg/types"
	"github.com/rs/zerolog"
)

// PubsubSinkConfig holds configuration for the Pub/Sub sink.
type PubsubSinkConfig struct {
	TopicID            string
	PublishTimeout     time.Duration
	TopicExistsTimeout time.Duration
}

// PubsubSink publishes each event as one Pub/Sub message: the body becomes the
// message data and the headers its attributes.
type PubsubSink struct {
	topic          *pubsub.Topic
	publishTimeout time.Duration
	logger         zerolog.Logger
}

// NewPubsubSink creates a PubsubSink. It validates the topic's existence before
// returning.
func NewPubsubSink(ctx context.Context, cfg PubsubSinkConfig, client *pubsub.Client, logger zerolog.Logger) (*PubsubSink, error) {
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil for sink")
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 20 * time.Second
	}
	if cfg.TopicExistsTimeout <= 0 {
		cfg.TopicExistsTimeout = 15 * time.Second
	}

	topic := client.Topic(cfg.TopicID)
	// Each submit waits for its own result, so there is nothing to batch.
	topic.PublishSettings.CountThreshold = 1

	existsCtx, cancel := context.WithTimeout(ctx, cfg.TopicExistsTimeout)
	defer cancel()
	exists, err := topic.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", cfg.TopicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", cfg.TopicID)
	}

	logger.Info().Str("topic_id", cfg.TopicID).Msg("PubsubSink initialized successfully.")
	return &PubsubSink{
		topic:          topic,
		publishTimeout: cfg.PublishTimeout,
		logger:         logger.With().Str("component", "PubsubSink").Str("topic_id", cfg.TopicID).Logger(),
	}, nil
}

// Submit publishes the event and waits for the server to acknowledge it.
func (s *PubsubSink) Submit(ctx context.Context, ev types.Event) error {
	res := s.topic.Publish(ctx, &pubsub.Message{
		Data:       ev.Body(),
		Attributes: ev.Headers(),
	})

	getCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	serverID, err := res.Get(getCtx)
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", ev.ID(), err)
	}
	s.logger.Debug().Str("event_id", ev.ID()).Str("msg_id", ev.SourceMessageID()).Str("pubsub_msg_id", serverID).Msg("Event published.")
	return nil
}

// Close flushes the topic, respecting ctx's deadline.
func (s *PubsubSink) Close(ctx context.Context) error {
	stopDone := make(chan struct{})
	go func() {
		s.topic.Stop()
		close(stopDone)
	}()
	select {
	case <-stopDone:
		s.logger.Info().Msg("Pub/Sub topic stopped.")
		return nil
	case <-ctx.Done():
		s.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for Pub/Sub topic to stop.")
		return ctx.Err()
	}
}
