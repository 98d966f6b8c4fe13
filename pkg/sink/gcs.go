package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/illmade-knight/go-queueconnector/pkg/types"
	"github.com/rs/zerolog"
)

// GCSSinkConfig holds configuration for the Cloud Storage sink.
type GCSSinkConfig struct {
	Bucket string
	Prefix string
}

// GCSSink stores each event as a JSON Record object named by ObjectKey.
type GCSSink struct {
	bucket GCSBucketHandle
	cfg    GCSSinkConfig
	logger zerolog.Logger
}

// NewGCSSink creates a GCSSink writing to cfg.Bucket.
func NewGCSSink(cfg GCSSinkConfig, client GCSClient, logger zerolog.Logger) (*GCSSink, error) {
	if client == nil {
		return nil, errors.New("gcs client cannot be nil")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket name is required")
	}
	return &GCSSink{
		bucket: client.Bucket(cfg.Bucket),
		cfg:    cfg,
		logger: logger.With().Str("component", "GCSSink").Str("bucket", cfg.Bucket).Logger(),
	}, nil
}

// Submit writes the event. The write is only durable once the writer closes
// without error, so a Close failure fails the submit.
func (s *GCSSink) Submit(ctx context.Context, ev types.Event) error {
	data, err := encodeRecord(ev)
	if err != nil {
		return err
	}
	name := ObjectKey(s.cfg.Prefix, ev, ".json")

	w := s.bucket.Object(name).NewWriter(ctx, ObjectAttrs{
		ContentType: "application/json",
		Metadata:    map[string]string{"event_id": ev.ID(), "source_message_id": ev.SourceMessageID()},
	})
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to commit object %s: %w", name, err)
	}

	s.logger.Debug().Str("event_id", ev.ID()).Str("object", name).Int("bytes", len(data)).Msg("Event stored.")
	return nil
}

// Close is a no-op; the storage client's lifecycle is managed by its creator.
func (s *GCSSink) Close(context.Context) error { return nil }
