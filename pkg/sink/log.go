package sink

import (
	"context"

	"github.com/illmade-knight/go-queueconnector/pkg/types"
	"github.com/rs/zerolog"
)

// LogSink writes each event to a logger. It is the default sink and is meant for
// local runs against the memory transport.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "LogSink").Logger()}
}

// Submit logs the event at Info level.
func (s *LogSink) Submit(_ context.Context, ev types.Event) error {
	s.logger.Info().
		Str("event_id", ev.ID()).
		Str("msg_id", ev.SourceMessageID()).
		Interface("headers", ev.Headers()).
		Int("size", ev.Len()).
		Bytes("body", ev.Body()).
		Msg("Event received.")
	return nil
}

// Close is a no-op.
func (s *LogSink) Close(context.Context) error { return nil }
