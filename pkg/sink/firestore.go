package sink

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-queueconnector/pkg/types"
	"github.com/rs/zerolog"
)

// documentWriter abstracts the single Firestore call the sink makes.
type documentWriter interface {
	Set(ctx context.Context, collection, docID string, data any) error
}

type firestoreWriter struct {
	client *firestore.Client
}

func (w firestoreWriter) Set(ctx context.Context, collection, docID string, data any) error {
	_, err := w.client.Collection(collection).Doc(docID).Set(ctx, data)
	return err
}

// FirestoreSink stores each event as a Record document whose ID is the source
// message ID, so a redelivery overwrites the earlier copy.
type FirestoreSink struct {
	writer     documentWriter
	collection string
	logger     zerolog.Logger
}

// NewFirestoreSink creates a FirestoreSink writing to collection.
func NewFirestoreSink(collection string, client *firestore.Client, logger zerolog.Logger) (*FirestoreSink, error) {
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	return newFirestoreSink(collection, firestoreWriter{client: client}, logger), nil
}

func newFirestoreSink(collection string, writer documentWriter, logger zerolog.Logger) *FirestoreSink {
	logger.Info().Str("collection", collection).Msg("FirestoreSink initialized.")
	return &FirestoreSink{
		writer:     writer,
		collection: collection,
		logger:     logger.With().Str("component", "FirestoreSink").Str("collection", collection).Logger(),
	}
}

// Submit writes the event's document.
func (s *FirestoreSink) Submit(ctx context.Context, ev types.Event) error {
	docID := sanitizeKeyPart(ev.SourceMessageID())
	if err := s.writer.Set(ctx, s.collection, docID, NewRecord(ev)); err != nil {
		return fmt.Errorf("firestore set for %s: %w", docID, err)
	}
	s.logger.Debug().Str("event_id", ev.ID()).Str("doc_id", docID).Msg("Event document written.")
	return nil
}

// Close is a no-op; the Firestore client's lifecycle is managed by its creator.
func (s *FirestoreSink) Close(context.Context) error { return nil }
