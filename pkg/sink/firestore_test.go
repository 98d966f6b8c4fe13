package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocumentWriter struct {
	docs map[string]any
	err  error
}

func (f *fakeDocumentWriter) Set(_ context.Context, collection, docID string, data any) error {
	if f.err != nil {
		return f.err
	}
	if f.docs == nil {
		f.docs = make(map[string]any)
	}
	f.docs[collection+"/"+docID] = data
	return nil
}

func TestFirestoreSink_Submit(t *testing.T) {
	writer := &fakeDocumentWriter{}
	s := newFirestoreSink("events", writer, zerolog.Nop())
	ev := testEvent("42")

	require.NoError(t, s.Submit(context.Background(), ev))
	require.NoError(t, s.Submit(context.Background(), testEvent("42")))

	require.Len(t, writer.docs, 1, "redeliveries share a document")
	rec, ok := writer.docs["events/42"].(Record)
	require.True(t, ok)
	assert.Equal(t, "42", rec.SourceMessageID)
	assert.Equal(t, map[string]string{"k1": "v1", "n": "7"}, rec.Headers)
}

func TestFirestoreSink_SubmitError(t *testing.T) {
	s := newFirestoreSink("events", &fakeDocumentWriter{err: errors.New("permission denied")}, zerolog.Nop())

	err := s.Submit(context.Background(), testEvent("1"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestNewFirestoreSink_NilClient(t *testing.T) {
	_, err := NewFirestoreSink("events", nil, zerolog.Nop())
	assert.Error(t, err)
}
