package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ====================================================================================
// Fakes for the GCS client abstraction.
// ====================================================================================

type fakeGCSWriter struct {
	bytes.Buffer
	closeErr error
	onClose  func(data []byte)
}

func (w *fakeGCSWriter) Close() error {
	if w.closeErr != nil {
		return w.closeErr
	}
	w.onClose(w.Bytes())
	return nil
}

type fakeGCSObject struct {
	bucket *fakeGCSBucket
	name   string
}

func (o *fakeGCSObject) NewWriter(_ context.Context, attrs ObjectAttrs) GCSWriter {
	o.bucket.mu.Lock()
	closeErr := o.bucket.closeErr
	o.bucket.attrs[o.name] = attrs
	o.bucket.mu.Unlock()
	return &fakeGCSWriter{
		closeErr: closeErr,
		onClose: func(data []byte) {
			o.bucket.mu.Lock()
			defer o.bucket.mu.Unlock()
			o.bucket.objects[o.name] = append([]byte(nil), data...)
		},
	}
}

type fakeGCSBucket struct {
	mu       sync.Mutex
	objects  map[string][]byte
	attrs    map[string]ObjectAttrs
	closeErr error
}

func (b *fakeGCSBucket) Object(name string) GCSObjectHandle {
	return &fakeGCSObject{bucket: b, name: name}
}

type fakeGCSClient struct {
	buckets map[string]*fakeGCSBucket
}

func newFakeGCSClient() *fakeGCSClient {
	return &fakeGCSClient{buckets: make(map[string]*fakeGCSBucket)}
}

func (c *fakeGCSClient) Bucket(name string) GCSBucketHandle {
	b, ok := c.buckets[name]
	if !ok {
		b = &fakeGCSBucket{objects: make(map[string][]byte), attrs: make(map[string]ObjectAttrs)}
		c.buckets[name] = b
	}
	return b
}

func TestGCSSink_Submit(t *testing.T) {
	// --- Arrange ---
	client := newFakeGCSClient()
	s, err := NewGCSSink(GCSSinkConfig{Bucket: "archive", Prefix: "events"}, client, zerolog.Nop())
	require.NoError(t, err)
	ev := testEvent("42")

	// --- Act ---
	err = s.Submit(context.Background(), ev)

	// --- Assert ---
	require.NoError(t, err)
	bucket := client.buckets["archive"]
	name := "events/" + dayPath(ev.ReceivedAt()) + "/42.json"
	require.Contains(t, bucket.objects, name)

	var rec Record
	require.NoError(t, json.Unmarshal(bucket.objects[name], &rec))
	assert.Equal(t, ev.ID(), rec.EventID)
	assert.Equal(t, []byte("payload-42"), rec.Body)
	assert.Equal(t, map[string]string{"k1": "v1", "n": "7"}, rec.Headers)

	assert.Equal(t, "application/json", bucket.attrs[name].ContentType)
	assert.Equal(t, "42", bucket.attrs[name].Metadata["source_message_id"])
}

func TestGCSSink_RedeliveryOverwrites(t *testing.T) {
	client := newFakeGCSClient()
	s, err := NewGCSSink(GCSSinkConfig{Bucket: "archive"}, client, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.Submit(context.Background(), testEvent("7")))
	require.NoError(t, s.Submit(context.Background(), testEvent("7")))

	assert.Len(t, client.buckets["archive"].objects, 1)
}

func TestGCSSink_CommitFailure(t *testing.T) {
	client := newFakeGCSClient()
	client.Bucket("archive").(*fakeGCSBucket).closeErr = errors.New("precondition failed")
	s, err := NewGCSSink(GCSSinkConfig{Bucket: "archive"}, client, zerolog.Nop())
	require.NoError(t, err)

	err = s.Submit(context.Background(), testEvent("1"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit object")
	assert.Empty(t, client.buckets["archive"].objects)
}

func TestNewGCSSink_Validation(t *testing.T) {
	_, err := NewGCSSink(GCSSinkConfig{Bucket: "b"}, nil, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewGCSSink(GCSSinkConfig{}, newFakeGCSClient(), zerolog.Nop())
	assert.Error(t, err)
	assert.Nil(t, NewGCSClientAdapter(nil))
}
