package types

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Event is the connector's output record: the raw body of a queue message and
// its producer-set properties rendered as string headers.
//
// An Event is immutable once built. Body and Headers return copies so that
// downstream stages cannot mutate the record another stage is holding.
type Event struct {
	id              string
	sourceMessageID string
	receivedAt      time.Time
	body            []byte
	headers         map[string]string
}

// NewEvent builds an Event from a message body and its properties. Property
// values are stringified with StringifyProperty; the body is copied.
func NewEvent(sourceMessageID string, body []byte, properties map[string]any) Event {
	headers := make(map[string]string, len(properties))
	for k, v := range properties {
		headers[k] = StringifyProperty(v)
	}
	bodyCopy := make([]byte, len(body))
	copy(bodyCopy, body)

	return Event{
		id:              uuid.NewString(),
		sourceMessageID: sourceMessageID,
		receivedAt:      time.Now().UTC(),
		body:            bodyCopy,
		headers:         headers,
	}
}

// ID is a connector-generated identifier, unique per delivery attempt.
func (e Event) ID() string { return e.id }

// SourceMessageID is the queue's identity for the message. Redeliveries of the
// same message share it, which makes it the natural idempotency key for sinks.
func (e Event) SourceMessageID() string { return e.sourceMessageID }

// ReceivedAt is when the connector received the message.
func (e Event) ReceivedAt() time.Time { return e.receivedAt }

// Body returns a copy of the raw message content.
func (e Event) Body() []byte {
	out := make([]byte, len(e.body))
	copy(out, e.body)
	return out
}

// Headers returns a copy of the header mapping.
func (e Event) Headers() map[string]string {
	out := make(map[string]string, len(e.headers))
	for k, v := range e.headers {
		out[k] = v
	}
	return out
}

// Header returns a single header value.
func (e Event) Header(key string) (string, bool) {
	v, ok := e.headers[key]
	return v, ok
}

// Len is the body size in bytes.
func (e Event) Len() int { return len(e.body) }

// StringifyProperty renders a message property value as a header string.
// A nil value renders as "null".
func StringifyProperty(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	default:
		return fmt.Sprint(val)
	}
}
