package sink

import (
	"context"
	"sync"
	"time"

	"github.com/illmade-knight/go-queueconnector/pkg/types"
)

func testEvent(id string) types.Event {
	return types.NewEvent(id, []byte("payload-"+id), map[string]any{"k1": "v1", "n": 7})
}

func dayPath(t time.Time) string { return t.UTC().Format("2006/01/02") }

// recordingSink collects submitted events and can be told to fail.
type recordingSink struct {
	mu       sync.Mutex
	events   []types.Event
	failWith error
	closed   bool
}

func (r *recordingSink) Submit(_ context.Context, ev types.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) Close(context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
