package sink

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/illmade-knight/go-queueconnector/pkg/types"
	"github.com/rs/zerolog"
)

// recentSet is a fixed-size set of keys with least recently used eviction.
type recentSet struct {
	maxSize int

	mu    sync.Mutex
	ll    *list.List
	index map[string]*list.Element
}

func newRecentSet(maxSize int) *recentSet {
	return &recentSet{maxSize: maxSize, ll: list.New(), index: make(map[string]*list.Element)}
}

// Contains reports whether key is present, marking it as recently used.
func (s *recentSet) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.index[key]; ok {
		s.ll.MoveToFront(elem)
		return true
	}
	return false
}

// Add inserts key, evicting the least recently used key when over capacity.
func (s *recentSet) Add(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.index[key]; ok {
		s.ll.MoveToFront(elem)
		return
	}
	s.index[key] = s.ll.PushFront(key)
	if s.ll.Len() > s.maxSize {
		oldest := s.ll.Back()
		s.ll.Remove(oldest)
		delete(s.index, oldest.Value.(string))
	}
}

// Len returns the number of keys held.
func (s *recentSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ll.Len()
}

// Deduplicator skips submitting events whose source message was already
// submitted successfully within the last window messages. A redelivery caused
// by a failed delete is then acknowledged without reaching the sink twice.
type Deduplicator struct {
	next   Sink
	seen   *recentSet
	logger zerolog.Logger
}

// NewDeduplicator wraps next with a window of the given size.
func NewDeduplicator(next Sink, window int, logger zerolog.Logger) (*Deduplicator, error) {
	if window <= 0 {
		return nil, fmt.Errorf("dedupe window must be greater than 0")
	}
	return &Deduplicator{
		next:   next,
		seen:   newRecentSet(window),
		logger: logger.With().Str("component", "Deduplicator").Logger(),
	}, nil
}

// Submit forwards ev unless its source message ID was recently submitted.
// Only successful submits are remembered.
func (d *Deduplicator) Submit(ctx context.Context, ev types.Event) error {
	id := ev.SourceMessageID()
	if d.seen.Contains(id) {
		d.logger.Info().Str("msg_id", id).Str("event_id", ev.ID()).Msg("Skipping redelivered message already submitted.")
		return nil
	}
	if err := d.next.Submit(ctx, ev); err != nil {
		return err
	}
	d.seen.Add(id)
	return nil
}

// Close closes the wrapped sink.
func (d *Deduplicator) Close(ctx context.Context) error { return d.next.Close(ctx) }
