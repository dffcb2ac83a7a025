package stream

import (
	"context"
	"sync"

	"conforma.org/internal/workflow"
)

// Stream fans workflow events out to all active subscribers (SSE clients,
// dashboards). Slow subscribers lose events rather than block publishers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

type subscriber struct {
	ch             chan workflow.Event
	organizationID string
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber scoped to one organization and returns a
// channel which will receive its events. The channel is closed when the
// provided context ends.
func (s *Stream) Subscribe(ctx context.Context, organizationID string) <-chan workflow.Event {
	ch := make(chan workflow.Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscriber{ch: ch, organizationID: organizationID}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fans the event out to every subscriber of its organization.
func (s *Stream) Publish(evt workflow.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.organizationID != "" && sub.organizationID != evt.OrganizationID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
