package eventstore

import (
	"log/slog"

	"github.com/semops-labs/som/core/pkg/contracts"
)

// Handler receives each accepted event after commit. Handlers run
// synchronously in recording order and must not mutate the event; the store
// hands each handler its own copy.
type Handler func(e *contracts.Event)

type subscriber struct {
	id uint64
	fn Handler
}

// Subscribe registers a handler and returns its handle. Delivery follows
// registration order.
func (s *Store) Subscribe(fn Handler) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.subs = append(s.subs, subscriber{id: s.nextID, fn: fn})
	return s.nextID
}

// Unsubscribe removes a handler by handle. Returns false for an unknown
// handle.
func (s *Store) Unsubscribe(handle uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subs {
		if sub.id == handle {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return true
		}
	}
	return false
}

// notify delivers the event to each subscriber. A panicking handler is
// logged and skipped; it never propagates into the store.
func (s *Store) notify(subs []subscriber, e *contracts.Event) {
	for _, sub := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("event subscriber panicked",
						"handle", sub.id,
						"event_id", e.ID,
						"panic", r)
				}
			}()
			sub.fn(cloneEvent(e))
		}()
	}
}
