// Package hub maintains the in-memory registry of live notification
// subscribers and fans newly created notifications out to every open
// stream a user has. The hub is a best-effort accelerator on top of
// the durable notification rows, not a system of record: events
// published while a user has no open stream are simply dropped.
package hub

import (
	"sync"

	"github.com/google/uuid"

	"github.com/luli-tech/task-manager/internal/model"
)

// Subscriber is one open event stream for one user. Events arrive on
// the channel returned by Events, in the order they were published
// for that user, until the channel is closed by Unsubscribe, by the
// hub shutting down, or by the subscriber falling too far behind.
type Subscriber struct {
	ID     string
	UserID uint64

	ch   chan model.Notification
	once sync.Once
}

// Events returns the receive side of the subscriber's buffered
// channel. A closed channel means the hub has detached this
// subscriber and no further events will arrive.
func (s *Subscriber) Events() <-chan model.Notification { return s.ch }

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Hub is the per-user registry of subscribers. Subscribe, Unsubscribe
// and Publish are safe for concurrent use from any number of
// goroutines. The zero value is not usable; construct with New.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]map[*Subscriber]struct{}
	buffer int
	closed bool
}

// New creates a Hub whose subscribers each get a bounded outgoing
// buffer of the given capacity. A subscriber that lets its buffer
// fill is disconnected rather than allowed to stall delivery.
func New(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[uint64]map[*Subscriber]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a new live stream for a user and returns its
// handle. After the hub is closed, Subscribe returns a handle whose
// channel is already closed so callers can use one code path.
func (h *Hub) Subscribe(userID uint64) *Subscriber {
	sub := &Subscriber{
		ID:     uuid.NewString(),
		UserID: userID,
		ch:     make(chan model.Notification, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.close()
		return sub
	}
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[userID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe removes a subscriber from the registry and closes its
// channel. It is idempotent; unsubscribing an already-removed handle
// is a no-op.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	if set, ok := h.subs[sub.UserID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.UserID)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// Publish delivers a notification to every open subscriber of the
// target user. The call never blocks: a subscriber whose buffer is
// full is detached and its channel closed, so one slow consumer can
// never stall the scanner or the user's other streams. With no
// subscribers the event is dropped; the notification row is already
// durable.
func (h *Hub) Publish(userID uint64, n model.Notification) {
	var overflowed []*Subscriber

	h.mu.RLock()
	if !h.closed {
		for sub := range h.subs[userID] {
			select {
			case sub.ch <- n:
			default:
				overflowed = append(overflowed, sub)
			}
		}
	}
	h.mu.RUnlock()

	for _, sub := range overflowed {
		h.Unsubscribe(sub)
	}
}

// SubscriberCount reports how many streams a user currently has open.
func (h *Hub) SubscriberCount(userID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Close tears down the registry at shutdown, closing every
// subscriber channel. Publish and Subscribe become no-ops afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var all []*Subscriber
	for _, set := range h.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	h.subs = make(map[uint64]map[*Subscriber]struct{})
	h.mu.Unlock()

	for _, sub := range all {
		sub.close()
	}
}
