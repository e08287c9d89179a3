// Package samplebus fans dispatched samples out to independent sinks without
// ever blocking the publisher.
//
// Publish runs on the polling goroutine. Each subscriber either owns a
// buffered channel (DropNew: when full, the new envelope is dropped) or a
// latest-value holder (DropOld: the newest envelope overwrites the previous
// one). Drops are counted per subscriber.
package samplebus

import (
	"sync"

	"go.uber.org/atomic"
)

type subscriber struct {
	id      string
	policy  DropPolicy
	sent    atomic.Uint64
	dropped atomic.Uint64

	// DropNew
	ch chan<- Envelope

	// DropOld
	holder *latestHolder
}

// Bus distributes envelopes to multiple subscribers
type Bus struct {
	mu             sync.RWMutex
	subscribers    map[string]*subscriber
	totalPublished atomic.Uint64
	closed         bool
}

// New creates an empty bus
func New() *Bus {
	return &Bus{
		subscribers: make(map[string]*subscriber),
	}
}

// Subscribe registers a channel with DropNew policy
func (b *Bus) Subscribe(id string, ch chan<- Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}
	if ch == nil {
		return ErrNilChannel
	}

	b.subscribers[id] = &subscriber{
		id:     id,
		policy: DropNew,
		ch:     ch,
	}
	return nil
}

// SubscribeLatest registers a subscriber with DropOld policy
func (b *Bus) SubscribeLatest(id string) (Receiver, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return nil, ErrSubscriberExists
	}

	s := &subscriber{
		id:     id,
		policy: DropOld,
		holder: newLatestHolder(),
	}
	b.subscribers[id] = s
	return s.holder, nil
}

// Publish distributes env to all subscribers. It never blocks.
func (b *Bus) Publish(env Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	b.totalPublished.Inc()

	for _, s := range b.subscribers {
		switch s.policy {
		case DropNew:
			select {
			case s.ch <- env:
				s.sent.Inc()
			default:
				s.dropped.Inc()
			}
		case DropOld:
			if replaced := s.holder.set(env); replaced {
				s.dropped.Inc()
			}
			s.sent.Inc()
		}
	}
}

// Unsubscribe removes a subscriber. The channel of a DropNew subscriber is
// not closed; it belongs to the caller.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, exists := b.subscribers[id]
	if !exists {
		return ErrSubscriberNotFound
	}
	if s.holder != nil {
		s.holder.Close()
	}
	delete(b.subscribers, id)
	return nil
}

// Stats returns a snapshot of bus and per-subscriber statistics
func (b *Bus) Stats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := BusStats{
		TotalPublished: b.totalPublished.Load(),
		Subscribers:    make(map[string]SubscriberStats, len(b.subscribers)),
	}
	for id, s := range b.subscribers {
		ss := SubscriberStats{
			Sent:    s.sent.Load(),
			Dropped: s.dropped.Load(),
		}
		stats.Subscribers[id] = ss
		stats.TotalSent += ss.Sent
		stats.TotalDropped += ss.Dropped
	}
	return stats
}

// Close shuts down the bus and wakes every DropOld receiver
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, s := range b.subscribers {
		if s.holder != nil {
			s.holder.Close()
		}
	}
	b.subscribers = nil
}

// latestHolder implements Receiver for the DropOld policy
type latestHolder struct {
	mu       sync.Mutex
	cond     *sync.Cond
	env      Envelope
	has      bool
	consumed bool
	closed   bool
}

func newLatestHolder() *latestHolder {
	h := &latestHolder{}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// set stores env and reports whether an unread envelope was overwritten.
func (h *latestHolder) set(env Envelope) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	replaced := h.has && !h.consumed
	h.env = env
	h.has = true
	h.consumed = false
	h.cond.Broadcast()
	return replaced
}

// Receive blocks until an unread envelope is available or the holder is closed
func (h *latestHolder) Receive() (Envelope, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for (!h.has || h.consumed) && !h.closed {
		h.cond.Wait()
	}
	if h.closed {
		return Envelope{}, false
	}
	h.consumed = true
	return h.env, true
}

// TryReceive returns the latest envelope without blocking
func (h *latestHolder) TryReceive() (Envelope, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.has || h.closed {
		return Envelope{}, false
	}
	h.consumed = true
	return h.env, true
}

// Close shuts down the receiver and wakes blocked readers
func (h *latestHolder) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.cond.Broadcast()
}
