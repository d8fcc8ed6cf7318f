package store

import (
	"sync"
)

// DefaultHistorySize is the number of events a [MemoryStore] keeps when no
// size is given.
const DefaultHistorySize = 500

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// MemoryStore keeps the latest event and a bounded ring of past events.
// When the ring is full the oldest event is dropped.
//
// Subscribers receive updates via buffered channels (buffer size 100). Updates
// are sent non-blocking; if a subscriber's buffer is full, the update is dropped
// for that subscriber to prevent blocking the monitor.
type MemoryStore struct {
	mu      sync.RWMutex
	history []Event
	start   int // index of the oldest event once the ring is full
	size    int
	latest  Event
	hasAny  bool

	subscribers map[chan Event]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory [Store] keeping up to size events.
// A size below 1 uses [DefaultHistorySize].
//
// The store is immediately ready for use. No cleanup is required when done.
func NewMemoryStore(size int) *MemoryStore {
	if size < 1 {
		size = DefaultHistorySize
	}
	return &MemoryStore{
		history:     make([]Event, 0, size),
		size:        size,
		subscribers: make(map[chan Event]struct{}),
	}
}

// Update records an [Event] and notifies all subscribers.
func (m *MemoryStore) Update(event Event) {
	m.mu.Lock()
	if len(m.history) < m.size {
		m.history = append(m.history, event)
	} else {
		m.history[m.start] = event
		m.start = (m.start + 1) % m.size
	}
	m.latest = event
	m.hasAny = true
	m.mu.Unlock()

	m.notifySubscribers(event)
}

// Latest returns the most recent event.
func (m *MemoryStore) Latest() (Event, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest, m.hasAny
}

// History returns a snapshot of recorded events, oldest first.
func (m *MemoryStore) History() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Event, 0, len(m.history))
	out = append(out, m.history[m.start:]...)
	out = append(out, m.history[:m.start]...)
	return out
}

// Subscribe creates a new subscription and returns a channel for receiving updates.
//
// The returned channel has a buffer of 100 messages. If the buffer fills
// (slow consumer), new updates are dropped for this subscriber.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the event to all active subscribers without
// blocking.
func (m *MemoryStore) notifySubscribers(event Event) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- event:
		default:
			// subscriber is slow, drop the message
		}
	}
}
