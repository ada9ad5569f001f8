package store

import (
	"sort"
	"sync"
)

// subscriberBuffer is how many unread changes a subscriber may lag behind.
const subscriberBuffer = 64

// MemoryStore is the in-process [Store] used by matterlog.
//
// It keeps the latest [ChannelStatus] per channel name. Every Update is fanned
// out to subscribers under the same lock that records it, so each subscriber
// sees the changes of one channel in the order the worker made them.
//
// A subscriber that falls behind loses its oldest unread change, never the
// newest one: a client that reads late still ends on the channel's current
// state, including a final "stopped".
type MemoryStore struct {
	mu       sync.Mutex
	channels map[string]ChannelStatus
	subs     map[<-chan ChannelStatus]chan ChannelStatus
}

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		channels: make(map[string]ChannelStatus),
		subs:     make(map[<-chan ChannelStatus]chan ChannelStatus),
	}
}

// Update records status as the latest for status.Name and publishes it.
func (m *MemoryStore) Update(status ChannelStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.channels[status.Name] = status
	for _, ch := range m.subs {
		publish(ch, status)
	}
}

// publish delivers status without blocking, evicting the oldest pending
// change when ch is full. Callers hold the store lock, so nothing else
// sends on ch concurrently.
func publish(ch chan ChannelStatus, status ChannelStatus) {
	select {
	case ch <- status:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- status:
	default:
	}
}

// GetAll returns a copy of every channel's latest status, sorted by name.
func (m *MemoryStore) GetAll() []ChannelStatus {
	m.mu.Lock()
	out := make([]ChannelStatus, 0, len(m.channels))
	for _, s := range m.channels {
		out = append(out, s)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Subscribe registers a new subscriber. The caller must pass the returned
// channel to [MemoryStore.Unsubscribe] when done.
func (m *MemoryStore) Subscribe() <-chan ChannelStatus {
	ch := make(chan ChannelStatus, subscriberBuffer)

	m.mu.Lock()
	m.subs[ch] = ch
	m.mu.Unlock()

	return ch
}

// Unsubscribe closes ch and stops delivery to it. Unknown or already
// removed channels are ignored.
func (m *MemoryStore) Unsubscribe(ch <-chan ChannelStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if send, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(send)
	}
}
