// Package changefeed fans out committed document changes to in-process
// subscribers, such as a presentation layer that refreshes on sync.
package changefeed

import "sync"

// Op names the kind of write that produced an Event.
type Op string

const (
	OpSave   Op = "save"
	OpDelete Op = "delete"
)

// Event describes one committed document write.
type Event struct {
	Scope      string `json:"scope"`
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Op         Op     `json:"op"`
	Seq        int64  `json:"seq"`
	Origin     string `json:"origin"`
	// Local is true when the write originated on this replica rather than
	// being applied from a remote.
	Local bool `json:"local"`
}

// SubscriberBuffer is the channel capacity given to each subscriber.
const SubscriberBuffer = 64

// Bus delivers every published Event to all current subscribers.
// Publish never blocks: a subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	closed bool
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Publish fans e out to all subscribers.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber is behind; drop to avoid blocking the writer
		}
	}
}

// Subscribe returns a buffered channel that receives all new events.
// On a closed Bus the returned channel is already closed.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, SubscriberBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
// Unsubscribing an unknown or already removed channel is a no-op.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}

// Close closes every subscriber channel. Later Publish calls are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = map[chan Event]struct{}{}
}

// Len returns the number of current subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
