package bus

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Filter selects the events a subscriber receives. Kinds are prefixes matched
// against Event.Kind; no kinds means every kind. A non-empty ConnectionID
// keeps only that connection's events.
type Filter struct {
	Kinds        []string
	ConnectionID string
}

// Kinds returns a Filter over the given kind prefixes.
func Kinds(kinds ...string) Filter {
	return Filter{Kinds: kinds}
}

// Match reports whether evt passes f.
func (f Filter) Match(evt Event) bool {
	if f.ConnectionID != "" && evt.ConnectionID != f.ConnectionID {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	return slices.ContainsFunc(f.Kinds, func(k string) bool {
		return strings.HasPrefix(evt.Kind, k)
	})
}

// Bus fans events out to subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	filter Filter
	ch     chan Event
}

func New() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Publish delivers evt to every matching subscriber. A zero Timestamp is
// filled with the current time.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.filter.Match(evt) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
		}
	}
}

// Subscribe registers a subscriber with a buffer of bufSize events. The
// returned func unsubscribes; the channel is never closed.
func (b *Bus) Subscribe(f Filter, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{filter: f, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
