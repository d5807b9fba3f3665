package bus

import (
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	// DefaultHistorySize is how many recent events are retained for replay.
	DefaultHistorySize = 64

	// DefaultChannelBuffer is the buffer size for subscriber channels.
	// Publish never blocks: a subscriber whose buffer is full misses the
	// event rather than stalling the decision path.
	DefaultChannelBuffer = 100
)

// SubscriptionID identifies one subscription for Unsubscribe.
type SubscriptionID string

type subscription struct {
	id        SubscriptionID
	eventType EventType
	handler   func(Event)
	ch        chan Event
	done      chan struct{}
}

// Bus is a thread-safe in-process pub/sub stream with bounded history.
// Publishing is non-blocking; handlers run on their own goroutine per
// subscription, in publish order.
type Bus struct {
	mu         sync.RWMutex
	subs       map[SubscriptionID]*subscription
	typed      map[EventType]map[SubscriptionID]*subscription
	wildcard   map[SubscriptionID]*subscription
	subCounter uint64

	historyMu   sync.RWMutex
	history     []Event
	historySize int

	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates a bus with the default history size.
func New() *Bus {
	return NewWithHistory(DefaultHistorySize)
}

// NewWithHistory creates a bus retaining up to historySize events for replay.
func NewWithHistory(historySize int) *Bus {
	if historySize < 0 {
		historySize = 0
	}
	return &Bus{
		subs:        make(map[SubscriptionID]*subscription),
		typed:       make(map[EventType]map[SubscriptionID]*subscription),
		wildcard:    make(map[SubscriptionID]*subscription),
		history:     make([]Event, 0, historySize),
		historySize: historySize,
	}
}

// Subscribe registers a handler for one event type; EventAny receives every
// event. The handler runs on a dedicated goroutine. Returns an empty ID when
// the bus is closed.
func (b *Bus) Subscribe(eventType EventType, handler func(Event)) SubscriptionID {
	if b.closed.Load() {
		return ""
	}

	b.mu.Lock()
	b.subCounter++
	sub := &subscription{
		id:        SubscriptionID(fmt.Sprintf("sub_%d", b.subCounter)),
		eventType: eventType,
		handler:   handler,
		ch:        make(chan Event, DefaultChannelBuffer),
		done:      make(chan struct{}),
	}
	b.subs[sub.id] = sub
	if eventType == EventAny {
		b.wildcard[sub.id] = sub
	} else {
		if b.typed[eventType] == nil {
			b.typed[eventType] = make(map[SubscriptionID]*subscription)
		}
		b.typed[eventType][sub.id] = sub
	}
	b.mu.Unlock()

	b.wg.Add(1)
	go b.pump(sub)

	return sub.id
}

// pump delivers events to one subscription until it is removed.
func (b *Bus) pump(sub *subscription) {
	defer b.wg.Done()
	for {
		select {
		case ev := <-sub.ch:
			sub.handler(ev)
		case <-sub.done:
			return
		}
	}
}

// Unsubscribe removes a subscription. Safe to call once per ID.
func (b *Bus) Unsubscribe(id SubscriptionID) error {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("subscription %s not found", id)
	}
	delete(b.subs, id)
	if sub.eventType == EventAny {
		delete(b.wildcard, id)
	} else if typed, ok := b.typed[sub.eventType]; ok {
		delete(typed, id)
		if len(typed) == 0 {
			delete(b.typed, sub.eventType)
		}
	}
	b.mu.Unlock()

	close(sub.done)
	return nil
}

// Publish appends the event to history and fans it out to the wildcard and
// typed subscribers. Never blocks; a full subscriber misses the event.
func (b *Bus) Publish(ev Event) error {
	if b.closed.Load() {
		return fmt.Errorf("bus is closed")
	}

	b.appendHistory(ev)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.wildcard {
		select {
		case sub.ch <- ev:
		default:
		}
	}
	for _, sub := range b.typed[ev.Type] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
	return nil
}

func (b *Bus) appendHistory(ev Event) {
	if b.historySize == 0 {
		return
	}

	b.historyMu.Lock()
	defer b.historyMu.Unlock()

	b.history = append(b.history, ev)
	if len(b.history) > b.historySize {
		b.history = b.history[len(b.history)-b.historySize:]
	}
}

// History returns a copy of the retained events, oldest first.
func (b *Bus) History() []Event {
	b.historyMu.RLock()
	defer b.historyMu.RUnlock()

	out := make([]Event, len(b.history))
	copy(out, b.history)
	return out
}

// HistoryTail returns the most recent n events, oldest first.
func (b *Bus) HistoryTail(n int) []Event {
	b.historyMu.RLock()
	defer b.historyMu.RUnlock()

	if n > len(b.history) {
		n = len(b.history)
	}
	if n <= 0 {
		return nil
	}
	out := make([]Event, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close stops delivery and releases every subscription. Further Publish and
// Subscribe calls fail; history stays readable.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("bus already closed")
	}

	b.mu.Lock()
	for _, sub := range b.subs {
		close(sub.done)
	}
	b.subs = make(map[SubscriptionID]*subscription)
	b.typed = make(map[EventType]map[SubscriptionID]*subscription)
	b.wildcard = make(map[SubscriptionID]*subscription)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
