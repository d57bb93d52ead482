// Package event is the daemon's pub/sub bus. Session lifecycle and turn
// progress are published here; the SSE endpoint and tests subscribe.
package event

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Type names an event on the bus.
type Type string

const (
	SessionInitialized Type = "session.initialized"
	SessionCleared     Type = "session.cleared"
	SessionError       Type = "session.error"
	TurnStarted        Type = "turn.started"
	TurnCompleted      Type = "turn.completed"
	ContentDelta       Type = "content.delta"
	ToolPending        Type = "tool.pending"
	ToolExecuted       Type = "tool.executed"
	YoloChanged        Type = "yolo.changed"
	ModelChanged       Type = "model.changed"
)

// Event pairs a type with its payload (one of the *Data structs in this
// package).
type Event struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

// Subscriber receives published events.
type Subscriber func(Event)

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus fans events out to subscribers. The zero value is not usable; use
// NewBus. A Bus is injected where needed rather than held as process
// state, so tests can run isolated instances.
type Bus struct {
	mu sync.RWMutex

	// watermill carries the events between goroutines; the direct
	// subscriber table keeps payloads typed.
	pubsub *gochannel.GoChannel

	subscribers map[Type][]subscriberEntry
	global      []subscriberEntry

	nextID uint64
	closed bool
	cancel context.CancelFunc
}

// NewBus creates an event bus.
func NewBus() *Bus {
	_, cancel := context.WithCancel(context.Background())
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 100},
			watermill.NopLogger{},
		),
		subscribers: make(map[Type][]subscriberEntry),
		cancel:      cancel,
	}
}

// Subscribe registers fn for one event type and returns an unsubscribe
// function.
func (b *Bus) Subscribe(t Type, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := atomic.AddUint64(&b.nextID, 1)
	b.subscribers[t] = append(b.subscribers[t], subscriberEntry{id: id, fn: fn})

	return func() { b.unsubscribe(t, id) }
}

// SubscribeAll registers fn for every event and returns an unsubscribe
// function.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := atomic.AddUint64(&b.nextID, 1)
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})

	return func() { b.unsubscribeGlobal(id) }
}

func (b *Bus) unsubscribe(t Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[t]
	for i, entry := range subs {
		if entry.id == id {
			b.subscribers[t] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, entry := range b.global {
		if entry.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to subscribers asynchronously, each on its own
// goroutine so a slow subscriber never stalls a turn.
func (b *Bus) Publish(ev Event) {
	for _, fn := range b.collect(ev.Type) {
		go fn(ev)
	}
}

// PublishSync delivers ev on the calling goroutine, in subscription
// order. Used by tests that need deterministic delivery.
func (b *Bus) PublishSync(ev Event) {
	for _, fn := range b.collect(ev.Type) {
		fn(ev)
	}
}

func (b *Bus) collect(t Type) []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}
	subs := make([]Subscriber, 0, len(b.subscribers[t])+len(b.global))
	for _, entry := range b.subscribers[t] {
		subs = append(subs, entry.fn)
	}
	for _, entry := range b.global {
		subs = append(subs, entry.fn)
	}
	return subs
}

// Close drops all subscribers and shuts down the underlying pubsub.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.cancel()
	b.subscribers = make(map[Type][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}
