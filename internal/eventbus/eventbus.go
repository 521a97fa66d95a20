// Package eventbus implements the Event Bus (C8): a multi-subscriber,
// best-effort, at-most-once fan-out of the engine's typed lifecycle events.
// Each subscriber owns a fixed-capacity ring; a subscriber that falls behind
// has its oldest unread events overwritten rather than ever blocking the
// publisher, so a slow observer can never apply backpressure to the latency
// path.
package eventbus

import (
	"sync"

	"go.uber.org/zap"
)

// Type enumerates the typed events the bus carries, including the
// RiskIncident event that carries the risk-gate's quarantine signal.
type Type string

const (
	OpportunityDetected Type = "OpportunityDetected"
	OpportunityRejected Type = "OpportunityRejected"
	OrderSubmitted      Type = "OrderSubmitted"
	OrderAcked          Type = "OrderAcked"
	OrderFilled         Type = "OrderFilled"
	OrderCancelled      Type = "OrderCancelled"
	HedgeTriggered      Type = "HedgeTriggered"
	ExecutionCompleted  Type = "ExecutionCompleted"
	FeedDisconnected    Type = "FeedDisconnected"
	FeedReconnected     Type = "FeedReconnected"
	RiskIncident        Type = "RiskIncident"
)

// Event is a single typed occurrence on the bus. Payload is one of the
// concrete event-detail structs in this package.
type Event struct {
	Type    Type
	Payload interface{}
}

const defaultRingSize = 1024

// ring is a fixed-capacity, single-writer-many-reader-safe circular buffer.
// Publish overwrites the oldest unread slot when full rather than blocking;
// Drain returns everything written since the last Drain call in order.
type ring struct {
	mu     sync.Mutex
	buf    []Event
	head   int // next write index
	count  int
}

func newRing(size int) *ring {
	return &ring{buf: make([]Event, size)}
}

func (r *ring) push(evt Event) (dropped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == len(r.buf) {
		dropped = true
	} else {
		r.count++
	}
	r.buf[r.head] = evt
	r.head = (r.head + 1) % len(r.buf)
	return dropped
}

func (r *ring) drain() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return nil
	}
	out := make([]Event, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	r.count = 0
	return out
}

// Subscription is a handle a subscriber polls or watches for new events.
type Subscription struct {
	id     int
	r      *ring
	notify chan struct{}
	bus    *Bus
}

// Events blocks until at least one event is available, then returns every
// event accumulated since the last call (oldest first).
func (s *Subscription) Events() []Event {
	<-s.notify
	return s.r.drain()
}

// Close deregisters the subscription.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.id)
}

// Bus is the C8 Event Bus.
type Bus struct {
	logger *zap.Logger

	mu        sync.Mutex
	nextID    int
	subs      map[int]*Subscription
}

// New creates an empty Event Bus.
func New(logger *zap.Logger) *Bus {
	return &Bus{logger: logger, subs: make(map[int]*Subscription)}
}

// Subscribe registers a new subscriber with its own ring buffer.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &Subscription{
		id:     id,
		r:      newRing(defaultRingSize),
		notify: make(chan struct{}, 1),
		bus:    b,
	}
	b.subs[id] = sub
	SubscribersActive.Set(float64(len(b.subs)))
	return sub
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
	SubscribersActive.Set(float64(len(b.subs)))
}

// Publish fans an event out to every current subscriber, non-blocking.
func (b *Bus) Publish(typ Type, payload interface{}) {
	evt := Event{Type: typ, Payload: payload}
	EventsPublishedTotal.WithLabelValues(string(typ)).Inc()

	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if dropped := s.r.push(evt); dropped {
			EventsDroppedTotal.WithLabelValues(string(typ)).Inc()
		}
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
}
