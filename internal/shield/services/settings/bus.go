// Package settings carries the typed settings-change bus and the store
// contract that generated scripts read from.
package settings

import (
	"sync"
	"sync/atomic"

	"github.com/haukened/rr-shield/internal/shield/common/queue"
	"github.com/haukened/rr-shield/internal/shield/domain"
)

// Change is one settings-change notification. Seq increases by one per
// Publish across the bus.
type Change struct {
	Reason domain.ChangeReason
	Seq    uint64
}

// Bus fans settings changes out to subscribers. Publish never blocks; each
// subscriber drains its own unbounded queue.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	seq    atomic.Uint64
	closed bool
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*Subscription)}
}

// Subscription receives every change published after it was created.
type Subscription struct {
	id   uint64
	bus  *Bus
	pump *queue.Pump[Change]
	once sync.Once
}

// Changes is closed after Unsubscribe or Bus.Close.
func (s *Subscription) Changes() <-chan Change { return s.pump.Out() }

// Unsubscribe stops delivery. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
		s.pump.Close()
	})
}

// Subscribe registers a new subscriber. On a closed bus the returned
// subscription's channel is already closed.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{id: b.nextID, bus: b, pump: queue.NewPump[Change]()}
	if b.closed {
		sub.pump.Close()
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish notifies every current subscriber and returns the change sequence.
func (b *Bus) Publish(reason domain.ChangeReason) uint64 {
	ch := Change{Reason: reason, Seq: b.seq.Add(1)}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		s.pump.Push(ch)
	}
	return ch.Seq
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uint64]*Subscription)
	b.closed = true
	b.mu.Unlock()

	for _, s := range subs {
		s.once.Do(s.pump.Close)
	}
}
