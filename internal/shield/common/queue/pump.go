// Package queue provides an unbounded FIFO that is drained into a channel by
// a single goroutine, so producers never block on slow consumers.
package queue

import (
	"sync"
	"sync/atomic"
)

// Pump forwards pushed values to Out in push order.
type Pump[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
	out    chan T
	done   chan struct{}
	once   sync.Once

	pushed    atomic.Uint64
	delivered atomic.Uint64
}

// NewPump starts a pump goroutine. Close must be called to stop it.
func NewPump[T any]() *Pump[T] {
	p := &Pump[T]{
		signal: make(chan struct{}, 1),
		out:    make(chan T),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Push enqueues v without blocking. It reports false once the pump is closed.
func (p *Pump[T]) Push(v T) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	p.mu.Lock()
	p.items = append(p.items, v)
	p.mu.Unlock()
	p.pushed.Add(1)

	select {
	case p.signal <- struct{}{}:
	default:
	}
	return true
}

// Out is closed after Close; undelivered values are dropped.
func (p *Pump[T]) Out() <-chan T { return p.out }

// Close stops the pump. It is safe to call more than once.
func (p *Pump[T]) Close() {
	p.once.Do(func() { close(p.done) })
}

// Pending returns the number of values pushed but not yet delivered.
func (p *Pump[T]) Pending() int {
	return int(p.pushed.Load() - p.delivered.Load())
}

func (p *Pump[T]) pop() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var zero T
	if len(p.items) == 0 {
		return zero, false
	}
	v := p.items[0]
	p.items[0] = zero
	p.items = p.items[1:]
	return v, true
}

func (p *Pump[T]) run() {
	defer close(p.out)
	for {
		v, ok := p.pop()
		if !ok {
			select {
			case <-p.signal:
				continue
			case <-p.done:
				return
			}
		}
		select {
		case p.out <- v:
			p.delivered.Add(1)
		case <-p.done:
			return
		}
	}
}
