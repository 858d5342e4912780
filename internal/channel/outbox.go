// Package channel provides the bounded outboxes that decouple the scheduler
// from slow network writers. Producers never block: a full outbox rejects
// the message and counts the drop.
package channel

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrFull is returned by Put when the outbox has no free slot.
	ErrFull = errors.New("outbox full")
	// ErrClosed is returned by Put after Close.
	ErrClosed = errors.New("outbox closed")
)

// Receiver is the consuming side of an outbox.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
	Cap() int
}

// Sender is the producing side of an outbox.
type Sender[T any] interface {
	Put(T) error
	Dropped() uint64
}

// Outbox is a bounded FIFO with one consumer. Close is idempotent; the
// consumer drains what was queued before Close and then sees the channel end.
type Outbox[T any] struct {
	mu      sync.RWMutex
	ch      chan T
	closed  bool
	dropped atomic.Uint64
}

func newOutbox[T any](size int) *Outbox[T] {
	if size < 1 {
		size = 1
	}
	return &Outbox[T]{ch: make(chan T, size)}
}

// Put queues v without blocking.
func (o *Outbox[T]) Put(v T) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrClosed
	}
	select {
	case o.ch <- v:
		return nil
	default:
		o.dropped.Add(1)
		return ErrFull
	}
}

func (o *Outbox[T]) Receive() <-chan T { return o.ch }

func (o *Outbox[T]) Len() int { return len(o.ch) }

func (o *Outbox[T]) Cap() int { return cap(o.ch) }

// Dropped counts messages rejected because the outbox was full.
func (o *Outbox[T]) Dropped() uint64 { return o.dropped.Load() }

func (o *Outbox[T]) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.ch)
}
