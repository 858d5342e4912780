package dispatcher

import (
	"fmt"
	"sync"
)

// worker drains one buffered route on its own goroutine.
type worker struct {
	opcode   string
	blocking bool
	events   chan Event
	done     chan struct{}
	d        *Dispatcher

	mu      sync.RWMutex
	stopped bool
}

func (d *Dispatcher) startWorker(opcode string, size int, blocking bool, h HandlerFunc) *worker {
	w := &worker{
		opcode:   opcode,
		blocking: blocking,
		events:   make(chan Event, size),
		done:     make(chan struct{}),
		d:        d,
	}

	d.mu.Lock()
	if old, ok := d.workers[opcode]; ok {
		defer old.stop()
	}
	d.workers[opcode] = w
	d.mu.Unlock()

	go w.run(h)
	return w
}

func (w *worker) run(h HandlerFunc) {
	defer close(w.done)
	for e := range w.events {
		if err := h(e); err != nil {
			w.d.metrics.failure(w.opcode)
			w.d.log.Error("buffered handler failed", "opcode", w.opcode, "error", err)
			continue
		}
		w.d.metrics.handled(w.opcode)
	}
}

// enqueue holds the read lock across the send so stop cannot close events
// underneath it.
func (w *worker) enqueue(e Event) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return fmt.Errorf("%w: %s", ErrClosed, w.opcode)
	}

	if w.blocking {
		w.events <- e
		return nil
	}
	select {
	case w.events <- e:
		return nil
	default:
		w.d.metrics.drop(w.opcode)
		return fmt.Errorf("%w: %s", ErrQueueFull, w.opcode)
	}
}

func (w *worker) stop() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.events)
	}
	w.mu.Unlock()
	<-w.done
}
