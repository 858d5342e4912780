// Package dispatcher routes decoded client packets to handlers by opcode.
// Handlers run on the scheduler goroutine unless registered with Buffered.
package dispatcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnknownOpcode is returned when no handler is registered for an opcode.
	ErrUnknownOpcode = errors.New("unknown opcode")

	// ErrQueueFull is returned when a non-blocking buffered handler drops an event.
	ErrQueueFull = errors.New("queue full")

	// ErrClosed is returned by Dispatch to a buffered route after Close.
	ErrClosed = errors.New("dispatcher closed")
)

// Event is a decoded client packet waiting to be handled.
type Event struct {
	Opcode    string
	Client    uuid.UUID
	Payload   json.RawMessage
	Timestamp time.Time
}

// HandlerFunc processes an event.
type HandlerFunc func(Event) error

// Logger is the structured logger the dispatcher reports through.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option adjusts how a route is built.
type Option func(*routeOptions)

type routeOptions struct {
	queue    int
	blocking bool
	trace    bool
}

// Buffered runs the handler on its own goroutine behind a queue of the given
// size. Only handlers that leave character state alone may be buffered.
func Buffered(size int) Option {
	return func(o *routeOptions) { o.queue = size }
}

// Blocking makes Dispatch wait for room on a full buffered route.
func Blocking() Option {
	return func(o *routeOptions) { o.blocking = true }
}

// Logged traces every packet on the route at debug level, failures at error.
func Logged() Option {
	return func(o *routeOptions) { o.trace = true }
}

type route struct {
	handle HandlerFunc
	worker *worker
}

// Dispatcher maps opcodes to routes. Register is called during startup only;
// Dispatch may then be called from the scheduler goroutine.
type Dispatcher struct {
	routes  map[string]*route
	log     Logger
	metrics instruments

	mu      sync.RWMutex
	workers map[string]*worker
	closed  bool
}

// New creates a Dispatcher. Metrics go to the global OTel meter provider,
// which is a no-op until one is installed.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		routes:  make(map[string]*route),
		workers: make(map[string]*worker),
		log:     logger,
	}
	m, err := newInstruments(d.bufferDepths)
	if err != nil {
		return nil, err
	}
	d.metrics = m
	return d, nil
}

// Register installs h for opcode, replacing any earlier route.
func (d *Dispatcher) Register(opcode string, h HandlerFunc, opts ...Option) {
	var o routeOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.trace {
		h = d.traced(opcode, h)
	}
	r := &route{handle: h}
	if o.queue > 0 {
		r.worker = d.startWorker(opcode, o.queue, o.blocking, h)
	}
	d.routes[opcode] = r
}

// Dispatch hands e to its route. Buffered routes return once the event is
// queued; their handler errors are logged by the worker.
func (d *Dispatcher) Dispatch(e Event) error {
	r, ok := d.routes[e.Opcode]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOpcode, e.Opcode)
	}

	if r.worker != nil {
		return r.worker.enqueue(e)
	}

	if err := r.handle(e); err != nil {
		d.metrics.failure(e.Opcode)
		return err
	}
	d.metrics.handled(e.Opcode)
	return nil
}

// HasHandler reports whether opcode has a route.
func (d *Dispatcher) HasHandler(opcode string) bool {
	_, ok := d.routes[opcode]
	return ok
}

// Close stops accepting buffered events and waits for workers to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	workers := make([]*worker, 0, len(d.workers))
	for _, w := range d.workers {
		workers = append(workers, w)
	}
	d.mu.Unlock()

	for _, w := range workers {
		w.stop()
	}
}

func (d *Dispatcher) bufferDepths() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]int, len(d.workers))
	for opcode, w := range d.workers {
		out[opcode] = len(w.events)
	}
	return out
}

func (d *Dispatcher) traced(opcode string, h HandlerFunc) HandlerFunc {
	return func(e Event) error {
		start := time.Now()
		d.log.Debug("handling packet", "opcode", opcode, "client", e.Client, "bytes", len(e.Payload))

		err := h(e)
		took := time.Since(start)
		if err != nil {
			d.log.Error("packet failed", "opcode", opcode, "duration", took, "error", err)
			return err
		}
		d.log.Debug("packet complete", "opcode", opcode, "duration", took)
		return nil
	}
}
