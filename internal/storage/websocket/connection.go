package websocket

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/emberrealm/worldserver/internal/channel"
)

const (
	outboxSize = 10_000
	writeWait  = 10 * time.Second
	ackTimeout = 10 * time.Second
)

var errConnClosed = errors.New("journal stream closed")

// retryPolicy doubles the delay per failed dial, capped at max.
type retryPolicy struct {
	initial  time.Duration
	max      time.Duration
	attempts int
}

func (p retryPolicy) delay(attempt int) time.Duration {
	d := p.initial
	for i := 1; i < attempt && d < p.max; i++ {
		d *= 2
	}
	return min(d, p.max)
}

var defaultRetry = retryPolicy{initial: time.Second, max: 30 * time.Second, attempts: 10}

// connection owns the collector socket. Only the current writeLoop writes to it.
type connection struct {
	url    string
	secret string
	retry  retryPolicy
	logger *slog.Logger

	out  *channel.Outbox[[]byte]
	done chan struct{}

	mu      sync.Mutex
	conn    *ws.Conn
	closed  bool
	hello   []byte // replayed first on every new socket
	pending []byte // frame whose write failed, sent right after hello
	waiters map[string]chan struct{}
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		retry:   defaultRetry,
		logger:  logger,
		out:     channel.NewOutbox[[]byte](outboxSize),
		done:    make(chan struct{}),
		waiters: make(map[string]chan struct{}),
	}
}

func (c *connection) dial(rawURL, secret string) error {
	c.url, c.secret = rawURL, secret

	conn, err := c.open()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.start(conn)
	return nil
}

func (c *connection) open() (*ws.Conn, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", c.secret)
	u.RawQuery = q.Encode()

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (c *connection) start(conn *ws.Conn) {
	go c.writeLoop(conn)
	go c.readLoop(conn)
}

// setHello records the frame that opens every socket after a reconnect.
func (c *connection) setHello(data []byte) {
	c.mu.Lock()
	c.hello = data
	c.mu.Unlock()
}

// writeLoop drains the outbox onto conn. A failed write parks the frame so
// the next socket sends it before anything still queued, then hands over to
// reconnect.
func (c *connection) writeLoop(conn *ws.Conn) {
	for {
		select {
		case <-c.done:
			return
		case data, ok := <-c.out.Receive():
			if !ok {
				return
			}
			if err := writeFrame(conn, data); err != nil {
				c.logger.Warn("Journal stream write error", "error", err)
				c.mu.Lock()
				c.pending = data
				c.mu.Unlock()
				go c.reconnect(conn)
				return
			}
		}
	}
}

func writeFrame(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

// readLoop wakes whoever waits for each ack. Acks nobody waits for are dropped.
func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("Journal stream read error", "error", err)
				go c.reconnect(conn)
			}
			return
		}

		var ack AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != typeAck {
			c.logger.Debug("Ignoring collector message", "raw", string(message))
			continue
		}
		c.mu.Lock()
		if w, ok := c.waiters[ack.For]; ok {
			delete(c.waiters, ack.For)
			close(w)
		}
		c.mu.Unlock()
	}
}

// reconnect replaces broken once; concurrent callers for the same socket
// return immediately.
func (c *connection) reconnect(broken *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != broken {
		c.mu.Unlock()
		return
	}
	_ = broken.Close()
	c.conn = nil
	c.mu.Unlock()

	for attempt := 1; attempt <= c.retry.attempts; attempt++ {
		wait := c.retry.delay(attempt)
		c.logger.Info("Reconnecting journal stream", "attempt", attempt, "wait", wait)
		select {
		case <-c.done:
			return
		case <-time.After(wait):
		}

		conn, err := c.open()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			continue
		}
		if err := c.adopt(conn); err != nil {
			_ = conn.Close()
			if errors.Is(err, errConnClosed) {
				return
			}
			c.logger.Warn("Failed to replay session start", "attempt", attempt, "error", err)
			continue
		}
		c.logger.Info("Journal stream reconnected", "attempt", attempt)
		return
	}
	c.logger.Error("Journal stream gave up reconnecting", "attempts", c.retry.attempts)
}

// adopt replays the hello frame and any parked frame on conn, then makes it
// current. The parked frame is kept until a write of it succeeds.
func (c *connection) adopt(conn *ws.Conn) error {
	c.mu.Lock()
	hello, pending := c.hello, c.pending
	c.mu.Unlock()
	if bytes.Equal(hello, pending) {
		pending = nil
	}
	for _, frame := range [][]byte{hello, pending} {
		if frame == nil {
			continue
		}
		if err := writeFrame(conn, frame); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	c.pending = nil
	c.conn = conn
	c.start(conn)
	return nil
}

// send queues data without blocking. A full outbox drops it.
func (c *connection) send(data []byte) {
	if err := c.out.Put(data); errors.Is(err, channel.ErrFull) {
		c.logger.Warn("Journal stream outbox full, dropping message", "dropped", c.out.Dropped())
	}
}

// sendAndWait sends data and blocks until the collector acks ackFor.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	w := make(chan struct{})
	c.mu.Lock()
	c.waiters[ackFor] = w
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.waiters[ackFor] == w {
			delete(c.waiters, ackFor)
		}
		c.mu.Unlock()
	}()

	c.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w:
		return nil
	case <-timer.C:
		return fmt.Errorf("timeout waiting for ack of %q", ackFor)
	case <-c.done:
		return fmt.Errorf("%w while waiting for ack of %q", errConnClosed, ackFor)
	}
}

func (c *connection) dropped() uint64 {
	return c.out.Dropped()
}

// close sends a close frame and stops both loops. Frames still queued are lost.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.out.Close()
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(
		ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	return conn.Close()
}
