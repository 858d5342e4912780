// Package client owns connected game sessions: the websocket transport, the
// per-session character and the per-tick client pass.
package client

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/emberrealm/worldserver/internal/channel"
	"github.com/emberrealm/worldserver/internal/character"
	"github.com/emberrealm/worldserver/pkg/core"
	"github.com/emberrealm/worldserver/pkg/protocol"
)

var (
	// ErrSendBufferFull is returned when a client's outbound buffer cannot take
	// another message.
	ErrSendBufferFull = errors.New("client send buffer full")

	// ErrUnknownClient is returned when a session id is not registered.
	ErrUnknownClient = errors.New("unknown client")
)

// Client is one connected session. The character is only touched on the
// scheduler goroutine; everything else is safe from any goroutine.
type Client struct {
	id     uuid.UUID
	remote string
	out    *channel.Outbox[[]byte]
	logger *slog.Logger

	lastSeen     atomic.Int64
	disconnected atomic.Bool
	guid         atomic.Uint64
	closeOnce    sync.Once

	character *character.Character
}

// New creates a session with an outbound buffer of sendBuffer messages.
func New(id uuid.UUID, remote string, sendBuffer int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		id:     id,
		remote: remote,
		out:    channel.NewOutbox[[]byte](sendBuffer),
		logger: logger.With("client", id.String()),
	}
	c.Touch(time.Now())
	return c
}

// ID returns the session id.
func (c *Client) ID() uuid.UUID { return c.id }

// Remote returns the peer address.
func (c *Client) Remote() string { return c.remote }

// Outbound exposes the encoded messages waiting to be written.
func (c *Client) Outbound() channel.Receiver[[]byte] { return c.out }

// DroppedMessages counts messages rejected on a full outbound buffer.
func (c *Client) DroppedMessages() uint64 { return c.out.Dropped() }

// Touch records activity from the peer.
func (c *Client) Touch(at time.Time) { c.lastSeen.Store(at.UnixNano()) }

// LastSeen returns the time of the last inbound activity.
func (c *Client) LastSeen() time.Time { return time.Unix(0, c.lastSeen.Load()) }

// MarkDisconnected flags the session for removal on the next client pass.
func (c *Client) MarkDisconnected() { c.disconnected.Store(true) }

// Disconnected reports whether the session is gone.
func (c *Client) Disconnected() bool { return c.disconnected.Load() }

// Character returns the session's character, or nil before login.
func (c *Client) Character() *character.Character { return c.character }

// CharacterGUID returns the logged-in character's guid from any goroutine.
func (c *Client) CharacterGUID() (core.GUID, bool) {
	g := c.guid.Load()
	return core.GUID(g), g != 0
}

// Attach binds ch to the session.
func (c *Client) Attach(ch *character.Character) {
	c.character = ch
	c.guid.Store(uint64(ch.GUID()))
}

// Send encodes and queues a message without blocking.
func (c *Client) Send(msgType string, payload any) error {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		return err
	}
	switch err := c.out.Put(data); {
	case errors.Is(err, channel.ErrFull):
		return fmt.Errorf("%s: %w", msgType, ErrSendBufferFull)
	case err != nil:
		return fmt.Errorf("%s: %w", msgType, err)
	}
	return nil
}

// SendMoveTeleportAck tells the client to move within its map.
func (c *Client) SendMoveTeleportAck(guid core.GUID, dest core.Position) error {
	return c.Send(protocol.SmsgMoveTeleportAck, protocol.MoveTeleportAckPayload{
		GUID:     guid,
		Position: dest,
	})
}

// SendTransferPending warns the client that a map change is starting.
func (c *Client) SendTransferPending(m core.MapID) error {
	return c.Send(protocol.SmsgTransferPending, protocol.TransferPendingPayload{Map: m})
}

// SendNewWorld tells the client to load map m and appear at dest.
func (c *Client) SendNewWorld(m core.MapID, dest core.Position) error {
	return c.Send(protocol.SmsgNewWorld, protocol.NewWorldPayload{
		Map:         m,
		Position:    dest.Position,
		Orientation: dest.Orientation,
	})
}

// close stops the outbound stream; the write loop then closes the socket.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.MarkDisconnected()
		c.out.Close()
		if n := c.out.Dropped(); n > 0 {
			c.logger.Warn("Session closed with dropped messages", "dropped", n)
		}
	})
}

var _ character.Notifier = (*Client)(nil)
