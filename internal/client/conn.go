package client

import (
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/emberrealm/worldserver/internal/dispatcher"
	"github.com/emberrealm/worldserver/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// writeLoop drains the outbound buffer to the socket. It owns all writes and
// closes the socket when the buffer is closed or a write fails.
func (c *Client) writeLoop(conn *ws.Conn) {
	defer conn.Close()

	for data := range c.out.Receive() {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
			c.MarkDisconnected()
			return
		}
		if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
			c.logger.Warn("WebSocket write error", "error", err)
			c.MarkDisconnected()
			return
		}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(
		ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
	)
}

// readLoop decodes inbound frames and pushes them onto the inbound queue in
// arrival order. Frames with an unknown opcode are dropped here so they never
// reach the scheduler.
func (c *Client) readLoop(conn *ws.Conn, m *Manager) {
	defer c.MarkDisconnected()

	conn.SetReadLimit(maxMessageSize)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				c.logger.Warn("WebSocket read error", "error", err)
			} else {
				c.logger.Debug("WebSocket closed", "error", err)
			}
			return
		}

		now := m.now()
		c.Touch(now)

		env, err := protocol.Decode(message)
		if err != nil {
			c.logger.Debug("Dropping malformed frame", "error", err)
			continue
		}
		if m.opcodes != nil && !m.opcodes.HasHandler(env.Type) {
			c.logger.Debug("Dropping frame with unhandled opcode", "opcode", env.Type)
			continue
		}

		m.inbound.Push(dispatcher.Event{
			Opcode:    env.Type,
			Client:    c.id,
			Payload:   env.Payload,
			Timestamp: now,
		})
	}
}
