// Package websocket streams the movement journal to a remote collector over
// a websocket. Sessions are bracketed by acknowledged start and end frames.
package websocket

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/emberrealm/worldserver/pkg/core"
	"github.com/emberrealm/worldserver/pkg/protocol"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL       string
	Secret    string
	RealmName string
	Logger    *slog.Logger
}

// Backend streams the movement journal to a remote collector.
type Backend struct {
	conn      *connection
	cfg       Config
	sessionID string
}

func New(cfg Config) *Backend {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Backend{
		conn:      newConnection(cfg.Logger.With("backend", "websocket")),
		cfg:       cfg,
		sessionID: uuid.NewString(),
	}
}

// Init connects and opens a session. The start frame is replayed after
// every reconnect so the collector can reattach the stream.
func (b *Backend) Init() error {
	if err := b.conn.dial(b.cfg.URL, b.cfg.Secret); err != nil {
		return err
	}

	hello, err := protocol.Encode(TypeStartSession, StartSessionPayload{
		Realm:     b.cfg.RealmName,
		SessionID: b.sessionID,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	b.conn.setHello(hello)
	return b.conn.sendAndWait(hello, TypeStartSession, ackTimeout)
}

// Close ends the session and disconnects.
func (b *Backend) Close() error {
	var endErr error
	if data, err := protocol.Encode(TypeEndSession, nil); err == nil {
		endErr = b.conn.sendAndWait(data, TypeEndSession, ackTimeout)
	}
	b.conn.setHello(nil)
	return errors.Join(endErr, b.conn.close())
}

// SessionID identifies this process's stream at the collector.
func (b *Backend) SessionID() string {
	return b.sessionID
}

// Dropped returns how many journal entries were lost on a full outbox.
func (b *Backend) Dropped() uint64 {
	return b.conn.dropped()
}

func (b *Backend) stream(msgType string, payload any) error {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

func (b *Backend) RecordTeleport(e *core.TeleportEvent) error {
	return b.stream(TypeTeleport, e)
}

func (b *Backend) RecordTick(s *core.TickSample) error {
	return b.stream(TypeTick, s)
}
