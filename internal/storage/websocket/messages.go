package websocket

import (
	"time"

	"github.com/emberrealm/worldserver/pkg/protocol"
)

// Journal stream message types.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeTeleport     = "teleport"
	TypeTick         = "tick"

	typeAck = "ack"
)

// Envelope is the same frame the game protocol uses, so collectors can share
// a decoder with clients.
type Envelope = protocol.Envelope

// AckMessage is the collector's reply to start_session and end_session.
type AckMessage struct {
	Type string `json:"type"`
	For  string `json:"for"`
}

// StartSessionPayload identifies the realm and process the stream belongs to.
type StartSessionPayload struct {
	Realm     string    `json:"realm"`
	SessionID string    `json:"sessionId"`
	StartedAt time.Time `json:"startedAt"`
}
