// Package protocol defines the JSON envelopes exchanged with game clients.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/emberrealm/worldserver/pkg/core"
)

// Client to server opcodes.
const (
	CmsgLogin           = "login"
	CmsgMove            = "move"
	CmsgMoveTeleportAck = "move_teleport_ack"
	CmsgWorldportAck    = "worldport_ack"
	CmsgTeleportRequest = "teleport_request"
	CmsgPing            = "ping"
)

// Server to client opcodes.
const (
	SmsgMoveTeleportAck = "move_teleport_ack"
	SmsgTransferPending = "transfer_pending"
	SmsgNewWorld        = "new_world"
	SmsgLoginVerified   = "login_verified"
	SmsgPong            = "pong"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode marshals payload into an envelope of the given type.
func Encode(msgType string, payload any) ([]byte, error) {
	env := Envelope{Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Decode unmarshals a single envelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

// LoginPayload bootstraps a session with a character already selected.
type LoginPayload struct {
	GUID     core.GUID         `json:"guid"`
	Name     string            `json:"name"`
	Location core.ZoneLocation `json:"location"`
}

// MovePayload carries a client movement report.
type MovePayload struct {
	Info core.MovementInfo `json:"info"`
}

// TeleportRequestPayload asks the server to move the session's character.
// Exactly one of Near or Far must be set.
type TeleportRequestPayload struct {
	Near *core.Position     `json:"near,omitempty"`
	Far  *core.ZoneLocation `json:"far,omitempty"`
}

// MoveTeleportAckPayload acknowledges a near teleport in either direction.
type MoveTeleportAckPayload struct {
	GUID     core.GUID     `json:"guid"`
	Position core.Position `json:"position"`
}

// TransferPendingPayload tells the client a map change is coming.
type TransferPendingPayload struct {
	Map core.MapID `json:"map"`
}

// NewWorldPayload tells the client to load the destination map.
type NewWorldPayload struct {
	Map         core.MapID   `json:"map"`
	Position    core.Vector3 `json:"position"`
	Orientation float32      `json:"orientation"`
}

// LoginVerifiedPayload confirms the character's starting location.
type LoginVerifiedPayload struct {
	Location core.ZoneLocation `json:"location"`
}

// PingPayload is echoed back in a pong.
type PingPayload struct {
	Sequence uint32 `json:"sequence"`
}
