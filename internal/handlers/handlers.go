// Package handlers turns decoded client packets into character operations.
// Everything except ping runs on the scheduler goroutine while the inbound
// queue is drained.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/emberrealm/worldserver/internal/character"
	"github.com/emberrealm/worldserver/internal/client"
	"github.com/emberrealm/worldserver/internal/dispatcher"
	"github.com/emberrealm/worldserver/internal/movement"
	"github.com/emberrealm/worldserver/internal/queue"
	"github.com/emberrealm/worldserver/internal/world"
	"github.com/emberrealm/worldserver/pkg/core"
	"github.com/emberrealm/worldserver/pkg/protocol"
)

// pingBufferSize bounds the pings waiting for the heartbeat goroutine.
const pingBufferSize = 256

// Sessions is the client registry view the handlers need.
type Sessions interface {
	Get(id uuid.UUID) (*client.Client, bool)
	FindByGUID(guid core.GUID) (*client.Client, bool)
	RecordCompletion(ch *character.Character, from core.ZoneLocation, d movement.Distance) error
}

// Maps is the map registry view the handlers need.
type Maps interface {
	character.Maps
	Accepts(id core.MapID) bool
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Inbound    *queue.Queue[dispatcher.Event]
	Dispatcher *dispatcher.Dispatcher
	Sessions   Sessions
	Maps       Maps
	Logger     *slog.Logger
}

// PacketHandler owns the inbound queue drain.
type PacketHandler struct {
	inbound    *queue.Queue[dispatcher.Event]
	dispatcher *dispatcher.Dispatcher
	sessions   Sessions
	maps       Maps
	logger     *slog.Logger
}

// NewPacketHandler creates a packet handler. Call RegisterHandlers before the
// first HandleQueue.
func NewPacketHandler(deps Dependencies) *PacketHandler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PacketHandler{
		inbound:    deps.Inbound,
		dispatcher: deps.Dispatcher,
		sessions:   deps.Sessions,
		maps:       deps.Maps,
		logger:     logger,
	}
}

// RegisterHandlers registers every client opcode with the dispatcher.
func (h *PacketHandler) RegisterHandlers() {
	d := h.dispatcher

	// Character state - sync, scheduler goroutine only
	d.Register(protocol.CmsgLogin, h.handleLogin, dispatcher.Logged())
	d.Register(protocol.CmsgMove, h.handleMove)
	d.Register(protocol.CmsgTeleportRequest, h.handleTeleportRequest, dispatcher.Logged())

	// Teleport completion
	d.Register(protocol.CmsgMoveTeleportAck, h.handleMoveTeleportAck, dispatcher.Logged())
	d.Register(protocol.CmsgWorldportAck, h.handleWorldportAck, dispatcher.Logged())

	// Heartbeat - buffered, never touches the character
	d.Register(protocol.CmsgPing, h.handlePing, dispatcher.Buffered(pingBufferSize))
}

// Pending returns the number of packets waiting in the inbound queue.
func (h *PacketHandler) Pending() int {
	return h.inbound.Len()
}

// HandleQueue dispatches every packet queued so far in arrival order. Packets
// that arrive during the drain wait for the next tick. The first handler
// error stops the drain and is returned; a dropped ping is only logged.
func (h *PacketHandler) HandleQueue(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, e := range h.inbound.GetAndEmpty() {
		err := h.dispatcher.Dispatch(e)
		if err == nil {
			continue
		}
		if errors.Is(err, dispatcher.ErrQueueFull) {
			h.logger.Warn("Dropped packet", "opcode", e.Opcode, "client", e.Client)
			continue
		}
		return fmt.Errorf("handle %s from %s: %w", e.Opcode, e.Client, err)
	}
	return nil
}

// session resolves the client and its character. ok is false for packets
// from unknown sessions or before login; those are logged and ignored.
func (h *PacketHandler) session(e dispatcher.Event) (*client.Client, *character.Character, bool) {
	c, ok := h.sessions.Get(e.Client)
	if !ok {
		h.logger.Warn("Packet from unknown client", "opcode", e.Opcode, "client", e.Client)
		return nil, nil, false
	}
	ch := c.Character()
	if ch == nil {
		h.logger.Warn("Packet before login", "opcode", e.Opcode, "client", e.Client)
		return c, nil, false
	}
	return c, ch, true
}

func (h *PacketHandler) decode(e dispatcher.Event, v any) bool {
	if len(e.Payload) == 0 {
		h.logger.Warn("Missing payload", "opcode", e.Opcode, "client", e.Client)
		return false
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		h.logger.Warn("Malformed payload", "opcode", e.Opcode, "client", e.Client, "error", err)
		return false
	}
	return true
}

func (h *PacketHandler) handleLogin(e dispatcher.Event) error {
	var p protocol.LoginPayload
	if !h.decode(e, &p) {
		return nil
	}

	c, ok := h.sessions.Get(e.Client)
	if !ok {
		h.logger.Warn("Login from unknown client", "client", e.Client)
		return nil
	}
	if c.Character() != nil {
		h.logger.Warn("Client already logged in", "client", e.Client)
		return nil
	}
	if p.GUID == 0 {
		h.logger.Warn("Login with empty guid", "client", e.Client)
		return nil
	}
	if other, taken := h.sessions.FindByGUID(p.GUID); taken && other.ID() != c.ID() {
		h.logger.Warn("Character already online", "client", e.Client, "guid", p.GUID)
		return nil
	}

	if _, err := h.maps.AddObject(p.Location.Map, p.GUID); err != nil {
		if errors.Is(err, world.ErrUnknownMap) || errors.Is(err, world.ErrAlreadyOnMap) {
			h.logger.Warn("Login rejected", "client", e.Client, "guid", p.GUID, "error", err)
			return nil
		}
		return fmt.Errorf("login %d: %w", p.GUID, err)
	}

	ch := character.New(p.GUID, p.Name, p.Location)
	c.Attach(ch)

	if err := c.Send(protocol.SmsgLoginVerified, protocol.LoginVerifiedPayload{Location: p.Location}); err != nil {
		h.logger.Warn("Failed to send login verified", "client", e.Client, "error", err)
	}
	h.logger.Info("Character logged in", "client", e.Client, "guid", p.GUID, "name", p.Name, "map", p.Location.Map)
	return nil
}

func (h *PacketHandler) handleMove(e dispatcher.Event) error {
	var p protocol.MovePayload
	if !h.decode(e, &p) {
		return nil
	}
	_, ch, ok := h.session(e)
	if !ok {
		return nil
	}
	ch.ProcessMovement(p.Info)
	return nil
}

func (h *PacketHandler) handleTeleportRequest(e dispatcher.Event) error {
	var p protocol.TeleportRequestPayload
	if !h.decode(e, &p) {
		return nil
	}
	if (p.Near == nil) == (p.Far == nil) {
		h.logger.Warn("Teleport request needs exactly one destination", "client", e.Client)
		return nil
	}
	_, ch, ok := h.session(e)
	if !ok {
		return nil
	}

	if p.Near != nil {
		ch.TeleportTo(movement.Near(*p.Near))
		return nil
	}
	if !h.maps.Accepts(p.Far.Map) {
		h.logger.Warn("Teleport to unknown map", "client", e.Client, "map", p.Far.Map)
		return nil
	}
	ch.TeleportTo(movement.Far(*p.Far))
	return nil
}

func (h *PacketHandler) handleMoveTeleportAck(e dispatcher.Event) error {
	var p protocol.MoveTeleportAckPayload
	if len(e.Payload) > 0 && !h.decode(e, &p) {
		return nil
	}
	_, ch, ok := h.session(e)
	if !ok {
		return nil
	}
	if p.GUID != 0 && p.GUID != ch.GUID() {
		h.logger.Warn("Teleport ack for another character", "client", e.Client, "guid", p.GUID)
		return nil
	}

	from := ch.Location()
	d, _ := ch.Teleport().Destination()
	if err := ch.CompleteNearTeleport(); err != nil {
		if errors.Is(err, character.ErrNoTeleportInFlight) {
			h.logger.Warn("Unexpected teleport ack", "client", e.Client, "state", ch.Teleport())
			return nil
		}
		return err
	}
	return h.sessions.RecordCompletion(ch, from, d)
}

func (h *PacketHandler) handleWorldportAck(e dispatcher.Event) error {
	_, ch, ok := h.session(e)
	if !ok {
		return nil
	}

	from := ch.Location()
	d, _ := ch.Teleport().Destination()
	if err := ch.CompleteFarTeleport(h.maps); err != nil {
		if errors.Is(err, character.ErrNoTeleportInFlight) {
			h.logger.Warn("Unexpected worldport ack", "client", e.Client, "state", ch.Teleport())
			return nil
		}
		return err
	}
	return h.sessions.RecordCompletion(ch, from, d)
}

func (h *PacketHandler) handlePing(e dispatcher.Event) error {
	var p protocol.PingPayload
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return fmt.Errorf("decode ping: %w", err)
		}
	}
	c, ok := h.sessions.Get(e.Client)
	if !ok {
		return nil
	}
	c.Touch(e.Timestamp)
	return c.Send(protocol.SmsgPong, p)
}
