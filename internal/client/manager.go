package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"github.com/emberrealm/worldserver/internal/character"
	"github.com/emberrealm/worldserver/internal/dispatcher"
	"github.com/emberrealm/worldserver/internal/movement"
	"github.com/emberrealm/worldserver/internal/queue"
	"github.com/emberrealm/worldserver/internal/storage"
	"github.com/emberrealm/worldserver/pkg/core"
)

// OpcodeFilter reports whether an opcode can be handled.
type OpcodeFilter interface {
	HasHandler(opcode string) bool
}

// Maps is the map registry view the client pass needs.
type Maps interface {
	character.Maps
	RemoveObject(guid core.GUID) bool
}

// Config holds client manager settings.
type Config struct {
	SendBuffer       int
	HeartbeatTimeout time.Duration
}

// Dependencies holds everything the manager talks to.
type Dependencies struct {
	Inbound *queue.Queue[dispatcher.Event]
	Opcodes OpcodeFilter
	Maps    Maps
	Journal storage.Backend
	Logger  *slog.Logger
}

// Manager tracks connected sessions and runs the per-tick client pass.
type Manager struct {
	cfg      Config
	inbound  *queue.Queue[dispatcher.Event]
	opcodes  OpcodeFilter
	maps     Maps
	journal  storage.Backend
	logger   *slog.Logger
	upgrader ws.Upgrader
	now      func() time.Time

	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
}

// NewManager creates a client manager.
func NewManager(cfg Config, deps Dependencies) *Manager {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		inbound: deps.Inbound,
		opcodes: deps.Opcodes,
		maps:    deps.Maps,
		journal: deps.Journal,
		logger:  logger,
		upgrader: ws.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		now:     time.Now,
		clients: make(map[uuid.UUID]*Client),
	}
}

// Add registers a session that was created outside ServeHTTP.
func (m *Manager) Add(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.id] = c
}

// Get looks up a session by id.
func (m *Manager) Get(id uuid.UUID) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	return c, ok
}

// FindByGUID returns the session whose character has guid.
func (m *Manager) FindByGUID(guid core.GUID) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.clients {
		if g, ok := c.CharacterGUID(); ok && g == guid {
			return c, true
		}
	}
	return nil, false
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// ServeHTTP upgrades the request to a websocket and starts the session loops.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := New(uuid.New(), r.RemoteAddr, m.cfg.SendBuffer, m.logger)
	c.Touch(m.now())
	m.Add(c)
	m.logger.Info("Client connected", "client", c.id, "remote", c.remote)

	go c.writeLoop(conn)
	go c.readLoop(conn, m)
}

// Tick runs the client pass: drop dead sessions and start queued teleports.
// A failing client never stops the pass; all failures are joined.
func (m *Manager) Tick(ctx context.Context, dt time.Duration) error {
	var errs []error
	for _, c := range m.snapshot() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := m.tickClient(c); err != nil {
			errs = append(errs, fmt.Errorf("client %s: %w", c.id, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) tickClient(c *Client) error {
	if c.Disconnected() || m.expired(c) {
		m.drop(c)
		return nil
	}

	ch := c.Character()
	if ch == nil || ch.Teleport().Kind() != movement.StateQueued {
		return nil
	}

	from := ch.Location()
	if err := ch.AdvanceTeleport(c, m.maps); err != nil {
		return err
	}

	state := ch.Teleport()
	if state.Kind() != movement.StateExecuting {
		return nil
	}
	d, _ := state.Destination()
	return m.record(ch, from, d, core.TeleportStarted)
}

func (m *Manager) record(ch *character.Character, from core.ZoneLocation, d movement.Distance, phase core.TeleportPhase) error {
	if m.journal == nil {
		return nil
	}
	ev := &core.TeleportEvent{
		Time:     m.now(),
		GUID:     ch.GUID(),
		Name:     ch.Name(),
		Phase:    phase,
		From:     from,
		Movement: ch.Movement(),
	}
	if near, ok := d.NearTarget(); ok {
		ev.Kind = core.TeleportNear
		ev.To = core.ZoneLocation{Map: from.Map, Area: from.Area, Position: near.Position, Orientation: near.Orientation}
	} else {
		ev.Kind = core.TeleportFar
		ev.To, _ = d.FarTarget()
	}
	if err := m.journal.RecordTeleport(ev); err != nil {
		return fmt.Errorf("journal teleport: %w", err)
	}
	return nil
}

// RecordCompletion journals a finished teleport.
func (m *Manager) RecordCompletion(ch *character.Character, from core.ZoneLocation, d movement.Distance) error {
	return m.record(ch, from, d, core.TeleportCompleted)
}

func (m *Manager) expired(c *Client) bool {
	if m.cfg.HeartbeatTimeout <= 0 {
		return false
	}
	return m.now().Sub(c.LastSeen()) > m.cfg.HeartbeatTimeout
}

// drop removes the session and takes its character out of the world.
func (m *Manager) drop(c *Client) {
	m.mu.Lock()
	delete(m.clients, c.id)
	m.mu.Unlock()

	if ch := c.Character(); ch != nil && m.maps != nil {
		m.maps.RemoveObject(ch.GUID())
	}
	c.close()
	m.logger.Info("Client removed", "client", c.id, "remote", c.remote)
}

// CloseAll disconnects every session.
func (m *Manager) CloseAll() {
	for _, c := range m.snapshot() {
		m.drop(c)
	}
}

func (m *Manager) snapshot() []*Client {
	m.mu.RLock()
	out := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, c)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id.String() < out[j].id.String() })
	return out
}
