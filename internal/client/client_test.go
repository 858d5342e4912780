package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberrealm/worldserver/internal/channel"
	"github.com/emberrealm/worldserver/internal/character"
	"github.com/emberrealm/worldserver/internal/config"
	"github.com/emberrealm/worldserver/internal/dispatcher"
	"github.com/emberrealm/worldserver/internal/movement"
	"github.com/emberrealm/worldserver/internal/queue"
	"github.com/emberrealm/worldserver/internal/storage/memory"
	"github.com/emberrealm/worldserver/internal/world"
	"github.com/emberrealm/worldserver/pkg/core"
	"github.com/emberrealm/worldserver/pkg/protocol"
)

type opcodeSet map[string]bool

func (s opcodeSet) HasHandler(opcode string) bool { return s[opcode] }

type fixture struct {
	mgr     *Manager
	inbound *queue.Queue[dispatcher.Event]
	maps    *world.InstanceManager
	journal *memory.Backend
}

func newFixture(cfg Config) *fixture {
	f := &fixture{
		inbound: queue.New[dispatcher.Event](),
		maps:    world.NewInstanceManager(nil),
		journal: memory.New(config.MemoryConfig{}),
	}
	f.mgr = NewManager(cfg, Dependencies{
		Inbound: f.inbound,
		Opcodes: opcodeSet{protocol.CmsgLogin: true, protocol.CmsgPing: true},
		Maps:    f.maps,
		Journal: f.journal,
	})
	return f
}

func (f *fixture) loggedIn(t *testing.T, guid core.GUID, m core.MapID) *Client {
	t.Helper()
	c := New(uuid.New(), "127.0.0.1:1", 8, nil)
	ch := character.New(guid, "Thrall", core.ZoneLocation{Map: m})
	_, err := f.maps.AddObject(m, guid)
	require.NoError(t, err)
	c.Attach(ch)
	f.mgr.Add(c)
	return c
}

func TestSend_FullBufferIsReported(t *testing.T) {
	c := New(uuid.New(), "peer", 1, nil)

	require.NoError(t, c.Send(protocol.SmsgPong, nil))
	err := c.Send(protocol.SmsgPong, nil)

	assert.ErrorIs(t, err, ErrSendBufferFull)
	assert.Equal(t, uint64(1), c.DroppedMessages())
	assert.Equal(t, 1, c.Outbound().Len())
}

func TestSend_AfterClose(t *testing.T) {
	c := New(uuid.New(), "peer", 4, nil)
	c.close()

	err := c.Send(protocol.SmsgPong, nil)
	assert.ErrorIs(t, err, channel.ErrClosed)
	assert.NotErrorIs(t, err, ErrSendBufferFull)
	assert.True(t, c.Disconnected())
}

func TestAttach_ExposesGUID(t *testing.T) {
	c := New(uuid.New(), "peer", 4, nil)
	_, ok := c.CharacterGUID()
	assert.False(t, ok)

	c.Attach(character.New(42, "Sylvanas", core.ZoneLocation{}))
	guid, ok := c.CharacterGUID()
	assert.True(t, ok)
	assert.Equal(t, core.GUID(42), guid)
}

func TestManager_Lookup(t *testing.T) {
	f := newFixture(Config{})
	c := f.loggedIn(t, 7, 0)

	got, ok := f.mgr.Get(c.ID())
	require.True(t, ok)
	assert.Same(t, c, got)

	got, ok = f.mgr.FindByGUID(7)
	require.True(t, ok)
	assert.Same(t, c, got)

	_, ok = f.mgr.FindByGUID(8)
	assert.False(t, ok)
	assert.Equal(t, 1, f.mgr.Len())
}

func TestTick_DropsExpiredSessions(t *testing.T) {
	f := newFixture(Config{HeartbeatTimeout: 30 * time.Second})
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	f.mgr.now = func() time.Time { return base.Add(time.Minute) }

	stale := f.loggedIn(t, 1, 0)
	stale.Touch(base)
	fresh := f.loggedIn(t, 2, 0)
	fresh.Touch(base.Add(50 * time.Second))

	require.NoError(t, f.mgr.Tick(context.Background(), 0))

	assert.Equal(t, 1, f.mgr.Len())
	assert.True(t, stale.Disconnected())
	_, onMap := f.maps.TryGetMapForCharacter(1)
	assert.False(t, onMap, "dropped character leaves its map")
	_, onMap = f.maps.TryGetMapForCharacter(2)
	assert.True(t, onMap)
}

func TestTick_DropsDisconnected(t *testing.T) {
	f := newFixture(Config{})
	c := f.loggedIn(t, 3, 0)
	c.MarkDisconnected()

	require.NoError(t, f.mgr.Tick(context.Background(), 0))
	assert.Zero(t, f.mgr.Len())
}

func TestTick_StartsQueuedTeleportAndJournals(t *testing.T) {
	f := newFixture(Config{})
	c := f.loggedIn(t, 5, 0)
	dest := core.Position{Position: core.Vector3{X: 10, Y: 20, Z: 30}, Orientation: 1}
	c.Character().TeleportTo(movement.Near(dest))

	require.NoError(t, f.mgr.Tick(context.Background(), 100*time.Millisecond))

	assert.Equal(t, movement.StateExecuting, c.Character().Teleport().Kind())

	env, err := protocol.Decode(<-c.Outbound().Receive())
	require.NoError(t, err)
	assert.Equal(t, protocol.SmsgMoveTeleportAck, env.Type)

	trips := f.journal.Teleports()
	require.Len(t, trips, 1)
	assert.Equal(t, core.TeleportStarted, trips[0].Phase)
	assert.Equal(t, core.TeleportNear, trips[0].Kind)
	assert.Equal(t, dest.Position, trips[0].To.Position)
}

func drainTypes(t *testing.T, c *Client) []string {
	t.Helper()
	var types []string
	for c.Outbound().Len() > 0 {
		env, err := protocol.Decode(<-c.Outbound().Receive())
		require.NoError(t, err)
		types = append(types, env.Type)
	}
	return types
}

func TestTick_SupersededFarTeleportNotifiesOnce(t *testing.T) {
	f := newFixture(Config{})
	c := f.loggedIn(t, 9, 1)

	c.Character().TeleportTo(movement.Far(core.ZoneLocation{Map: 2}))
	require.NoError(t, f.mgr.Tick(context.Background(), 0))
	assert.Equal(t, []string{protocol.SmsgTransferPending, protocol.SmsgNewWorld}, drainTypes(t, c))

	c.Character().TeleportTo(movement.Far(core.ZoneLocation{Map: 3}))
	err := f.mgr.Tick(context.Background(), 0)
	assert.ErrorIs(t, err, character.ErrInvalidSourceMap)
	for range 4 {
		require.NoError(t, f.mgr.Tick(context.Background(), 0))
	}

	assert.Equal(t, []string{protocol.SmsgTransferPending}, drainTypes(t, c))
	assert.Equal(t, movement.StateExecuting, c.Character().Teleport().Kind())
}

func TestTick_NotifierFailureDoesNotStopPass(t *testing.T) {
	f := newFixture(Config{})
	full := f.loggedIn(t, 1, 0)
	for full.Outbound().Len() < full.Outbound().Cap() {
		require.NoError(t, full.Send(protocol.SmsgPong, nil))
	}
	full.Character().TeleportTo(movement.Near(core.Position{}))

	other := f.loggedIn(t, 2, 0)
	other.Character().TeleportTo(movement.Near(core.Position{}))

	err := f.mgr.Tick(context.Background(), 0)
	assert.ErrorIs(t, err, ErrSendBufferFull)
	assert.Equal(t, movement.StateExecuting, other.Character().Teleport().Kind())
}

func TestCloseAll(t *testing.T) {
	f := newFixture(Config{})
	a := f.loggedIn(t, 1, 0)
	b := f.loggedIn(t, 2, 1)

	f.mgr.CloseAll()

	assert.Zero(t, f.mgr.Len())
	assert.True(t, a.Disconnected())
	assert.True(t, b.Disconnected())
	for _, inst := range f.maps.Instances() {
		assert.Zero(t, inst.Len(), "map %d still populated", inst.ID())
	}
}

func TestServeHTTP_RoundTrip(t *testing.T) {
	f := newFixture(Config{})
	srv := httptest.NewServer(f.mgr)
	defer srv.Close()

	conn, _, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte(`{"type":"bogus"}`)))
	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte(`{"type":"login","payload":{"guid":9}}`)))

	require.Eventually(t, func() bool { return f.inbound.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	ev, ok := f.inbound.Pop()
	require.True(t, ok)
	assert.Equal(t, protocol.CmsgLogin, ev.Opcode)

	c, ok := f.mgr.Get(ev.Client)
	require.True(t, ok)
	require.NoError(t, c.Send(protocol.SmsgPong, protocol.PingPayload{}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, protocol.SmsgPong, env.Type)
}
