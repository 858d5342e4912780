package world

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/emberrealm/worldserver/pkg/core"
)

// MapInstance is the live simulation of one map and the set of objects in it.
// Membership is owned by the InstanceManager; both locks are taken manager
// first, instance second.
type MapInstance struct {
	id      core.MapID
	name    string
	manager *InstanceManager

	mu      sync.Mutex
	objects map[core.GUID]struct{}
	ticks   uint64
	elapsed time.Duration
}

func newMapInstance(id core.MapID, name string, manager *InstanceManager) *MapInstance {
	return &MapInstance{
		id:      id,
		name:    name,
		manager: manager,
		objects: make(map[core.GUID]struct{}),
	}
}

// ID returns the map this instance simulates.
func (m *MapInstance) ID() core.MapID { return m.id }

// Name returns the catalog name, or empty when no catalog is loaded.
func (m *MapInstance) Name() string { return m.name }

// Contains reports whether guid is a member of this instance.
func (m *MapInstance) Contains(guid core.GUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[guid]
	return ok
}

// Len returns the number of objects in the instance.
func (m *MapInstance) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// GUIDs returns the members sorted ascending.
func (m *MapInstance) GUIDs() []core.GUID {
	m.mu.Lock()
	out := make([]core.GUID, 0, len(m.objects))
	for g := range m.objects {
		out = append(out, g)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RemoveObjectByGUID drops guid from the instance. It reports whether the
// object was present.
func (m *MapInstance) RemoveObjectByGUID(guid core.GUID) bool {
	m.manager.mu.Lock()
	defer m.manager.mu.Unlock()
	return m.manager.removeLocked(m, guid)
}

// Stats returns the number of ticks run and total simulated time.
func (m *MapInstance) Stats() (ticks uint64, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticks, m.elapsed
}

// Tick advances the instance by dt.
func (m *MapInstance) Tick(ctx context.Context, dt time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.ticks++
	m.elapsed += dt
	m.mu.Unlock()
	return nil
}
