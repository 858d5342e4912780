package world

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/emberrealm/worldserver/pkg/core"
)

var (
	// ErrAlreadyOnMap is returned when an object is added while it is still
	// a member of some instance.
	ErrAlreadyOnMap = errors.New("object is already on a map")

	// ErrUnknownMap is returned when a catalog is loaded and the map is not in it.
	ErrUnknownMap = errors.New("unknown map")
)

// InstanceManager is the registry of live map instances. It also indexes
// which instance each object belongs to, so an object is in at most one
// instance at any time.
type InstanceManager struct {
	mu        sync.RWMutex
	instances map[core.MapID]*MapInstance
	index     map[core.GUID]core.MapID
	catalog   *Catalog
}

// NewInstanceManager creates an empty registry. A nil catalog accepts any map.
func NewInstanceManager(catalog *Catalog) *InstanceManager {
	return &InstanceManager{
		instances: make(map[core.MapID]*MapInstance),
		index:     make(map[core.GUID]core.MapID),
		catalog:   catalog,
	}
}

// GetOrCreate returns the instance for id, creating it on first use.
func (im *InstanceManager) GetOrCreate(id core.MapID) (*MapInstance, error) {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.getOrCreateLocked(id)
}

func (im *InstanceManager) getOrCreateLocked(id core.MapID) (*MapInstance, error) {
	if inst, ok := im.instances[id]; ok {
		return inst, nil
	}

	var name string
	if im.catalog != nil {
		entry, ok := im.catalog.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownMap, id)
		}
		name = entry.Name
	}

	inst := newMapInstance(id, name, im)
	im.instances[id] = inst
	return inst, nil
}

// Accepts reports whether an instance for id may be created.
func (im *InstanceManager) Accepts(id core.MapID) bool {
	if im.catalog == nil {
		return true
	}
	_, ok := im.catalog.Lookup(id)
	return ok
}

// Instance returns the live instance for id, if any.
func (im *InstanceManager) Instance(id core.MapID) (*MapInstance, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()
	inst, ok := im.instances[id]
	return inst, ok
}

// Instances returns all live instances ordered by map id.
func (im *InstanceManager) Instances() []*MapInstance {
	im.mu.RLock()
	out := make([]*MapInstance, 0, len(im.instances))
	for _, inst := range im.instances {
		out = append(out, inst)
	}
	im.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// TryGetMapForCharacter resolves the instance guid currently belongs to.
func (im *InstanceManager) TryGetMapForCharacter(guid core.GUID) (*MapInstance, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	id, ok := im.index[guid]
	if !ok {
		return nil, false
	}
	inst, ok := im.instances[id]
	return inst, ok
}

// AddObject registers guid in the instance for id, creating the instance on
// demand. Adding to the instance the object is already in is a no-op.
func (im *InstanceManager) AddObject(id core.MapID, guid core.GUID) (*MapInstance, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	if current, ok := im.index[guid]; ok {
		if current == id {
			return im.instances[id], nil
		}
		return nil, fmt.Errorf("%w: guid %d is on map %d", ErrAlreadyOnMap, guid, current)
	}

	inst, err := im.getOrCreateLocked(id)
	if err != nil {
		return nil, err
	}

	inst.mu.Lock()
	inst.objects[guid] = struct{}{}
	inst.mu.Unlock()
	im.index[guid] = id
	return inst, nil
}

// RemoveObject drops guid from whichever instance holds it.
func (im *InstanceManager) RemoveObject(guid core.GUID) bool {
	im.mu.Lock()
	defer im.mu.Unlock()

	id, ok := im.index[guid]
	if !ok {
		return false
	}
	return im.removeLocked(im.instances[id], guid)
}

func (im *InstanceManager) removeLocked(inst *MapInstance, guid core.GUID) bool {
	inst.mu.Lock()
	_, ok := inst.objects[guid]
	delete(inst.objects, guid)
	inst.mu.Unlock()

	if id, indexed := im.index[guid]; indexed && id == inst.id {
		delete(im.index, guid)
	}
	return ok
}
