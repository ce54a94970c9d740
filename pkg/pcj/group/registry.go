package group

import (
	"sync"

	"github.com/jabolina/pcj/pkg/pcj/topology"
	"github.com/jabolina/pcj/pkg/pcj/types"
)

// Registry owns every Group known to this process, keyed both by id
// and by name (both are unique, per the data model's group
// invariant).
type Registry struct {
	mutex  sync.RWMutex
	topo   *topology.Topology
	byID   map[types.GroupID]*Group
	byName map[string]*Group
	nextID types.GroupID
}

// NewRegistry creates a Registry with group 0 (the global group)
// already present, empty; callers populate its membership once the
// node table is known.
func NewRegistry(topo *topology.Topology) *Registry {
	r := &Registry{
		topo:   topo,
		byID:   make(map[types.GroupID]*Group),
		byName: make(map[string]*Group),
		nextID: types.GlobalGroupID + 1,
	}
	global := New(types.GlobalGroupID, "global", topo)
	r.byID[types.GlobalGroupID] = global
	r.byName[global.Name()] = global
	return r
}

// Global returns group 0.
func (r *Registry) Global() *Group {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.byID[types.GlobalGroupID]
}

// ByID returns a group by id.
func (r *Registry) ByID(id types.GroupID) (*Group, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	g, ok := r.byID[id]
	if !ok {
		return nil, types.ErrUnknownGroup
	}
	return g, nil
}

// ByName returns a group by name.
func (r *Registry) ByName(name string) (*Group, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	g, ok := r.byName[name]
	if !ok {
		return nil, types.ErrUnknownGroup
	}
	return g, nil
}

// All returns every group currently known to this process, for the
// diagnostics surface. Order is unspecified.
func (r *Registry) All() []*Group {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	out := make([]*Group, 0, len(r.byID))
	for _, g := range r.byID {
		out = append(out, g)
	}
	return out
}

// CreateEmpty allocates a fresh group id/name pair for a new group
// being formed by a group-join and registers it. Called only by the
// node acting as the new group's master (see collective.GroupJoin);
// every other member learns the id the master picked via
// EnsureWithID, since each process's nextID counter advances
// independently and would otherwise disagree.
func (r *Registry) CreateEmpty(name string) *Group {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if g, ok := r.byName[name]; ok {
		return g
	}
	id := r.nextID
	r.nextID++
	g := New(id, name, r.topo)
	r.byID[id] = g
	r.byName[name] = g
	return g
}

// EnsureWithID registers a group under an id and name dictated by the
// group-join master, for every follower applying GroupJoinInform. If
// the name is already known under a different id, that is a protocol
// violation and the existing group is returned unchanged.
func (r *Registry) EnsureWithID(id types.GroupID, name string) *Group {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if g, ok := r.byName[name]; ok {
		return g
	}
	g := New(id, name, r.topo)
	r.byID[id] = g
	r.byName[name] = g
	return g
}
