package group

import (
	"sort"
	"sync"

	"github.com/jabolina/pcj/pkg/pcj/topology"
	"github.com/jabolina/pcj/pkg/pcj/types"
)

// Group is a named subset of threads, plus the communication tree
// derived from its members' physical ids. Group 0 is the reserved
// global group containing every thread in the job.
type Group struct {
	mutex sync.RWMutex

	id   types.GroupID
	name string

	topo *topology.Topology

	// groupToGlobal / globalToGroup are the bidirectional mapping
	// between a thread's index within this group and its global id.
	// Mappings are monotonic: threads only join.
	groupToGlobal map[types.GroupThreadID]types.GlobalThreadID
	globalToGroup map[types.GlobalThreadID]types.GroupThreadID

	localIDs map[types.GlobalThreadID]bool

	tree *Tree

	nextRequest map[string]*uint64
	reqMutex    sync.Mutex
}

// New creates an empty group with the given id and name, bound to the
// process topology it will derive its tree from.
func New(id types.GroupID, name string, topo *topology.Topology) *Group {
	return &Group{
		id:            id,
		name:          name,
		topo:          topo,
		groupToGlobal: make(map[types.GroupThreadID]types.GlobalThreadID),
		globalToGroup: make(map[types.GlobalThreadID]types.GroupThreadID),
		localIDs:      make(map[types.GlobalThreadID]bool),
		nextRequest:   make(map[string]*uint64),
	}
}

func (g *Group) ID() types.GroupID { return g.id }
func (g *Group) Name() string      { return g.name }

// Join adds a global thread id at the given group-thread-id. It is
// the single mutation point for group membership; every mutation
// recomputes the tree. Joins must be applied in the same order on
// every member (the group-join master fixes that order).
func (g *Group) Join(groupThread types.GroupThreadID, global types.GlobalThreadID) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.groupToGlobal[groupThread] = global
	g.globalToGroup[global] = groupThread
	if g.topo.IsLocal(global) {
		g.localIDs[global] = true
	}
	g.recomputeTreeLocked()
}

// ReplaceMembership installs a complete threadsMap atomically, used
// when a joiner or existing member receives the authoritative mapping
// from the group-join master.
func (g *Group) ReplaceMembership(entries []types.ThreadsMapEntry) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.groupToGlobal = make(map[types.GroupThreadID]types.GlobalThreadID, len(entries))
	g.globalToGroup = make(map[types.GlobalThreadID]types.GroupThreadID, len(entries))
	g.localIDs = make(map[types.GlobalThreadID]bool)
	for _, e := range entries {
		g.groupToGlobal[e.GroupThread] = e.GlobalThread
		g.globalToGroup[e.GlobalThread] = e.GroupThread
		if g.topo.IsLocal(e.GlobalThread) {
			g.localIDs[e.GlobalThread] = true
		}
	}
	g.recomputeTreeLocked()
}

// Snapshot returns the current threadsMap as a slice, for sending over
// the wire.
func (g *Group) Snapshot() []types.ThreadsMapEntry {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	out := make([]types.ThreadsMapEntry, 0, len(g.groupToGlobal))
	for gt, gl := range g.groupToGlobal {
		out = append(out, types.ThreadsMapEntry{GroupThread: gt, GlobalThread: gl})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupThread < out[j].GroupThread })
	return out
}

// GlobalID returns the global thread id for a group-local id.
// Duplicate mappings of one global id to multiple group ids are
// disallowed as an invariant, so this lookup is unambiguous; an
// absent mapping fails UnknownThread.
func (g *Group) GlobalID(groupThread types.GroupThreadID) (types.GlobalThreadID, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	gl, ok := g.groupToGlobal[groupThread]
	if !ok {
		return 0, types.ErrUnknownThread
	}
	return gl, nil
}

// GroupThreadID returns the group-local id for a global thread id.
func (g *Group) GroupThreadID(global types.GlobalThreadID) (types.GroupThreadID, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	gt, ok := g.globalToGroup[global]
	if !ok {
		return 0, types.ErrUnknownThread
	}
	return gt, nil
}

// Size returns the number of members currently in the group.
func (g *Group) Size() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.groupToGlobal)
}

// LocalThreadIDs returns the global ids of this group's members whose
// home is this process.
func (g *Group) LocalThreadIDs() []types.GlobalThreadID {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	out := make([]types.GlobalThreadID, 0, len(g.localIDs))
	for id := range g.localIDs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Tree returns the group's current communication tree. Never nil once
// at least Join/ReplaceMembership has been called once (an empty
// group still has a one-node tree rooted at the master).
func (g *Group) Tree() *Tree {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.tree
}

// recomputeTreeLocked rebuilds the tree from the (sorted) member set:
// master first, then members by ascending group-thread-id,
// deduplicated. Caller must hold g.mutex.
func (g *Group) recomputeTreeLocked() {
	// The job coordinator (physical id 0) is always the tree master;
	// every group's fan-out roots there regardless of who created it.
	const master types.PhysicalID = 0

	var groupThreadsAsc []types.GroupThreadID
	for gt := range g.groupToGlobal {
		groupThreadsAsc = append(groupThreadsAsc, gt)
	}
	sort.Slice(groupThreadsAsc, func(i, j int) bool { return groupThreadsAsc[i] < groupThreadsAsc[j] })

	var membersPhysical []types.PhysicalID
	for _, gt := range groupThreadsAsc {
		global := g.groupToGlobal[gt]
		if home, err := g.topo.HomeOf(global); err == nil {
			membersPhysical = append(membersPhysical, home)
		}
	}
	g.tree = BuildTree(master, membersPhysical)
}

// NextRequestNum returns the next monotonic request number for the
// given collective kind, originated by this process, for this group.
// RequestNum is produced by an atomic counter at the request's
// originator and is unique within (group, kind, originator).
func (g *Group) NextRequestNum(kind string) types.RequestNum {
	g.reqMutex.Lock()
	defer g.reqMutex.Unlock()
	counter, ok := g.nextRequest[kind]
	if !ok {
		var zero uint64
		counter = &zero
		g.nextRequest[kind] = counter
	}
	*counter++
	return types.RequestNum(*counter)
}
