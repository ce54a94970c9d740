// Package topology holds the process-wide registry: physical node id,
// peer node table, thread-id to node mapping, and the list of threads
// local to this process.
package topology

import (
	"sort"
	"sync"

	"github.com/jabolina/pcj/pkg/pcj/types"
)

// Topology is the process-wide node/thread registry, built during
// bootstrap and read-only afterwards (membership never changes once
// the job is running).
type Topology struct {
	mutex sync.RWMutex

	self PhysicalIDHolder

	nodes    map[types.PhysicalID]types.Node
	threads  map[types.GlobalThreadID]types.PhysicalID
	allGlobs []types.GlobalThreadID
}

// PhysicalIDHolder is a small mutable cell for this process's own
// physical id, which is unknown until node 0 assigns it.
type PhysicalIDHolder struct {
	mutex sync.RWMutex
	value types.PhysicalID
	set   bool
}

func (h *PhysicalIDHolder) Set(id types.PhysicalID) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.value = id
	h.set = true
}

func (h *PhysicalIDHolder) Get() (types.PhysicalID, bool) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.value, h.set
}

// New returns an empty Topology; node 0's id is fixed immediately,
// other processes call Self.Set once node 0 assigns their id.
func New() *Topology {
	return &Topology{
		nodes:   make(map[types.PhysicalID]types.Node),
		threads: make(map[types.GlobalThreadID]types.PhysicalID),
	}
}

// Self gives access to this process's own physical id cell.
func (t *Topology) Self() *PhysicalIDHolder { return &t.self }

// SetNodes installs the complete node table received from node 0 (or
// known directly, for node 0 itself), replacing any previous table.
func (t *Topology) SetNodes(nodes []types.Node) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.nodes = make(map[types.PhysicalID]types.Node, len(nodes))
	t.threads = make(map[types.GlobalThreadID]types.PhysicalID)
	t.allGlobs = nil
	for _, n := range nodes {
		t.nodes[n.Physical] = n
		for _, th := range n.LocalThreads {
			t.threads[th] = n.Physical
			t.allGlobs = append(t.allGlobs, th)
		}
	}
	sort.Slice(t.allGlobs, func(i, j int) bool { return t.allGlobs[i] < t.allGlobs[j] })
}

// Node returns the Node for a physical id.
func (t *Topology) Node(id types.PhysicalID) (types.Node, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	n, ok := t.nodes[id]
	return n, ok
}

// Nodes returns every known Node, ordered by ascending physical id.
func (t *Topology) Nodes() []types.Node {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	out := make([]types.Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Physical < out[j].Physical })
	return out
}

// HomeOf returns the physical id hosting a global thread id.
func (t *Topology) HomeOf(id types.GlobalThreadID) (types.PhysicalID, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	p, ok := t.threads[id]
	if !ok {
		return 0, types.ErrUnknownThread
	}
	return p, nil
}

// AllThreads returns every global thread id in the job, ascending.
func (t *Topology) AllThreads() []types.GlobalThreadID {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	out := make([]types.GlobalThreadID, len(t.allGlobs))
	copy(out, t.allGlobs)
	return out
}

// LocalThreads returns the global thread ids homed on this process.
func (t *Topology) LocalThreads() []types.GlobalThreadID {
	self, ok := t.self.Get()
	if !ok {
		return nil
	}
	n, ok := t.Node(self)
	if !ok {
		return nil
	}
	out := make([]types.GlobalThreadID, len(n.LocalThreads))
	copy(out, n.LocalThreads)
	return out
}

// IsLocal reports whether a thread is homed on this process.
func (t *Topology) IsLocal(id types.GlobalThreadID) bool {
	self, ok := t.self.Get()
	if !ok {
		return false
	}
	home, err := t.HomeOf(id)
	return err == nil && home == self
}
