package storage

import (
	"sync"

	"github.com/jabolina/pcj/pkg/pcj/types"
)

// Registry maps every thread homed on this node to its own Storages.
type Registry struct {
	mutex sync.RWMutex
	byID  map[types.GlobalThreadID]*Storages
}

// NewRegistry returns an empty per-node storage registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[types.GlobalThreadID]*Storages)}
}

// ForThread returns the Storages for a local thread, creating it on
// first use.
func (r *Registry) ForThread(id types.GlobalThreadID) *Storages {
	r.mutex.RLock()
	s, ok := r.byID[id]
	r.mutex.RUnlock()
	if ok {
		return s
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if s, ok = r.byID[id]; ok {
		return s
	}
	s = New()
	r.byID[id] = s
	return s
}

// Lookup returns the Storages for a local thread without creating it,
// failing with UnknownThread if ForThread has never been called for it.
func (r *Registry) Lookup(id types.GlobalThreadID) (*Storages, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, types.ErrUnknownThread
	}
	return s, nil
}
