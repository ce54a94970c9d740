package runtime

import (
	"time"

	"github.com/jabolina/pcj/pkg/pcj/storage"
	"github.com/jabolina/pcj/pkg/pcj/types"
)

// Self returns this process's own physical id, always available once
// Bootstrap has returned.
func (rt *Runtime) Self() types.PhysicalID {
	id, _ := rt.topo.Self().Get()
	return id
}

// LocalThreads returns the global thread ids homed on this process.
func (rt *Runtime) LocalThreads() []types.GlobalThreadID {
	return rt.topo.LocalThreads()
}

// Barrier blocks the calling goroutine until every thread in the
// group has called Barrier for the current round.
func (rt *Runtime) Barrier(groupName string) error {
	g, err := rt.groups.ByName(groupName)
	if err != nil {
		return err
	}
	_, err = rt.engine.Barrier(g).Get()
	return err
}

// Broadcast delivers value to (storageName, name) on every thread in
// the group; the future resolves once this node's own copy has been
// applied.
func (rt *Runtime) Broadcast(groupName, storageName, name string, value interface{}) error {
	g, err := rt.groups.ByName(groupName)
	if err != nil {
		return err
	}
	fut, err := rt.engine.Broadcast(g, storageName, name, value)
	if err != nil {
		return err
	}
	_, err = fut.Get()
	return err
}

// Reduce folds value across every thread in the group using the
// function registered under (storageName, name) and returns the
// combined result to every thread.
func (rt *Runtime) Reduce(groupName, storageName, name string, value interface{}) (interface{}, error) {
	g, err := rt.groups.ByName(groupName)
	if err != nil {
		return nil, err
	}
	return rt.engine.Reduce(g, storageName, name, value).Get()
}

// Collect gathers value from every thread in the group, ordered by
// ascending group-thread-id, and returns the combined slice to every
// thread.
func (rt *Runtime) Collect(groupName string, self types.GlobalThreadID, storageName, name string, value interface{}) ([]interface{}, error) {
	g, err := rt.groups.ByName(groupName)
	if err != nil {
		return nil, err
	}
	fut, err := rt.engine.Collect(g, self, storageName, name, value)
	if err != nil {
		return nil, err
	}
	v, err := fut.Get()
	if err != nil {
		return nil, err
	}
	return v.([]interface{}), nil
}

// GroupJoin adds self to the named group, creating it if this is the
// first member to join, and returns the assigned group-thread-id.
func (rt *Runtime) GroupJoin(groupName string, self types.GlobalThreadID) (types.GroupThreadID, error) {
	v, err := rt.engine.GroupJoin(groupName, self).Get()
	if err != nil {
		return 0, err
	}
	return v.(types.GroupThreadID), nil
}

// Get reads (storageName, name) from target's home storage.
func (rt *Runtime) Get(target types.GlobalThreadID, storageName, name string) (interface{}, error) {
	fut, err := rt.engine.Get(target, storageName, name)
	if err != nil {
		return nil, err
	}
	return fut.Get()
}

// Put writes value for (storageName, name) into target's home
// storage.
func (rt *Runtime) Put(target types.GlobalThreadID, storageName, name string, value interface{}) error {
	fut, err := rt.engine.Put(target, storageName, name, value)
	if err != nil {
		return err
	}
	_, err = fut.Get()
	return err
}

// Accumulate folds value into target's home copy of (storageName,
// name) using the function registered for that pair.
func (rt *Runtime) Accumulate(target types.GlobalThreadID, storageName, name string, value interface{}) error {
	fut, err := rt.engine.Accumulate(target, storageName, name, value)
	if err != nil {
		return err
	}
	_, err = fut.Get()
	return err
}

// AsyncAt invokes the operation registered as name on target's home
// node with payload and returns its result.
func (rt *Runtime) AsyncAt(target types.GlobalThreadID, name string, payload []byte) ([]byte, error) {
	fut, err := rt.engine.AsyncAt(target, name, payload)
	if err != nil {
		return nil, err
	}
	v, err := fut.Get()
	if err != nil {
		return nil, err
	}
	result, _ := v.([]byte)
	return result, nil
}

// RegisterAccumulator names the associative combine function used by
// Reduce and Accumulate on (storageName, name). Must be called
// identically on every node before any Reduce/Accumulate targeting
// that variable runs.
func (rt *Runtime) RegisterAccumulator(storageName, name string, fn storage.AccumulateFunc) {
	rt.engine.RegisterAccumulator(storageName, name, fn)
}

// RegisterOperation names an AsyncAt handler. Must be called
// identically on every node before any AsyncAt targeting it runs.
func (rt *Runtime) RegisterOperation(name string, fn func(payload []byte) ([]byte, error)) {
	rt.engine.RegisterOperation(name, fn)
}

// LocalStorage returns this process's Storages for a local thread,
// for entry points that want direct access without a round trip
// (equivalent to reading one's own Get/Put target locally).
func (rt *Runtime) LocalStorage(thread types.GlobalThreadID) *storage.Storages {
	return rt.storages.ForThread(thread)
}

// Shutdown runs this node through the bye tree and blocks until the
// whole job has drained, or pcj.network.shutdown.timeout elapses.
// Call once per process, after every local thread has returned from
// the user entry point.
func (rt *Runtime) Shutdown() error {
	fut := rt.engine.Bye()
	done := make(chan struct{})
	var err error
	go func() {
		_, err = fut.Get()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(rt.opts.Config.NetworkShutdownTimeout):
		rt.log.Warnf("shutdown: bye tree did not drain within %s, exiting anyway", rt.opts.Config.NetworkShutdownTimeout)
	}
	rt.live.Stop()
	rt.stopDiagnostics()
	rt.networker.Stop()
	rt.selector.Close()
	return err
}
