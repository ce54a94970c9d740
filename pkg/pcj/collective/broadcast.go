package collective

import (
	"sync"

	"github.com/jabolina/pcj/pkg/pcj/group"
	"github.com/jabolina/pcj/pkg/pcj/types"
	"github.com/jabolina/pcj/pkg/pcj/wire"
)

// broadcastState tracks one node's participation in flooding a value
// down the tree and acknowledging back up once every child and the
// node's own local group threads have applied it.
type broadcastState struct {
	mutex           sync.Mutex
	started         bool
	childrenPending map[types.PhysicalID]bool
	appliedLocally  bool
	// replyTo is who the tree master acks directly to on completion
	// (the master has no parent to ack up to).
	replyTo types.PhysicalID
}

func (e *Engine) broadcastEntry(g *group.Group, key reqKey) *broadcastState {
	e.broadcastMu.Lock()
	defer e.broadcastMu.Unlock()
	st, ok := e.broadcasts[key]
	if !ok {
		st = &broadcastState{childrenPending: make(map[types.PhysicalID]bool)}
		for _, c := range g.Tree().Children(e.selfID()) {
			st.childrenPending[c] = true
		}
		e.broadcasts[key] = st
	}
	return st
}

// Broadcast sends value to every thread in g under (storageName, name)
// and returns a future that completes once this node's copy has been
// fully acknowledged by the tree master.
func (e *Engine) Broadcast(g *group.Group, storageName, name string, value interface{}) (*types.Future, error) {
	bytes, err := wire.MarshalValue(value)
	if err != nil {
		return nil, err
	}
	req := g.NextRequestNum("broadcast")
	key := reqKey{group: g.ID(), req: req}
	future := types.NewFuture()

	e.broadcastMu.Lock()
	e.broadcastFutures[key] = future
	e.broadcastMu.Unlock()

	e.send(g.Tree().Master(), &types.BroadcastRequest{
		Group:   g.ID(),
		Req:     req,
		Storage: storageName,
		Name:    name,
		Value:   bytes,
	})
	return future, nil
}

func (e *Engine) handleBroadcastRequest(from types.PhysicalID, msg *types.BroadcastRequest) {
	g, err := e.groups.ByID(msg.Group)
	if err != nil {
		e.log.Warnf("BroadcastRequest for unknown group %d", msg.Group)
		return
	}
	key := reqKey{group: msg.Group, req: msg.Req}
	st := e.broadcastEntry(g, key)

	st.mutex.Lock()
	firstTime := !st.started
	st.started = true
	self := e.selfID()
	isMaster := g.Tree().IsMaster(self)
	if isMaster {
		st.replyTo = from
	}
	st.mutex.Unlock()

	if !firstTime {
		return
	}
	for _, c := range g.Tree().Children(self) {
		e.send(c, msg)
	}
	e.send(self, &types.BroadcastInform{BroadcastRequest: *msg})
}

func (e *Engine) handleBroadcastInform(from types.PhysicalID, msg *types.BroadcastInform) {
	g, err := e.groups.ByID(msg.Group)
	if err != nil {
		e.log.Warnf("BroadcastInform for unknown group %d", msg.Group)
		return
	}
	var value interface{}
	if err := wire.UnmarshalValue(msg.Value, &value); err != nil {
		e.log.Errorf("broadcast value decode failed: %v", err)
		return
	}
	for _, th := range g.LocalThreadIDs() {
		if err := e.storages.ForThread(th).Put(msg.Storage, msg.Name, value); err != nil {
			e.log.Errorf("broadcast apply to thread %d failed: %v", th, err)
		}
	}

	key := reqKey{group: msg.Group, req: msg.Req}
	st := e.broadcastEntry(g, key)
	st.mutex.Lock()
	st.appliedLocally = true
	ready := len(st.childrenPending) == 0
	st.mutex.Unlock()
	if ready {
		e.ackBroadcastUp(g, key, st)
	}
}

func (e *Engine) handleBroadcastBytes(from types.PhysicalID, msg *types.BroadcastBytes) {
	key := reqKey{group: msg.Group, req: msg.Req}
	g, err := e.groups.ByID(msg.Group)
	if err == nil {
		e.broadcastMu.Lock()
		st, exists := e.broadcasts[key]
		e.broadcastMu.Unlock()
		if exists {
			st.mutex.Lock()
			delete(st.childrenPending, from)
			ready := st.appliedLocally && len(st.childrenPending) == 0
			st.mutex.Unlock()
			if ready {
				e.ackBroadcastUp(g, key, st)
			}
		}
	}

	e.broadcastMu.Lock()
	future, ok := e.broadcastFutures[key]
	if ok {
		delete(e.broadcastFutures, key)
	}
	e.broadcastMu.Unlock()
	if ok {
		future.Complete(nil)
		if g != nil {
			e.metrics.CollectiveCompleted(g.Name(), "broadcast")
		}
	}
}

func (e *Engine) ackBroadcastUp(g *group.Group, key reqKey, st *broadcastState) {
	self := e.selfID()
	tree := g.Tree()
	if tree.IsMaster(self) {
		st.mutex.Lock()
		replyTo := st.replyTo
		st.mutex.Unlock()
		e.send(replyTo, &types.BroadcastBytes{Group: key.group, Req: key.req})
	} else {
		parent, ok := tree.Parent(self)
		if ok {
			e.send(parent, &types.BroadcastBytes{Group: key.group, Req: key.req})
		}
	}
	e.broadcastMu.Lock()
	delete(e.broadcasts, key)
	e.broadcastMu.Unlock()
}
